package domain

import "time"

// CartLine is one reserved position in a cart. Name, expiry and price are
// snapshots taken when the line was added; later catalog edits do not touch
// an open cart.
type CartLine struct {
	MedicineID string `json:"medicine_id"`
	Name       string `json:"name"`
	ExpiryDate string `json:"expiry_date,omitempty"`
	UnitPrice  int64  `json:"unit_price"`
	Units      int64  `json:"units"`
	LineTotal  int64  `json:"line_total"`
}

// SessionState tracks the cart life cycle. Finalized and Cancelled are
// terminal; a new session must be started to sell again.
type SessionState string

const (
	SessionOpen      SessionState = "open"
	SessionFinalized SessionState = "finalized"
	SessionCancelled SessionState = "cancelled"
)

// CartSession is the working state of one in-progress sale, owned by a
// single clerk. RunningTotal always equals the sum of the line totals.
type CartSession struct {
	ID           string       `json:"id"`
	Lines        []CartLine   `json:"lines"`
	RunningTotal int64        `json:"running_total"`
	State        SessionState `json:"state"`
	CreatedAt    time.Time    `json:"created_at"`
}

// SumLines recomputes the total from scratch. Removal uses this rather than
// subtracting, so the stored total can always be audited against the lines.
func SumLines(lines []CartLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.LineTotal
	}
	return total
}

// Receipt is the immutable outcome of a finalized sale, handed to the
// printing collaborator as-is.
type Receipt struct {
	SaleID    int64      `json:"sale_id"`
	Lines     []CartLine `json:"lines"`
	Total     int64      `json:"total"`
	Timestamp time.Time  `json:"timestamp"`
}

// Sale is a persisted sale header row.
type Sale struct {
	ID        int64  `db:"id" json:"id"`
	UserID    *int64 `db:"user_id" json:"user_id,omitempty"`
	Total     int64  `db:"total" json:"total"`
	CreatedAt string `db:"created_at" json:"created_at"`
}

// SaleItem is a persisted line snapshot belonging to a sale.
type SaleItem struct {
	ID         int64  `db:"id" json:"-"`
	SaleID     int64  `db:"sale_id" json:"sale_id"`
	MedicineID string `db:"medicine_id" json:"medicine_id"`
	Name       string `db:"name" json:"name"`
	ExpiryDate string `db:"expiry_date" json:"expiry_date,omitempty"`
	UnitPrice  int64  `db:"unit_price" json:"unit_price"`
	Units      int64  `db:"units" json:"units"`
	LineTotal  int64  `db:"line_total" json:"line_total"`
}

// User is an account row for the auth screens.
type User struct {
	ID        int64  `db:"id" json:"id"`
	Username  string `db:"username" json:"username"`
	Email     string `db:"email" json:"email"`
	Password  string `db:"password" json:"-"`
	Role      string `db:"role" json:"role"`
	CreatedAt string `db:"created_at" json:"created_at,omitempty"`
}
