package domain

import "time"

// DateLayout is the storage format for medicine dates. Dates are kept as
// YYYY-MM-DD text; lexicographic order equals chronological order, so the
// store can compare them directly in SQL.
const DateLayout = time.DateOnly

// MedicineRecord is one catalog entry with its current stock level.
// QuantityOnHand is never negative; every change goes through the catalog's
// conditional adjustment. UnitPrice is in the smallest currency unit.
type MedicineRecord struct {
	ID              string `db:"id" json:"id"`
	Name            string `db:"name" json:"name"`
	BatchNumber     string `db:"batch_number" json:"batch_number,omitempty"`
	ManufactureDate string `db:"manufacture_date" json:"manufacture_date,omitempty"`
	ExpiryDate      string `db:"expiry_date" json:"expiry_date,omitempty"`
	QuantityOnHand  int64  `db:"quantity_on_hand" json:"quantity_on_hand"`
	UnitPrice       int64  `db:"unit_price" json:"unit_price"`
	CreatedAt       string `db:"created_at" json:"created_at,omitempty"`
	UpdatedAt       string `db:"updated_at" json:"updated_at,omitempty"`
}

// Validate checks the record fields on intake and edit.
func (m *MedicineRecord) Validate() error {
	if m.ID == "" {
		return NewInvalidInput("medicine id is required")
	}
	if m.Name == "" {
		return NewInvalidInput("medicine name is required")
	}
	if m.QuantityOnHand < 0 {
		return NewInvalidInput("quantity_on_hand must not be negative")
	}
	if m.UnitPrice < 0 {
		return NewInvalidInput("unit_price must not be negative")
	}
	for _, d := range []string{m.ManufactureDate, m.ExpiryDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, d); err != nil {
			return NewInvalidInput("dates must be in YYYY-MM-DD format")
		}
	}
	if m.ManufactureDate != "" && m.ExpiryDate != "" && m.ExpiryDate < m.ManufactureDate {
		return NewInvalidInput("expiry_date must not precede manufacture_date")
	}
	return nil
}

// Validity classifies a medicine by its expiry date relative to a reference day.
type Validity string

const (
	ValidityValid   Validity = "valid"
	ValidityExpired Validity = "expired"
	ValidityAll     Validity = "all"
)

// ParseValidity maps a query-string value to a Validity. Empty means All.
func ParseValidity(s string) (Validity, error) {
	switch Validity(s) {
	case ValidityValid, ValidityExpired, ValidityAll:
		return Validity(s), nil
	case "":
		return ValidityAll, nil
	}
	return "", NewInvalidInput("validity must be one of valid, expired, all")
}

// ClassifyExpiry returns Valid when the expiry date is on or after the
// reference day. A medicine without an expiry date never expires.
func ClassifyExpiry(expiryDate string, now time.Time) Validity {
	if expiryDate == "" {
		return ValidityValid
	}
	if expiryDate < now.Format(DateLayout) {
		return ValidityExpired
	}
	return ValidityValid
}

// Matches reports whether a medicine with the given expiry date falls into
// this validity class at the reference time.
func (v Validity) Matches(expiryDate string, now time.Time) bool {
	if v == ValidityAll {
		return true
	}
	return ClassifyExpiry(expiryDate, now) == v
}
