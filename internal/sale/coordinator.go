// Package sale orchestrates cart sessions against the medicine catalog.
// Adding a line reserves stock, removing one releases it, and finalizing
// turns the cart into an immutable receipt.
package sale

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"pharmapos/domain"
)

// Catalog is the stock authority the coordinator reserves against.
type Catalog interface {
	GetByID(ctx context.Context, id string) (*domain.MedicineRecord, error)
	TryAdjustStock(ctx context.Context, id string, delta int64) error
}

// SaleStore persists finalized sales.
type SaleStore interface {
	RecordSale(ctx context.Context, userID *int64, lines []domain.CartLine, total int64) (int64, error)
}

// Coordinator runs the cart state machine. Each session is owned by one
// clerk and mutated sequentially; the registry lock only protects the map
// and the brief in-memory mutation, never a call into the store.
type Coordinator struct {
	catalog Catalog
	sales   SaleStore
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*domain.CartSession
}

func NewCoordinator(catalog Catalog, sales SaleStore) *Coordinator {
	return &Coordinator{
		catalog:  catalog,
		sales:    sales,
		now:      time.Now,
		sessions: make(map[string]*domain.CartSession),
	}
}

// WithClock replaces the receipt clock, for tests.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// Begin opens a fresh cart session and returns a snapshot of it.
func (c *Coordinator) Begin() domain.CartSession {
	session := &domain.CartSession{
		ID:        uuid.NewString(),
		State:     domain.SessionOpen,
		CreatedAt: c.now(),
	}

	c.mu.Lock()
	c.sessions[session.ID] = session
	c.mu.Unlock()

	return snapshot(session)
}

// Session returns a snapshot of an open session.
func (c *Coordinator) Session(sessionID string) (domain.CartSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, err := c.open(sessionID)
	if err != nil {
		return domain.CartSession{}, err
	}
	return snapshot(session), nil
}

// AddLine reserves stock for the medicine and appends a snapshot line.
// On any failure the cart and the catalog are exactly as before the call.
// Adding the same medicine twice yields two independent lines with two
// independent reservations; lines are never merged.
func (c *Coordinator) AddLine(ctx context.Context, sessionID, medicineID string, units int64) (domain.CartLine, error) {
	if units <= 0 {
		return domain.CartLine{}, domain.NewInvalidInput("units must be a positive integer")
	}

	if _, err := c.Session(sessionID); err != nil {
		return domain.CartLine{}, err
	}

	rec, err := c.catalog.GetByID(ctx, medicineID)
	if err != nil {
		return domain.CartLine{}, err
	}

	// Reserve first; only a successful reservation may touch the cart.
	if err := c.catalog.TryAdjustStock(ctx, medicineID, -units); err != nil {
		return domain.CartLine{}, err
	}

	line := domain.CartLine{
		MedicineID: rec.ID,
		Name:       rec.Name,
		ExpiryDate: rec.ExpiryDate,
		UnitPrice:  rec.UnitPrice,
		Units:      units,
		LineTotal:  rec.UnitPrice * units,
	}

	c.mu.Lock()
	session, err := c.open(sessionID)
	if err == nil {
		session.Lines = append(session.Lines, line)
		session.RunningTotal += line.LineTotal
	}
	c.mu.Unlock()

	if err != nil {
		// The session closed between the reservation and the append;
		// hand the units back so nothing leaks.
		if releaseErr := c.catalog.TryAdjustStock(ctx, medicineID, units); releaseErr != nil {
			return domain.CartLine{}, releaseErr
		}
		return domain.CartLine{}, err
	}
	return line, nil
}

// RemoveLine releases the line's reservation and drops it from the cart.
// The running total is resummed from the remaining lines, not subtracted,
// so it can always be audited against them.
func (c *Coordinator) RemoveLine(ctx context.Context, sessionID string, index int) error {
	c.mu.Lock()
	session, err := c.open(sessionID)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if index < 0 || index >= len(session.Lines) {
		count := len(session.Lines)
		c.mu.Unlock()
		return domain.NewInvalidInput("line index out of range").
			WithDetail("index", index).
			WithDetail("lines", count)
	}
	line := session.Lines[index]
	session.Lines = append(session.Lines[:index], session.Lines[index+1:]...)
	session.RunningTotal = domain.SumLines(session.Lines)
	c.mu.Unlock()

	// Release never fails for a medicine that still exists; a store outage
	// surfaces here and the line goes back, so the cart ends exactly as it
	// was before the call.
	if err := c.catalog.TryAdjustStock(ctx, line.MedicineID, line.Units); err != nil {
		c.mu.Lock()
		if live, openErr := c.open(sessionID); openErr == nil {
			lines := make([]domain.CartLine, 0, len(live.Lines)+1)
			lines = append(lines, live.Lines[:index]...)
			lines = append(lines, line)
			lines = append(lines, live.Lines[index:]...)
			live.Lines = lines
			live.RunningTotal = domain.SumLines(live.Lines)
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

// Finalize persists the sale and returns the immutable receipt. Stock stays
// decremented; the sale is final. On a persistence failure the session
// remains open with its reservations intact.
func (c *Coordinator) Finalize(ctx context.Context, sessionID string, userID *int64) (*domain.Receipt, error) {
	session, err := c.Session(sessionID)
	if err != nil {
		return nil, err
	}

	saleID, err := c.sales.RecordSale(ctx, userID, session.Lines, session.RunningTotal)
	if err != nil {
		return nil, domain.NewPersistence("record sale", err)
	}

	receipt := &domain.Receipt{
		SaleID:    saleID,
		Lines:     session.Lines,
		Total:     session.RunningTotal,
		Timestamp: c.now(),
	}

	c.close(sessionID, domain.SessionFinalized)
	return receipt, nil
}

// Cancel releases every remaining reservation and closes the session.
// Abandoning a cart without cancelling would leak reserved stock; this is
// the explicit way out.
func (c *Coordinator) Cancel(ctx context.Context, sessionID string) error {
	session, err := c.Session(sessionID)
	if err != nil {
		return err
	}

	for _, line := range session.Lines {
		if err := c.catalog.TryAdjustStock(ctx, line.MedicineID, line.Units); err != nil {
			return err
		}
	}

	c.close(sessionID, domain.SessionCancelled)
	return nil
}

// open returns the live session or the appropriate error. Callers hold c.mu.
func (c *Coordinator) open(sessionID string) (*domain.CartSession, error) {
	session, ok := c.sessions[sessionID]
	if !ok {
		return nil, domain.NewNotFound("cart session", sessionID)
	}
	if session.State != domain.SessionOpen {
		return nil, domain.NewSessionClosed(sessionID)
	}
	return session, nil
}

// close clears the session, marks it terminal and drops it from the registry.
func (c *Coordinator) close(sessionID string, state domain.SessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if session, ok := c.sessions[sessionID]; ok {
		session.Lines = nil
		session.RunningTotal = 0
		session.State = state
		delete(c.sessions, sessionID)
	}
}

func snapshot(session *domain.CartSession) domain.CartSession {
	out := *session
	out.Lines = make([]domain.CartLine, len(session.Lines))
	copy(out.Lines, session.Lines)
	return out
}
