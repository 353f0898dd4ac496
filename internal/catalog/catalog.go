// Package catalog is the authoritative store of medicine records and stock
// levels. Stock only ever changes through TryAdjustStock, a single
// conditional update that cannot drive a quantity negative.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"pharmapos/domain"
)

type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock replaces the reference clock, for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

const selectMedicineColumns = `
    id, name, batch_number, manufacture_date, expiry_date,
    quantity_on_hand, unit_price, created_at, updated_at
`

// GetByID returns the medicine or a NotFound error.
func (s *Store) GetByID(ctx context.Context, id string) (*domain.MedicineRecord, error) {
	var rec domain.MedicineRecord
	err := s.db.GetContext(ctx, &rec,
		`SELECT `+selectMedicineColumns+` FROM medicines WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("medicine", id)
	}
	if err != nil {
		return nil, domain.NewPersistence("fetch medicine", err)
	}
	return &rec, nil
}

// FindAvailable lists sellable medicines: quantity on hand above zero, name
// starting with the given prefix, expiry matching the validity class at the
// current date. The prefix match is case-sensitive; SQLite's LIKE folds
// ASCII case, so the predicate compares an exact substring instead.
func (s *Store) FindAvailable(ctx context.Context, namePrefix string, validity domain.Validity) ([]domain.MedicineRecord, error) {
	query := `SELECT ` + selectMedicineColumns + ` FROM medicines WHERE quantity_on_hand > 0`
	args := []any{}

	if namePrefix != "" {
		query += ` AND substr(name, 1, ?) = ?`
		args = append(args, len([]rune(namePrefix)), namePrefix)
	}

	today := s.now().Format(domain.DateLayout)
	switch validity {
	case domain.ValidityValid:
		query += ` AND (expiry_date = '' OR expiry_date >= ?)`
		args = append(args, today)
	case domain.ValidityExpired:
		query += ` AND expiry_date != '' AND expiry_date < ?`
		args = append(args, today)
	case domain.ValidityAll:
	default:
		return nil, domain.NewInvalidInput(fmt.Sprintf("unknown validity %q", validity))
	}

	query += ` ORDER BY name, id`

	var records []domain.MedicineRecord
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, domain.NewPersistence("search medicines", err)
	}
	return records, nil
}

// TryAdjustStock applies quantity_on_hand += delta only if the result stays
// non-negative, in one statement. A negative delta reserves stock, a
// positive delta releases it; release never fails on an existing row.
func (s *Store) TryAdjustStock(ctx context.Context, id string, delta int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE medicines
            SET quantity_on_hand = quantity_on_hand + ?, updated_at = CURRENT_TIMESTAMP
          WHERE id = ? AND quantity_on_hand + ? >= 0`,
		delta, id, delta)
	if err != nil {
		return domain.NewPersistence("adjust stock", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.NewPersistence("adjust stock", err)
	}
	if affected > 0 {
		return nil
	}

	// The guarded update matched nothing: either the medicine does not
	// exist, or the delta would oversell. A point lookup tells which.
	rec, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return domain.NewInsufficientStock(id, -delta, rec.QuantityOnHand)
}

// Create inserts a new medicine record (inventory intake).
func (s *Store) Create(ctx context.Context, rec *domain.MedicineRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO medicines (id, name, batch_number, manufacture_date, expiry_date, quantity_on_hand, unit_price)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.BatchNumber, rec.ManufactureDate, rec.ExpiryDate,
		rec.QuantityOnHand, rec.UnitPrice)
	if err != nil {
		return domain.NewPersistence("create medicine", err)
	}
	return nil
}

// Update rewrites the descriptive fields and price of an existing record.
// Stock is deliberately excluded; quantity changes go through TryAdjustStock.
func (s *Store) Update(ctx context.Context, rec *domain.MedicineRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE medicines
            SET name = ?, batch_number = ?, manufacture_date = ?, expiry_date = ?,
                unit_price = ?, updated_at = CURRENT_TIMESTAMP
          WHERE id = ?`,
		rec.Name, rec.BatchNumber, rec.ManufactureDate, rec.ExpiryDate,
		rec.UnitPrice, rec.ID)
	if err != nil {
		return domain.NewPersistence("update medicine", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.NewPersistence("update medicine", err)
	}
	if affected == 0 {
		return domain.NewNotFound("medicine", rec.ID)
	}
	return nil
}

// FindExpiringWithin lists stocked medicines whose expiry date falls on or
// before today+days, soonest first. Feeds the expiry-alert report.
func (s *Store) FindExpiringWithin(ctx context.Context, days int) ([]domain.MedicineRecord, error) {
	if days < 0 {
		return nil, domain.NewInvalidInput("days must not be negative")
	}
	cutoff := s.now().AddDate(0, 0, days).Format(domain.DateLayout)

	var records []domain.MedicineRecord
	err := s.db.SelectContext(ctx, &records,
		`SELECT `+selectMedicineColumns+` FROM medicines
          WHERE expiry_date != '' AND expiry_date <= ? AND quantity_on_hand > 0
          ORDER BY expiry_date, id`, cutoff)
	if err != nil {
		return nil, domain.NewPersistence("fetch expiry alerts", err)
	}
	return records, nil
}
