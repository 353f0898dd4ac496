// Package store persists finalized sales and serves the sale reports.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"pharmapos/domain"
)

type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// RecordSale writes the sale header and its line snapshots in one
// transaction and returns the new sale id.
func (s *Store) RecordSale(ctx context.Context, userID *int64, lines []domain.CartLine, total int64) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin sale: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO sales (user_id, total) VALUES (?, ?)`, userID, total)
	if err != nil {
		return 0, fmt.Errorf("insert sale: %w", err)
	}
	saleID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sale id: %w", err)
	}

	for _, line := range lines {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sale_items (sale_id, medicine_id, name, expiry_date, unit_price, units, line_total)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			saleID, line.MedicineID, line.Name, line.ExpiryDate,
			line.UnitPrice, line.Units, line.LineTotal); err != nil {
			return 0, fmt.Errorf("insert sale item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit sale: %w", err)
	}
	return saleID, nil
}

// Summary is an aggregate over a reporting period.
type Summary struct {
	Revenue int64 `db:"revenue" json:"revenue"`
	Count   int64 `db:"count" json:"sales_count"`
}

// DailySummary aggregates the sales recorded on the given day.
func (s *Store) DailySummary(ctx context.Context, day time.Time) (*Summary, error) {
	var sum Summary
	err := s.db.GetContext(ctx, &sum,
		`SELECT COALESCE(SUM(total), 0) AS revenue, COUNT(*) AS count
           FROM sales WHERE DATE(created_at) = ?`,
		day.Format(domain.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("daily summary: %w", err)
	}
	return &sum, nil
}

// MonthlySummary aggregates the sales recorded in the given day's month.
func (s *Store) MonthlySummary(ctx context.Context, day time.Time) (*Summary, error) {
	firstOfMonth := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
	var sum Summary
	err := s.db.GetContext(ctx, &sum,
		`SELECT COALESCE(SUM(total), 0) AS revenue, COUNT(*) AS count
           FROM sales WHERE DATE(created_at) >= ? AND DATE(created_at) <= ?`,
		firstOfMonth.Format(domain.DateLayout), day.Format(domain.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("monthly summary: %w", err)
	}
	return &sum, nil
}

// ReportEntry is one sale with its line snapshots.
type ReportEntry struct {
	domain.Sale
	Items []domain.SaleItem `json:"items"`
}

// Report lists sales newest first, optionally bounded by YYYY-MM-DD dates.
func (s *Store) Report(ctx context.Context, startDate, endDate string) ([]ReportEntry, error) {
	query := `SELECT id, user_id, total, created_at FROM sales`
	var (
		clauses []string
		args    []any
	)
	if startDate != "" {
		clauses = append(clauses, `DATE(created_at) >= ?`)
		args = append(args, startDate)
	}
	if endDate != "" {
		clauses = append(clauses, `DATE(created_at) <= ?`)
		args = append(args, endDate)
	}
	for i, clause := range clauses {
		if i == 0 {
			query += ` WHERE ` + clause
		} else {
			query += ` AND ` + clause
		}
	}
	query += ` ORDER BY created_at DESC, id DESC`

	var sales []domain.Sale
	if err := s.db.SelectContext(ctx, &sales, query, args...); err != nil {
		return nil, fmt.Errorf("fetch sales: %w", err)
	}
	if len(sales) == 0 {
		return []ReportEntry{}, nil
	}

	ids := make([]int64, len(sales))
	for i, sl := range sales {
		ids[i] = sl.ID
	}
	itemsQuery, itemsArgs, err := sqlx.In(
		`SELECT id, sale_id, medicine_id, name, expiry_date, unit_price, units, line_total
           FROM sale_items WHERE sale_id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("prepare sale items query: %w", err)
	}
	itemsQuery = s.db.Rebind(itemsQuery)

	var items []domain.SaleItem
	if err := s.db.SelectContext(ctx, &items, itemsQuery, itemsArgs...); err != nil {
		return nil, fmt.Errorf("fetch sale items: %w", err)
	}
	itemsBySale := make(map[int64][]domain.SaleItem, len(sales))
	for _, item := range items {
		itemsBySale[item.SaleID] = append(itemsBySale[item.SaleID], item)
	}

	report := make([]ReportEntry, len(sales))
	for i, sl := range sales {
		report[i] = ReportEntry{Sale: sl, Items: itemsBySale[sl.ID]}
	}
	return report, nil
}
