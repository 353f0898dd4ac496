package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmapos/domain"
	"pharmapos/internal/database"
	"pharmapos/internal/migrations"
	"pharmapos/internal/sale/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(db))

	// sale_items references medicines; the snapshots below need their rows.
	for _, m := range [][2]string{
		{"M-001", "Paracetamol 500mg"},
		{"M-002", "Ibuprofen 200mg"},
	} {
		_, err := db.Exec(`INSERT INTO medicines (id, name, quantity_on_hand, unit_price) VALUES (?, ?, 0, 0)`,
			m[0], m[1])
		require.NoError(t, err)
	}

	return store.New(db)
}

func sampleLines() []domain.CartLine {
	return []domain.CartLine{
		{MedicineID: "M-001", Name: "Paracetamol 500mg", UnitPrice: 5, Units: 10, LineTotal: 50},
		{MedicineID: "M-002", Name: "Ibuprofen 200mg", ExpiryDate: "2027-01-01", UnitPrice: 8, Units: 2, LineTotal: 16},
	}
}

func TestRecordSale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saleID, err := s.RecordSale(ctx, nil, sampleLines(), 66)
	require.NoError(t, err)
	assert.NotZero(t, saleID)

	report, err := s.Report(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.Equal(t, saleID, report[0].ID)
	assert.Equal(t, int64(66), report[0].Total)
	require.Len(t, report[0].Items, 2)
	assert.Equal(t, "M-001", report[0].Items[0].MedicineID)
	assert.Equal(t, int64(16), report[0].Items[1].LineTotal)
}

func TestSummaries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordSale(ctx, nil, sampleLines(), 66)
	require.NoError(t, err)
	_, err = s.RecordSale(ctx, nil, sampleLines()[:1], 50)
	require.NoError(t, err)

	// Rows are stamped with CURRENT_TIMESTAMP (UTC in SQLite).
	today := time.Now().UTC()

	daily, err := s.DailySummary(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, int64(116), daily.Revenue)
	assert.Equal(t, int64(2), daily.Count)

	monthly, err := s.MonthlySummary(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, int64(116), monthly.Revenue)

	empty, err := s.DailySummary(ctx, today.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Zero(t, empty.Count)
	assert.Zero(t, empty.Revenue)
}

func TestReportDateBounds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordSale(ctx, nil, sampleLines(), 66)
	require.NoError(t, err)

	today := time.Now().UTC().Format(domain.DateLayout)

	report, err := s.Report(ctx, today, today)
	require.NoError(t, err)
	assert.Len(t, report, 1)

	report, err = s.Report(ctx, "2099-01-01", "")
	require.NoError(t, err)
	assert.Empty(t, report)

	report, err = s.Report(ctx, "", "2000-01-01")
	require.NoError(t, err)
	assert.Empty(t, report)
}
