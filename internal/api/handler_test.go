package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmapos/domain"
	"pharmapos/internal/catalog"
	"pharmapos/internal/database"
	"pharmapos/internal/migrations"
	"pharmapos/internal/sale"
	salestore "pharmapos/internal/sale/store"
)

type testAPI struct {
	handler *Handler
	router  http.Handler
	catalog *catalog.Store
	token   string
}

func newTestAPI(t *testing.T, role string) *testAPI {
	t.Helper()
	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(db))

	cat := catalog.New(db)
	sales := salestore.New(db)
	coord := sale.NewCoordinator(cat, sales)
	handler := New(db, cat, coord, sales, "test_secret")

	res, err := db.Exec(`INSERT INTO users (username, email, password, role) VALUES (?, ?, ?, ?)`,
		"clerk", role+"@example.com", "hash", role)
	require.NoError(t, err)
	userID, err := res.LastInsertId()
	require.NoError(t, err)

	token, err := handler.generateToken(userID, role)
	require.NoError(t, err)

	return &testAPI{
		handler: handler,
		router:  handler.Router(),
		catalog: cat,
		token:   token,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+a.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest))
}

func seedMedicine(t *testing.T, a *testAPI, rec domain.MedicineRecord) {
	t.Helper()
	require.NoError(t, a.catalog.Create(context.Background(), &rec))
}

func TestAuthRequired(t *testing.T) {
	a := newTestAPI(t, "assistant")

	req := httptest.NewRequest(http.MethodGet, "/medicines/", nil)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSearchMedicines(t *testing.T) {
	a := newTestAPI(t, "assistant")
	seedMedicine(t, a, domain.MedicineRecord{
		ID: "M-001", Name: "Paracetamol 500mg", ExpiryDate: "2099-01-01",
		QuantityOnHand: 100, UnitPrice: 5,
	})
	seedMedicine(t, a, domain.MedicineRecord{
		ID: "M-002", Name: "Ibuprofen 200mg", ExpiryDate: "2099-01-01",
		QuantityOnHand: 0, UnitPrice: 8,
	})

	rec := a.do(t, http.MethodGet, "/medicines/?prefix=Para&validity=valid", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var records []domain.MedicineRecord
	decodeBody(t, rec, &records)
	require.Len(t, records, 1)
	assert.Equal(t, "M-001", records[0].ID)

	rec = a.do(t, http.MethodGet, "/medicines/?validity=stale", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaleSessionFlow(t *testing.T) {
	a := newTestAPI(t, "assistant")
	seedMedicine(t, a, domain.MedicineRecord{
		ID: "M-001", Name: "Paracetamol 500mg", QuantityOnHand: 100, UnitPrice: 5,
	})

	rec := a.do(t, http.MethodPost, "/sales/sessions/", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var session domain.CartSession
	decodeBody(t, rec, &session)
	require.NotEmpty(t, session.ID)
	assert.Equal(t, domain.SessionOpen, session.State)

	rec = a.do(t, http.MethodPost, "/sales/sessions/"+session.ID+"/lines",
		addLineRequest{MedicineID: "M-001", Units: 10})
	require.Equal(t, http.StatusCreated, rec.Code)
	var line domain.CartLine
	decodeBody(t, rec, &line)
	assert.Equal(t, int64(50), line.LineTotal)

	// Overselling maps to 422 with the machine code.
	rec = a.do(t, http.MethodPost, "/sales/sessions/"+session.ID+"/lines",
		addLineRequest{MedicineID: "M-001", Units: 95})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var failure struct {
		Code string `json:"code"`
	}
	decodeBody(t, rec, &failure)
	assert.Equal(t, domain.CodeInsufficientStock, failure.Code)

	rec = a.do(t, http.MethodPost, "/sales/sessions/"+session.ID+"/finalize", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var receipt domain.Receipt
	decodeBody(t, rec, &receipt)
	assert.Equal(t, int64(50), receipt.Total)
	require.Len(t, receipt.Lines, 1)

	// The session is terminal now.
	rec = a.do(t, http.MethodPost, "/sales/sessions/"+session.ID+"/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRemoveLineEndpoint(t *testing.T) {
	a := newTestAPI(t, "assistant")
	seedMedicine(t, a, domain.MedicineRecord{
		ID: "M-001", Name: "Paracetamol 500mg", QuantityOnHand: 100, UnitPrice: 5,
	})

	var session domain.CartSession
	rec := a.do(t, http.MethodPost, "/sales/sessions/", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	decodeBody(t, rec, &session)

	rec = a.do(t, http.MethodPost, "/sales/sessions/"+session.ID+"/lines",
		addLineRequest{MedicineID: "M-001", Units: 10})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = a.do(t, http.MethodDelete, fmt.Sprintf("/sales/sessions/%s/lines/%d", session.ID, 0), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodDelete, fmt.Sprintf("/sales/sessions/%s/lines/%d", session.ID, 5), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	med, err := a.catalog.GetByID(context.Background(), "M-001")
	require.NoError(t, err)
	assert.Equal(t, int64(100), med.QuantityOnHand)
}

func TestExpiryAlertsDaysParam(t *testing.T) {
	a := newTestAPI(t, "assistant")
	seedMedicine(t, a, domain.MedicineRecord{
		ID: "M-001", Name: "Paracetamol 500mg",
		ExpiryDate: time.Now().UTC().AddDate(0, 0, 7).Format(domain.DateLayout),
		QuantityOnHand: 10, UnitPrice: 5,
	})

	// Absent days falls back to the 30-day window.
	rec := a.do(t, http.MethodGet, "/medicines/expiring", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var records []domain.MedicineRecord
	decodeBody(t, rec, &records)
	require.Len(t, records, 1)

	rec = a.do(t, http.MethodGet, "/medicines/expiring?days=14", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Malformed numeric text is rejected, never silently defaulted.
	rec = a.do(t, http.MethodGet, "/medicines/expiring?days=soon", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, "/medicines/expiring?days=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMedicineIntakeRequiresPharmacist(t *testing.T) {
	assistant := newTestAPI(t, "assistant")
	rec := assistant.do(t, http.MethodPost, "/medicines/", medicineRequest{
		ID: "M-010", Name: "Amoxicillin 250mg", QuantityOnHand: 40, UnitPrice: 12,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	pharmacist := newTestAPI(t, "pharmacist")
	rec = pharmacist.do(t, http.MethodPost, "/medicines/", medicineRequest{
		ID: "M-010", Name: "Amoxicillin 250mg", QuantityOnHand: 40, UnitPrice: 12,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = pharmacist.do(t, http.MethodPost, "/medicines/", medicineRequest{
		ID: "M-011", Name: "Backdated", ManufactureDate: "2026-01-01",
		ExpiryDate: "2025-01-01", QuantityOnHand: 1, UnitPrice: 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportsRequirePharmacist(t *testing.T) {
	assistant := newTestAPI(t, "assistant")
	rec := assistant.do(t, http.MethodGet, "/reports/sales/daily", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	pharmacist := newTestAPI(t, "pharmacist")
	rec = pharmacist.do(t, http.MethodGet, "/reports/sales/daily", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary salestore.Summary
	decodeBody(t, rec, &summary)
	assert.Zero(t, summary.Count)

	rec = pharmacist.do(t, http.MethodGet, "/reports/sales?start_date=bad", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
