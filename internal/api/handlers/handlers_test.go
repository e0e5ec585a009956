package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/dvloznov/devfinance/internal/domain"
	"github.com/dvloznov/devfinance/internal/events"
	"github.com/dvloznov/devfinance/internal/ledger"
	"github.com/dvloznov/devfinance/internal/logger"
	"github.com/dvloznov/devfinance/internal/storage"
)

func newTestLedger(t *testing.T) *ledger.Store {
	t.Helper()
	log := logger.NewWithWriter(os.Stderr)
	st, err := storage.Open(t.TempDir(), log)
	if err != nil {
		t.Fatal(err)
	}
	led, err := ledger.Open(st, events.NewBus(), log)
	if err != nil {
		t.Fatal(err)
	}
	return led
}

func TestTransactionsCreateAndList(t *testing.T) {
	led := newTestLedger(t)
	h := NewTransactionsHandler(led, logger.NewWithWriter(os.Stderr))

	body := `{"date":"2024-03-01","description":"Salary","category":"Income","amount":5000}`
	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/transactions", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created domain.Transaction
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" || created.Amount != 5000 {
		t.Errorf("created = %+v", created)
	}

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/transactions", nil))
	var listed []domain.Transaction
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed) != 1 {
		t.Errorf("listed %d transactions, want 1", len(listed))
	}
}

func TestTransactionsCreateValidation(t *testing.T) {
	led := newTestLedger(t)
	h := NewTransactionsHandler(led, logger.NewWithWriter(os.Stderr))

	tests := []struct {
		name string
		body string
	}{
		{"not json", "nope"},
		{"missing description", `{"date":"2024-03-01","amount":10}`},
		{"missing date", `{"description":"x","amount":10}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/transactions", strings.NewReader(tc.body)))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestTransactionsDeleteUnknownIs404(t *testing.T) {
	led := newTestLedger(t)
	h := NewTransactionsHandler(led, logger.NewWithWriter(os.Stderr))

	rec := httptest.NewRecorder()
	h.Delete(rec, httptest.NewRequest(http.MethodDelete, "/api/transactions/x", nil), "x")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCategoriesDefaultProtection(t *testing.T) {
	led := newTestLedger(t)
	h := NewCategoriesHandler(led, logger.NewWithWriter(os.Stderr))

	rec := httptest.NewRecorder()
	h.Delete(rec, httptest.NewRequest(http.MethodDelete, "/api/categories/income", nil), "income")
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestBudgetsListReturnsStatus(t *testing.T) {
	led := newTestLedger(t)
	led.AddBudget(domain.Budget{CategoryName: "food", Limit: 400, AlertThreshold: 80})
	h := NewBudgetsHandler(led, logger.NewWithWriter(os.Stderr))

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/budgets", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"spend"`) {
		t.Errorf("expected derived status in response: %s", rec.Body.String())
	}
}

func TestImportCSVEndpoint(t *testing.T) {
	led := newTestLedger(t)
	h := NewTransferHandler(led, logger.NewWithWriter(os.Stderr))

	csv := "date,description,amount\n2024-03-01,Salary,100\nbad-row,,\n"
	rec := httptest.NewRecorder()
	h.ImportCSV(rec, httptest.NewRequest(http.MethodPost, "/api/import/csv", strings.NewReader(csv)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result["imported"] != 1 || result["skipped"] != 1 {
		t.Errorf("result = %v, want 1 imported / 1 skipped", result)
	}
	if len(led.Transactions()) != 1 {
		t.Errorf("ledger has %d transactions, want 1", len(led.Transactions()))
	}
}

func TestExportImportJSONRoundTrip(t *testing.T) {
	led := newTestLedger(t)
	led.AddTransaction(domain.Transaction{
		Date: domain.NewDate(2024, 3, 1), Description: "Salary", Category: "Income", Amount: 5000,
	}, "")
	h := NewTransferHandler(led, logger.NewWithWriter(os.Stderr))

	rec := httptest.NewRecorder()
	h.ExportJSON(rec, httptest.NewRequest(http.MethodGet, "/api/export/json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d", rec.Code)
	}
	exported := rec.Body.String()

	// Importing the export into a fresh ledger reproduces the data.
	fresh := newTestLedger(t)
	h2 := NewTransferHandler(fresh, logger.NewWithWriter(os.Stderr))
	rec = httptest.NewRecorder()
	h2.ImportJSON(rec, httptest.NewRequest(http.MethodPost, "/api/import/json?mode=replace", strings.NewReader(exported)))
	if rec.Code != http.StatusOK {
		t.Fatalf("import status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(fresh.Transactions()) != 1 {
		t.Errorf("fresh ledger has %d transactions, want 1", len(fresh.Transactions()))
	}
}

func TestDashboardEndpoint(t *testing.T) {
	led := newTestLedger(t)
	h := NewInsightsHandler(led, logger.NewWithWriter(os.Stderr))

	rec := httptest.NewRecorder()
	h.Dashboard(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, field := range []string{"revenue", "expenses", "netWorth", "monthlySeries"} {
		if !strings.Contains(rec.Body.String(), field) {
			t.Errorf("dashboard missing %q", field)
		}
	}
}

func TestProfileLifecycle(t *testing.T) {
	log := logger.NewWithWriter(os.Stderr)
	st, err := storage.Open(t.TempDir(), log)
	if err != nil {
		t.Fatal(err)
	}
	h := NewProfileHandler(st, log)

	// Empty store: 404.
	rec := httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/profile", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("empty get status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Put(rec, httptest.NewRequest(http.MethodPut, "/api/profile",
		strings.NewReader(`{"id":"u1","name":"Dev","email":"dev@example.com"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/profile", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "dev@example.com") {
		t.Errorf("get after put: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.Delete(rec, httptest.NewRequest(http.MethodDelete, "/api/profile", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/profile", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}
