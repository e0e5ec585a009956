package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/devfinance/internal/api/middleware"
	"github.com/dvloznov/devfinance/internal/budget"
	"github.com/dvloznov/devfinance/internal/domain"
	"github.com/dvloznov/devfinance/internal/exchange"
	"github.com/dvloznov/devfinance/internal/forecast"
	"github.com/dvloznov/devfinance/internal/ledger"
	"github.com/dvloznov/devfinance/internal/metrics"
	"github.com/dvloznov/devfinance/internal/notify"
)

// BudgetsHandler handles budget endpoints. Reads return derived status,
// not the bare records.
type BudgetsHandler struct {
	ledger *ledger.Store
	log    zerolog.Logger
}

// NewBudgetsHandler creates a new budgets handler.
func NewBudgetsHandler(led *ledger.Store, log zerolog.Logger) *BudgetsHandler {
	return &BudgetsHandler{ledger: led, log: log}
}

// List handles GET /api/budgets. With ?attention=true only the budgets
// over limit or past their alert threshold come back.
func (h *BudgetsHandler) List(w http.ResponseWriter, r *http.Request) {
	budgets := h.ledger.Budgets()
	txs := h.ledger.Transactions()
	now := time.Now()

	if r.URL.Query().Get("attention") == "true" {
		statuses := budget.NeedingAttention(budgets, txs, now)
		if statuses == nil {
			statuses = []budget.Status{}
		}
		middleware.WriteJSON(w, http.StatusOK, statuses)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, budget.Statuses(budgets, txs, now))
}

// Create handles POST /api/budgets
func (h *BudgetsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var b domain.Budget
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if b.CategoryName == "" || b.Limit <= 0 {
		middleware.WriteError(w, http.StatusBadRequest, "categoryName and a positive limit are required")
		return
	}

	created, err := h.ledger.AddBudget(b)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, created)
}

// Update handles PUT /api/budgets/{id}
func (h *BudgetsHandler) Update(w http.ResponseWriter, r *http.Request, id string) {
	var b domain.Budget
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.ledger.UpdateBudget(id, b); err != nil {
		writeLedgerError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": "updated"})
}

// Delete handles DELETE /api/budgets/{id}
func (h *BudgetsHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.ledger.DeleteBudget(id); err != nil {
		writeLedgerError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// Progress handles GET /api/budgets/{id}/progress?period=month|quarter|year|all
func (h *BudgetsHandler) Progress(w http.ResponseWriter, r *http.Request, id string) {
	period := budget.ProgressPeriod(r.URL.Query().Get("period"))
	if period == "" {
		period = budget.PeriodMonth
	}

	points, err := budget.Progress(h.ledger.Budgets(), h.ledger.Transactions(), id, period, time.Now())
	if err != nil {
		if errors.Is(err, budget.ErrUnknownBudget) {
			middleware.WriteError(w, http.StatusNotFound, "Budget not found")
			return
		}
		middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, points)
}

// InsightsHandler serves the derived read models: dashboard, summary,
// forecast and trends.
type InsightsHandler struct {
	ledger *ledger.Store
	log    zerolog.Logger
}

// NewInsightsHandler creates a new insights handler.
func NewInsightsHandler(led *ledger.Store, log zerolog.Logger) *InsightsHandler {
	return &InsightsHandler{ledger: led, log: log}
}

// Dashboard handles GET /api/dashboard
func (h *InsightsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	m := metrics.Dashboard(h.ledger.Transactions(), h.ledger.Catalog(), time.Now())
	middleware.WriteJSON(w, http.StatusOK, m)
}

// Summary handles GET /api/summary
func (h *InsightsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	s := metrics.Summary(h.ledger.Transactions(), h.ledger.Debts(), h.ledger.Catalog(), time.Now())
	middleware.WriteJSON(w, http.StatusOK, s)
}

// Forecast handles GET /api/forecast?months=6
func (h *InsightsHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	months := 6
	if raw := r.URL.Query().Get("months"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 24 {
			middleware.WriteError(w, http.StatusBadRequest, "months must be between 1 and 24")
			return
		}
		months = parsed
	}

	projections := forecast.Forecast(h.ledger.Transactions(), h.ledger.Catalog(), time.Now(), months)
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"history":     forecast.History(h.ledger.Transactions(), h.ledger.Catalog(), time.Now()),
		"projections": projections,
	})
}

// Trends handles GET /api/trends
func (h *InsightsHandler) Trends(w http.ResponseWriter, r *http.Request) {
	a := forecast.AnalyzeTrends(h.ledger.Transactions(), h.ledger.Catalog(), time.Now())
	middleware.WriteJSON(w, http.StatusOK, a)
}

// NotificationsHandler handles the notification list and its settings.
type NotificationsHandler struct {
	engine *notify.Engine
	log    zerolog.Logger
}

// NewNotificationsHandler creates a new notifications handler.
func NewNotificationsHandler(engine *notify.Engine, log zerolog.Logger) *NotificationsHandler {
	return &NotificationsHandler{engine: engine, log: log}
}

// List handles GET /api/notifications
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": h.engine.All(),
		"unreadCount":   h.engine.UnreadCount(),
		"enabled":       h.engine.Enabled(),
	})
}

// MarkRead handles POST /api/notifications/{id}/read
func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request, id string) {
	h.engine.MarkRead(id)
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": "read"})
}

// MarkAllRead handles POST /api/notifications/read-all
func (h *NotificationsHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	h.engine.MarkAllRead()
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

// Delete handles DELETE /api/notifications/{id}
func (h *NotificationsHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	h.engine.Delete(id)
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// ClearAll handles DELETE /api/notifications
func (h *NotificationsHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	h.engine.ClearAll()
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// UpdateSettings handles PUT /api/notifications/settings
func (h *NotificationsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	h.engine.SetEnabled(req.Enabled)
	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

// RatesHandler handles GET /api/rates.
type RatesHandler struct {
	client *exchange.Client
	log    zerolog.Logger
}

// NewRatesHandler creates a new rates handler.
func NewRatesHandler(client *exchange.Client, log zerolog.Logger) *RatesHandler {
	return &RatesHandler{client: client, log: log}
}

// Get handles GET /api/rates
func (h *RatesHandler) Get(w http.ResponseWriter, r *http.Request) {
	result, err := h.client.Rates(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load rates")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load rates")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}
