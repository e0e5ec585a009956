// Package handlers implements the REST endpoints. One handler struct per
// resource; routing and method dispatch live in cmd/api.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/devfinance/internal/api/middleware"
	"github.com/dvloznov/devfinance/internal/domain"
	"github.com/dvloznov/devfinance/internal/ledger"
)

// writeLedgerError maps ledger errors to HTTP responses.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Record not found")
	case errors.Is(err, ledger.ErrDefaultCategory):
		middleware.WriteError(w, http.StatusForbidden, "Default categories cannot be changed")
	default:
		middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// TransactionsHandler handles transaction endpoints.
type TransactionsHandler struct {
	ledger *ledger.Store
	log    zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(led *ledger.Store, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{ledger: led, log: log}
}

// List handles GET /api/transactions
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.ledger.Transactions())
}

// createTransactionRequest carries an optional debt link next to the
// transaction fields.
type createTransactionRequest struct {
	domain.Transaction
	LinkedDebtID string `json:"linkedDebtId,omitempty"`
}

// Create handles POST /api/transactions
func (h *TransactionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Description == "" || req.Date.IsZero() {
		middleware.WriteError(w, http.StatusBadRequest, "description and date are required")
		return
	}

	tx, err := h.ledger.AddTransaction(req.Transaction, req.LinkedDebtID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to add transaction")
		writeLedgerError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, tx)
}

// Update handles PUT /api/transactions/{id}
func (h *TransactionsHandler) Update(w http.ResponseWriter, r *http.Request, id string) {
	var tx domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.ledger.UpdateTransaction(id, tx); err != nil {
		writeLedgerError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": "updated"})
}

// Delete handles DELETE /api/transactions/{id}
func (h *TransactionsHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.ledger.DeleteTransaction(id); err != nil {
		writeLedgerError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// CardsHandler handles credit card endpoints.
type CardsHandler struct {
	ledger *ledger.Store
	log    zerolog.Logger
}

// NewCardsHandler creates a new cards handler.
func NewCardsHandler(led *ledger.Store, log zerolog.Logger) *CardsHandler {
	return &CardsHandler{ledger: led, log: log}
}

// List handles GET /api/cards
func (h *CardsHandler) List(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.ledger.CreditCards())
}

// Create handles POST /api/cards
func (h *CardsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var card domain.CreditCard
	if err := json.NewDecoder(r.Body).Decode(&card); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if card.Name == "" {
		middleware.WriteError(w, http.StatusBadRequest, "name is required")
		return
	}

	created, err := h.ledger.AddCreditCard(card)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, created)
}

// Update handles PUT /api/cards/{id}
func (h *CardsHandler) Update(w http.ResponseWriter, r *http.Request, id string) {
	var card domain.CreditCard
	if err := json.NewDecoder(r.Body).Decode(&card); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.ledger.UpdateCreditCard(id, card); err != nil {
		writeLedgerError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": "updated"})
}

// Delete handles DELETE /api/cards/{id}
func (h *CardsHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.ledger.DeleteCreditCard(id); err != nil {
		writeLedgerError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// GoalsHandler handles financial goal endpoints.
type GoalsHandler struct {
	ledger *ledger.Store
	log    zerolog.Logger
}

// NewGoalsHandler creates a new goals handler.
func NewGoalsHandler(led *ledger.Store, log zerolog.Logger) *GoalsHandler {
	return &GoalsHandler{ledger: led, log: log}
}

// List handles GET /api/goals
func (h *GoalsHandler) List(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.ledger.FinancialGoals())
}

// Create handles POST /api/goals
func (h *GoalsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var goal domain.FinancialGoal
	if err := json.NewDecoder(r.Body).Decode(&goal); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if goal.Name == "" {
		middleware.WriteError(w, http.StatusBadRequest, "name is required")
		return
	}

	created, err := h.ledger.AddFinancialGoal(goal)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, created)
}

// Update handles PUT /api/goals/{id}
func (h *GoalsHandler) Update(w http.ResponseWriter, r *http.Request, id string) {
	var goal domain.FinancialGoal
	if err := json.NewDecoder(r.Body).Decode(&goal); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.ledger.UpdateFinancialGoal(id, goal); err != nil {
		writeLedgerError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": "updated"})
}

// Delete handles DELETE /api/goals/{id}
func (h *GoalsHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.ledger.DeleteFinancialGoal(id); err != nil {
		writeLedgerError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// DebtsHandler handles debt endpoints.
type DebtsHandler struct {
	ledger *ledger.Store
	log    zerolog.Logger
}

// NewDebtsHandler creates a new debts handler.
func NewDebtsHandler(led *ledger.Store, log zerolog.Logger) *DebtsHandler {
	return &DebtsHandler{ledger: led, log: log}
}

// List handles GET /api/debts
func (h *DebtsHandler) List(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.ledger.Debts())
}

// Create handles POST /api/debts
func (h *DebtsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var debt domain.Debt
	if err := json.NewDecoder(r.Body).Decode(&debt); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if debt.Name == "" {
		middleware.WriteError(w, http.StatusBadRequest, "name is required")
		return
	}

	created, err := h.ledger.AddDebt(debt)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, created)
}

// Update handles PUT /api/debts/{id}
func (h *DebtsHandler) Update(w http.ResponseWriter, r *http.Request, id string) {
	var debt domain.Debt
	if err := json.NewDecoder(r.Body).Decode(&debt); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.ledger.UpdateDebt(id, debt); err != nil {
		writeLedgerError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": "updated"})
}

// Delete handles DELETE /api/debts/{id}
func (h *DebtsHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.ledger.DeleteDebt(id); err != nil {
		writeLedgerError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// EmergencyFundHandler handles the singleton emergency fund record.
type EmergencyFundHandler struct {
	ledger *ledger.Store
	log    zerolog.Logger
}

// NewEmergencyFundHandler creates a new emergency fund handler.
func NewEmergencyFundHandler(led *ledger.Store, log zerolog.Logger) *EmergencyFundHandler {
	return &EmergencyFundHandler{ledger: led, log: log}
}

// Get handles GET /api/emergency-fund
func (h *EmergencyFundHandler) Get(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.ledger.EmergencyFund())
}

// Put handles PUT /api/emergency-fund
func (h *EmergencyFundHandler) Put(w http.ResponseWriter, r *http.Request) {
	var fund domain.EmergencyFund
	if err := json.NewDecoder(r.Body).Decode(&fund); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	h.ledger.UpdateEmergencyFund(fund)
	middleware.WriteJSON(w, http.StatusOK, fund)
}

// CategoriesHandler handles category endpoints.
type CategoriesHandler struct {
	ledger *ledger.Store
	log    zerolog.Logger
}

// NewCategoriesHandler creates a new categories handler.
func NewCategoriesHandler(led *ledger.Store, log zerolog.Logger) *CategoriesHandler {
	return &CategoriesHandler{ledger: led, log: log}
}

// List handles GET /api/categories
func (h *CategoriesHandler) List(w http.ResponseWriter, r *http.Request) {
	categories := h.ledger.Catalog().All()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}

// Create handles POST /api/categories
func (h *CategoriesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var cat domain.Category
	if err := json.NewDecoder(r.Body).Decode(&cat); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if cat.Name == "" {
		middleware.WriteError(w, http.StatusBadRequest, "name is required")
		return
	}

	created, err := h.ledger.AddCategory(cat)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, created)
}

// Update handles PUT /api/categories/{id}
func (h *CategoriesHandler) Update(w http.ResponseWriter, r *http.Request, id string) {
	var cat domain.Category
	if err := json.NewDecoder(r.Body).Decode(&cat); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.ledger.UpdateCategory(id, cat); err != nil {
		writeLedgerError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": "updated"})
}

// Delete handles DELETE /api/categories/{id}
func (h *CategoriesHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.ledger.DeleteCategory(id); err != nil {
		writeLedgerError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}
