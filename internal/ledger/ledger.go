// Package ledger owns the canonical collections (transactions, cards,
// debts, goals, budgets, emergency fund, custom categories) and their
// persistence. It is the sole writer; every other component treats the
// collections as read-only derived input.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/devfinance/internal/domain"
	"github.com/dvloznov/devfinance/internal/events"
	"github.com/dvloznov/devfinance/internal/storage"
)

var (
	// ErrNotFound indicates the record id does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDefaultCategory indicates an attempt to modify a built-in category.
	ErrDefaultCategory = errors.New("cannot modify default category")
)

// Store is the ledger store. All mutations replace the collection,
// persist it, and publish a change event. Persistence failures are logged
// and the in-memory state still updates, so the session stays consistent
// even when the disk does not.
type Store struct {
	mu      sync.RWMutex
	storage *storage.Store
	bus     *events.Bus
	log     zerolog.Logger

	transactions     []domain.Transaction
	creditCards      []domain.CreditCard
	financialGoals   []domain.FinancialGoal
	debts            []domain.Debt
	emergencyFund    domain.EmergencyFund
	budgets          []domain.Budget
	customCategories []domain.Category
}

// Open loads every collection from storage. Custom categories load first
// because the transaction sign-repair migration needs the catalog.
func Open(st *storage.Store, bus *events.Bus, log zerolog.Logger) (*Store, error) {
	s := &Store{storage: st, bus: bus, log: log}

	if _, err := st.Get(storage.KeyCustomCategories, &s.customCategories); err != nil {
		return nil, fmt.Errorf("load custom categories: %w", err)
	}

	st.RegisterMigration(storage.KeyTransactions, 1, signRepair(s.catalogLocked()))

	loads := []struct {
		key string
		out interface{}
	}{
		{storage.KeyTransactions, &s.transactions},
		{storage.KeyCreditCards, &s.creditCards},
		{storage.KeyFinancialGoals, &s.financialGoals},
		{storage.KeyDebts, &s.debts},
		{storage.KeyEmergencyFund, &s.emergencyFund},
		{storage.KeyBudgets, &s.budgets},
	}
	for _, l := range loads {
		if _, err := st.Get(l.key, l.out); err != nil {
			return nil, fmt.Errorf("load %s: %w", l.key, err)
		}
	}

	log.Info().
		Int("transactions", len(s.transactions)).
		Int("credit_cards", len(s.creditCards)).
		Int("goals", len(s.financialGoals)).
		Int("debts", len(s.debts)).
		Int("budgets", len(s.budgets)).
		Msg("Ledger loaded")

	return s, nil
}

// signRepair is the transactions v1→v2 migration: income categories carry
// non-negative amounts, everything else non-positive.
func signRepair(catalog domain.Catalog) storage.MigrationFunc {
	return func(raw json.RawMessage) (json.RawMessage, error) {
		var txs []domain.Transaction
		if err := json.Unmarshal(raw, &txs); err != nil {
			return nil, err
		}
		for i := range txs {
			txs[i].Amount = normalizeAmount(catalog, txs[i].Category, txs[i].Amount)
		}
		return json.Marshal(txs)
	}
}

// normalizeAmount enforces the sign invariant at write time.
func normalizeAmount(catalog domain.Catalog, category string, amount float64) float64 {
	if catalog.IsIncomeCategory(category) {
		return math.Abs(amount)
	}
	return -math.Abs(amount)
}

func (s *Store) catalogLocked() domain.Catalog {
	return domain.NewCatalog(s.customCategories)
}

// Catalog returns the current category catalog.
func (s *Store) Catalog() domain.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalogLocked()
}

// persist writes a collection, logging failures instead of propagating
// them. The accepted risk: memory and disk can diverge for the rest of
// the session.
func (s *Store) persist(key string, v interface{}) {
	if err := s.storage.Put(key, v); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("Failed to persist collection")
	}
}

func (s *Store) publish(collection string) {
	s.bus.Publish(events.Event{Collection: collection, At: time.Now()})
}

// Transactions returns a snapshot copy of the transaction list.
func (s *Store) Transactions() []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Transaction, len(s.transactions))
	copy(out, s.transactions)
	return out
}

// AddTransaction appends a transaction. The sign invariant is enforced
// from the category. When linkedDebtID names a debt and the amount is an
// expense, the debt's paid amount is bumped, capped at its total. The two
// writes are sequential, not atomic.
func (s *Store) AddTransaction(tx domain.Transaction, linkedDebtID string) (domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	tx.Amount = normalizeAmount(s.catalogLocked(), tx.Category, tx.Amount)
	if tx.Tags == nil {
		tx.Tags = []string{}
	}

	s.transactions = append(s.transactions, tx)
	s.persist(storage.KeyTransactions, s.transactions)

	if linkedDebtID != "" && tx.Amount < 0 {
		if err := s.applyDebtPaymentLocked(linkedDebtID, math.Abs(tx.Amount)); err != nil {
			s.log.Warn().Err(err).Str("debt_id", linkedDebtID).Msg("Linked debt not updated")
		} else {
			s.persist(storage.KeyDebts, s.debts)
			s.publish(events.CollectionDebts)
		}
	}

	s.publish(events.CollectionTransactions)
	return tx, nil
}

func (s *Store) applyDebtPaymentLocked(debtID string, payment float64) error {
	for i := range s.debts {
		if s.debts[i].ID == debtID {
			paid := s.debts[i].PaidAmount + payment
			s.debts[i].PaidAmount = math.Min(paid, s.debts[i].TotalAmount)
			return nil
		}
	}
	return ErrNotFound
}

// UpdateTransaction replaces the transaction with the given id, keeping
// the id and re-enforcing the sign invariant.
func (s *Store) UpdateTransaction(id string, updated domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.transactions {
		if s.transactions[i].ID == id {
			updated.ID = id
			updated.Amount = normalizeAmount(s.catalogLocked(), updated.Category, updated.Amount)
			if updated.Tags == nil {
				updated.Tags = []string{}
			}
			s.transactions[i] = updated
			s.persist(storage.KeyTransactions, s.transactions)
			s.publish(events.CollectionTransactions)
			return nil
		}
	}
	return ErrNotFound
}

// DeleteTransaction removes a transaction permanently. There is no undo.
func (s *Store) DeleteTransaction(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.transactions[:0]
	found := false
	for _, tx := range s.transactions {
		if tx.ID == id {
			found = true
			continue
		}
		kept = append(kept, tx)
	}
	if !found {
		return ErrNotFound
	}
	s.transactions = kept
	s.persist(storage.KeyTransactions, s.transactions)
	s.publish(events.CollectionTransactions)
	return nil
}

// LinkTransactionToDebt applies an existing expense amount against a debt.
func (s *Store) LinkTransactionToDebt(debtID string, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.applyDebtPaymentLocked(debtID, math.Abs(amount)); err != nil {
		return err
	}
	s.persist(storage.KeyDebts, s.debts)
	s.publish(events.CollectionDebts)
	return nil
}

// CreditCards returns a snapshot copy of the card list.
func (s *Store) CreditCards() []domain.CreditCard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CreditCard, len(s.creditCards))
	copy(out, s.creditCards)
	return out
}

// AddCreditCard appends a card.
func (s *Store) AddCreditCard(card domain.CreditCard) (domain.CreditCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	s.creditCards = append(s.creditCards, card)
	s.persist(storage.KeyCreditCards, s.creditCards)
	s.publish(events.CollectionCreditCards)
	return card, nil
}

// UpdateCreditCard replaces the card with the given id.
func (s *Store) UpdateCreditCard(id string, updated domain.CreditCard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.creditCards {
		if s.creditCards[i].ID == id {
			updated.ID = id
			s.creditCards[i] = updated
			s.persist(storage.KeyCreditCards, s.creditCards)
			s.publish(events.CollectionCreditCards)
			return nil
		}
	}
	return ErrNotFound
}

// DeleteCreditCard removes a card.
func (s *Store) DeleteCreditCard(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.creditCards[:0]
	found := false
	for _, card := range s.creditCards {
		if card.ID == id {
			found = true
			continue
		}
		kept = append(kept, card)
	}
	if !found {
		return ErrNotFound
	}
	s.creditCards = kept
	s.persist(storage.KeyCreditCards, s.creditCards)
	s.publish(events.CollectionCreditCards)
	return nil
}

// FinancialGoals returns a snapshot copy of the goal list.
func (s *Store) FinancialGoals() []domain.FinancialGoal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.FinancialGoal, len(s.financialGoals))
	copy(out, s.financialGoals)
	return out
}

// AddFinancialGoal appends a goal, clamping current into [0, target].
func (s *Store) AddFinancialGoal(goal domain.FinancialGoal) (domain.FinancialGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if goal.ID == "" {
		goal.ID = uuid.NewString()
	}
	goal.Current = clamp(goal.Current, 0, goal.Target)
	s.financialGoals = append(s.financialGoals, goal)
	s.persist(storage.KeyFinancialGoals, s.financialGoals)
	s.publish(events.CollectionGoals)
	return goal, nil
}

// UpdateFinancialGoal replaces the goal with the given id.
func (s *Store) UpdateFinancialGoal(id string, updated domain.FinancialGoal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.financialGoals {
		if s.financialGoals[i].ID == id {
			updated.ID = id
			updated.Current = clamp(updated.Current, 0, updated.Target)
			s.financialGoals[i] = updated
			s.persist(storage.KeyFinancialGoals, s.financialGoals)
			s.publish(events.CollectionGoals)
			return nil
		}
	}
	return ErrNotFound
}

// DeleteFinancialGoal removes a goal.
func (s *Store) DeleteFinancialGoal(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.financialGoals[:0]
	found := false
	for _, goal := range s.financialGoals {
		if goal.ID == id {
			found = true
			continue
		}
		kept = append(kept, goal)
	}
	if !found {
		return ErrNotFound
	}
	s.financialGoals = kept
	s.persist(storage.KeyFinancialGoals, s.financialGoals)
	s.publish(events.CollectionGoals)
	return nil
}

// Debts returns a snapshot copy of the debt list.
func (s *Store) Debts() []domain.Debt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Debt, len(s.debts))
	copy(out, s.debts)
	return out
}

// AddDebt appends a debt, clamping paid into [0, total].
func (s *Store) AddDebt(debt domain.Debt) (domain.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if debt.ID == "" {
		debt.ID = uuid.NewString()
	}
	debt.PaidAmount = clamp(debt.PaidAmount, 0, debt.TotalAmount)
	s.debts = append(s.debts, debt)
	s.persist(storage.KeyDebts, s.debts)
	s.publish(events.CollectionDebts)
	return debt, nil
}

// UpdateDebt replaces the debt with the given id.
func (s *Store) UpdateDebt(id string, updated domain.Debt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.debts {
		if s.debts[i].ID == id {
			updated.ID = id
			updated.PaidAmount = clamp(updated.PaidAmount, 0, updated.TotalAmount)
			s.debts[i] = updated
			s.persist(storage.KeyDebts, s.debts)
			s.publish(events.CollectionDebts)
			return nil
		}
	}
	return ErrNotFound
}

// DeleteDebt removes a debt.
func (s *Store) DeleteDebt(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.debts[:0]
	found := false
	for _, debt := range s.debts {
		if debt.ID == id {
			found = true
			continue
		}
		kept = append(kept, debt)
	}
	if !found {
		return ErrNotFound
	}
	s.debts = kept
	s.persist(storage.KeyDebts, s.debts)
	s.publish(events.CollectionDebts)
	return nil
}

// EmergencyFund returns the singleton emergency fund record.
func (s *Store) EmergencyFund() domain.EmergencyFund {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.emergencyFund
}

// UpdateEmergencyFund replaces the emergency fund record.
func (s *Store) UpdateEmergencyFund(fund domain.EmergencyFund) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.emergencyFund = fund
	s.persist(storage.KeyEmergencyFund, s.emergencyFund)
	s.publish(events.CollectionEmergencyFund)
}

// Budgets returns a snapshot copy of the budget list.
func (s *Store) Budgets() []domain.Budget {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Budget, len(s.budgets))
	copy(out, s.budgets)
	return out
}

// AddBudget appends a budget, stamping its timestamps.
func (s *Store) AddBudget(b domain.Budget) (domain.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Period == "" {
		b.Period = domain.BudgetMonthly
	}
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
	s.budgets = append(s.budgets, b)
	s.persist(storage.KeyBudgets, s.budgets)
	s.publish(events.CollectionBudgets)
	return b, nil
}

// UpdateBudget replaces the budget with the given id, refreshing UpdatedAt.
func (s *Store) UpdateBudget(id string, updated domain.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.budgets {
		if s.budgets[i].ID == id {
			updated.ID = id
			updated.CreatedAt = s.budgets[i].CreatedAt
			updated.UpdatedAt = time.Now()
			s.budgets[i] = updated
			s.persist(storage.KeyBudgets, s.budgets)
			s.publish(events.CollectionBudgets)
			return nil
		}
	}
	return ErrNotFound
}

// DeleteBudget removes a budget.
func (s *Store) DeleteBudget(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.budgets[:0]
	found := false
	for _, b := range s.budgets {
		if b.ID == id {
			found = true
			continue
		}
		kept = append(kept, b)
	}
	if !found {
		return ErrNotFound
	}
	s.budgets = kept
	s.persist(storage.KeyBudgets, s.budgets)
	s.publish(events.CollectionBudgets)
	return nil
}

// CustomCategories returns a snapshot copy of the user-defined categories.
func (s *Store) CustomCategories() []domain.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Category, len(s.customCategories))
	copy(out, s.customCategories)
	return out
}

// AddCategory appends a user-defined category.
func (s *Store) AddCategory(cat domain.Category) (domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cat.ID == "" {
		cat.ID = "custom_" + uuid.NewString()
	}
	if cat.Type == "" {
		cat.Type = domain.CategoryExpense
	}
	s.customCategories = append(s.customCategories, cat)
	s.persist(storage.KeyCustomCategories, s.customCategories)
	s.publish(events.CollectionCategories)
	return cat, nil
}

// UpdateCategory replaces a custom category. Defaults are immutable.
func (s *Store) UpdateCategory(id string, updated domain.Category) error {
	if domain.IsDefaultCategory(id) {
		return ErrDefaultCategory
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.customCategories {
		if s.customCategories[i].ID == id {
			updated.ID = id
			s.customCategories[i] = updated
			s.persist(storage.KeyCustomCategories, s.customCategories)
			s.publish(events.CollectionCategories)
			return nil
		}
	}
	return ErrNotFound
}

// DeleteCategory removes a custom category. Defaults cannot be deleted.
func (s *Store) DeleteCategory(id string) error {
	if domain.IsDefaultCategory(id) {
		return ErrDefaultCategory
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.customCategories[:0]
	found := false
	for _, cat := range s.customCategories {
		if cat.ID == id {
			found = true
			continue
		}
		kept = append(kept, cat)
	}
	if !found {
		return ErrNotFound
	}
	s.customCategories = kept
	s.persist(storage.KeyCustomCategories, s.customCategories)
	s.publish(events.CollectionCategories)
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	return math.Min(math.Max(v, lo), hi)
}
