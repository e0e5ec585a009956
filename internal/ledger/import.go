package ledger

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/dvloznov/devfinance/internal/domain"
	"github.com/dvloznov/devfinance/internal/events"
	"github.com/dvloznov/devfinance/internal/storage"
)

// ImportMode selects how imported collections combine with existing data.
type ImportMode string

const (
	// ModeMerge appends imported records to the existing collections.
	ModeMerge ImportMode = "merge"
	// ModeReplace overwrites each collection present in the payload.
	ModeReplace ImportMode = "replace"
)

// Snapshot is the full-backup shape: every core collection plus the
// emergency fund. It doubles as the import payload, where absent
// collections are left untouched.
type Snapshot struct {
	Transactions   []domain.Transaction   `json:"transactions,omitempty"`
	CreditCards    []domain.CreditCard    `json:"creditCards,omitempty"`
	FinancialGoals []domain.FinancialGoal `json:"financialGoals,omitempty"`
	Debts          []domain.Debt          `json:"debts,omitempty"`
	EmergencyFund  *domain.EmergencyFund  `json:"emergencyFund,omitempty"`
}

// Snapshot returns a copy of every collection for export and backup.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fund := s.emergencyFund
	snap := Snapshot{
		Transactions:   make([]domain.Transaction, len(s.transactions)),
		CreditCards:    make([]domain.CreditCard, len(s.creditCards)),
		FinancialGoals: make([]domain.FinancialGoal, len(s.financialGoals)),
		Debts:          make([]domain.Debt, len(s.debts)),
		EmergencyFund:  &fund,
	}
	copy(snap.Transactions, s.transactions)
	copy(snap.CreditCards, s.creditCards)
	copy(snap.FinancialGoals, s.financialGoals)
	copy(snap.Debts, s.debts)
	return snap
}

// ImportData applies a backup payload collection by collection. Only the
// collections present in the payload are touched; the emergency fund, being
// a singleton, is replaced in both modes. Imported transactions get missing
// ids filled and the sign invariant re-enforced.
func (s *Store) ImportData(snap Snapshot, mode ImportMode) error {
	if mode != ModeMerge && mode != ModeReplace {
		return fmt.Errorf("unknown import mode %q", mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	catalog := s.catalogLocked()
	var changed []string

	if snap.Transactions != nil {
		incoming := make([]domain.Transaction, len(snap.Transactions))
		copy(incoming, snap.Transactions)
		for i := range incoming {
			if incoming[i].ID == "" {
				incoming[i].ID = uuid.NewString()
			}
			incoming[i].Amount = normalizeAmount(catalog, incoming[i].Category, incoming[i].Amount)
			if incoming[i].Tags == nil {
				incoming[i].Tags = []string{}
			}
		}
		if mode == ModeMerge {
			s.transactions = append(s.transactions, incoming...)
		} else {
			s.transactions = incoming
		}
		s.persist(storage.KeyTransactions, s.transactions)
		changed = append(changed, events.CollectionTransactions)
	}

	if snap.CreditCards != nil {
		incoming := fillIDs(snap.CreditCards, func(c *domain.CreditCard) *string { return &c.ID })
		if mode == ModeMerge {
			s.creditCards = append(s.creditCards, incoming...)
		} else {
			s.creditCards = incoming
		}
		s.persist(storage.KeyCreditCards, s.creditCards)
		changed = append(changed, events.CollectionCreditCards)
	}

	if snap.FinancialGoals != nil {
		incoming := fillIDs(snap.FinancialGoals, func(g *domain.FinancialGoal) *string { return &g.ID })
		if mode == ModeMerge {
			s.financialGoals = append(s.financialGoals, incoming...)
		} else {
			s.financialGoals = incoming
		}
		s.persist(storage.KeyFinancialGoals, s.financialGoals)
		changed = append(changed, events.CollectionGoals)
	}

	if snap.Debts != nil {
		incoming := fillIDs(snap.Debts, func(d *domain.Debt) *string { return &d.ID })
		for i := range incoming {
			incoming[i].PaidAmount = clamp(incoming[i].PaidAmount, 0, incoming[i].TotalAmount)
		}
		if mode == ModeMerge {
			s.debts = append(s.debts, incoming...)
		} else {
			s.debts = incoming
		}
		s.persist(storage.KeyDebts, s.debts)
		changed = append(changed, events.CollectionDebts)
	}

	if snap.EmergencyFund != nil {
		s.emergencyFund = *snap.EmergencyFund
		s.persist(storage.KeyEmergencyFund, s.emergencyFund)
		changed = append(changed, events.CollectionEmergencyFund)
	}

	s.log.Info().Str("mode", string(mode)).Strs("collections", changed).Msg("Import applied")

	for _, collection := range changed {
		s.publish(collection)
	}
	return nil
}

func fillIDs[T any](in []T, id func(*T) *string) []T {
	out := make([]T, len(in))
	copy(out, in)
	for i := range out {
		if p := id(&out[i]); *p == "" {
			*p = uuid.NewString()
		}
	}
	return out
}
