// Package budget computes spending status against category budgets.
// Nothing here is persisted; status is derived fresh from the transaction
// list on every call.
package budget

import (
	"errors"
	"math"
	"time"

	"github.com/dvloznov/devfinance/internal/domain"
)

// ErrUnknownBudget indicates Progress was asked about an id with no budget.
var ErrUnknownBudget = errors.New("unknown budget")

// Status is one budget's derived state for its active window.
type Status struct {
	Budget           domain.Budget `json:"budget"`
	Spend            float64       `json:"spend"`
	Percentage       float64       `json:"percentage"`
	Remaining        float64       `json:"remaining"`
	IsOverBudget     bool          `json:"isOverBudget"`
	ShouldAlert      bool          `json:"shouldAlert"`
	TransactionCount int           `json:"transactionCount"`
}

// ProgressPeriod selects the lookback for Progress.
type ProgressPeriod string

const (
	PeriodMonth   ProgressPeriod = "month"
	PeriodQuarter ProgressPeriod = "quarter"
	PeriodYear    ProgressPeriod = "year"
	PeriodAll     ProgressPeriod = "all"
)

// ProgressPoint is one month of spend against a single budget.
type ProgressPoint struct {
	Month string  `json:"month"`
	Spend float64 `json:"spend"`
	Limit float64 `json:"limit"`
}

// inWindow reports whether the transaction falls in the budget's active
// window relative to now: the current calendar month for monthly budgets,
// the current calendar year for yearly ones.
func inWindow(b domain.Budget, tx domain.Transaction, now time.Time) bool {
	if b.Period == domain.BudgetYearly {
		return tx.Date.Year() == now.Year()
	}
	return tx.Date.SameMonth(now.Year(), now.Month())
}

// statusOf computes one budget's status. Matching is by exact category
// name. Every match in the window counts toward TransactionCount; only
// negative amounts count as spend.
func statusOf(b domain.Budget, txs []domain.Transaction, now time.Time) Status {
	s := Status{Budget: b}
	for _, tx := range txs {
		if tx.Category != b.CategoryName || !inWindow(b, tx, now) {
			continue
		}
		s.TransactionCount++
		if tx.Amount < 0 {
			s.Spend += math.Abs(tx.Amount)
		}
	}

	if b.Limit > 0 {
		s.Percentage = s.Spend / b.Limit * 100
	}
	s.Remaining = b.Limit - s.Spend
	s.IsOverBudget = s.Spend > b.Limit
	s.ShouldAlert = s.Percentage >= b.AlertThreshold
	return s
}

// Statuses computes the status of every budget.
func Statuses(budgets []domain.Budget, txs []domain.Transaction, now time.Time) []Status {
	out := make([]Status, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, statusOf(b, txs, now))
	}
	return out
}

// StatusFor computes the status of one budget by id.
func StatusFor(budgets []domain.Budget, txs []domain.Transaction, id string, now time.Time) (Status, error) {
	for _, b := range budgets {
		if b.ID == id {
			return statusOf(b, txs, now), nil
		}
	}
	return Status{}, ErrUnknownBudget
}

// NeedingAttention returns the budgets that are over limit or past their
// alert threshold.
func NeedingAttention(budgets []domain.Budget, txs []domain.Transaction, now time.Time) []Status {
	var out []Status
	for _, s := range Statuses(budgets, txs, now) {
		if s.IsOverBudget || s.ShouldAlert {
			out = append(out, s)
		}
	}
	return out
}

// Progress returns the month-by-month spend history for one budget. The
// "all" period walks back to the oldest matching transaction.
func Progress(budgets []domain.Budget, txs []domain.Transaction, id string, period ProgressPeriod, now time.Time) ([]ProgressPoint, error) {
	var budget *domain.Budget
	for i := range budgets {
		if budgets[i].ID == id {
			budget = &budgets[i]
			break
		}
	}
	if budget == nil {
		return nil, ErrUnknownBudget
	}

	months := 1
	switch period {
	case PeriodMonth:
		months = 1
	case PeriodQuarter:
		months = 3
	case PeriodYear:
		months = 12
	case PeriodAll:
		months = monthsSinceOldest(txs, budget.CategoryName, now)
	default:
		months = 1
	}

	out := make([]ProgressPoint, 0, months)
	for i := months - 1; i >= 0; i-- {
		bucket := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -i, 0)
		point := ProgressPoint{Month: bucket.Format("Jan 2006"), Limit: budget.Limit}
		for _, tx := range txs {
			if tx.Category != budget.CategoryName || tx.Amount >= 0 {
				continue
			}
			if tx.Date.SameMonth(bucket.Year(), bucket.Month()) {
				point.Spend += math.Abs(tx.Amount)
			}
		}
		out = append(out, point)
	}
	return out, nil
}

func monthsSinceOldest(txs []domain.Transaction, category string, now time.Time) int {
	oldest := now
	found := false
	for _, tx := range txs {
		if tx.Category == category && tx.Date.Before(oldest) {
			oldest = tx.Date.Time
			found = true
		}
	}
	if !found {
		return 1
	}
	months := (now.Year()-oldest.Year())*12 + int(now.Month()) - int(oldest.Month()) + 1
	if months < 1 {
		months = 1
	}
	return months
}
