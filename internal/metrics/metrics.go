// Package metrics derives the dashboard aggregates from the raw
// transaction list. Everything here is a pure function of its inputs;
// callers recompute after every change event.
package metrics

import (
	"math"
	"strings"
	"time"

	"github.com/dvloznov/devfinance/internal/domain"
)

// MonthPoint is one bucket of the trailing twelve-month series.
type MonthPoint struct {
	Month    string  `json:"month"`
	Revenue  float64 `json:"revenue"`
	Expenses float64 `json:"expenses"`
	Net      float64 `json:"net"`
}

// DashboardMetrics is the headline view for the current month.
type DashboardMetrics struct {
	Revenue       float64      `json:"revenue"`
	Expenses      float64      `json:"expenses"`
	NetWorth      float64      `json:"netWorth"`
	RunwayMonths  float64      `json:"runwayMonths"`
	MonthlySeries []MonthPoint `json:"monthlySeries"`
}

// Dashboard computes the current-month revenue and expenses, the all-time
// net worth, the runway in months, and the trailing 12-month series ordered
// oldest to newest. Amounts are accumulated as absolute values so a stale
// stored sign cannot flip a total.
func Dashboard(txs []domain.Transaction, catalog domain.Catalog, now time.Time) DashboardMetrics {
	var m DashboardMetrics

	year, month := now.Year(), now.Month()
	for _, tx := range txs {
		if tx.Date.SameMonth(year, month) {
			if catalog.CountsAsIncome(tx) {
				m.Revenue += math.Abs(tx.Amount)
			} else if catalog.CountsAsExpense(tx) {
				m.Expenses += math.Abs(tx.Amount)
			}
		}
		if catalog.CountsAsIncome(tx) {
			m.NetWorth += math.Abs(tx.Amount)
		} else if catalog.CountsAsExpense(tx) {
			m.NetWorth -= math.Abs(tx.Amount)
		}
	}

	if m.NetWorth > 0 {
		m.RunwayMonths = m.NetWorth / math.Max(m.Expenses, 1)
	}

	m.MonthlySeries = monthlySeries(txs, catalog, now, 12)
	return m
}

// monthlySeries buckets the trailing n calendar months, oldest first.
func monthlySeries(txs []domain.Transaction, catalog domain.Catalog, now time.Time, n int) []MonthPoint {
	series := make([]MonthPoint, 0, n)
	for i := n - 1; i >= 0; i-- {
		bucket := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -i, 0)
		point := MonthPoint{Month: bucket.Format("Jan 2006")}
		for _, tx := range txs {
			if !tx.Date.SameMonth(bucket.Year(), bucket.Month()) {
				continue
			}
			if catalog.CountsAsIncome(tx) {
				point.Revenue += math.Abs(tx.Amount)
			} else if catalog.CountsAsExpense(tx) {
				point.Expenses += math.Abs(tx.Amount)
			}
		}
		point.Net = point.Revenue - point.Expenses
		series = append(series, point)
	}
	return series
}

// fixedCostCategories and fixedCostKeywords drive the recurring-expense
// heuristic. The keyword list keeps the Portuguese terms older data used.
var (
	fixedCostCategories = map[string]bool{"Fixed": true, "Housing": true, "Food": true}
	fixedCostKeywords   = []string{"aluguel", "luz", "internet", "transporte"}
)

// MonthlySummary is the income vs. fixed-costs breakdown for one month.
type MonthlySummary struct {
	Incomes         []domain.Transaction `json:"incomes"`
	IncomeTotal     float64              `json:"incomeTotal"`
	FixedCosts      []domain.Transaction `json:"fixedCosts"`
	FixedCostTotal  float64              `json:"fixedCostTotal"`
	DebtOutstanding float64              `json:"debtOutstanding"`
	Remainder       float64              `json:"remainder"`
}

// Summary breaks the current month into income and recurring fixed costs.
// A transaction counts as a fixed cost when its canonical category, a
// description keyword, or a fixa/fixed tag says so; Debt and Income
// categories never do.
func Summary(txs []domain.Transaction, debts []domain.Debt, catalog domain.Catalog, now time.Time) MonthlySummary {
	s := MonthlySummary{
		Incomes:    []domain.Transaction{},
		FixedCosts: []domain.Transaction{},
	}

	year, month := now.Year(), now.Month()
	for _, tx := range txs {
		if !tx.Date.SameMonth(year, month) {
			continue
		}
		if catalog.CountsAsIncome(tx) {
			s.Incomes = append(s.Incomes, tx)
			s.IncomeTotal += math.Abs(tx.Amount)
			continue
		}
		if isFixedCost(tx) {
			s.FixedCosts = append(s.FixedCosts, tx)
			s.FixedCostTotal += math.Abs(tx.Amount)
		}
	}

	for _, d := range debts {
		s.DebtOutstanding += d.Remaining()
	}

	s.Remainder = s.IncomeTotal - s.FixedCostTotal
	return s
}

func isFixedCost(tx domain.Transaction) bool {
	category := domain.CanonicalName(tx.Category)
	if category == "Debt" || category == "Income" {
		return false
	}
	if fixedCostCategories[category] {
		return true
	}
	desc := strings.ToLower(tx.Description)
	for _, kw := range fixedCostKeywords {
		if strings.Contains(desc, kw) {
			return true
		}
	}
	for _, tag := range tx.Tags {
		lower := strings.ToLower(tag)
		if strings.Contains(lower, "fixa") || strings.Contains(lower, "fixed") {
			return true
		}
	}
	return false
}
