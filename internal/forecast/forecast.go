// Package forecast projects income and expenses forward using a least
// squares trend over the trailing six calendar months.
package forecast

import (
	"math"
	"time"

	"github.com/dvloznov/devfinance/internal/domain"
)

// historyMonths is the lookback window feeding the regression.
const historyMonths = 6

// trendThreshold is the slope (units per month) below which a series is
// reported as stable.
const trendThreshold = 100.0

// MonthData is one bucket of the history window.
type MonthData struct {
	Month    string  `json:"month"`
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"`
	Balance  float64 `json:"balance"`
}

// Projection is one forecast month. Confidence decays with distance.
type Projection struct {
	Month             string  `json:"month"`
	ProjectedIncome   float64 `json:"projectedIncome"`
	ProjectedExpenses float64 `json:"projectedExpenses"`
	ProjectedBalance  float64 `json:"projectedBalance"`
	Confidence        float64 `json:"confidence"`
}

// Trend labels used by AnalyzeTrends.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// TrendAnalysis summarizes where the numbers are heading.
type TrendAnalysis struct {
	IncomeTrend           string  `json:"incomeTrend"`
	ExpenseTrend          string  `json:"expenseTrend"`
	IncomeGrowthRate      float64 `json:"incomeGrowthRate"`
	ExpenseGrowthRate     float64 `json:"expenseGrowthRate"`
	PredictedRunwayMonths float64 `json:"predictedRunwayMonths"`
}

// History buckets the trailing six calendar months, oldest first.
func History(txs []domain.Transaction, catalog domain.Catalog, now time.Time) []MonthData {
	out := make([]MonthData, 0, historyMonths)
	for i := historyMonths - 1; i >= 0; i-- {
		bucket := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -i, 0)
		data := MonthData{Month: bucket.Format("Jan 2006")}
		for _, tx := range txs {
			if !tx.Date.SameMonth(bucket.Year(), bucket.Month()) {
				continue
			}
			if catalog.CountsAsIncome(tx) {
				data.Income += math.Abs(tx.Amount)
			} else if catalog.CountsAsExpense(tx) {
				data.Expenses += math.Abs(tx.Amount)
			}
		}
		data.Balance = data.Income - data.Expenses
		out = append(out, data)
	}
	return out
}

// slope fits y = a + b*x with x = 1..n and returns b.
func slope(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i + 1)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Forecast projects monthsAhead months past now. Projections are the
// history average plus the trend slope times the step, floored at zero,
// with confidence starting at 90 and decaying 10 points per month down
// to a floor of 20.
func Forecast(txs []domain.Transaction, catalog domain.Catalog, now time.Time, monthsAhead int) []Projection {
	history := History(txs, catalog, now)

	incomes := make([]float64, len(history))
	expenses := make([]float64, len(history))
	for i, m := range history {
		incomes[i] = m.Income
		expenses[i] = m.Expenses
	}

	incomeAvg, incomeSlope := average(incomes), slope(incomes)
	expenseAvg, expenseSlope := average(expenses), slope(expenses)

	out := make([]Projection, 0, monthsAhead)
	base := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= monthsAhead; i++ {
		income := math.Max(0, incomeAvg+incomeSlope*float64(i))
		expense := math.Max(0, expenseAvg+expenseSlope*float64(i))
		out = append(out, Projection{
			Month:             base.AddDate(0, i, 0).Format("Jan 2006"),
			ProjectedIncome:   income,
			ProjectedExpenses: expense,
			ProjectedBalance:  income - expense,
			Confidence:        math.Max(20, 100-10*float64(i)),
		})
	}
	return out
}

// AnalyzeTrends classifies the income and expense slopes, compares the
// halves of the window, and predicts how many months the accumulated
// balance covers at the average burn.
func AnalyzeTrends(txs []domain.Transaction, catalog domain.Catalog, now time.Time) TrendAnalysis {
	history := History(txs, catalog, now)

	incomes := make([]float64, len(history))
	expenses := make([]float64, len(history))
	var totalBalance float64
	for i, m := range history {
		incomes[i] = m.Income
		expenses[i] = m.Expenses
		totalBalance += m.Balance
	}

	analysis := TrendAnalysis{
		IncomeTrend:       classify(slope(incomes)),
		ExpenseTrend:      classify(slope(expenses)),
		IncomeGrowthRate:  halfGrowthRate(incomes),
		ExpenseGrowthRate: halfGrowthRate(expenses),
	}

	if burn := average(expenses); burn > 0 {
		analysis.PredictedRunwayMonths = math.Max(0, totalBalance/burn)
	}
	return analysis
}

func classify(s float64) string {
	switch {
	case s > trendThreshold:
		return TrendIncreasing
	case s < -trendThreshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// halfGrowthRate compares the average of the second half of the window
// against the first half, as a percentage.
func halfGrowthRate(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mid := len(values) / 2
	first := average(values[:mid])
	second := average(values[mid:])
	if first == 0 {
		return 0
	}
	return (second - first) / first * 100
}
