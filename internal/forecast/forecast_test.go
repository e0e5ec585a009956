package forecast

import (
	"math"
	"testing"
	"time"

	"github.com/dvloznov/devfinance/internal/domain"
)

var catalog = domain.NewCatalog(nil)

// seedMonths writes one income and one expense transaction per trailing
// month, oldest first.
func seedMonths(now time.Time, incomes, expenses []float64) []domain.Transaction {
	var txs []domain.Transaction
	n := len(incomes)
	for i := 0; i < n; i++ {
		bucket := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(n - 1 - i), 0)
		date := domain.DateOf(bucket)
		if incomes[i] != 0 {
			txs = append(txs, domain.Transaction{Date: date, Category: "Income", Amount: incomes[i]})
		}
		if expenses[i] != 0 {
			txs = append(txs, domain.Transaction{Date: date, Category: "Food", Amount: -expenses[i]})
		}
	}
	return txs
}

func TestSlope(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"flat", []float64{5, 5, 5, 5}, 0},
		{"unit increase", []float64{1, 2, 3, 4}, 1},
		{"decrease", []float64{4, 3, 2, 1}, -1},
		{"too short", []float64{7}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := slope(tc.values); math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("slope = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestForecastRisingIncome(t *testing.T) {
	now := time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)
	txs := seedMonths(now, []float64{1000, 1000, 1000, 1100, 1100, 1100}, []float64{500, 500, 500, 500, 500, 500})

	projections := Forecast(txs, catalog, now, 6)
	if len(projections) != 6 {
		t.Fatalf("len = %d, want 6", len(projections))
	}

	// With a positive slope, every projection sits at or above the
	// window average.
	avg := 1050.0
	for i, p := range projections {
		if p.ProjectedIncome < avg {
			t.Errorf("projection %d income = %v, want >= %v", i, p.ProjectedIncome, avg)
		}
	}

	if projections[0].Month != "Jul 2024" {
		t.Errorf("first month = %q, want Jul 2024", projections[0].Month)
	}
	if projections[0].Confidence != 90 {
		t.Errorf("first confidence = %v, want 90", projections[0].Confidence)
	}
	if projections[5].ProjectedBalance != projections[5].ProjectedIncome-projections[5].ProjectedExpenses {
		t.Error("balance must equal income minus expenses")
	}
}

func TestForecastConfidenceDecay(t *testing.T) {
	now := time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)
	projections := Forecast(nil, catalog, now, 12)

	want := []float64{90, 80, 70, 60, 50, 40, 30, 20, 20, 20, 20, 20}
	for i, p := range projections {
		if p.Confidence != want[i] {
			t.Errorf("confidence[%d] = %v, want %v", i, p.Confidence, want[i])
		}
	}
}

func TestForecastFloorsAtZero(t *testing.T) {
	now := time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)
	// Steeply falling income drives the projection negative; it must floor.
	txs := seedMonths(now, []float64{6000, 5000, 4000, 3000, 2000, 1000}, nil)

	projections := Forecast(txs, catalog, now, 6)
	if last := projections[5].ProjectedIncome; last != 0 {
		t.Errorf("projection = %v, want floored to 0", last)
	}
}

func TestAnalyzeTrends(t *testing.T) {
	now := time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		incomes     []float64
		expenses    []float64
		wantIncome  string
		wantExpense string
	}{
		{
			"rising income",
			[]float64{1000, 1500, 2000, 2500, 3000, 3500},
			[]float64{500, 500, 500, 500, 500, 500},
			TrendIncreasing, TrendStable,
		},
		{
			"falling expenses",
			[]float64{1000, 1000, 1000, 1000, 1000, 1000},
			[]float64{3000, 2500, 2000, 1500, 1000, 500},
			TrendStable, TrendDecreasing,
		},
		{
			"small drift is stable",
			[]float64{1000, 1010, 1020, 1030, 1040, 1050},
			[]float64{500, 510, 520, 530, 540, 550},
			TrendStable, TrendStable,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			txs := seedMonths(now, tc.incomes, tc.expenses)
			a := AnalyzeTrends(txs, catalog, now)
			if a.IncomeTrend != tc.wantIncome {
				t.Errorf("income trend = %q, want %q", a.IncomeTrend, tc.wantIncome)
			}
			if a.ExpenseTrend != tc.wantExpense {
				t.Errorf("expense trend = %q, want %q", a.ExpenseTrend, tc.wantExpense)
			}
		})
	}
}

func TestGrowthRateAndRunway(t *testing.T) {
	now := time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)
	// First half averages 1000, second half 1200: 20% growth.
	txs := seedMonths(now, []float64{1000, 1000, 1000, 1200, 1200, 1200}, []float64{600, 600, 600, 600, 600, 600})

	a := AnalyzeTrends(txs, catalog, now)
	if math.Abs(a.IncomeGrowthRate-20) > 1e-9 {
		t.Errorf("income growth = %v, want 20", a.IncomeGrowthRate)
	}
	// Accumulated balance 3000, burn 600: five months of runway.
	if math.Abs(a.PredictedRunwayMonths-5) > 1e-9 {
		t.Errorf("runway = %v, want 5", a.PredictedRunwayMonths)
	}
}

func TestRunwayNeverNegative(t *testing.T) {
	now := time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)
	txs := seedMonths(now, []float64{100, 100, 100, 100, 100, 100}, []float64{500, 500, 500, 500, 500, 500})

	if a := AnalyzeTrends(txs, catalog, now); a.PredictedRunwayMonths != 0 {
		t.Errorf("runway = %v, want 0", a.PredictedRunwayMonths)
	}
}
