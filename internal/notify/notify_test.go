package notify

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/devfinance/internal/domain"
	"github.com/dvloznov/devfinance/internal/events"
	"github.com/dvloznov/devfinance/internal/logger"
	"github.com/dvloznov/devfinance/internal/storage"
)

var now = time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)

type recordingToaster struct {
	toasts []domain.Notification
}

func (r *recordingToaster) Toast(n domain.Notification) {
	r.toasts = append(r.toasts, n)
}

func newTestEngine(t *testing.T) (*Engine, *recordingToaster) {
	t.Helper()
	log := logger.NewWithWriter(os.Stderr)
	st, err := storage.Open(t.TempDir(), log)
	if err != nil {
		t.Fatal(err)
	}
	toaster := &recordingToaster{}
	e, err := NewEngine(st, events.NewBus(), log, toaster)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e, toaster
}

func budgetInputs(spend, limit, threshold float64) Inputs {
	return Inputs{
		Budgets: []domain.Budget{
			{ID: "b1", CategoryName: "food", Limit: limit, AlertThreshold: threshold},
		},
		Transactions: []domain.Transaction{
			{Date: domain.NewDate(2024, time.March, 10), Category: "food", Amount: -spend},
		},
		Now: now,
	}
}

func TestBudgetSeverityTiers(t *testing.T) {
	tests := []struct {
		name     string
		spend    float64
		wantKey  string
		severity domain.Severity
	}{
		{"at threshold", 80, "budget:food:near_limit", domain.SeverityWarning},
		{"at ninety", 90, "budget:food:near_limit", domain.SeverityError},
		{"over limit", 120, "budget:food:over_limit", domain.SeverityError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			fired := e.Evaluate(budgetInputs(tc.spend, 100, 80))
			if len(fired) != 1 {
				t.Fatalf("fired %d notifications, want 1", len(fired))
			}
			if fired[0].Key != tc.wantKey || fired[0].Severity != tc.severity {
				t.Errorf("got key=%q severity=%q, want %q/%q",
					fired[0].Key, fired[0].Severity, tc.wantKey, tc.severity)
			}
		})
	}
}

func TestBudgetZeroThresholdAlerts(t *testing.T) {
	e, _ := newTestEngine(t)
	fired := e.Evaluate(budgetInputs(10, 100, 0))
	if len(fired) != 1 {
		t.Fatalf("fired %d notifications, want 1 at threshold 0", len(fired))
	}
	if fired[0].Key != "budget:food:near_limit" || fired[0].Severity != domain.SeverityWarning {
		t.Errorf("got key=%q severity=%q", fired[0].Key, fired[0].Severity)
	}
}

func TestBudgetBelowThresholdSilent(t *testing.T) {
	e, _ := newTestEngine(t)
	if fired := e.Evaluate(budgetInputs(50, 100, 80)); len(fired) != 0 {
		t.Errorf("fired %d notifications, want 0", len(fired))
	}
}

func TestBudgetAlwaysMeasuresCurrentMonth(t *testing.T) {
	e, _ := newTestEngine(t)
	in := Inputs{
		Budgets: []domain.Budget{
			{ID: "b1", CategoryName: "food", Limit: 100, Period: domain.BudgetYearly, AlertThreshold: 80},
		},
		Transactions: []domain.Transaction{
			// Earlier in the year, outside the current month. A yearly
			// window would alert; the rule must not.
			{Date: domain.NewDate(2024, time.January, 10), Category: "food", Amount: -95},
		},
		Now: now,
	}
	if fired := e.Evaluate(in); len(fired) != 0 {
		t.Errorf("fired %v, want none for spend outside the current month", fired)
	}
}

func TestGoalRules(t *testing.T) {
	deadline := domain.NewDate(2024, time.March, 25) // 10 days out
	soon := domain.NewDate(2024, time.March, 18)     // 3 days out

	tests := []struct {
		name     string
		goal     domain.FinancialGoal
		wantKeys []string
	}{
		{
			"near target",
			domain.FinancialGoal{ID: "g1", Name: "Trip", Target: 1000, Current: 850},
			[]string{"goal:g1:near_target"},
		},
		{
			"complete goal is silent",
			domain.FinancialGoal{ID: "g1", Name: "Trip", Target: 1000, Current: 1000, Deadline: soon},
			nil,
		},
		{
			"deadline warning",
			domain.FinancialGoal{ID: "g1", Name: "Trip", Target: 1000, Current: 100, Deadline: deadline},
			[]string{"goal:g1:deadline"},
		},
		{
			"near target and deadline",
			domain.FinancialGoal{ID: "g1", Name: "Trip", Target: 1000, Current: 850, Deadline: deadline},
			[]string{"goal:g1:near_target", "goal:g1:deadline"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			fired := e.Evaluate(Inputs{Goals: []domain.FinancialGoal{tc.goal}, Now: now})
			if len(fired) != len(tc.wantKeys) {
				t.Fatalf("fired %d, want %d: %+v", len(fired), len(tc.wantKeys), fired)
			}
			for i, want := range tc.wantKeys {
				if fired[i].Key != want {
					t.Errorf("key[%d] = %q, want %q", i, fired[i].Key, want)
				}
			}
		})
	}
}

func TestGoalDeadlineSeverityEscalates(t *testing.T) {
	e, _ := newTestEngine(t)
	soon := domain.NewDate(2024, time.March, 18) // 3 days
	fired := e.Evaluate(Inputs{
		Goals: []domain.FinancialGoal{{ID: "g1", Name: "Trip", Target: 1000, Current: 100, Deadline: soon}},
		Now:   now,
	})
	if len(fired) != 1 || fired[0].Severity != domain.SeverityError {
		t.Errorf("fired = %+v, want one error", fired)
	}
}

func TestGoalDeadlineTodayIsSilent(t *testing.T) {
	e, _ := newTestEngine(t)
	today := domain.DateOf(now)
	fired := e.Evaluate(Inputs{
		Goals: []domain.FinancialGoal{{ID: "g1", Name: "Trip", Target: 1000, Current: 100, Deadline: today}},
		Now:   now,
	})
	if len(fired) != 0 {
		t.Errorf("fired = %+v, want none for a deadline that is already today", fired)
	}
}

func TestDebtRules(t *testing.T) {
	due := domain.NewDate(2024, time.March, 20)    // 5 days
	urgent := domain.NewDate(2024, time.March, 17) // 2 days
	today := domain.DateOf(now)

	tests := []struct {
		name     string
		debt     domain.Debt
		fired    bool
		severity domain.Severity
	}{
		{"due soon", domain.Debt{ID: "d1", Name: "Loan", TotalAmount: 100, DueDate: &due}, true, domain.SeverityWarning},
		{"due very soon", domain.Debt{ID: "d1", Name: "Loan", TotalAmount: 100, DueDate: &urgent}, true, domain.SeverityError},
		{"paid off is silent", domain.Debt{ID: "d1", Name: "Loan", TotalAmount: 100, PaidAmount: 100, DueDate: &urgent}, false, ""},
		{"no due date is silent", domain.Debt{ID: "d1", Name: "Loan", TotalAmount: 100}, false, ""},
		{"due today is silent", domain.Debt{ID: "d1", Name: "Loan", TotalAmount: 100, DueDate: &today}, false, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			fired := e.Evaluate(Inputs{Debts: []domain.Debt{tc.debt}, Now: now})
			if tc.fired != (len(fired) == 1) {
				t.Fatalf("fired = %+v, want fired=%v", fired, tc.fired)
			}
			if tc.fired && fired[0].Severity != tc.severity {
				t.Errorf("severity = %q, want %q", fired[0].Severity, tc.severity)
			}
		})
	}
}

func TestEmergencyFundRule(t *testing.T) {
	tests := []struct {
		name    string
		current float64
		fired   bool
	}{
		{"below band", 700, false},
		{"in band", 850, true},
		{"complete", 1000, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			fired := e.Evaluate(Inputs{
				EmergencyFund: domain.EmergencyFund{Target: 1000, Current: tc.current},
				Now:           now,
			})
			if tc.fired != (len(fired) == 1) {
				t.Errorf("fired = %+v, want fired=%v", fired, tc.fired)
			}
			if tc.fired && fired[0].Key != "emergency:fund:near_target" {
				t.Errorf("key = %q", fired[0].Key)
			}
		})
	}
}

func TestDedupReArmsAfterRead(t *testing.T) {
	e, _ := newTestEngine(t)
	in := budgetInputs(120, 100, 80)

	first := e.Evaluate(in)
	if len(first) != 1 {
		t.Fatalf("first evaluation fired %d, want 1", len(first))
	}

	// Same condition, unread notification present: suppressed.
	if again := e.Evaluate(in); len(again) != 0 {
		t.Fatalf("second evaluation fired %d, want 0", len(again))
	}

	e.MarkRead(first[0].ID)

	// Read notifications no longer suppress; the rule re-arms.
	if rearmed := e.Evaluate(in); len(rearmed) != 1 {
		t.Errorf("after read, evaluation fired %d, want 1", len(rearmed))
	}
	if e.UnreadCount() != 1 {
		t.Errorf("unread = %d, want 1", e.UnreadCount())
	}
}

func TestDifferentConditionsAreIndependent(t *testing.T) {
	e, _ := newTestEngine(t)

	// Near-limit fires first.
	if fired := e.Evaluate(budgetInputs(85, 100, 80)); len(fired) != 1 {
		t.Fatalf("fired %d, want 1", len(fired))
	}
	// Crossing the limit is a different condition bucket and fires even
	// though the near-limit notification is still unread.
	fired := e.Evaluate(budgetInputs(120, 100, 80))
	if len(fired) != 1 || !strings.HasSuffix(fired[0].Key, ":over_limit") {
		t.Errorf("fired = %+v, want the over_limit notification", fired)
	}
}

func TestDisabledEngineIsSilent(t *testing.T) {
	e, toaster := newTestEngine(t)
	e.SetEnabled(false)

	if fired := e.Evaluate(budgetInputs(120, 100, 80)); fired != nil {
		t.Errorf("disabled engine fired %+v", fired)
	}
	if len(toaster.toasts) != 0 {
		t.Error("disabled engine must not toast")
	}
}

func TestToasterReceivesFirings(t *testing.T) {
	e, toaster := newTestEngine(t)
	e.Evaluate(budgetInputs(120, 100, 80))

	if len(toaster.toasts) != 1 {
		t.Fatalf("toasts = %d, want 1", len(toaster.toasts))
	}
	if toaster.toasts[0].Title == "" {
		t.Error("toast missing title")
	}
}

func TestListManagement(t *testing.T) {
	e, _ := newTestEngine(t)
	fired := e.Evaluate(Inputs{
		Goals: []domain.FinancialGoal{
			{ID: "g1", Name: "A", Target: 100, Current: 85},
			{ID: "g2", Name: "B", Target: 100, Current: 90},
		},
		Now: now,
	})
	if len(fired) != 2 {
		t.Fatalf("fired %d, want 2", len(fired))
	}

	e.MarkAllRead()
	if e.UnreadCount() != 0 {
		t.Errorf("unread after MarkAllRead = %d", e.UnreadCount())
	}

	e.Delete(fired[0].ID)
	if len(e.All()) != 1 {
		t.Errorf("after delete: %d left, want 1", len(e.All()))
	}

	e.ClearAll()
	if len(e.All()) != 0 {
		t.Error("ClearAll left notifications behind")
	}
}

func TestEnabledFlagPersists(t *testing.T) {
	log := logger.NewWithWriter(os.Stderr)
	dir := t.TempDir()
	st, err := storage.Open(dir, log)
	if err != nil {
		t.Fatal(err)
	}

	e, err := NewEngine(st, events.NewBus(), log, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !e.Enabled() {
		t.Fatal("engine must default to enabled")
	}
	e.SetEnabled(false)

	st2, err := storage.Open(dir, log)
	if err != nil {
		t.Fatal(err)
	}
	reopened, err := NewEngine(st2, events.NewBus(), log, nil)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Enabled() {
		t.Error("disabled flag did not survive reopen")
	}
}
