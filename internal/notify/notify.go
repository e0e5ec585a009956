// Package notify evaluates the alert rules and maintains the persisted
// notification list. Evaluation is on demand; callers run it after data
// changes and on a timer.
package notify

import (
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

// Toaster is the transient side-channel: every newly fired notification is
// also shown immediately, independent of the persisted list.
type Toaster interface {
	Toast(n domain.Notification)
}

// Inputs is the data snapshot a rule evaluation runs against.
type Inputs struct {
	Budgets       []domain.Budget
	Transactions  []domain.Transaction
	Goals         []domain.FinancialGoal
	Debts         []domain.Debt
	EmergencyFund domain.EmergencyFund
	Now           time.Time
}

// Engine owns the notification list, the enabled flag, and the rules.
type Engine struct {
	mu      sync.RWMutex
	storage *storage.Store
	bus     *events.Bus
	log     zerolog.Logger
	toaster Toaster

	notifications []domain.Notification
	enabled       bool
}

// NewEngine loads the persisted notifications and enabled flag. The flag
// defaults to on when it was never stored. toaster may be nil.
func NewEngine(st *storage.Store, bus *events.Bus, log zerolog.Logger, toaster Toaster) (*Engine, error) {
	e := &Engine{storage: st, bus: bus, log: log, toaster: toaster, enabled: true}

	if _, err := st.Get(storage.KeyNotifications, &e.notifications); err != nil {
		return nil, fmt.Errorf("load notifications: %w", err)
	}
	var enabled bool
	found, err := st.Get(storage.KeyNotificationsEnabled, &enabled)
	if err != nil {
		return nil, fmt.Errorf("load notifications flag: %w", err)
	}
	if found {
		e.enabled = enabled
	}
	return e, nil
}

// Enabled reports whether evaluation is active.
func (e *Engine) Enabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled
}

// SetEnabled flips and persists the evaluation gate.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.enabled = enabled
	e.persistFlag()
	e.publish()
}

// Evaluate runs every rule family against the snapshot and returns the
// newly fired notifications. A candidate is suppressed while an unread
// notification with the same dedup key exists; reading it re-arms the rule.
func (e *Engine) Evaluate(in Inputs) []domain.Notification {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return nil
	}
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	candidates := budgetRules(in)
	candidates = append(candidates, goalRules(in)...)
	candidates = append(candidates, debtRules(in)...)
	candidates = append(candidates, emergencyRules(in)...)

	var fired []domain.Notification
	for _, c := range candidates {
		if e.hasUnreadLocked(c.Key) {
			continue
		}
		c.ID = uuid.NewString()
		c.Timestamp = in.Now
		e.notifications = append([]domain.Notification{c}, e.notifications...)
		fired = append(fired, c)
	}

	if len(fired) == 0 {
		return nil
	}

	e.persistList()
	e.publish()
	for _, n := range fired {
		e.log.Info().Str("key", n.Key).Str("severity", string(n.Severity)).Msg("Notification fired")
		if e.toaster != nil {
			e.toaster.Toast(n)
		}
	}
	return fired
}

func (e *Engine) hasUnreadLocked(key string) bool {
	for _, n := range e.notifications {
		if n.Key == key && !n.Read {
			return true
		}
	}
	return false
}

// All returns the notifications, newest first.
func (e *Engine) All() []domain.Notification {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.Notification, len(e.notifications))
	copy(out, e.notifications)
	return out
}

// UnreadCount reports how many notifications are unread.
func (e *Engine) UnreadCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	count := 0
	for _, n := range e.notifications {
		if !n.Read {
			count++
		}
	}
	return count
}

// MarkRead marks one notification as read. Unknown ids are ignored.
func (e *Engine) MarkRead(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.notifications {
		if e.notifications[i].ID == id {
			e.notifications[i].Read = true
			e.persistList()
			e.publish()
			return
		}
	}
}

// MarkAllRead marks every notification as read.
func (e *Engine) MarkAllRead() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.notifications {
		e.notifications[i].Read = true
	}
	e.persistList()
	e.publish()
}

// Delete removes one notification. Unknown ids are ignored.
func (e *Engine) Delete(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.notifications[:0]
	for _, n := range e.notifications {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	e.notifications = kept
	e.persistList()
	e.publish()
}

// ClearAll removes every notification.
func (e *Engine) ClearAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.notifications = nil
	e.persistList()
	e.publish()
}

func (e *Engine) persistList() {
	if err := e.storage.Put(storage.KeyNotifications, e.notifications); err != nil {
		e.log.Error().Err(err).Msg("Failed to persist notifications")
	}
}

func (e *Engine) persistFlag() {
	if err := e.storage.Put(storage.KeyNotificationsEnabled, e.enabled); err != nil {
		e.log.Error().Err(err).Msg("Failed to persist notifications flag")
	}
}

func (e *Engine) publish() {
	if e.bus != nil {
		e.bus.Publish(events.Event{Collection: events.CollectionNotifications})
	}
}

// budgetRules alerts on budgets near or over their limit. Progress is
// always measured over the current calendar month, whatever the budget's
// period says.
func budgetRules(in Inputs) []domain.Notification {
	var out []domain.Notification
	year, month := in.Now.Year(), in.Now.Month()

	for _, b := range in.Budgets {
		var spend float64
		for _, tx := range in.Transactions {
			if tx.Category == b.CategoryName && tx.Amount < 0 && tx.Date.SameMonth(year, month) {
				spend += math.Abs(tx.Amount)
			}
		}
		if b.Limit <= 0 {
			continue
		}
		percentage := spend / b.Limit * 100

		if spend > b.Limit {
			out = append(out, domain.Notification{
				Key:      fmt.Sprintf("budget:%s:over_limit", b.CategoryName),
				Type:     domain.NotificationBudget,
				Severity: domain.SeverityError,
				Title:    "Budget exceeded",
				Message: fmt.Sprintf("You spent %.2f of your %.2f budget for %s this month.",
					spend, b.Limit, b.CategoryName),
			})
			continue
		}
		if percentage >= b.AlertThreshold {
			severity := domain.SeverityWarning
			if percentage >= 90 {
				severity = domain.SeverityError
			}
			out = append(out, domain.Notification{
				Key:      fmt.Sprintf("budget:%s:near_limit", b.CategoryName),
				Type:     domain.NotificationBudget,
				Severity: severity,
				Title:    "Budget almost used up",
				Message: fmt.Sprintf("You used %.0f%% of your %s budget this month.",
					percentage, b.CategoryName),
			})
		}
	}
	return out
}

// goalRules alerts on goals close to their target and on approaching
// deadlines for incomplete goals.
func goalRules(in Inputs) []domain.Notification {
	var out []domain.Notification
	for _, g := range in.Goals {
		if g.Target <= 0 {
			continue
		}
		progress := g.Current / g.Target * 100

		if progress >= 80 && progress < 100 {
			out = append(out, domain.Notification{
				Key:      fmt.Sprintf("goal:%s:near_target", g.ID),
				Type:     domain.NotificationGoal,
				Severity: domain.SeverityInfo,
				Title:    "Goal almost reached",
				Message:  fmt.Sprintf("%s is at %.0f%% of its target.", g.Name, progress),
			})
		}

		if g.Deadline.IsZero() || progress >= 100 {
			continue
		}
		days := daysUntil(in.Now, g.Deadline)
		if days <= 0 || days > 30 {
			continue
		}
		severity := domain.SeverityWarning
		if days <= 7 {
			severity = domain.SeverityError
		}
		out = append(out, domain.Notification{
			Key:      fmt.Sprintf("goal:%s:deadline", g.ID),
			Type:     domain.NotificationGoal,
			Severity: severity,
			Title:    "Goal deadline approaching",
			Message:  fmt.Sprintf("%s is due in %d days at %.0f%% progress.", g.Name, days, progress),
		})
	}
	return out
}

// debtRules alerts on debts with an outstanding balance due within a week.
func debtRules(in Inputs) []domain.Notification {
	var out []domain.Notification
	for _, d := range in.Debts {
		if d.DueDate == nil || d.Remaining() <= 0 {
			continue
		}
		days := daysUntil(in.Now, *d.DueDate)
		if days <= 0 || days > 7 {
			continue
		}
		severity := domain.SeverityWarning
		if days <= 3 {
			severity = domain.SeverityError
		}
		out = append(out, domain.Notification{
			Key:      fmt.Sprintf("debt:%s:due_soon", d.ID),
			Type:     domain.NotificationDebt,
			Severity: severity,
			Title:    "Debt payment due",
			Message:  fmt.Sprintf("%s is due in %d days with %.2f outstanding.", d.Name, days, d.Remaining()),
		})
	}
	return out
}

// emergencyRules alerts once the fund gets close to its target.
func emergencyRules(in Inputs) []domain.Notification {
	fund := in.EmergencyFund
	if fund.Target <= 0 {
		return nil
	}
	progress := fund.Current / fund.Target * 100
	if progress < 80 || progress >= 100 {
		return nil
	}
	return []domain.Notification{{
		Key:      "emergency:fund:near_target",
		Type:     domain.NotificationEmergency,
		Severity: domain.SeverityInfo,
		Title:    "Emergency fund almost there",
		Message:  fmt.Sprintf("Your emergency fund is at %.0f%% of its target.", progress),
	}}
}

// daysUntil counts whole calendar days from now to the date.
func daysUntil(now time.Time, d domain.Date) int {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(d.Time.Sub(today).Hours() / 24)
}
