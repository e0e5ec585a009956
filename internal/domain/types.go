package domain

import (
	"fmt"
	"strings"
	"time"
)

// Transaction is one ledger entry. Amount is signed: positive for income,
// negative for expenses. The sign invariant is enforced by the ledger at
// write time and repaired on load.
type Transaction struct {
	ID          string   `json:"id"`
	Date        Date     `json:"date"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	Account     string   `json:"account"`
	Amount      float64  `json:"amount"`
}

// CreditCard is a manually maintained card record. Usage is edited by hand,
// not derived from transactions.
type CreditCard struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Limit      float64 `json:"limit"`
	Used       float64 `json:"used"`
	ClosingDay int     `json:"closingDay"`
	BestDay    int     `json:"bestDay"`
	Color      string  `json:"color"`
}

// Debt tracks an amount owed. 0 <= PaidAmount <= TotalAmount.
type Debt struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	TotalAmount float64 `json:"totalAmount"`
	PaidAmount  float64 `json:"paidAmount"`
	Description string  `json:"description,omitempty"`
	DueDate     *Date   `json:"dueDate,omitempty"`
}

// Remaining returns the unpaid balance.
func (d Debt) Remaining() float64 {
	return d.TotalAmount - d.PaidAmount
}

// FinancialGoal is a savings target with a deadline. 0 <= Current <= Target.
type FinancialGoal struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Target   float64 `json:"target"`
	Current  float64 `json:"current"`
	Deadline Date    `json:"deadline"`
	Icon     string  `json:"icon"`
}

// EmergencyFund is a singleton record, not a collection.
type EmergencyFund struct {
	Target         float64 `json:"target"`
	Current        float64 `json:"current"`
	MonthsOfRunway float64 `json:"monthsOfRunway"`
}

// BudgetPeriod is the window a budget limit applies to.
type BudgetPeriod string

const (
	BudgetMonthly BudgetPeriod = "monthly"
	BudgetYearly  BudgetPeriod = "yearly"
)

// Budget caps spending for a category. CategoryName is a free-form match
// key, not a foreign key. Derived fields (spend, percentage, ...) are
// computed by the budget tracker and never persisted.
type Budget struct {
	ID             string       `json:"id"`
	CategoryName   string       `json:"categoryName"`
	Limit          float64      `json:"limit"`
	Period         BudgetPeriod `json:"period"`
	AlertThreshold float64      `json:"alertThreshold"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// Severity ranks a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// NotificationType names the rule family that produced a notification.
type NotificationType string

const (
	NotificationBudget    NotificationType = "budget"
	NotificationGoal      NotificationType = "goal"
	NotificationDebt      NotificationType = "debt"
	NotificationEmergency NotificationType = "emergency"
)

// Notification is one alert produced by the rule engine. Key is the exact
// dedup key (type:subject:condition); at most one unread notification exists
// per key.
type Notification struct {
	ID        string           `json:"id"`
	Key       string           `json:"key"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Severity  Severity         `json:"severity"`
	Timestamp time.Time        `json:"timestamp"`
	Read      bool             `json:"read"`
	ActionURL string           `json:"actionUrl,omitempty"`
}

// UserProfile mirrors the identity issued by the OAuth provider. The engines
// never depend on it beyond presence.
type UserProfile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

const dateLayout = "2006-01-02"

// Date is a calendar date without time-of-day. It marshals as YYYY-MM-DD
// and accepts RFC3339 timestamps on input, which is how dates were stored
// by older clients.
type Date struct {
	time.Time
}

// NewDate builds a Date in UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate accepts YYYY-MM-DD, RFC3339 and DD/MM/YYYY.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{t}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOf(t), nil
	}
	if t, err := time.Parse("02/01/2006", s); err == nil {
		return Date{t}, nil
	}
	return Date{}, fmt.Errorf("unrecognized date %q", s)
}

// String implements fmt.Stringer.
func (d Date) String() string {
	return d.Format(dateLayout)
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// SameMonth reports whether the date falls in the given calendar month.
func (d Date) SameMonth(year int, month time.Month) bool {
	return d.Year() == year && d.Month() == month
}
