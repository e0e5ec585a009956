package domain

import "strings"

// CategoryType partitions categories into income and expense.
type CategoryType string

const (
	CategoryIncome  CategoryType = "income"
	CategoryExpense CategoryType = "expense"
)

// Category describes a transaction category. Defaults are fixed; custom
// entries are user-defined and stored alongside them.
type Category struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Color string       `json:"color"`
	Type  CategoryType `json:"type"`
	Icon  string       `json:"icon,omitempty"`
}

// DefaultCategories is the built-in set. These cannot be deleted.
var DefaultCategories = []Category{
	{ID: "income", Name: "Income", Color: "#22c55e", Type: CategoryIncome, Icon: "💰"},
	{ID: "saas", Name: "SaaS", Color: "#a855f7", Type: CategoryExpense, Icon: "☁️"},
	{ID: "food", Name: "Food", Color: "#f59e0b", Type: CategoryExpense, Icon: "🍔"},
	{ID: "housing", Name: "Housing", Color: "#3b82f6", Type: CategoryExpense, Icon: "🏠"},
	{ID: "fixed", Name: "Fixed", Color: "#ef4444", Type: CategoryExpense, Icon: "📋"},
}

// legacyNames maps renamed default categories to their current names.
// Older exports still carry the localized names.
var legacyNames = map[string]string{
	"Receita":     "Income",
	"Conta Fixa":  "Fixed",
	"Moradia":     "Housing",
	"Alimentação": "Food",
}

// CanonicalName resolves legacy category names to their current form.
func CanonicalName(name string) string {
	if canonical, ok := legacyNames[strings.TrimSpace(name)]; ok {
		return canonical
	}
	return strings.TrimSpace(name)
}

// IsDefaultCategory reports whether id belongs to the built-in set.
func IsDefaultCategory(id string) bool {
	for _, c := range DefaultCategories {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Catalog is the category lookup table: defaults plus custom entries.
// Every engine routes the "is this transaction income" check through
// here rather than re-deriving it.
type Catalog struct {
	categories []Category
}

// NewCatalog builds a catalog from the custom categories on top of the
// defaults.
func NewCatalog(custom []Category) Catalog {
	all := make([]Category, 0, len(DefaultCategories)+len(custom))
	all = append(all, DefaultCategories...)
	all = append(all, custom...)
	return Catalog{categories: all}
}

// All returns every category, defaults first.
func (c Catalog) All() []Category {
	out := make([]Category, len(c.categories))
	copy(out, c.categories)
	return out
}

// Lookup finds a category by id or name. Legacy names resolve to their
// renamed defaults.
func (c Catalog) Lookup(idOrName string) (Category, bool) {
	name := CanonicalName(idOrName)
	for _, cat := range c.categories {
		if cat.ID == idOrName || cat.Name == name {
			return cat, true
		}
	}
	return Category{}, false
}

// ByType returns the categories of the given type.
func (c Catalog) ByType(t CategoryType) []Category {
	var out []Category
	for _, cat := range c.categories {
		if cat.Type == t {
			out = append(out, cat)
		}
	}
	return out
}

// IsIncomeCategory reports whether the category name (or id) resolves to an
// income-typed category. Unknown categories are treated as expenses.
func (c Catalog) IsIncomeCategory(idOrName string) bool {
	cat, ok := c.Lookup(idOrName)
	return ok && cat.Type == CategoryIncome
}

// CountsAsIncome reports whether a transaction contributes to revenue.
// The amount check covers transactions whose category was reassigned but
// whose stored sign is stale.
func (c Catalog) CountsAsIncome(t Transaction) bool {
	return t.Amount > 0 || c.IsIncomeCategory(t.Category)
}

// CountsAsExpense reports whether a transaction contributes to expenses.
func (c Catalog) CountsAsExpense(t Transaction) bool {
	return t.Amount < 0 && !c.IsIncomeCategory(t.Category)
}
