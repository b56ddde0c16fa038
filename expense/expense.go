/*
Package expense is the expense ledger: plain dated expense records consumed
read-only by presentation layers alongside the payment summaries. Unlike
payment buckets there is no week-level merging; each expense is an
independent row, stamped with its ISO week key at write time so weekly
reports can group without recomputing calendar math.
*/
package expense

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Category buckets an expense for reporting.
type Category string

const (
	CategoryOffice      Category = "OFFICE"
	CategoryStaff       Category = "STAFF"
	CategoryUtilities   Category = "UTILITIES"
	CategoryMaintenance Category = "MAINTENANCE"
	CategoryOther       Category = "OTHER"
)

// Valid reports whether the category is a known one.
func (c Category) Valid() bool {
	switch c {
	case CategoryOffice, CategoryStaff, CategoryUtilities, CategoryMaintenance, CategoryOther:
		return true
	}
	return false
}

// Expense is one expense record.
type Expense struct {
	ID         string
	Name       string
	Amount     decimal.Decimal
	Date       time.Time
	Category   Category
	Remarks    string
	WeekNumber int
	WeekYear   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Start    time.Time
	End      time.Time
	Category Category
}

// Store persists expense records.
type Store interface {
	CreateExpense(ctx context.Context, e Expense) error
	ListExpenses(ctx context.Context, f Filter) ([]Expense, error)
	DeleteExpense(ctx context.Context, id string) error
}
