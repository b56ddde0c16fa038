/*
Package ledger provides the weekly payment ledger engine.

PURPOSE:
  Records party payments bucketed by ISO calendar week, in two shapes:
  - DayBucket:   one financial entry per calendar day of the week
  - RangeBucket: an ordered, non-overlapping list of multi-day entries

  Two independent write paths mutate these buckets and must not clobber
  each other:
  - MergeUpsertService rewrites financial figures in bulk (merge.go)
  - AnnotationService flips the red/green settlement marker on a single
    entry (annotation.go)

  RangeSummaryAggregator (summary.go) answers arbitrary date-window
  queries across both shapes without double-counting week-scoped fields.

KEY CONCEPTS IN THIS FILE:
  - WeekKey: (party, ISO week number, ISO week year) bucket identity
  - FinancialFields: the six decimal payment measures
  - Annotation: the red/green settlement marker, owned by AnnotationService
    and never reset by bulk financial writes

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for every monetary figure
  2. Ownership: financial fields and annotations have disjoint writers
  3. One bucket per WeekKey per shape, enforced by the store

SEE ALSO:
  - store.go: persistence interfaces
  - merge.go, annotation.go, summary.go: the three services
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/ledger-engine/weekclock"
)

// =============================================================================
// WEEK KEY - Bucket identity
// =============================================================================

// WeekKey uniquely identifies one bucket of either shape.
type WeekKey struct {
	PartyID    string
	WeekNumber int
	WeekYear   int
}

// WeekKeyFor derives the key for the week containing a date.
func WeekKeyFor(partyID string, date time.Time) WeekKey {
	week, year := weekclock.WeekOf(date)
	return WeekKey{PartyID: partyID, WeekNumber: week, WeekYear: year}
}

// =============================================================================
// FINANCIAL FIELDS - The six payment measures
// =============================================================================

// FinancialFields is the fixed record of payment measures carried by every
// day and range entry. Absent measures default to zero.
type FinancialFields struct {
	PaymentAmount decimal.Decimal `json:"paymentAmount"`
	PWT           decimal.Decimal `json:"pwt"`
	Cash          decimal.Decimal `json:"cash"`
	Bank          decimal.Decimal `json:"bank"`
	Due           decimal.Decimal `json:"due"`
	TDA           decimal.Decimal `json:"tda"`
}

// Add returns the component-wise sum of two field sets.
func (f FinancialFields) Add(o FinancialFields) FinancialFields {
	return FinancialFields{
		PaymentAmount: f.PaymentAmount.Add(o.PaymentAmount),
		PWT:           f.PWT.Add(o.PWT),
		Cash:          f.Cash.Add(o.Cash),
		Bank:          f.Bank.Add(o.Bank),
		Due:           f.Due.Add(o.Due),
		TDA:           f.TDA.Add(o.TDA),
	}
}

// IsZero reports whether every measure is zero. Zero-value rows exist in
// the ledger as placeholders and are not real transactions.
func (f FinancialFields) IsZero() bool {
	return f.PaymentAmount.IsZero() && f.PWT.IsZero() && f.Cash.IsZero() &&
		f.Bank.IsZero() && f.Due.IsZero() && f.TDA.IsZero()
}

// IsNonNegative reports whether no measure is negative.
func (f FinancialFields) IsNonNegative() bool {
	return !f.PaymentAmount.IsNegative() && !f.PWT.IsNegative() && !f.Cash.IsNegative() &&
		!f.Bank.IsNegative() && !f.Due.IsNegative() && !f.TDA.IsNegative()
}

// =============================================================================
// SETTLEMENT ANNOTATION
// =============================================================================

// Annotation is the red/green settlement marker. It is independent of the
// financial figures: only AnnotationService writes it.
type Annotation string

const (
	AnnotationRed   Annotation = "red"
	AnnotationGreen Annotation = "green"
)

// Valid reports whether the annotation is one of the two known colors.
func (a Annotation) Valid() bool {
	return a == AnnotationRed || a == AnnotationGreen
}

// BucketShape selects which ledger collection an operation targets.
type BucketShape string

const (
	ShapeDay   BucketShape = "day"
	ShapeRange BucketShape = "range"
)

// Valid reports whether the shape is one of the two known shapes.
func (s BucketShape) Valid() bool {
	return s == ShapeDay || s == ShapeRange
}

// =============================================================================
// ENTRIES
// =============================================================================

// NetPayable is the weekly net-payable side figure stored per bucket.
type NetPayable struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// DayEntry is one day's figures inside a DayBucket.
type DayEntry struct {
	Date       time.Time       `json:"date"`
	Fields     FinancialFields `json:"fields"`
	Annotation Annotation      `json:"annotation"`
}

// RangeEntry is one multi-day span inside a RangeBucket.
type RangeEntry struct {
	Start      time.Time       `json:"startDate"`
	End        time.Time       `json:"endDate"`
	Fields     FinancialFields `json:"fields"`
	Annotation Annotation      `json:"annotation"`
}

// =============================================================================
// BUCKETS
// =============================================================================

// DayBucket holds one week of per-day entries for a single party.
// Invariant: every key in Days falls within [WeekStart, WeekEnd].
type DayBucket struct {
	Key        WeekKey
	WeekStart  time.Time
	WeekEnd    time.Time
	Days       map[string]DayEntry // keyed by YYYY-MM-DD
	NetPayable NetPayable
	// TotalAnnotation is the party-total settlement marker for the week.
	TotalAnnotation Annotation
	IsApproved      bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RangeBucket holds one week of multi-day entries for a single party.
// Invariants: every entry satisfies Start <= End, both within
// [WeekStart, WeekEnd]; entries sorted by Start never overlap.
type RangeBucket struct {
	Key             WeekKey
	WeekStart       time.Time
	WeekEnd         time.Time
	Ranges          []RangeEntry
	NetPayable      NetPayable
	TotalAnnotation Annotation
	IsApproved      bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Clone returns a deep copy. Stores hand out clones so that callers can
// never alias a bucket another writer is mutating.
func (b *DayBucket) Clone() *DayBucket {
	cp := *b
	cp.Days = make(map[string]DayEntry, len(b.Days))
	for k, v := range b.Days {
		cp.Days[k] = v
	}
	return &cp
}

// Clone returns a deep copy of the bucket.
func (b *RangeBucket) Clone() *RangeBucket {
	cp := *b
	cp.Ranges = append([]RangeEntry(nil), b.Ranges...)
	return &cp
}
