/*
summary.go - Date-window summary aggregation across both bucket shapes

PURPOSE:
  Answers an arbitrary [start, end] query window by merging every weekly
  bucket, of both shapes, whose week overlaps the window into one
  de-duplicated per-party report with subtotals and a grand total.

EXACT-MATCH GATING:
  The net-payable figure and the party-total annotation are bucket-level
  fields, not per-entry. Including them whenever a bucket merely overlaps
  the window would double-count them across adjacent queries (two halves
  of a week would each report the full weekly figure). They are therefore
  included only when the bucket's week equals the query window exactly,
  i.e. the query asks for precisely one whole ISO week. When both shapes
  carry a net payable for the same party under exact match, the amounts
  are summed and the names concatenated.

ORDERING:
  Line items per party sort by date ascending, day-shape before
  range-shape on ties. Parties sort by display name ascending.
*/
package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/warp/ledger-engine/weekclock"
)

// LineItem is one entry of a summary, from either shape.
type LineItem struct {
	Type       BucketShape
	Date       time.Time // the day (day shape) or range start (range shape)
	Start      time.Time // range shape only
	End        time.Time // range shape only
	Fields     FinancialFields
	Annotation Annotation
}

// PartySummary is one party's slice of the report.
type PartySummary struct {
	PartyID   string
	PartyName string
	PartyCode string
	// TotalAnnotation and NetPayable are only populated under exact-match
	// gating (query window == bucket week).
	TotalAnnotation Annotation
	NetPayable      *NetPayable
	LineItems       []LineItem
	// Subtotal sums the line-item figures; the net-payable amount is folded
	// into PaymentAmount only, never into Bank.
	Subtotal FinancialFields
}

// RangeSummary is the full report for a query window.
type RangeSummary struct {
	Start      time.Time
	End        time.Time
	Parties    []PartySummary
	GrandTotal FinancialFields
}

// RangeSummaryAggregator builds window reports from the ledger store.
type RangeSummaryAggregator struct {
	store   Store
	parties PartyResolver
}

// NewRangeSummaryAggregator creates the aggregator.
func NewRangeSummaryAggregator(store Store, parties PartyResolver) *RangeSummaryAggregator {
	return &RangeSummaryAggregator{store: store, parties: parties}
}

// Summarize reports all ledger activity inside [start, end], inclusive.
func (a *RangeSummaryAggregator) Summarize(ctx context.Context, start, end time.Time) (*RangeSummary, error) {
	if start.IsZero() || end.IsZero() {
		return nil, invalidInputf("startDate and endDate are required")
	}
	start, end = weekclock.Day(start), weekclock.Day(end)
	if start.After(end) {
		return nil, invalidInputf("startDate is after endDate")
	}

	dayBuckets, err := a.store.FindDaysOverlapping(ctx, start, end)
	if err != nil {
		return nil, err
	}
	rangeBuckets, err := a.store.FindRangesOverlapping(ctx, start, end)
	if err != nil {
		return nil, err
	}

	acc := make(map[string]*PartySummary)
	ensure := func(partyID string) *PartySummary {
		p := acc[partyID]
		if p == nil {
			p = &PartySummary{PartyID: partyID}
			acc[partyID] = p
		}
		return p
	}

	for _, b := range dayBuckets {
		p := ensure(b.Key.PartyID)
		exact := exactWeekMatch(b.WeekStart, b.WeekEnd, start, end)

		for _, entry := range b.Days {
			if !weekclock.WithinDays(entry.Date, start, end) {
				continue
			}
			p.LineItems = append(p.LineItems, LineItem{
				Type:       ShapeDay,
				Date:       weekclock.Day(entry.Date),
				Fields:     entry.Fields,
				Annotation: entry.Annotation,
			})
		}
		if exact {
			addNetPayable(p, b.NetPayable)
			if p.TotalAnnotation == "" {
				p.TotalAnnotation = b.TotalAnnotation
			}
		}
	}

	for _, b := range rangeBuckets {
		p := ensure(b.Key.PartyID)
		exact := exactWeekMatch(b.WeekStart, b.WeekEnd, start, end)

		for _, entry := range b.Ranges {
			if !weekclock.RangesOverlap(entry.Start, entry.End, start, end) {
				continue
			}
			p.LineItems = append(p.LineItems, LineItem{
				Type:       ShapeRange,
				Date:       weekclock.Day(entry.Start),
				Start:      weekclock.Day(entry.Start),
				End:        weekclock.Day(entry.End),
				Fields:     entry.Fields,
				Annotation: entry.Annotation,
			})
		}
		if exact {
			addNetPayable(p, b.NetPayable)
			if p.TotalAnnotation == "" {
				p.TotalAnnotation = b.TotalAnnotation
			}
		}
	}

	// Parties whose buckets overlap the window but contribute nothing
	// inside it are left out of the report entirely.
	var ids []string
	for id, p := range acc {
		if len(p.LineItems) == 0 && p.NetPayable == nil && p.TotalAnnotation == "" {
			delete(acc, id)
			continue
		}
		ids = append(ids, id)
	}

	meta := map[string]PartyMeta{}
	if len(ids) > 0 && a.parties != nil {
		if meta, err = a.parties.ResolveParties(ctx, ids); err != nil {
			return nil, err
		}
	}

	summary := &RangeSummary{Start: start, End: end, Parties: []PartySummary{}}
	for id, p := range acc {
		if m, ok := meta[id]; ok {
			p.PartyName, p.PartyCode = m.Name, m.Code
		} else {
			p.PartyName = "Unknown Party"
		}

		sort.SliceStable(p.LineItems, func(i, j int) bool {
			di, dj := p.LineItems[i].Date, p.LineItems[j].Date
			if !di.Equal(dj) {
				return di.Before(dj)
			}
			return p.LineItems[i].Type == ShapeDay && p.LineItems[j].Type == ShapeRange
		})

		for _, item := range p.LineItems {
			p.Subtotal = p.Subtotal.Add(item.Fields)
		}
		if p.NetPayable != nil {
			p.Subtotal.PaymentAmount = p.Subtotal.PaymentAmount.Add(p.NetPayable.Amount)
		}

		summary.Parties = append(summary.Parties, *p)
		summary.GrandTotal = summary.GrandTotal.Add(p.Subtotal)
	}

	sort.Slice(summary.Parties, func(i, j int) bool {
		if summary.Parties[i].PartyName != summary.Parties[j].PartyName {
			return summary.Parties[i].PartyName < summary.Parties[j].PartyName
		}
		return summary.Parties[i].PartyID < summary.Parties[j].PartyID
	})
	return summary, nil
}

// exactWeekMatch reports whether the query window is precisely the
// bucket's whole ISO week.
func exactWeekMatch(weekStart, weekEnd, start, end time.Time) bool {
	return weekclock.SameDay(weekStart, start) && weekclock.SameDay(weekEnd, end)
}

func addNetPayable(p *PartySummary, np NetPayable) {
	if np.Name == "" && np.Amount.IsZero() {
		return
	}
	if p.NetPayable == nil {
		cp := np
		p.NetPayable = &cp
		return
	}
	p.NetPayable.Amount = p.NetPayable.Amount.Add(np.Amount)
	if np.Name != "" {
		if p.NetPayable.Name != "" {
			p.NetPayable.Name += ", " + np.Name
		} else {
			p.NetPayable.Name = np.Name
		}
	}
}
