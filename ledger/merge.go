/*
merge.go - Bulk annotation-preserving merge of financial submissions

PURPOSE:
  Accepts a batch of per-party financial submissions for one target week
  and merges them into the stored buckets. The caller only knows financial
  figures; the red/green settlement annotation is owned by a separate
  process (annotation.go). The critical contract here is that rewriting an
  entry's figures must never reset an annotation that was already set:
  before writing, the existing entry with the same date key (day shape) or
  the same exact start/end pair (range shape) is consulted and its
  annotation carried over.

ALGORITHM:
  1. Group submissions by party.
  2. Validate ranges (start <= end, inside the week); invalid ones are
     dropped, not fatal to the batch.
  3. Resolve one WeekKey per party from the explicit week boundaries (or
     the explicit week override), never from individual submission dates,
     so every row of a batch lands in the same bucket.
  4. Merge inside Store.Upsert: the store serializes the read-modify-write
     per WeekKey, so the annotations read here cannot be concurrently
     replaced mid-merge.

EDGE CASES:
  - Empty submission list: ErrInvalidInput.
  - A submission carrying neither a date, nor a valid range, nor a
    net-payable payload is silently skipped.
*/
package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/ledger-engine/weekclock"
)

// Submission is one row of a bulk merge batch. Exactly one of Date (day
// shape) or Start/End (range shape) tags the financial fields; a row may
// instead carry only a NetPayable update for the party's week.
type Submission struct {
	PartyID    string
	Date       *time.Time
	Start      *time.Time
	End        *time.Time
	Fields     FinancialFields
	NetPayable *NetPayable
}

// MergeRequest is a bulk merge batch for one target week.
type MergeRequest struct {
	WeekStart time.Time
	WeekEnd   time.Time
	// WeekNumber/WeekYear override the key derived from WeekStart when both
	// are non-zero. Used when the caller already bucketed the week.
	WeekNumber  int
	WeekYear    int
	Submissions []Submission
}

// MergeUpsertService merges financial submissions into weekly buckets.
type MergeUpsertService struct {
	store Store
	log   zerolog.Logger
}

// NewMergeUpsertService creates the service.
func NewMergeUpsertService(store Store, log zerolog.Logger) *MergeUpsertService {
	return &MergeUpsertService{store: store, log: log.With().Str("component", "merge").Logger()}
}

func (s *MergeUpsertService) validate(req MergeRequest) (week, year int, err error) {
	if req.WeekStart.IsZero() || req.WeekEnd.IsZero() {
		return 0, 0, invalidInputf("weekStartDate and weekEndDate are required")
	}
	if weekclock.Day(req.WeekStart).After(weekclock.Day(req.WeekEnd)) {
		return 0, 0, invalidInputf("weekStartDate is after weekEndDate")
	}
	if len(req.Submissions) == 0 {
		return 0, 0, invalidInputf("submissions list is empty")
	}
	week, year = weekclock.WeekOf(req.WeekStart)
	if req.WeekNumber > 0 && req.WeekYear > 0 {
		week, year = req.WeekNumber, req.WeekYear
	}
	return week, year, nil
}

// partyOrder returns the distinct party IDs of a batch in first-seen order.
func partyOrder(subs []Submission) []string {
	var order []string
	seen := make(map[string]bool)
	for _, sub := range subs {
		if sub.PartyID == "" || seen[sub.PartyID] {
			continue
		}
		seen[sub.PartyID] = true
		order = append(order, sub.PartyID)
	}
	return order
}

// =============================================================================
// DAY SHAPE
// =============================================================================

// MergeDays merges a batch of date-tagged submissions into day buckets,
// one bucket per party, and returns the saved buckets.
func (s *MergeUpsertService) MergeDays(ctx context.Context, req MergeRequest) ([]*DayBucket, error) {
	week, year, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	type partyBatch struct {
		days map[string]DayEntry
		np   *NetPayable
	}
	batches := make(map[string]*partyBatch)

	for _, sub := range req.Submissions {
		if sub.PartyID == "" {
			continue
		}
		pb := batches[sub.PartyID]
		if pb == nil {
			pb = &partyBatch{days: make(map[string]DayEntry)}
			batches[sub.PartyID] = pb
		}
		if sub.NetPayable != nil {
			np := *sub.NetPayable
			pb.np = &np
		}
		if sub.Date == nil {
			continue
		}
		if !weekclock.WithinDays(*sub.Date, req.WeekStart, req.WeekEnd) {
			s.log.Warn().Str("party", sub.PartyID).Str("date", weekclock.DayKey(*sub.Date)).
				Msg("dropping day submission outside the target week")
			continue
		}
		if !sub.Fields.IsNonNegative() {
			s.log.Warn().Str("party", sub.PartyID).Str("date", weekclock.DayKey(*sub.Date)).
				Msg("dropping day submission with negative figures")
			continue
		}
		pb.days[weekclock.DayKey(*sub.Date)] = DayEntry{
			Date:       weekclock.Day(*sub.Date),
			Fields:     sub.Fields,
			Annotation: AnnotationRed,
		}
	}

	var saved []*DayBucket
	for _, partyID := range partyOrder(req.Submissions) {
		pb := batches[partyID]
		key := WeekKey{PartyID: partyID, WeekNumber: week, WeekYear: year}

		bucket, err := s.store.UpsertDay(ctx, key, func(b *DayBucket) error {
			initDayBucket(b, req.WeekStart, req.WeekEnd)
			for dayKey, entry := range pb.days {
				if prev, ok := b.Days[dayKey]; ok && prev.Annotation.Valid() {
					entry.Annotation = prev.Annotation
				}
				b.Days[dayKey] = entry
			}
			if pb.np != nil {
				b.NetPayable = *pb.np
			}
			b.UpdatedAt = time.Now().UTC()
			return nil
		})
		if err != nil {
			return nil, err
		}
		saved = append(saved, bucket)
	}

	sort.Slice(saved, func(i, j int) bool { return saved[i].Key.PartyID < saved[j].Key.PartyID })
	return saved, nil
}

// =============================================================================
// RANGE SHAPE
// =============================================================================

// MergeRanges merges a batch of range-tagged submissions into range
// buckets. Each party's range list is replaced wholesale with the merged
// result; annotations of surviving (start, end) pairs are carried over.
func (s *MergeUpsertService) MergeRanges(ctx context.Context, req MergeRequest) ([]*RangeBucket, error) {
	week, year, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	type partyBatch struct {
		ranges []RangeEntry
		np     *NetPayable
	}
	batches := make(map[string]*partyBatch)

	for _, sub := range req.Submissions {
		if sub.PartyID == "" {
			continue
		}
		pb := batches[sub.PartyID]
		if pb == nil {
			pb = &partyBatch{}
			batches[sub.PartyID] = pb
		}
		if sub.NetPayable != nil {
			np := *sub.NetPayable
			pb.np = &np
			continue
		}
		if sub.Start == nil || sub.End == nil {
			continue
		}
		start, end := weekclock.Day(*sub.Start), weekclock.Day(*sub.End)
		switch {
		case start.After(end):
			s.log.Warn().Str("party", sub.PartyID).
				Str("range", weekclock.DayKey(start)+".."+weekclock.DayKey(end)).
				Msg("dropping range submission with start after end")
			continue
		case !weekclock.WithinDays(start, req.WeekStart, req.WeekEnd) ||
			!weekclock.WithinDays(end, req.WeekStart, req.WeekEnd):
			s.log.Warn().Str("party", sub.PartyID).
				Str("range", weekclock.DayKey(start)+".."+weekclock.DayKey(end)).
				Msg("dropping range submission outside the target week")
			continue
		case !sub.Fields.IsNonNegative():
			s.log.Warn().Str("party", sub.PartyID).
				Str("range", weekclock.DayKey(start)+".."+weekclock.DayKey(end)).
				Msg("dropping range submission with negative figures")
			continue
		}
		pb.ranges = append(pb.ranges, RangeEntry{
			Start:      start,
			End:        end,
			Fields:     sub.Fields,
			Annotation: AnnotationRed,
		})
	}

	var saved []*RangeBucket
	for _, partyID := range partyOrder(req.Submissions) {
		pb := batches[partyID]
		ranges := s.dedupeRanges(partyID, pb.ranges)
		key := WeekKey{PartyID: partyID, WeekNumber: week, WeekYear: year}

		bucket, err := s.store.UpsertRange(ctx, key, func(b *RangeBucket) error {
			initRangeBucket(b, req.WeekStart, req.WeekEnd)
			for i, r := range ranges {
				if prev, ok := findRangeEntry(b.Ranges, r.Start, r.End); ok && prev.Annotation.Valid() {
					ranges[i].Annotation = prev.Annotation
				}
			}
			b.Ranges = ranges
			if pb.np != nil {
				b.NetPayable = *pb.np
			}
			b.UpdatedAt = time.Now().UTC()
			return nil
		})
		if err != nil {
			return nil, err
		}
		saved = append(saved, bucket)
	}

	sort.Slice(saved, func(i, j int) bool { return saved[i].Key.PartyID < saved[j].Key.PartyID })
	return saved, nil
}

// dedupeRanges sorts ranges by start date and drops any range overlapping
// the previous kept one, preserving the non-overlap bucket invariant.
func (s *MergeUpsertService) dedupeRanges(partyID string, ranges []RangeEntry) []RangeEntry {
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start.Before(ranges[j].Start) })

	kept := make([]RangeEntry, 0, len(ranges))
	for _, r := range ranges {
		if n := len(kept); n > 0 && !r.Start.After(kept[n-1].End) {
			s.log.Warn().Str("party", partyID).
				Str("range", weekclock.DayKey(r.Start)+".."+weekclock.DayKey(r.End)).
				Msg("dropping range submission overlapping a previous range")
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

func findRangeEntry(ranges []RangeEntry, start, end time.Time) (RangeEntry, bool) {
	for _, r := range ranges {
		if weekclock.SameDay(r.Start, start) && weekclock.SameDay(r.End, end) {
			return r, true
		}
	}
	return RangeEntry{}, false
}

// =============================================================================
// BUCKET INITIALIZATION
// =============================================================================

// initDayBucket defaults the header fields of a freshly created bucket.
// Existing buckets keep their approval state and creation metadata.
func initDayBucket(b *DayBucket, weekStart, weekEnd time.Time) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
		b.IsApproved = false
		b.TotalAnnotation = AnnotationRed
	}
	if b.Days == nil {
		b.Days = make(map[string]DayEntry)
	}
	b.WeekStart = weekclock.Day(weekStart)
	b.WeekEnd = weekclock.EndOfDay(weekEnd)
}

func initRangeBucket(b *RangeBucket, weekStart, weekEnd time.Time) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
		b.IsApproved = false
		b.TotalAnnotation = AnnotationRed
	}
	b.WeekStart = weekclock.Day(weekStart)
	b.WeekEnd = weekclock.EndOfDay(weekEnd)
}
