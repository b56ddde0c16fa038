/*
annotation.go - Settlement annotation toggling

PURPOSE:
  Sets the red/green settlement marker on exactly one target: a single day
  entry, a single range entry, or a bucket's party-total marker. Financial
  figures are never touched; this is the other half of the two-writer
  arrangement with merge.go.

TARGET RESOLUTION:
  More than one bucket can hold an entry for the same date because the
  financial ledger contains zero-value placeholder rows that are not real
  transactions. Resolution is deterministic and prefers entries with
  non-zero financial data:
  - Party total: the most recently created bucket for the party.
  - Range entry: the entry whose (start, end) pair matches exactly AND
    whose figures are not all zero. No such entry is ErrNotFound, reported
    with the candidate ranges that were scanned.
  - Day entry: the entry at the target date with non-zero figures across
    all of the party's buckets; only when every candidate is a zero
    placeholder does the first placeholder win.

  Setting the same color twice is success both times (idempotent), never
  an error.
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/ledger-engine/weekclock"
)

// AnnotationRequest targets one settlement marker.
type AnnotationRequest struct {
	PartyID    string
	Color      Annotation
	PartyTotal bool
	Shape      BucketShape
	// Date targets a day entry (Shape == ShapeDay, PartyTotal == false).
	Date *time.Time
	// Start/End target a range entry (Shape == ShapeRange, PartyTotal == false).
	Start *time.Time
	End   *time.Time
}

// AnnotationService sets settlement markers on ledger entries.
type AnnotationService struct {
	store Store
	log   zerolog.Logger
}

// NewAnnotationService creates the service.
func NewAnnotationService(store Store, log zerolog.Logger) *AnnotationService {
	return &AnnotationService{store: store, log: log.With().Str("component", "annotation").Logger()}
}

// Set applies the requested color to exactly one entry or party total and
// returns the saved color.
func (s *AnnotationService) Set(ctx context.Context, req AnnotationRequest) (Annotation, error) {
	switch {
	case req.PartyID == "":
		return "", invalidInputf("partyId is required")
	case !req.Color.Valid():
		return "", invalidInputf("invalid color %q: must be red or green", req.Color)
	case !req.Shape.Valid():
		return "", invalidInputf("invalid shape %q: must be day or range", req.Shape)
	}

	if req.PartyTotal {
		return s.setPartyTotal(ctx, req)
	}
	if req.Shape == ShapeRange {
		if req.Start == nil || req.End == nil {
			return "", invalidInputf("target range is required for a range annotation")
		}
		return s.setRangeEntry(ctx, req)
	}
	if req.Date == nil {
		return "", invalidInputf("target date is required for a day annotation")
	}
	return s.setDayEntry(ctx, req)
}

// =============================================================================
// PARTY TOTAL
// =============================================================================

func (s *AnnotationService) setPartyTotal(ctx context.Context, req AnnotationRequest) (Annotation, error) {
	if req.Shape == ShapeRange {
		buckets, err := s.store.FindRangesByParty(ctx, req.PartyID)
		if err != nil {
			return "", err
		}
		if len(buckets) == 0 {
			return "", fmt.Errorf("no range bucket for party %s: %w", req.PartyID, ErrNotFound)
		}
		// Most recently created bucket carries the party total.
		_, err = s.store.UpsertRange(ctx, buckets[0].Key, func(b *RangeBucket) error {
			if b.CreatedAt.IsZero() {
				return fmt.Errorf("range bucket %+v vanished: %w", b.Key, ErrNotFound)
			}
			b.TotalAnnotation = req.Color
			b.UpdatedAt = time.Now().UTC()
			return nil
		})
		return req.Color, err
	}

	buckets, err := s.store.FindDaysByParty(ctx, req.PartyID)
	if err != nil {
		return "", err
	}
	if len(buckets) == 0 {
		return "", fmt.Errorf("no day bucket for party %s: %w", req.PartyID, ErrNotFound)
	}
	_, err = s.store.UpsertDay(ctx, buckets[0].Key, func(b *DayBucket) error {
		if b.CreatedAt.IsZero() {
			return fmt.Errorf("day bucket %+v vanished: %w", b.Key, ErrNotFound)
		}
		b.TotalAnnotation = req.Color
		b.UpdatedAt = time.Now().UTC()
		return nil
	})
	return req.Color, err
}

// =============================================================================
// RANGE ENTRY
// =============================================================================

func (s *AnnotationService) setRangeEntry(ctx context.Context, req AnnotationRequest) (Annotation, error) {
	start, end := weekclock.Day(*req.Start), weekclock.Day(*req.End)
	target := weekclock.DayKey(start) + ".." + weekclock.DayKey(end)

	buckets, err := s.store.FindRangesByParty(ctx, req.PartyID)
	if err != nil {
		return "", err
	}

	var candidates []string
	for _, b := range buckets {
		for i, r := range b.Ranges {
			candidates = append(candidates, weekclock.DayKey(r.Start)+".."+weekclock.DayKey(r.End))
			if !weekclock.SameDay(r.Start, start) || !weekclock.SameDay(r.End, end) {
				continue
			}
			// Zero-value rows are placeholders, not real transactions.
			if r.Fields.IsZero() {
				continue
			}
			idx := i
			_, err := s.store.UpsertRange(ctx, b.Key, func(rb *RangeBucket) error {
				// Relocate under the upsert's per-key serialization: the list
				// may have been rewritten since the scan.
				if idx >= len(rb.Ranges) ||
					!weekclock.SameDay(rb.Ranges[idx].Start, start) ||
					!weekclock.SameDay(rb.Ranges[idx].End, end) {
					found := false
					for j, rr := range rb.Ranges {
						if weekclock.SameDay(rr.Start, start) && weekclock.SameDay(rr.End, end) {
							idx, found = j, true
							break
						}
					}
					if !found {
						return &EntryNotFoundError{Key: rb.Key, Shape: ShapeRange, Target: target}
					}
				}
				rb.Ranges[idx].Annotation = req.Color
				rb.UpdatedAt = time.Now().UTC()
				return nil
			})
			return req.Color, err
		}
	}

	return "", &EntryNotFoundError{
		Key:        WeekKey{PartyID: req.PartyID},
		Shape:      ShapeRange,
		Target:     target,
		Candidates: candidates,
	}
}

// =============================================================================
// DAY ENTRY
// =============================================================================

func (s *AnnotationService) setDayEntry(ctx context.Context, req AnnotationRequest) (Annotation, error) {
	dayKey := weekclock.DayKey(*req.Date)

	buckets, err := s.store.FindDaysByParty(ctx, req.PartyID)
	if err != nil {
		return "", err
	}

	// First bucket holding a real (non-zero) entry for the date wins; a
	// zero placeholder is only targeted when no real entry exists anywhere.
	var fallback *DayBucket
	var candidates []string
	var chosen *DayBucket
	for _, b := range buckets {
		entry, ok := b.Days[dayKey]
		if !ok {
			for k := range b.Days {
				candidates = append(candidates, k)
			}
			continue
		}
		if entry.Fields.IsZero() {
			if fallback == nil {
				fallback = b
			}
			continue
		}
		chosen = b
		break
	}
	if chosen == nil {
		chosen = fallback
	}
	if chosen == nil {
		return "", &EntryNotFoundError{
			Key:        WeekKey{PartyID: req.PartyID},
			Shape:      ShapeDay,
			Target:     dayKey,
			Candidates: candidates,
		}
	}

	_, err = s.store.UpsertDay(ctx, chosen.Key, func(db *DayBucket) error {
		entry, ok := db.Days[dayKey]
		if !ok {
			return &EntryNotFoundError{Key: db.Key, Shape: ShapeDay, Target: dayKey}
		}
		entry.Annotation = req.Color
		db.Days[dayKey] = entry
		db.UpdatedAt = time.Now().UTC()
		return nil
	})
	return req.Color, err
}
