package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ledger-engine/ledger"
	lstore "github.com/warp/ledger-engine/ledger/store"
	"github.com/warp/ledger-engine/weekclock"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newAnnotationService(t *testing.T) (*ledger.AnnotationService, *lstore.Memory) {
	t.Helper()
	store := lstore.NewMemory()
	return ledger.NewAnnotationService(store, zerolog.Nop()), store
}

// seedDayBucket writes a day bucket directly, bypassing the merge service,
// so tests can control creation time and entry figures precisely.
func seedDayBucket(t *testing.T, store *lstore.Memory, key ledger.WeekKey, createdAt time.Time, entries map[string]ledger.FinancialFields) {
	t.Helper()
	start, end := weekclock.BoundsOf(key.WeekNumber, key.WeekYear)
	_, err := store.UpsertDay(context.Background(), key, func(b *ledger.DayBucket) error {
		b.WeekStart, b.WeekEnd = start, end
		b.CreatedAt = createdAt
		b.TotalAnnotation = ledger.AnnotationRed
		for dayKey, fields := range entries {
			date, err := weekclock.ParseDay(dayKey)
			require.NoError(t, err)
			b.Days[dayKey] = ledger.DayEntry{Date: date, Fields: fields, Annotation: ledger.AnnotationRed}
		}
		return nil
	})
	require.NoError(t, err)
}

func seedRangeBucket(t *testing.T, store *lstore.Memory, key ledger.WeekKey, createdAt time.Time, entries []ledger.RangeEntry) {
	t.Helper()
	start, end := weekclock.BoundsOf(key.WeekNumber, key.WeekYear)
	_, err := store.UpsertRange(context.Background(), key, func(b *ledger.RangeBucket) error {
		b.WeekStart, b.WeekEnd = start, end
		b.CreatedAt = createdAt
		b.TotalAnnotation = ledger.AnnotationRed
		b.Ranges = entries
		return nil
	})
	require.NoError(t, err)
}

func mustDay(t *testing.T, s string) *time.Time {
	t.Helper()
	d, err := weekclock.ParseDay(s)
	require.NoError(t, err)
	return &d
}

// =============================================================================
// DAY ENTRY TARGETING
// =============================================================================

func TestAnnotation_Day_SetAndIdempotentRepeat(t *testing.T) {
	// GIVEN: A day entry with real figures
	// WHEN: The same green color is applied twice
	// THEN: Both calls succeed and the entry ends up green

	svc, store := newAnnotationService(t)
	ctx := context.Background()

	key := ledger.WeekKey{PartyID: "party-1", WeekNumber: 11, WeekYear: 2025}
	seedDayBucket(t, store, key, time.Now().UTC(), map[string]ledger.FinancialFields{
		"2025-03-10": payment(100),
	})

	req := ledger.AnnotationRequest{
		PartyID: "party-1", Color: ledger.AnnotationGreen,
		Shape: ledger.ShapeDay, Date: mustDay(t, "2025-03-10"),
	}

	saved, err := svc.Set(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, ledger.AnnotationGreen, saved)

	saved, err = svc.Set(ctx, req)
	require.NoError(t, err, "repeating the same color must not error")
	assert.Equal(t, ledger.AnnotationGreen, saved)

	b, err := store.FindDay(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, ledger.AnnotationGreen, b.Days["2025-03-10"].Annotation)
}

func TestAnnotation_Day_PrefersNonZeroOverPlaceholder(t *testing.T) {
	// GIVEN: Two buckets hold the same date; the newer one is a zero
	//        placeholder, the older one carries real figures
	// WHEN: The date is annotated
	// THEN: The real entry is colored, the placeholder untouched

	svc, store := newAnnotationService(t)
	ctx := context.Background()

	now := time.Now().UTC()
	newerKey := ledger.WeekKey{PartyID: "party-1", WeekNumber: 12, WeekYear: 2025}
	olderKey := ledger.WeekKey{PartyID: "party-1", WeekNumber: 11, WeekYear: 2025}

	seedDayBucket(t, store, newerKey, now, map[string]ledger.FinancialFields{
		"2025-03-10": {}, // placeholder
	})
	seedDayBucket(t, store, olderKey, now.Add(-time.Hour), map[string]ledger.FinancialFields{
		"2025-03-10": payment(250),
	})

	_, err := svc.Set(ctx, ledger.AnnotationRequest{
		PartyID: "party-1", Color: ledger.AnnotationGreen,
		Shape: ledger.ShapeDay, Date: mustDay(t, "2025-03-10"),
	})
	require.NoError(t, err)

	target, err := store.FindDay(ctx, olderKey)
	require.NoError(t, err)
	assert.Equal(t, ledger.AnnotationGreen, target.Days["2025-03-10"].Annotation)

	placeholder, err := store.FindDay(ctx, newerKey)
	require.NoError(t, err)
	assert.Equal(t, ledger.AnnotationRed, placeholder.Days["2025-03-10"].Annotation)
}

func TestAnnotation_Day_PlaceholderFallbackWhenNoRealEntry(t *testing.T) {
	// GIVEN: Only a zero placeholder exists for the date
	// WHEN: The date is annotated
	// THEN: The placeholder is colored rather than failing

	svc, store := newAnnotationService(t)
	ctx := context.Background()

	key := ledger.WeekKey{PartyID: "party-1", WeekNumber: 11, WeekYear: 2025}
	seedDayBucket(t, store, key, time.Now().UTC(), map[string]ledger.FinancialFields{
		"2025-03-10": {},
	})

	_, err := svc.Set(ctx, ledger.AnnotationRequest{
		PartyID: "party-1", Color: ledger.AnnotationGreen,
		Shape: ledger.ShapeDay, Date: mustDay(t, "2025-03-10"),
	})
	require.NoError(t, err)

	b, err := store.FindDay(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, ledger.AnnotationGreen, b.Days["2025-03-10"].Annotation)
}

func TestAnnotation_Day_NotFoundListsCandidates(t *testing.T) {
	// GIVEN: The party has entries, but none for the target date
	// WHEN: The missing date is annotated
	// THEN: EntryNotFoundError names the dates that were scanned

	svc, store := newAnnotationService(t)

	key := ledger.WeekKey{PartyID: "party-1", WeekNumber: 11, WeekYear: 2025}
	seedDayBucket(t, store, key, time.Now().UTC(), map[string]ledger.FinancialFields{
		"2025-03-10": payment(100),
		"2025-03-11": payment(200),
	})

	_, err := svc.Set(context.Background(), ledger.AnnotationRequest{
		PartyID: "party-1", Color: ledger.AnnotationGreen,
		Shape: ledger.ShapeDay, Date: mustDay(t, "2025-03-14"),
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	var nf *ledger.EntryNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.ElementsMatch(t, []string{"2025-03-10", "2025-03-11"}, nf.Candidates)
}

// =============================================================================
// RANGE ENTRY TARGETING
// =============================================================================

func TestAnnotation_Range_ExactPairWithRealFigures(t *testing.T) {
	svc, store := newAnnotationService(t)
	ctx := context.Background()

	key := ledger.WeekKey{PartyID: "party-1", WeekNumber: 11, WeekYear: 2025}
	start := *mustDay(t, "2025-03-10")
	end := *mustDay(t, "2025-03-12")
	seedRangeBucket(t, store, key, time.Now().UTC(), []ledger.RangeEntry{
		{Start: start, End: end, Fields: payment(400), Annotation: ledger.AnnotationRed},
	})

	saved, err := svc.Set(ctx, ledger.AnnotationRequest{
		PartyID: "party-1", Color: ledger.AnnotationGreen,
		Shape: ledger.ShapeRange, Start: &start, End: &end,
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.AnnotationGreen, saved)

	b, err := store.FindRange(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, ledger.AnnotationGreen, b.Ranges[0].Annotation)
}

func TestAnnotation_Range_ZeroPlaceholderNeverMatches(t *testing.T) {
	// GIVEN: The exact (start, end) pair exists but holds all-zero figures
	// WHEN: The pair is annotated
	// THEN: ErrNotFound with the scanned ranges as candidates

	svc, store := newAnnotationService(t)

	key := ledger.WeekKey{PartyID: "party-1", WeekNumber: 11, WeekYear: 2025}
	start := *mustDay(t, "2025-03-10")
	end := *mustDay(t, "2025-03-12")
	seedRangeBucket(t, store, key, time.Now().UTC(), []ledger.RangeEntry{
		{Start: start, End: end, Annotation: ledger.AnnotationRed},
	})

	_, err := svc.Set(context.Background(), ledger.AnnotationRequest{
		PartyID: "party-1", Color: ledger.AnnotationGreen,
		Shape: ledger.ShapeRange, Start: &start, End: &end,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	var nf *ledger.EntryNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Contains(t, nf.Candidates, "2025-03-10..2025-03-12")
}

func TestAnnotation_Range_PartialOverlapDoesNotMatch(t *testing.T) {
	// GIVEN: A stored range 03-10..03-12
	// WHEN: 03-10..03-11 is annotated (overlap but not exact)
	// THEN: ErrNotFound

	svc, store := newAnnotationService(t)

	key := ledger.WeekKey{PartyID: "party-1", WeekNumber: 11, WeekYear: 2025}
	seedRangeBucket(t, store, key, time.Now().UTC(), []ledger.RangeEntry{
		{Start: *mustDay(t, "2025-03-10"), End: *mustDay(t, "2025-03-12"), Fields: payment(100)},
	})

	_, err := svc.Set(context.Background(), ledger.AnnotationRequest{
		PartyID: "party-1", Color: ledger.AnnotationGreen,
		Shape: ledger.ShapeRange, Start: mustDay(t, "2025-03-10"), End: mustDay(t, "2025-03-11"),
	})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// PARTY TOTAL TARGETING
// =============================================================================

func TestAnnotation_PartyTotal_TargetsMostRecentBucket(t *testing.T) {
	// GIVEN: Two day buckets for the party with different creation times
	// WHEN: The party total is annotated
	// THEN: Only the most recently created bucket is recolored

	svc, store := newAnnotationService(t)
	ctx := context.Background()

	now := time.Now().UTC()
	newerKey := ledger.WeekKey{PartyID: "party-1", WeekNumber: 12, WeekYear: 2025}
	olderKey := ledger.WeekKey{PartyID: "party-1", WeekNumber: 11, WeekYear: 2025}
	seedDayBucket(t, store, newerKey, now, map[string]ledger.FinancialFields{"2025-03-17": payment(10)})
	seedDayBucket(t, store, olderKey, now.Add(-time.Hour), map[string]ledger.FinancialFields{"2025-03-10": payment(10)})

	_, err := svc.Set(ctx, ledger.AnnotationRequest{
		PartyID: "party-1", Color: ledger.AnnotationGreen,
		PartyTotal: true, Shape: ledger.ShapeDay,
	})
	require.NoError(t, err)

	newer, err := store.FindDay(ctx, newerKey)
	require.NoError(t, err)
	assert.Equal(t, ledger.AnnotationGreen, newer.TotalAnnotation)

	older, err := store.FindDay(ctx, olderKey)
	require.NoError(t, err)
	assert.Equal(t, ledger.AnnotationRed, older.TotalAnnotation)
}

func TestAnnotation_PartyTotal_NoBucketIsNotFound(t *testing.T) {
	svc, _ := newAnnotationService(t)

	_, err := svc.Set(context.Background(), ledger.AnnotationRequest{
		PartyID: "ghost", Color: ledger.AnnotationGreen,
		PartyTotal: true, Shape: ledger.ShapeRange,
	})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestAnnotation_InvalidRequests(t *testing.T) {
	svc, _ := newAnnotationService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  ledger.AnnotationRequest
	}{
		{"missing party", ledger.AnnotationRequest{Color: ledger.AnnotationRed, Shape: ledger.ShapeDay, Date: mustDay(t, "2025-03-10")}},
		{"bad color", ledger.AnnotationRequest{PartyID: "p", Color: "blue", Shape: ledger.ShapeDay, Date: mustDay(t, "2025-03-10")}},
		{"bad shape", ledger.AnnotationRequest{PartyID: "p", Color: ledger.AnnotationRed, Shape: "weekly"}},
		{"day without date", ledger.AnnotationRequest{PartyID: "p", Color: ledger.AnnotationRed, Shape: ledger.ShapeDay}},
		{"range without bounds", ledger.AnnotationRequest{PartyID: "p", Color: ledger.AnnotationRed, Shape: ledger.ShapeRange}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Set(ctx, tc.req)
			assert.ErrorIs(t, err, ledger.ErrInvalidInput)
		})
	}
}
