package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ledger-engine/expense"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/party"
	"github.com/warp/ledger-engine/store/sqlite"
	"github.com/warp/ledger-engine/weekclock"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// Week 11 of 2025: Monday March 10 through Sunday March 16.
var (
	weekStart = time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	weekEnd   = time.Date(2025, time.March, 16, 0, 0, 0, 0, time.UTC)
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func payment(amount int64) ledger.FinancialFields {
	return ledger.FinancialFields{PaymentAmount: decimal.NewFromInt(amount)}
}

func seedDayBucket(t *testing.T, store *sqlite.Store, key ledger.WeekKey, createdAt time.Time, entries map[string]ledger.FinancialFields) {
	t.Helper()
	_, err := store.UpsertDay(context.Background(), key, func(b *ledger.DayBucket) error {
		b.WeekStart, b.WeekEnd = weekStart, weekclock.EndOfDay(weekEnd)
		b.CreatedAt, b.UpdatedAt = createdAt, createdAt
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

func testParty(id, name string) party.Party {
	now := time.Now().UTC()
	return party.Party{
		ID: id, Name: name, Code: "C-" + id, Type: party.TypeDaily,
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
}

// =============================================================================
// DAY BUCKET PERSISTENCE
// =============================================================================

func TestSQLiteStore_DayBucket_Roundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	key := ledger.WeekKey{PartyID: "party-1", WeekNumber: 11, WeekYear: 2025}
	now := time.Now().UTC()

	_, err := store.UpsertDay(ctx, key, func(b *ledger.DayBucket) error {
		b.WeekStart, b.WeekEnd = weekStart, weekclock.EndOfDay(weekEnd)
		b.CreatedAt, b.UpdatedAt = now, now
		b.TotalAnnotation = ledger.AnnotationRed
		b.NetPayable = ledger.NetPayable{Name: "freight", Amount: decimal.RequireFromString("12.50")}
		b.Days["2025-03-10"] = ledger.DayEntry{
			Date: weekStart,
			Fields: ledger.FinancialFields{
				PaymentAmount: decimal.RequireFromString("100.25"),
				Cash:          decimal.NewFromInt(30),
			},
			Annotation: ledger.AnnotationGreen,
		}
		return nil
	})
	require.NoError(t, err)

	got, err := store.FindDay(ctx, key)
	require.NoError(t, err)

	assert.Equal(t, key, got.Key)
	assert.True(t, got.WeekStart.Equal(weekStart))
	assert.Equal(t, "freight", got.NetPayable.Name)
	assert.True(t, got.NetPayable.Amount.Equal(decimal.RequireFromString("12.50")))
	assert.Equal(t, ledger.AnnotationRed, got.TotalAnnotation)
	assert.False(t, got.IsApproved)

	entry := got.Days["2025-03-10"]
	assert.True(t, entry.Fields.PaymentAmount.Equal(decimal.RequireFromString("100.25")))
	assert.True(t, entry.Fields.Cash.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, ledger.AnnotationGreen, entry.Annotation)
	assert.True(t, entry.Date.Equal(weekStart))
}

func TestSQLiteStore_DayBucket_UpsertSeesPriorState(t *testing.T) {
	// GIVEN: A stored bucket with one entry
	// WHEN: A second upsert runs
	// THEN: Its mutator receives the stored state and additions persist

	store := newTestStore(t)
	ctx := context.Background()

	key := ledger.WeekKey{PartyID: "party-1", WeekNumber: 11, WeekYear: 2025}
	seedDayBucket(t, store, key, time.Now().UTC(), map[string]ledger.FinancialFields{
		"2025-03-10": payment(100),
	})

	_, err := store.UpsertDay(ctx, key, func(b *ledger.DayBucket) error {
		require.Len(t, b.Days, 1, "mutator must see the stored entries")
		b.Days["2025-03-11"] = ledger.DayEntry{
			Date: weekStart.AddDate(0, 0, 1), Fields: payment(200), Annotation: ledger.AnnotationRed,
		}
		b.UpdatedAt = time.Now().UTC()
		return nil
	})
	require.NoError(t, err)

	got, err := store.FindDay(ctx, key)
	require.NoError(t, err)
	assert.Len(t, got.Days, 2)
}

func TestSQLiteStore_DayBucket_MutatorErrorAbortsWrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	key := ledger.WeekKey{PartyID: "party-1", WeekNumber: 11, WeekYear: 2025}
	boom := errors.New("boom")

	_, err := store.UpsertDay(ctx, key, func(b *ledger.DayBucket) error { return boom })
	assert.ErrorIs(t, err, boom)

	_, err = store.FindDay(ctx, key)
	assert.ErrorIs(t, err, ledger.ErrNotFound, "nothing may be written when the mutator fails")
}

func TestSQLiteStore_DayBucket_FindMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.FindDay(context.Background(), ledger.WeekKey{PartyID: "ghost", WeekNumber: 1, WeekYear: 2025})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestSQLiteStore_DayBuckets_OverlapQuery(t *testing.T) {
	// GIVEN: Buckets in week 11 and week 20
	// WHEN: A window inside week 11 is queried
	// THEN: Only the week 11 bucket comes back

	store := newTestStore(t)
	ctx := context.Background()

	seedDayBucket(t, store, ledger.WeekKey{PartyID: "party-1", WeekNumber: 11, WeekYear: 2025},
		time.Now().UTC(), map[string]ledger.FinancialFields{"2025-03-10": payment(100)})

	farKey := ledger.WeekKey{PartyID: "party-1", WeekNumber: 20, WeekYear: 2025}
	farStart, farEnd := weekclock.BoundsOf(20, 2025)
	_, err := store.UpsertDay(ctx, farKey, func(b *ledger.DayBucket) error {
		b.WeekStart, b.WeekEnd = farStart, farEnd
		b.CreatedAt, b.UpdatedAt = time.Now().UTC(), time.Now().UTC()
		b.TotalAnnotation = ledger.AnnotationRed
		return nil
	})
	require.NoError(t, err)

	got, err := store.FindDaysOverlapping(ctx, weekStart.AddDate(0, 0, 2), weekStart.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 11, got[0].Key.WeekNumber)
}

func TestSQLiteStore_DayBuckets_ByPartyMostRecentFirst(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	older := ledger.WeekKey{PartyID: "party-1", WeekNumber: 11, WeekYear: 2025}
	newer := ledger.WeekKey{PartyID: "party-1", WeekNumber: 12, WeekYear: 2025}
	other := ledger.WeekKey{PartyID: "party-2", WeekNumber: 11, WeekYear: 2025}

	seedDayBucket(t, store, older, now.Add(-time.Hour), map[string]ledger.FinancialFields{"2025-03-10": payment(1)})
	seedDayBucket(t, store, newer, now, map[string]ledger.FinancialFields{"2025-03-17": payment(2)})
	seedDayBucket(t, store, other, now, map[string]ledger.FinancialFields{"2025-03-10": payment(3)})

	got, err := store.FindDaysByParty(context.Background(), "party-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer, got[0].Key)
	assert.Equal(t, older, got[1].Key)
}

// =============================================================================
// RANGE BUCKET PERSISTENCE
// =============================================================================

func TestSQLiteStore_RangeBucket_Roundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	key := ledger.WeekKey{PartyID: "party-1", WeekNumber: 11, WeekYear: 2025}
	now := time.Now().UTC()

	_, err := store.UpsertRange(ctx, key, func(b *ledger.RangeBucket) error {
		b.WeekStart, b.WeekEnd = weekStart, weekclock.EndOfDay(weekEnd)
		b.CreatedAt, b.UpdatedAt = now, now
		b.TotalAnnotation = ledger.AnnotationRed
		b.Ranges = []ledger.RangeEntry{
			{
				Start: weekStart, End: weekStart.AddDate(0, 0, 2),
				Fields:     ledger.FinancialFields{Bank: decimal.RequireFromString("55.75")},
				Annotation: ledger.AnnotationGreen,
			},
			{
				Start: weekStart.AddDate(0, 0, 4), End: weekEnd,
				Fields:     payment(300),
				Annotation: ledger.AnnotationRed,
			},
		}
		return nil
	})
	require.NoError(t, err)

	got, err := store.FindRange(ctx, key)
	require.NoError(t, err)
	require.Len(t, got.Ranges, 2)
	assert.True(t, got.Ranges[0].Start.Equal(weekStart))
	assert.True(t, got.Ranges[0].Fields.Bank.Equal(decimal.RequireFromString("55.75")))
	assert.Equal(t, ledger.AnnotationGreen, got.Ranges[0].Annotation)
	assert.True(t, got.Ranges[1].End.Equal(weekEnd))
}

// =============================================================================
// SERVICE INTEGRATION
// =============================================================================

func TestSQLiteStore_AnnotationSurvivesMergeRewrite(t *testing.T) {
	// GIVEN: The merge and annotation services run against SQLite
	// WHEN: An entry is annotated green and then its figures are rewritten
	// THEN: The green annotation survives the JSON roundtrip and the rewrite

	store := newTestStore(t)
	ctx := context.Background()

	merge := ledger.NewMergeUpsertService(store, zerolog.Nop())
	ann := ledger.NewAnnotationService(store, zerolog.Nop())

	date := weekStart
	sub := ledger.Submission{PartyID: "party-1", Date: &date, Fields: payment(100)}
	_, err := merge.MergeDays(ctx, ledger.MergeRequest{
		WeekStart: weekStart, WeekEnd: weekEnd, Submissions: []ledger.Submission{sub},
	})
	require.NoError(t, err)

	_, err = ann.Set(ctx, ledger.AnnotationRequest{
		PartyID: "party-1", Color: ledger.AnnotationGreen,
		Shape: ledger.ShapeDay, Date: &date,
	})
	require.NoError(t, err)

	sub.Fields = payment(750)
	buckets, err := merge.MergeDays(ctx, ledger.MergeRequest{
		WeekStart: weekStart, WeekEnd: weekEnd, Submissions: []ledger.Submission{sub},
	})
	require.NoError(t, err)

	entry := buckets[0].Days["2025-03-10"]
	assert.Equal(t, ledger.AnnotationGreen, entry.Annotation)
	assert.True(t, entry.Fields.PaymentAmount.Equal(decimal.NewFromInt(750)))
}

// =============================================================================
// PARTIES
// =============================================================================

func TestSQLiteStore_PartyCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := testParty("p-1", "Acme")
	require.NoError(t, store.CreateParty(ctx, p))

	got, err := store.GetParty(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)
	assert.Equal(t, party.TypeDaily, got.Type)
	assert.True(t, got.IsActive)

	got.Name = "Acme Ltd"
	require.NoError(t, store.UpdateParty(ctx, *got))

	got, err = store.GetParty(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Ltd", got.Name)

	require.NoError(t, store.DeactivateParty(ctx, "p-1"))
	got, err = store.GetParty(ctx, "p-1")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestSQLiteStore_PartyFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	daily := testParty("p-1", "Daily One")
	multi := testParty("p-2", "Multi One")
	multi.Type = party.TypeMultiday
	inactive := testParty("p-3", "Gone")
	inactive.IsActive = false

	for _, p := range []party.Party{daily, multi, inactive} {
		require.NoError(t, store.CreateParty(ctx, p))
	}

	all, err := store.ListParties(ctx, party.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	active, err := store.ListParties(ctx, party.Filter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	multis, err := store.ListParties(ctx, party.Filter{Type: party.TypeMultiday})
	require.NoError(t, err)
	require.Len(t, multis, 1)
	assert.Equal(t, "p-2", multis[0].ID)
}

func TestSQLiteStore_PartyNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetParty(ctx, "ghost")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	err = store.DeactivateParty(ctx, "ghost")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestSQLiteStore_ResolveParties(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateParty(ctx, testParty("p-1", "Acme")))
	require.NoError(t, store.CreateParty(ctx, testParty("p-2", "Blob")))

	meta, err := store.ResolveParties(ctx, []string{"p-1", "p-2", "ghost"})
	require.NoError(t, err)
	assert.Len(t, meta, 2)
	assert.Equal(t, "Acme", meta["p-1"].Name)
	_, ok := meta["ghost"]
	assert.False(t, ok, "unknown IDs are absent, not an error")
}

// =============================================================================
// EXPENSES
// =============================================================================

func TestSQLiteStore_ExpenseLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	rent := expense.Expense{
		ID: "e-1", Name: "Office rent", Amount: decimal.RequireFromString("1200.00"),
		Date: weekStart, Category: expense.CategoryOffice,
		WeekNumber: 11, WeekYear: 2025, CreatedAt: now, UpdatedAt: now,
	}
	tea := expense.Expense{
		ID: "e-2", Name: "Staff tea", Amount: decimal.NewFromInt(40),
		Date: weekStart.AddDate(0, 0, 3), Category: expense.CategoryStaff,
		Remarks: "weekly", WeekNumber: 11, WeekYear: 2025, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.CreateExpense(ctx, rent))
	require.NoError(t, store.CreateExpense(ctx, tea))

	all, err := store.ListExpenses(ctx, expense.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "e-1", all[0].ID, "expenses come back date ascending")
	assert.True(t, all[0].Amount.Equal(decimal.RequireFromString("1200.00")))

	staff, err := store.ListExpenses(ctx, expense.Filter{Category: expense.CategoryStaff})
	require.NoError(t, err)
	require.Len(t, staff, 1)
	assert.Equal(t, "weekly", staff[0].Remarks)

	early, err := store.ListExpenses(ctx, expense.Filter{Start: weekStart, End: weekStart.AddDate(0, 0, 1)})
	require.NoError(t, err)
	require.Len(t, early, 1)
	assert.Equal(t, "e-1", early[0].ID)

	require.NoError(t, store.DeleteExpense(ctx, "e-1"))
	err = store.DeleteExpense(ctx, "e-1")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
