/*
store.go - Persistence interfaces for ledger buckets

PURPOSE:
  Defines the contract between the ledger services and the database. Two
  independent collections, one per bucket shape, each with a uniqueness
  constraint on (party, week number, week year).

UPSERT CONTRACT:
  Upsert atomically fetches-or-creates the bucket for a WeekKey and
  applies the mutator to it. The read-modify-write for a single WeekKey is
  serialized against other writers to the same key; writes to different
  keys never block each other. This is what makes the annotation-
  preserving merge correct under concurrent writers: the bucket state the
  mutator sees cannot be overwritten mid-merge.

  The mutator receives the current bucket, or a fresh zero bucket with
  only Key set when none exists yet. Upsert never reports ErrNotFound.
  Implementations retry optimistic conflicts a bounded number of times and
  surface ErrConflict when the budget is exhausted.

IMPLEMENTATIONS:
  - store/sqlite: production store with a version column
  - ledger/store: in-memory store with per-key locks, for tests/dev
*/
package ledger

import (
	"context"
	"time"
)

// DayMutator rewrites a day bucket in place. Returning an error aborts the
// upsert without persisting anything.
type DayMutator func(*DayBucket) error

// RangeMutator rewrites a range bucket in place.
type RangeMutator func(*RangeBucket) error

// DayStore persists DayBucket records.
type DayStore interface {
	// FindDay returns the bucket for key, or ErrNotFound.
	FindDay(ctx context.Context, key WeekKey) (*DayBucket, error)

	// FindDaysOverlapping returns every bucket whose week intersects
	// [start, end], inclusive on both ends.
	FindDaysOverlapping(ctx context.Context, start, end time.Time) ([]*DayBucket, error)

	// FindDaysByParty returns all buckets for a party, most recently
	// created first.
	FindDaysByParty(ctx context.Context, partyID string) ([]*DayBucket, error)

	// UpsertDay fetches-or-creates the bucket for key and applies mutate,
	// returning the persisted state.
	UpsertDay(ctx context.Context, key WeekKey, mutate DayMutator) (*DayBucket, error)
}

// RangeStore persists RangeBucket records.
type RangeStore interface {
	FindRange(ctx context.Context, key WeekKey) (*RangeBucket, error)
	FindRangesOverlapping(ctx context.Context, start, end time.Time) ([]*RangeBucket, error)
	FindRangesByParty(ctx context.Context, partyID string) ([]*RangeBucket, error)
	UpsertRange(ctx context.Context, key WeekKey, mutate RangeMutator) (*RangeBucket, error)
}

// Store is the full ledger persistence surface.
type Store interface {
	DayStore
	RangeStore
}

// PartyMeta is the display metadata the aggregator resolves per party.
type PartyMeta struct {
	Name string
	Code string
}

// PartyResolver looks up display metadata for a set of parties. The party
// directory is an external collaborator; the ledger only consumes this
// narrow read view of it.
type PartyResolver interface {
	ResolveParties(ctx context.Context, ids []string) (map[string]PartyMeta, error)
}
