// Package store provides an in-memory ledger.Store implementation,
// used by tests and dev mode. Upserts to the same WeekKey are serialized
// by a per-key lock; different keys never block each other.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/weekclock"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	days    map[ledger.WeekKey]*ledger.DayBucket
	ranges  map[ledger.WeekKey]*ledger.RangeBucket
	keysMu  sync.Mutex
	keyLock map[ledger.WeekKey]*sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{
		days:    make(map[ledger.WeekKey]*ledger.DayBucket),
		ranges:  make(map[ledger.WeekKey]*ledger.RangeBucket),
		keyLock: make(map[ledger.WeekKey]*sync.Mutex),
	}
}

// lockKey returns the mutex serializing writers to one WeekKey.
func (m *Memory) lockKey(key ledger.WeekKey) *sync.Mutex {
	m.keysMu.Lock()
	defer m.keysMu.Unlock()
	l, ok := m.keyLock[key]
	if !ok {
		l = &sync.Mutex{}
		m.keyLock[key] = l
	}
	return l
}

// =============================================================================
// DAY BUCKETS
// =============================================================================

func (m *Memory) FindDay(_ context.Context, key ledger.WeekKey) (*ledger.DayBucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.days[key]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return b.Clone(), nil
}

func (m *Memory) FindDaysOverlapping(_ context.Context, start, end time.Time) ([]*ledger.DayBucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ledger.DayBucket
	for _, b := range m.days {
		if weekclock.RangesOverlap(b.WeekStart, b.WeekEnd, start, end) {
			out = append(out, b.Clone())
		}
	}
	sortDayBuckets(out)
	return out, nil
}

func (m *Memory) FindDaysByParty(_ context.Context, partyID string) ([]*ledger.DayBucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ledger.DayBucket
	for _, b := range m.days {
		if b.Key.PartyID == partyID {
			out = append(out, b.Clone())
		}
	}
	sortDayBuckets(out)
	return out, nil
}

func (m *Memory) UpsertDay(_ context.Context, key ledger.WeekKey, mutate ledger.DayMutator) (*ledger.DayBucket, error) {
	l := m.lockKey(key)
	l.Lock()
	defer l.Unlock()

	m.mu.RLock()
	current, ok := m.days[key]
	m.mu.RUnlock()

	var next *ledger.DayBucket
	if ok {
		next = current.Clone()
	} else {
		next = &ledger.DayBucket{Key: key, Days: make(map[string]ledger.DayEntry)}
	}

	if err := mutate(next); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.days[key] = next
	m.mu.Unlock()
	return next.Clone(), nil
}

// =============================================================================
// RANGE BUCKETS
// =============================================================================

func (m *Memory) FindRange(_ context.Context, key ledger.WeekKey) (*ledger.RangeBucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.ranges[key]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return b.Clone(), nil
}

func (m *Memory) FindRangesOverlapping(_ context.Context, start, end time.Time) ([]*ledger.RangeBucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ledger.RangeBucket
	for _, b := range m.ranges {
		if weekclock.RangesOverlap(b.WeekStart, b.WeekEnd, start, end) {
			out = append(out, b.Clone())
		}
	}
	sortRangeBuckets(out)
	return out, nil
}

func (m *Memory) FindRangesByParty(_ context.Context, partyID string) ([]*ledger.RangeBucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ledger.RangeBucket
	for _, b := range m.ranges {
		if b.Key.PartyID == partyID {
			out = append(out, b.Clone())
		}
	}
	sortRangeBuckets(out)
	return out, nil
}

func (m *Memory) UpsertRange(_ context.Context, key ledger.WeekKey, mutate ledger.RangeMutator) (*ledger.RangeBucket, error) {
	l := m.lockKey(key)
	l.Lock()
	defer l.Unlock()

	m.mu.RLock()
	current, ok := m.ranges[key]
	m.mu.RUnlock()

	var next *ledger.RangeBucket
	if ok {
		next = current.Clone()
	} else {
		next = &ledger.RangeBucket{Key: key}
	}

	if err := mutate(next); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.ranges[key] = next
	m.mu.Unlock()
	return next.Clone(), nil
}

// =============================================================================
// ORDERING
// =============================================================================
// Most recently created first; week key descending breaks creation ties so
// party scans are deterministic.

func sortDayBuckets(bs []*ledger.DayBucket) {
	sort.Slice(bs, func(i, j int) bool {
		if !bs[i].CreatedAt.Equal(bs[j].CreatedAt) {
			return bs[i].CreatedAt.After(bs[j].CreatedAt)
		}
		if bs[i].Key.WeekYear != bs[j].Key.WeekYear {
			return bs[i].Key.WeekYear > bs[j].Key.WeekYear
		}
		return bs[i].Key.WeekNumber > bs[j].Key.WeekNumber
	})
}

func sortRangeBuckets(bs []*ledger.RangeBucket) {
	sort.Slice(bs, func(i, j int) bool {
		if !bs[i].CreatedAt.Equal(bs[j].CreatedAt) {
			return bs[i].CreatedAt.After(bs[j].CreatedAt)
		}
		if bs[i].Key.WeekYear != bs[j].Key.WeekYear {
			return bs[i].Key.WeekYear > bs[j].Key.WeekYear
		}
		return bs[i].Key.WeekNumber > bs[j].Key.WeekNumber
	})
}
