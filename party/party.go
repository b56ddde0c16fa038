/*
Package party is the party directory: the registry of ledger counterparties.

The ledger core only consumes the narrow resolve view (ledger.PartyResolver);
the CRUD surface exists for administration. Parties are deactivated, never
deleted, because ledger buckets reference them by ID forever.
*/
package party

import (
	"context"
	"time"
)

// Type classifies how a party's payments are recorded.
type Type string

const (
	TypeDaily    Type = "daily"    // per-day entries (DayBucket shape)
	TypeMultiday Type = "multiday" // multi-day range entries (RangeBucket shape)
)

// Valid reports whether the type is one of the two known kinds.
func (t Type) Valid() bool {
	return t == TypeDaily || t == TypeMultiday
}

// Party is one counterparty record.
type Party struct {
	ID        string
	Name      string
	Code      string
	Type      Type
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Type       Type
	ActiveOnly bool
}

// Store persists party records.
type Store interface {
	CreateParty(ctx context.Context, p Party) error
	GetParty(ctx context.Context, id string) (*Party, error)
	ListParties(ctx context.Context, f Filter) ([]Party, error)
	UpdateParty(ctx context.Context, p Party) error
	// DeactivateParty flags a party inactive; its ledger history stays.
	DeactivateParty(ctx context.Context, id string) error
}
