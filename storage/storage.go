// Package storage defines the persistence contract for machine instances and
// provides the in-memory reference adapter.
//
// The engine requires nothing of an adapter beyond Load/Save/Delete keyed by
// instance id - no transactionality, no locking. Adapters must be safe for
// concurrent use across distinct instance ids. Expiry policies (a wizard's
// expires_at, for example) belong to individual adapters, never to the
// engine: an expired record simply loads as absent.
package storage

import (
	"context"
	"time"
)

// Meta is the bookkeeping persisted alongside every state.
type Meta struct {
	// StateKey is the machine's key for the persisted state. Stored
	// denormalized so tooling can inspect instances without decoding
	// state payloads.
	StateKey string

	// CatalogVersion is the catalog's declared version at save time.
	CatalogVersion string

	// UpdatedAt is the wall-clock time of the save.
	UpdatedAt time.Time
}

// Record is a persisted (state, meta) pair.
type Record[S any] struct {
	State S
	Meta  Meta
}

// Adapter is the persistence contract the engine dispatches against.
//
// Load returns (nil, nil) when no record exists for the id - absence is not
// an error. Save overwrites any existing record.
type Adapter[S any] interface {
	Load(ctx context.Context, instanceID string) (*Record[S], error)
	Save(ctx context.Context, instanceID string, state S, meta Meta) error
	Delete(ctx context.Context, instanceID string) error
}
