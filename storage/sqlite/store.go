package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/machina-io/machina/storage"
)

// Store is the storage.Adapter for one machine over a shared DB.
//
// Loads are scoped by machine name, so two machines can share a database
// without seeing each other's instances (instance ids are still globally
// unique - the caller owns id allocation).
type Store[S any] struct {
	db             *DB
	machineName    string
	machineVersion string
	ttl            time.Duration
	now            func() time.Time
}

// StoreOption configures a Store.
type StoreOption[S any] func(*Store[S])

// WithTTL makes every save stamp expires_at = updated_at + ttl. Rows past
// their expiry load as absent and are lazily deleted. Zero disables expiry.
func WithTTL[S any](ttl time.Duration) StoreOption[S] {
	return func(s *Store[S]) { s.ttl = ttl }
}

// WithNow overrides the wall clock. Used for expiry tests.
func WithNow[S any](now func() time.Time) StoreOption[S] {
	return func(s *Store[S]) { s.now = now }
}

// NewStore creates an adapter for one machine on an open database.
func NewStore[S any](db *DB, machineName, machineVersion string, opts ...StoreOption[S]) *Store[S] {
	s := &Store[S]{
		db:             db,
		machineName:    machineName,
		machineVersion: machineVersion,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load implements storage.Adapter. Expired rows are deleted and reported as
// absent.
func (s *Store[S]) Load(ctx context.Context, instanceID string) (*storage.Record[S], error) {
	var (
		stateKey       string
		stateJSON      string
		catalogVersion string
		expiresAt      sql.NullInt64
		updatedAt      int64
	)
	err := s.db.db.QueryRowContext(ctx, `
		SELECT state_key, state_json, catalog_version, expires_at, updated_at
		FROM instances
		WHERE instance_id = ? AND machine_name = ?
	`, instanceID, s.machineName).Scan(&stateKey, &stateJSON, &catalogVersion, &expiresAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", instanceID, err)
	}

	if expiresAt.Valid && !s.now().Before(time.UnixMilli(expiresAt.Int64)) {
		// Lazy expiry: the record is gone as far as the engine knows.
		if err := s.Delete(ctx, instanceID); err != nil {
			return nil, fmt.Errorf("load %s: expire: %w", instanceID, err)
		}
		return nil, nil
	}

	state, err := unmarshalState[S](stateJSON)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", instanceID, err)
	}

	return &storage.Record[S]{
		State: state,
		Meta: storage.Meta{
			StateKey:       stateKey,
			CatalogVersion: catalogVersion,
			UpdatedAt:      time.UnixMilli(updatedAt).UTC(),
		},
	}, nil
}

// Save implements storage.Adapter. Upserts by instance id.
func (s *Store[S]) Save(ctx context.Context, instanceID string, state S, meta storage.Meta) error {
	stateJSON, err := marshalState(state)
	if err != nil {
		return fmt.Errorf("save %s: %w", instanceID, err)
	}

	updatedAt := meta.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}

	var expiresAt any // NULL unless a TTL is configured
	if s.ttl > 0 {
		expiresAt = updatedAt.Add(s.ttl).UnixMilli()
	}

	_, err = s.db.db.ExecContext(ctx, `
		INSERT INTO instances
		(instance_id, machine_name, machine_version, catalog_version,
		 state_key, state_json, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(instance_id) DO UPDATE SET
			machine_name    = excluded.machine_name,
			machine_version = excluded.machine_version,
			catalog_version = excluded.catalog_version,
			state_key       = excluded.state_key,
			state_json      = excluded.state_json,
			expires_at      = excluded.expires_at,
			updated_at      = excluded.updated_at
	`,
		instanceID, s.machineName, s.machineVersion, meta.CatalogVersion,
		meta.StateKey, stateJSON, expiresAt, updatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", instanceID, err)
	}
	return nil
}

// Delete implements storage.Adapter. Unknown ids are a no-op.
func (s *Store[S]) Delete(ctx context.Context, instanceID string) error {
	_, err := s.db.db.ExecContext(ctx, `
		DELETE FROM instances
		WHERE instance_id = ? AND machine_name = ?
	`, instanceID, s.machineName)
	if err != nil {
		return fmt.Errorf("delete %s: %w", instanceID, err)
	}
	return nil
}
