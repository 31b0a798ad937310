package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - initial schema (pre-migration)
// 1 - added partial index on instances.expires_at
const currentSchemaVersion = 1

// DB is an open instance database shared by any number of machine stores.
type DB struct {
	db *sql.DB
}

// Open creates or opens an instance database at the given path.
// Applies required pragmas and migrations automatically; safe to call on an
// existing database.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// InstanceRow is the machine-agnostic view of one persisted instance, used
// by tooling that inspects a database without knowing state types.
type InstanceRow struct {
	InstanceID     string     `json:"instance_id"`
	MachineName    string     `json:"machine_name"`
	MachineVersion string     `json:"machine_version"`
	CatalogVersion string     `json:"catalog_version"`
	StateKey       string     `json:"state_key"`
	StateJSON      string     `json:"state_json"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ListInstances returns every persisted instance ordered by instance id.
// Expired rows are included; filtering is the caller's choice when listing.
func (d *DB) ListInstances(ctx context.Context) ([]InstanceRow, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT instance_id, machine_name, machine_version, catalog_version,
		       state_key, state_json, expires_at, updated_at
		FROM instances
		ORDER BY instance_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var out []InstanceRow
	for rows.Next() {
		row, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("list instances: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return out, nil
}

// GetInstance returns the raw row for one instance id, or (nil, nil) if the
// id is unknown.
func (d *DB) GetInstance(ctx context.Context, instanceID string) (*InstanceRow, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT instance_id, machine_name, machine_version, catalog_version,
		       state_key, state_json, expires_at, updated_at
		FROM instances
		WHERE instance_id = ?
	`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("get instance %s: %w", instanceID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get instance %s: %w", instanceID, err)
		}
		return nil, nil
	}
	row, err := scanInstance(rows)
	if err != nil {
		return nil, fmt.Errorf("get instance %s: %w", instanceID, err)
	}
	return &row, nil
}

// DeleteInstance removes one instance row. Unknown ids are a no-op.
func (d *DB) DeleteInstance(ctx context.Context, instanceID string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM instances WHERE instance_id = ?`, instanceID); err != nil {
		return fmt.Errorf("delete instance %s: %w", instanceID, err)
	}
	return nil
}

// PurgeExpired removes every row whose expiry has elapsed, returning the
// number of rows removed. Intended for maintenance tooling; stores also
// delete expired rows lazily on load.
func (d *DB) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx, `
		DELETE FROM instances
		WHERE expires_at IS NOT NULL AND expires_at <= ?
	`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	return n, nil
}

func scanInstance(rows *sql.Rows) (InstanceRow, error) {
	var (
		row       InstanceRow
		expiresAt sql.NullInt64
		updatedAt int64
	)
	if err := rows.Scan(
		&row.InstanceID, &row.MachineName, &row.MachineVersion, &row.CatalogVersion,
		&row.StateKey, &row.StateJSON, &expiresAt, &updatedAt,
	); err != nil {
		return InstanceRow{}, err
	}
	if expiresAt.Valid {
		t := time.UnixMilli(expiresAt.Int64).UTC()
		row.ExpiresAt = &t
	}
	row.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return row, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if absent and runs migrations. Idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return runMigrations(db)
}

// runMigrations applies incremental migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
		version = 1
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 adds the expiry index for databases created before v1.
// New databases get it from schema.sql; IF NOT EXISTS makes this a no-op.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_instances_expires
		ON instances(expires_at) WHERE expires_at IS NOT NULL
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}
