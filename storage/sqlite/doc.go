// Package sqlite provides the durable SQLite-backed storage adapter.
//
// One database holds the instances of any number of machines, keyed by
// instance id and scoped by machine name. The database is configured the
// same way for every caller:
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability and performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// State payloads are stored as JSON with HTML escaping disabled and NFC
// normalization applied, so the stored bytes for a given state are stable
// across runs and safe to diff.
//
// Expiry is owned here, not by the engine: a store built WithTTL stamps
// expires_at on every save, and rows past their expiry load as absent and
// are lazily deleted.
package sqlite
