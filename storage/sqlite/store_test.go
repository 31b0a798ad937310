package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machina-io/machina/storage"
	"github.com/machina-io/machina/storage/sqlite"
)

type wizardState struct {
	Step  int    `json:"step"`
	Email string `json:"email,omitempty"`
}

func openTestDB(t *testing.T) *sqlite.DB {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "instances.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStore_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	store := sqlite.NewStore[wizardState](db, "wizard", "1.0")
	ctx := context.Background()

	saved := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	meta := storage.Meta{StateKey: "collecting", CatalogVersion: "2", UpdatedAt: saved}
	require.NoError(t, store.Save(ctx, "w-1", wizardState{Step: 3, Email: "a@b.c"}, meta))

	rec, err := store.Load(ctx, "w-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, wizardState{Step: 3, Email: "a@b.c"}, rec.State)
	assert.Equal(t, "collecting", rec.Meta.StateKey)
	assert.Equal(t, "2", rec.Meta.CatalogVersion)
	assert.True(t, rec.Meta.UpdatedAt.Equal(saved))
}

func TestStore_LoadAbsent(t *testing.T) {
	db := openTestDB(t)
	store := sqlite.NewStore[wizardState](db, "wizard", "1.0")

	rec, err := store.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestStore_Upsert(t *testing.T) {
	db := openTestDB(t)
	store := sqlite.NewStore[wizardState](db, "wizard", "1.0")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "w-1", wizardState{Step: 1}, storage.Meta{StateKey: "a", CatalogVersion: "1"}))
	require.NoError(t, store.Save(ctx, "w-1", wizardState{Step: 2}, storage.Meta{StateKey: "b", CatalogVersion: "1"}))

	rec, err := store.Load(ctx, "w-1")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.State.Step)
	assert.Equal(t, "b", rec.Meta.StateKey)

	rows, err := db.ListInstances(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestStore_Delete(t *testing.T) {
	db := openTestDB(t)
	store := sqlite.NewStore[wizardState](db, "wizard", "1.0")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "w-1", wizardState{}, storage.Meta{StateKey: "a"}))
	require.NoError(t, store.Delete(ctx, "w-1"))

	rec, err := store.Load(ctx, "w-1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, store.Delete(ctx, "w-1"))
}

func TestStore_MachineScoping(t *testing.T) {
	db := openTestDB(t)
	wizard := sqlite.NewStore[wizardState](db, "wizard", "1.0")
	other := sqlite.NewStore[wizardState](db, "review", "1.0")
	ctx := context.Background()

	require.NoError(t, wizard.Save(ctx, "w-1", wizardState{Step: 1}, storage.Meta{StateKey: "a"}))

	// A different machine does not see the wizard's instance.
	rec, err := other.Load(ctx, "w-1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	// Nor can it delete through its own scope.
	require.NoError(t, other.Delete(ctx, "w-1"))
	rec, err = wizard.Load(ctx, "w-1")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestStore_TTLExpiry(t *testing.T) {
	db := openTestDB(t)
	saved := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	current := saved
	store := sqlite.NewStore[wizardState](db, "wizard", "1.0",
		sqlite.WithTTL[wizardState](time.Hour),
		sqlite.WithNow[wizardState](func() time.Time { return current }),
	)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "w-1", wizardState{Step: 1}, storage.Meta{StateKey: "a", UpdatedAt: saved}))

	// Still fresh just before the deadline.
	current = saved.Add(time.Hour - time.Second)
	rec, err := store.Load(ctx, "w-1")
	require.NoError(t, err)
	require.NotNil(t, rec)

	// At the deadline the record loads as absent and the row is gone.
	current = saved.Add(time.Hour)
	rec, err = store.Load(ctx, "w-1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	rows, err := db.ListInstances(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStore_ZeroUpdatedAtFallsBackToNow(t *testing.T) {
	db := openTestDB(t)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := sqlite.NewStore[wizardState](db, "wizard", "1.0",
		sqlite.WithNow[wizardState](func() time.Time { return fixed }),
	)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "w-1", wizardState{}, storage.Meta{StateKey: "a"}))

	rec, err := store.Load(ctx, "w-1")
	require.NoError(t, err)
	assert.True(t, rec.Meta.UpdatedAt.Equal(fixed))
}

func TestDB_ListAndGet(t *testing.T) {
	db := openTestDB(t)
	store := sqlite.NewStore[wizardState](db, "wizard", "1.0")
	ctx := context.Background()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, "w-1", wizardState{Step: 1}, storage.Meta{StateKey: "a", CatalogVersion: "2", UpdatedAt: now}))
	require.NoError(t, store.Save(ctx, "w-2", wizardState{Step: 2}, storage.Meta{StateKey: "b", CatalogVersion: "2", UpdatedAt: now}))

	rows, err := db.ListInstances(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "w-1", rows[0].InstanceID)
	assert.Equal(t, "w-2", rows[1].InstanceID)
	assert.Equal(t, "wizard", rows[0].MachineName)
	assert.Equal(t, "1.0", rows[0].MachineVersion)
	assert.JSONEq(t, `{"step":1}`, rows[0].StateJSON)

	row, err := db.GetInstance(ctx, "w-2")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "b", row.StateKey)
	assert.Nil(t, row.ExpiresAt)

	row, err = db.GetInstance(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestDB_PurgeExpired(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := sqlite.NewStore[wizardState](db, "wizard", "1.0",
		sqlite.WithTTL[wizardState](time.Minute),
	)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "old", wizardState{}, storage.Meta{StateKey: "a", UpdatedAt: now}))
	require.NoError(t, store.Save(ctx, "fresh", wizardState{}, storage.Meta{StateKey: "a", UpdatedAt: now.Add(time.Hour)}))

	n, err := db.PurgeExpired(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := db.ListInstances(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "fresh", rows[0].InstanceID)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instances.db")
	ctx := context.Background()

	db, err := sqlite.Open(path)
	require.NoError(t, err)
	store := sqlite.NewStore[wizardState](db, "wizard", "1.0")
	require.NoError(t, store.Save(ctx, "w-1", wizardState{Step: 7}, storage.Meta{StateKey: "a"}))
	require.NoError(t, db.Close())

	// Reopening applies pragmas and migrations again without data loss.
	db, err = sqlite.Open(path)
	require.NoError(t, err)
	defer db.Close()

	store = sqlite.NewStore[wizardState](db, "wizard", "1.0")
	rec, err := store.Load(ctx, "w-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 7, rec.State.Step)
}
