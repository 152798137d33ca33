package migration

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/flowydb/flowydb/internal/errors"
	"github.com/flowydb/flowydb/internal/records"
	"github.com/flowydb/flowydb/internal/schema"
	"github.com/flowydb/flowydb/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "flowy.db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insertSetting(id string) Migration {
	return Migration{
		Name: "seed_" + id,
		Run: func(ctx context.Context, tx *store.Tx) error {
			return store.InsertRecord(ctx, tx, records.WorkspaceSetting{ID: id, AIModel: "default"}, store.ConflictReject)
		},
	}
}

func TestRunner_AppliesOnce(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	r, err := NewRunner(s, nil, insertSetting("w1"), insertSetting("w2"))
	require.NoError(t, err)
	r.now = func() time.Time { return fixed }

	pending, err := r.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"seed_w1", "seed_w2"}, pending)

	applied, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"seed_w1", "seed_w2"}, applied)

	applied, err = r.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)

	n, err := s.Count(ctx, schema.TableWorkspaceSetting)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	log, err := r.Applied(ctx)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, int32(1), log[0].ID)
	assert.Equal(t, "seed_w1", log[0].MigrationName)
	assert.True(t, fixed.Equal(log[0].ExecutedAt))
	assert.Equal(t, int32(2), log[1].ID)

	pending, err = r.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunner_FailureRollsBack(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	failing := Migration{
		Name: "half_done",
		Run: func(ctx context.Context, tx *store.Tx) error {
			if err := store.InsertRecord(ctx, tx, records.WorkspaceSetting{ID: "w9"}, store.ConflictReject); err != nil {
				return err
			}
			return boom
		},
	}
	r, err := NewRunner(s, nil, insertSetting("w1"), failing, insertSetting("w2"))
	require.NoError(t, err)

	applied, err := r.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, ferrors.ErrCategoryMigration, ferrors.GetCategory(err))
	assert.Equal(t, []string{"seed_w1"}, applied)

	n, _ := s.Count(ctx, schema.TableWorkspaceSetting)
	assert.Equal(t, int64(1), n)
	n, _ = s.Count(ctx, schema.TableUserDataMigrationRecords)
	assert.Equal(t, int64(1), n)
}

func TestRunner_ContinuesAfterExistingLog(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	first, err := NewRunner(s, nil, insertSetting("w1"))
	require.NoError(t, err)
	_, err = first.Run(ctx)
	require.NoError(t, err)

	second, err := NewRunner(s, nil, insertSetting("w1"), insertSetting("w2"))
	require.NoError(t, err)
	applied, err := second.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"seed_w2"}, applied)

	log, err := second.Applied(ctx)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, int32(2), log[1].ID)
}

func TestNewRunner_RejectsBadMigrations(t *testing.T) {
	s := openStore(t)
	noop := func(context.Context, *store.Tx) error { return nil }

	_, err := NewRunner(s, nil, Migration{Run: noop})
	assert.Error(t, err)
	_, err = NewRunner(s, nil, Migration{Name: "a"})
	assert.Error(t, err)
	_, err = NewRunner(s, nil, Migration{Name: "a", Run: noop}, Migration{Name: "a", Run: noop})
	assert.Error(t, err)
}

func TestBuiltin_SeedWorkspaceSettings(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for _, id := range []string{"ws-1", "ws-2"} {
		require.NoError(t, store.InsertRecord(ctx, s, records.UserWorkspace{ID: id, Name: id}, store.ConflictReject))
	}
	custom := records.WorkspaceSetting{ID: "ws-1", DisableSearchIndexing: true, AIModel: "local"}
	require.NoError(t, store.InsertRecord(ctx, s, custom, store.ConflictReject))

	r, err := NewRunner(s, nil, Builtin()...)
	require.NoError(t, err)
	applied, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"seed_workspace_settings"}, applied)

	settings, err := store.ListRecords[records.WorkspaceSetting](ctx, s)
	require.NoError(t, err)
	assert.Equal(t, []records.WorkspaceSetting{custom, {ID: "ws-2"}}, settings)
}
