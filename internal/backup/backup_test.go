package backup

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/flowydb/flowydb/internal/errors"
	"github.com/flowydb/flowydb/internal/records"
	"github.com/flowydb/flowydb/internal/storage"
	"github.com/flowydb/flowydb/internal/store"
)

func setup(t *testing.T) (*store.Store, *storage.LocalStorage, *Manager) {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "flowy.db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	objects, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	return s, objects, NewManager(s, objects, Options{Prefix: "backups/", TempDir: t.TempDir()})
}

func TestCreateRestore(t *testing.T) {
	s, objects, m := setup(t)
	ctx := context.Background()

	snapshot := records.CollabSnapshot{
		ID: "s1", ObjectID: "o1", Title: "t", Desc: "d", CollabType: "doc", Timestamp: 7,
		Data: []byte{0, 1, 2, 3},
	}
	require.NoError(t, store.InsertRecord(ctx, s, snapshot, store.ConflictReject))

	b, err := m.Create(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(b.Key, "backups/"))
	assert.True(t, strings.HasSuffix(b.Key, Suffix))
	assert.Positive(t, b.Size)

	exists, err := objects.Exists(ctx, b.Key)
	require.NoError(t, err)
	assert.True(t, exists)

	dest := filepath.Join(t.TempDir(), "restored", "flowy.db")
	require.NoError(t, m.Restore(ctx, b.Key, dest))

	restored, err := store.Open(ctx, dest, store.Options{})
	require.NoError(t, err)
	defer restored.Close()

	got, err := store.GetRecord[records.CollabSnapshot](ctx, restored, "s1")
	require.NoError(t, err)
	assert.Equal(t, snapshot, got)
}

func TestRestore_RefusesExistingTarget(t *testing.T) {
	_, _, m := setup(t)
	ctx := context.Background()

	b, err := m.Create(ctx)
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "taken.db")
	require.NoError(t, os.WriteFile(dest, []byte("x"), 0644))
	err = m.Restore(ctx, b.Key, dest)
	require.Error(t, err)
	assert.Equal(t, ferrors.ErrCategoryBackup, ferrors.GetCategory(err))
}

func TestRestore_MissingObject(t *testing.T) {
	_, _, m := setup(t)
	err := m.Restore(context.Background(), "backups/nope"+Suffix, filepath.Join(t.TempDir(), "x.db"))
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestRestore_RejectsDriftedBackup(t *testing.T) {
	_, objects, m := setup(t)
	ctx := context.Background()

	// a database missing every table but one
	odd := filepath.Join(t.TempDir(), "odd.db")
	raw, err := sql.Open("sqlite3", odd)
	require.NoError(t, err)
	_, err = raw.Exec(`CREATE TABLE "chat_table" ("chat_id" TEXT NOT NULL PRIMARY KEY)`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	compressed := odd + ".sz"
	require.NoError(t, compressFile(odd, compressed))
	key := "backups/20250101T000000Z-0b6f6f36-6b1f-4a4e-9f0a-6a0f1d9f2c11" + Suffix
	require.NoError(t, objects.Upload(ctx, compressed, key))

	dest := filepath.Join(t.TempDir(), "drift.db")
	err = m.Restore(ctx, key, dest)
	require.Error(t, err)
	assert.Equal(t, ferrors.CodeSchemaDrift, ferrors.GetCode(err))
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestListAndPrune(t *testing.T) {
	_, objects, m := setup(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var keys []string
	for i := 0; i < 4; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		m.now = func() time.Time { return at }
		b, err := m.Create(ctx)
		require.NoError(t, err)
		assert.True(t, at.Equal(b.CreatedAt))
		keys = append(keys, b.Key)
	}

	// unrelated objects under the prefix are ignored
	stray := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(stray, []byte("hi"), 0644))
	require.NoError(t, objects.Upload(ctx, stray, "backups/notes.txt"))

	list, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 4)
	for i, b := range list {
		assert.Equal(t, keys[i], b.Key)
	}

	deleted, err := m.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, keys[:3], deleted)

	list, err = m.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, keys[3], list[0].Key)

	deleted, err = m.Prune(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, deleted)

	_, err = m.Prune(ctx, -1)
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	b, ok := ParseKey("backups/20250601T120000Z-0b6f6f36-6b1f-4a4e-9f0a-6a0f1d9f2c11.db.sz")
	require.True(t, ok)
	assert.Equal(t, "0b6f6f36-6b1f-4a4e-9f0a-6a0f1d9f2c11", b.ID)
	assert.True(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Equal(b.CreatedAt))

	for _, key := range []string{
		"backups/notes.txt",
		"backups/20250601T120000Z.db.sz",
		"backups/yesterday-0b6f6f36-6b1f-4a4e-9f0a-6a0f1d9f2c11.db.sz",
		"backups/20250601T120000Z-not-a-uuid.db.sz",
	} {
		_, ok := ParseKey(key)
		assert.False(t, ok, key)
	}
}
