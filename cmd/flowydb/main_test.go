package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flowydb/flowydb/internal/app"
	"github.com/flowydb/flowydb/internal/config"
	ferrors "github.com/flowydb/flowydb/internal/errors"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func quiet(t *testing.T) {
	t.Helper()
	prev := newApp
	newApp = func(cfg *config.Config) (*app.App, error) { return app.NewWithLogger(cfg, zap.NewNop()) }
	t.Cleanup(func() { newApp = prev })
}

func TestRun_Schema(t *testing.T) {
	out, err := runCmd(t, "schema")
	require.NoError(t, err)
	assert.Equal(t, 16, strings.Count(out, "CREATE TABLE IF NOT EXISTS"))
	assert.Contains(t, out, `"order" INTEGER NOT NULL`)
}

func TestRun_Tables(t *testing.T) {
	out, err := runCmd(t, "tables")
	require.NoError(t, err)
	assert.Contains(t, out, "upload_file_part")
	assert.Contains(t, out, "upload_id, e_tag")

	out, err = runCmd(t, "tables", "-json")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "workspace_shared_view"`)
}

func TestRun_Usage(t *testing.T) {
	_, err := runCmd(t)
	assert.ErrorIs(t, err, errUsage)

	_, err = runCmd(t, "frobnicate")
	assert.ErrorIs(t, err, errUsage)

	out, err := runCmd(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "flowydb version dev")
}

func TestRun_DatabaseCommands(t *testing.T) {
	quiet(t)
	dir := t.TempDir()
	global := []string{"-data-dir", filepath.Join(dir, "data"), "-env-file", ""}
	with := func(args ...string) []string { return append(append([]string{}, global...), args...) }

	out, err := runCmd(t, with("init")...)
	require.NoError(t, err)
	assert.Contains(t, out, "16 tables")

	out, err = runCmd(t, with("verify", "-orphans")...)
	require.NoError(t, err)
	assert.Contains(t, out, "schema ok")
	assert.Contains(t, out, "no orphaned rows")

	out, err = runCmd(t, with("migrate", "-status")...)
	require.NoError(t, err)
	assert.Contains(t, out, "pending  seed_workspace_settings")

	out, err = runCmd(t, with("migrate")...)
	require.NoError(t, err)
	assert.Contains(t, out, "applied 1 migrations")

	out, err = runCmd(t, with("backup", "-prune")...)
	require.NoError(t, err)
	key := strings.Fields(out)[0]
	assert.True(t, strings.HasPrefix(key, "backups/"))

	out, err = runCmd(t, with("backups")...)
	require.NoError(t, err)
	assert.Contains(t, out, key)

	dest := filepath.Join(dir, "restored.db")
	out, err = runCmd(t, with("restore", key, dest)...)
	require.NoError(t, err)
	assert.Contains(t, out, "restored")

	_, err = runCmd(t, with("restore", key)...)
	assert.ErrorIs(t, err, errUsage)
}

func TestRun_Import(t *testing.T) {
	quiet(t)
	dir := t.TempDir()
	global := []string{"-data-dir", filepath.Join(dir, "data"), "-env-file", ""}
	with := func(args ...string) []string { return append(append([]string{}, global...), args...) }
	writeLines := func(name string, lines ...string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
		return path
	}

	chats := writeLines("chats.jsonl",
		`{"chat_id":"c1","created_at":10,"metadata":"{}","is_sync":false,"summary":""}`,
		``,
		`{"chat_id":"c2","created_at":11,"metadata":"{}","rag_ids":null,"is_sync":true,"summary":"s"}`,
	)

	out, err := runCmd(t, with("import", "chat_table", chats)...)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2 rows into chat_table (reject)")

	_, err = runCmd(t, with("import", "chat_table", chats)...)
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeDuplicateKey))
	assert.Contains(t, err.Error(), "chats.jsonl:1:")

	// the configured policy is the default
	t.Setenv("FLOWYDB_DATABASE_CONFLICT_POLICY", "replace")
	out, err = runCmd(t, with("import", "chat_table", chats)...)
	require.NoError(t, err)
	assert.Contains(t, out, "(replace)")

	_, err = runCmd(t, with("import", "-policy", "reject", "chat_table", chats)...)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeDuplicateKey))

	// a bad line rolls back the rows before it
	mixed := writeLines("mixed.jsonl",
		`{"chat_id":"c3","created_at":12,"metadata":"{}","is_sync":false,"summary":""}`,
		`{"chat_id":"c4","created_at":"yesterday","metadata":"{}","is_sync":false,"summary":""}`,
	)
	_, err = runCmd(t, with("import", "-policy", "reject", "chat_table", mixed)...)
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeTypeMismatch))
	assert.Contains(t, err.Error(), "mixed.jsonl:2:")

	only := writeLines("only.jsonl", `{"chat_id":"c3","created_at":12,"metadata":"{}","is_sync":false,"summary":""}`)
	out, err = runCmd(t, with("import", "-policy", "reject", "chat_table", only)...)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 1 rows")

	_, err = runCmd(t, with("import", "nope_table", chats)...)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeUnknownTable))

	_, err = runCmd(t, with("import", "-policy", "merge", "chat_table", chats)...)
	assert.ErrorIs(t, err, errUsage)

	_, err = runCmd(t, with("import", "chat_table")...)
	assert.ErrorIs(t, err, errUsage)
}
