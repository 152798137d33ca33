package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/flowydb/flowydb/internal/errors"
	"github.com/flowydb/flowydb/internal/records"
	"github.com/flowydb/flowydb/internal/schema"
	"github.com/flowydb/flowydb/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "flowy.db"), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func chatRow(id string) Row {
	return Row{
		"chat_id":    id,
		"created_at": int64(1738713600),
		"metadata":   `{"title":"hello"}`,
		"is_sync":    true,
		"summary":    "",
	}
}

func TestOpen_CreatesEveryTable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range schema.Default().TableNames() {
		n, err := s.Count(ctx, name)
		require.NoError(t, err, name)
		assert.Zero(t, n, name)
	}
	require.NoError(t, s.VerifySchema(ctx))
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "flowy.db")

	s, err := Open(ctx, path, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, schema.TableChat, chatRow("c1"), ConflictReject))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, Options{})
	require.NoError(t, err)
	defer s.Close()
	row, err := s.Get(ctx, schema.TableChat, Row{"chat_id": "c1"})
	require.NoError(t, err)
	assert.Equal(t, "c1", row["chat_id"])
}

func TestOpen_PathWithURIMetacharacters(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a#b.db", "q?x.db", "50%41.db", "sp ace.db"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			s, err := Open(context.Background(), path, Options{})
			require.NoError(t, err)
			require.NoError(t, s.Insert(context.Background(), schema.TableChat, chatRow("c1"), ConflictReject))
			require.NoError(t, s.Close())

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.True(t, info.Size() > 0)
		})
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		switch filepath.Ext(e.Name()) {
		case ".db-wal", ".db-shm", ".db-journal":
		default:
			names = append(names, e.Name())
		}
	}
	assert.ElementsMatch(t, []string{"a#b.db", "q?x.db", "50%41.db", "sp ace.db"}, names)
}

func TestInsertGet_NullableColumnAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, schema.TableChat, chatRow("c1"), ConflictReject))

	row, err := s.Get(ctx, schema.TableChat, Row{"chat_id": "c1"})
	require.NoError(t, err)
	assert.Equal(t, Row{
		"chat_id":    "c1",
		"created_at": int64(1738713600),
		"metadata":   `{"title":"hello"}`,
		"is_sync":    true,
		"summary":    "",
	}, row)
	_, present := row["rag_ids"]
	assert.False(t, present)
}

func TestInsert_RejectsMissingNonNullable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row := chatRow("c1")
	delete(row, "metadata")
	err := s.Insert(ctx, schema.TableChat, row, ConflictReject)
	require.Error(t, err)
	assert.Equal(t, ferrors.CodeMissingColumn, ferrors.GetCode(err))

	row = chatRow("c1")
	row["summary"] = nil
	err = s.Insert(ctx, schema.TableChat, row, ConflictReject)
	assert.Equal(t, ferrors.CodeMissingColumn, ferrors.GetCode(err))

	n, err := s.Count(ctx, schema.TableChat)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInsert_RejectsBadInput(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row := chatRow("c1")
	row["bogus"] = "x"
	assert.Equal(t, ferrors.CodeUnknownColumn, ferrors.GetCode(s.Insert(ctx, schema.TableChat, row, ConflictReject)))

	row = chatRow("c1")
	row["created_at"] = "yesterday"
	assert.Equal(t, ferrors.CodeTypeMismatch, ferrors.GetCode(s.Insert(ctx, schema.TableChat, row, ConflictReject)))

	err := s.Insert(ctx, schema.TableLocalAIModel, Row{"name": "m", "model_type": 70000}, ConflictReject)
	assert.Equal(t, ferrors.CodeTypeMismatch, ferrors.GetCode(err))

	assert.Equal(t, ferrors.CodeUnknownTable, ferrors.GetCode(s.Insert(ctx, "nope", Row{}, ConflictReject)))
}

func TestInsert_ConflictPolicies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	part := Row{"upload_id": "u1", "e_tag": "etag-a", "part_num": int32(1)}
	require.NoError(t, s.Insert(ctx, schema.TableUploadFilePart, part, ConflictReject))

	dup := Row{"upload_id": "u1", "e_tag": "etag-a", "part_num": int32(2)}
	err := s.Insert(ctx, schema.TableUploadFilePart, dup, ConflictReject)
	require.Error(t, err)
	assert.Equal(t, ferrors.CodeDuplicateKey, ferrors.GetCode(err))
	assert.False(t, ferrors.IsRetryable(err))

	got, err := s.Get(ctx, schema.TableUploadFilePart, Row{"upload_id": "u1", "e_tag": "etag-a"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), got["part_num"])

	require.NoError(t, s.Insert(ctx, schema.TableUploadFilePart, dup, ConflictReplace))
	got, err = s.Get(ctx, schema.TableUploadFilePart, Row{"upload_id": "u1", "e_tag": "etag-a"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), got["part_num"])

	// same upload, different etag is a different key
	other := Row{"upload_id": "u1", "e_tag": "etag-b", "part_num": int32(2)}
	require.NoError(t, s.Insert(ctx, schema.TableUploadFilePart, other, ConflictReject))
	n, _ := s.Count(ctx, schema.TableUploadFilePart)
	assert.Equal(t, int64(2), n)
}

func TestInsert_ReplaceClearsOmittedNullable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row := chatRow("c1")
	row["rag_ids"] = "a,b"
	require.NoError(t, s.Insert(ctx, schema.TableChat, row, ConflictReject))
	require.NoError(t, s.Insert(ctx, schema.TableChat, chatRow("c1"), ConflictReplace))

	got, err := s.Get(ctx, schema.TableChat, Row{"chat_id": "c1"})
	require.NoError(t, err)
	_, present := got["rag_ids"]
	assert.False(t, present)
}

func TestGet_Errors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, schema.TableChat, Row{"chat_id": "missing"})
	assert.Equal(t, ferrors.CodeRecordNotFound, ferrors.GetCode(err))
	assert.True(t, errors.Is(err, sql.ErrNoRows))

	_, err = s.Get(ctx, schema.TableUploadFilePart, Row{"upload_id": "u1"})
	assert.Equal(t, ferrors.CodeMissingColumn, ferrors.GetCode(err))

	_, err = s.Get(ctx, schema.TableChat, Row{"chat_id": 12})
	assert.Equal(t, ferrors.CodeTypeMismatch, ferrors.GetCode(err))
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, schema.TableChat, chatRow("c1"), ConflictReject))

	ok, err := s.Delete(ctx, schema.TableChat, Row{"chat_id": "c1"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Delete(ctx, schema.TableChat, Row{"chat_id": "c1"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTx_RollbackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Tx(ctx, func(tx *Tx) error {
		if err := tx.Insert(ctx, schema.TableChat, chatRow("c1"), ConflictReject); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := s.Count(ctx, schema.TableChat)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.Tx(ctx, func(tx *Tx) error {
		return InsertRecord(ctx, tx, records.Chat{ChatID: "c2", Metadata: "{}"}, ConflictReject)
	}))
	n, _ = s.Count(ctx, schema.TableChat)
	assert.Equal(t, int64(1), n)
}

func TestTypedRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	role := int32(2)
	joined := int64(1700000000)
	avatar := "https://example.com/a.png"
	updated := time.Date(2025, 3, 4, 5, 6, 7, 890, time.UTC)

	ws := records.UserWorkspace{
		ID: "ws-1", Name: "Team", UID: 42, CreatedAt: 1700000000,
		DatabaseStorageID: "db-1", Icon: "🚀", MemberCount: 3, Role: &role, WorkspaceType: 1,
	}
	member := records.WorkspaceMember{
		Email: "a@example.com", Role: 1, Name: "A", AvatarURL: &avatar, UID: 42,
		WorkspaceID: "ws-1", UpdatedAt: updated, JoinedAt: &joined,
	}
	bare := records.WorkspaceMember{
		Email: "b@example.com", Role: 2, Name: "B", UID: 43, WorkspaceID: "ws-1", UpdatedAt: updated,
	}

	require.NoError(t, InsertRecord(ctx, s, ws, ConflictReject))
	require.NoError(t, InsertRecord(ctx, s, member, ConflictReject))
	require.NoError(t, InsertRecord(ctx, s, &bare, ConflictReject))

	gotWS, err := GetRecord[records.UserWorkspace](ctx, s, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, ws, gotWS)

	gotMember, err := GetRecord[records.WorkspaceMember](ctx, s, "a@example.com", "ws-1")
	require.NoError(t, err)
	assert.Equal(t, member.Email, gotMember.Email)
	assert.True(t, member.UpdatedAt.Equal(gotMember.UpdatedAt))
	require.NotNil(t, gotMember.AvatarURL)
	assert.Equal(t, avatar, *gotMember.AvatarURL)
	require.NotNil(t, gotMember.JoinedAt)
	assert.Equal(t, joined, *gotMember.JoinedAt)

	gotBare, err := GetRecord[records.WorkspaceMember](ctx, s, "b@example.com", "ws-1")
	require.NoError(t, err)
	assert.Nil(t, gotBare.AvatarURL)
	assert.Nil(t, gotBare.JoinedAt)

	_, err = GetRecord[records.WorkspaceMember](ctx, s, "a@example.com")
	assert.Equal(t, ferrors.CodeMissingColumn, ferrors.GetCode(err))

	members, err := ListRecords[records.WorkspaceMember](ctx, s)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "a@example.com", members[0].Email)

	ok, err := DeleteRecord(ctx, s, bare)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTypedRecords_BinaryAndSmallInt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	meta := records.AFCollabMetadata{ObjectID: "o1", UpdatedAt: 9, CollabType: 2}
	require.NoError(t, InsertRecord(ctx, s, meta, ConflictReject))
	got, err := GetRecord[records.AFCollabMetadata](ctx, s, "o1")
	require.NoError(t, err)
	assert.Empty(t, got.PrevSyncStateVector)

	model := records.LocalAIModel{Name: "llama", ModelType: -3}
	require.NoError(t, InsertRecord(ctx, s, model, ConflictReject))
	gotModel, err := GetRecord[records.LocalAIModel](ctx, s, "llama")
	require.NoError(t, err)
	assert.Equal(t, model, gotModel)

	row, err := s.Get(ctx, schema.TableLocalAIModel, Row{"name": "llama"})
	require.NoError(t, err)
	assert.Equal(t, int16(-3), row["model_type"])
}

func TestTypedRecords_PointerTypes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chat := records.Chat{ChatID: "c1", CreatedAt: 10, Metadata: "{}"}
	require.NoError(t, InsertRecord(ctx, s, &chat, ConflictReject))

	got, err := GetRecord[*records.Chat](ctx, s, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, chat, *got)

	_, err = GetRecord[*records.Chat](ctx, s, "missing")
	assert.Equal(t, ferrors.CodeRecordNotFound, ferrors.GetCode(err))

	list, err := ListRecords[*records.Chat](ctx, s)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, chat, *list[0])

	_, err = GetRecord[records.Record](ctx, s, "c1")
	assert.Equal(t, ferrors.CodeUnknownTable, ferrors.GetCode(err))
}

func TestGet_RejectsOutOfRangeStoredValues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// SQLite does not enforce declared integer widths
	_, err := s.DB().ExecContext(ctx, `INSERT INTO "local_ai_model_table" ("name", "model_type") VALUES (?, ?)`, "wide", 70000)
	require.NoError(t, err)

	_, err = s.Get(ctx, schema.TableLocalAIModel, Row{"name": "wide"})
	require.Error(t, err)
	assert.Equal(t, ferrors.CodeTypeMismatch, ferrors.GetCode(err))

	_, err = GetRecord[records.LocalAIModel](ctx, s, "wide")
	assert.Error(t, err)
}

func TestVerifySchema_DetectsDrift(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "drift.db")

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = raw.Exec(`CREATE TABLE "chat_table" ("chat_id" TEXT NOT NULL, "created_at" INTEGER, PRIMARY KEY ("chat_id"))`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	s, err := Open(ctx, path, Options{})
	require.NoError(t, err)
	defer s.Close()

	err = s.VerifySchema(ctx)
	require.Error(t, err)
	assert.Equal(t, ferrors.CodeSchemaDrift, ferrors.GetCode(err))
	assert.Contains(t, err.Error(), "chat_table: 2 columns, declared 6")
	assert.Contains(t, err.Error(), "chat_table.created_at: type INTEGER, declared BIGINT")
}

func TestCompareTableInfo_Missing(t *testing.T) {
	tbl, _ := schema.Default().Table(schema.TableChat)
	assert.Equal(t, []string{"chat_table: table missing"}, compareTableInfo(tbl, nil))
}

func TestParseConflictPolicy(t *testing.T) {
	p, err := ParseConflictPolicy("replace")
	require.NoError(t, err)
	assert.Equal(t, ConflictReplace, p)
	assert.Equal(t, "replace", p.String())

	p, err = ParseConflictPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ConflictReject, p)

	_, err = ParseConflictPolicy("ignore")
	assert.Error(t, err)
}

func TestValidateRow_ReportsAllMissing(t *testing.T) {
	tbl := types.TableDef{
		Name: "t",
		Columns: []types.ColumnDef{
			{Name: "a", Type: types.TypeText},
			{Name: "b", Type: types.TypeBigInt},
			{Name: "c", Type: types.TypeBool, Nullable: true},
		},
		PrimaryKey: []string{"a"},
	}
	err := ValidateRow(tbl, Row{})
	require.Error(t, err)
	var fe *ferrors.FlowyError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, []string{"a", "b"}, fe.Details["columns"])

	var nilPtr *int64
	assert.NoError(t, ValidateRow(tbl, Row{"a": "x", "b": int64(1), "c": nilPtr}))
}
