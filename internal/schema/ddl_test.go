package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTableSQL_CompositeKey(t *testing.T) {
	tbl, ok := Default().Table(TableUploadFilePart)
	require.True(t, ok)

	expected := `CREATE TABLE IF NOT EXISTS "upload_file_part" (
    "upload_id" TEXT NOT NULL,
    "e_tag" TEXT NOT NULL,
    "part_num" INTEGER NOT NULL,
    PRIMARY KEY ("upload_id", "e_tag")
)`
	assert.Equal(t, expected, CreateTableSQL(tbl))
}

func TestCreateTableSQL_NullableAndKeywords(t *testing.T) {
	tbl, _ := Default().Table(TableWorkspaceSharedView)
	ddl := CreateTableSQL(tbl)
	assert.Contains(t, ddl, `"created_at" TIMESTAMP,`)
	assert.Contains(t, ddl, `"uid" BIGINT NOT NULL,`)
	assert.NotContains(t, ddl, "FOREIGN KEY")

	snap, _ := Default().Table(TableCollabSnapshot)
	ddl = CreateTableSQL(snap)
	assert.Contains(t, ddl, `"desc" TEXT NOT NULL`)
	assert.Contains(t, ddl, `"timestamp" BIGINT NOT NULL`)
	assert.Contains(t, ddl, `"data" BLOB NOT NULL`)

	shared, _ := Default().Table(TableWorkspaceSharedUser)
	assert.Contains(t, CreateTableSQL(shared), `"order" INTEGER NOT NULL`)

	model, _ := Default().Table(TableLocalAIModel)
	assert.Contains(t, CreateTableSQL(model), `"model_type" SMALLINT NOT NULL`)
}

func TestAllSchemaSQL(t *testing.T) {
	stmts := AllSchemaSQL(Default())
	require.Len(t, stmts, len(Default().TableNames()))
	for i, name := range Default().TableNames() {
		assert.True(t, strings.HasPrefix(stmts[i], `CREATE TABLE IF NOT EXISTS "`+name+`"`), name)
	}
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"order"`, QuoteIdent("order"))
	assert.Equal(t, `"a""b"`, QuoteIdent(`a"b`))
	assert.Equal(t, `"a", "b"`, QuoteIdents([]string{"a", "b"}))
}
