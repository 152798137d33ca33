package migration

import (
	"context"

	"github.com/flowydb/flowydb/internal/records"
	"github.com/flowydb/flowydb/internal/schema"
	"github.com/flowydb/flowydb/internal/store"
)

// Builtin returns the migrations shipped with flowydb, in application order.
func Builtin() []Migration {
	return []Migration{
		{Name: "seed_workspace_settings", Run: seedWorkspaceSettings},
	}
}

// seedWorkspaceSettings gives every workspace without settings a default
// settings row with search indexing enabled and no AI model chosen.
func seedWorkspaceSettings(ctx context.Context, tx *store.Tx) error {
	ws := store.Col(schema.TableUserWorkspace, "id")
	setting := store.Col(schema.TableWorkspaceSetting, "id")

	rows, err := tx.SelectRows(ctx, store.Query{
		From:    schema.TableUserWorkspace,
		Columns: []store.ColumnRef{ws},
		Joins: []store.Join{{
			Table: schema.TableWorkspaceSetting,
			Left:  true,
			On:    []store.On{{Left: ws, Right: setting}},
		}},
		Where:   []store.Cond{{Column: setting, Op: store.OpIsNull}},
		OrderBy: []store.Order{{Column: ws}},
	})
	if err != nil {
		return err
	}

	for _, row := range rows {
		rec := records.WorkspaceSetting{ID: row["id"].(string)}
		if err := store.InsertRecord(ctx, tx, rec, store.ConflictReject); err != nil {
			return err
		}
	}
	return nil
}
