package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	ferrors "github.com/flowydb/flowydb/internal/errors"
	"github.com/flowydb/flowydb/internal/schema"
	"github.com/flowydb/flowydb/pkg/types"
)

type tableInfoRow struct {
	CID     int            `db:"cid"`
	Name    string         `db:"name"`
	Type    string         `db:"type"`
	NotNull int            `db:"notnull"`
	Default sql.NullString `db:"dflt_value"`
	PK      int            `db:"pk"`
}

// VerifySchema compares the live database layout with the registry: every
// declared table must exist with the declared column order, SQL types,
// NOT NULL flags and primary key positions. Tables the registry does not
// declare are ignored.
func (s *Store) VerifySchema(ctx context.Context) error {
	var drift []string

	for _, t := range s.reg.Tables() {
		var info []tableInfoRow
		if err := s.db.SelectContext(ctx, &info,
			"PRAGMA table_info("+schema.QuoteIdent(t.Name)+")"); err != nil {
			return mapError("table_info "+t.Name, err)
		}
		drift = append(drift, compareTableInfo(t, info)...)
	}

	if len(drift) > 0 {
		s.log.Warn("schema drift detected", zap.Strings("mismatches", drift))
		return ferrors.NewSchemaError(ferrors.CodeSchemaDrift,
			fmt.Sprintf("%d mismatches: %s", len(drift), strings.Join(drift, "; "))).
			WithDetails(map[string]interface{}{"mismatches": drift})
	}
	return nil
}

func compareTableInfo(t types.TableDef, info []tableInfoRow) []string {
	if len(info) == 0 {
		return []string{t.Name + ": table missing"}
	}

	var out []string
	if len(info) != len(t.Columns) {
		out = append(out, fmt.Sprintf("%s: %d columns, declared %d", t.Name, len(info), len(t.Columns)))
	}

	for i, c := range t.Columns {
		if i >= len(info) {
			out = append(out, fmt.Sprintf("%s.%s: column missing", t.Name, c.Name))
			continue
		}
		got := info[i]
		if got.Name != c.Name {
			out = append(out, fmt.Sprintf("%s: column %d is %q, declared %q", t.Name, i, got.Name, c.Name))
			continue
		}
		if !strings.EqualFold(got.Type, c.Type.SQLType()) {
			out = append(out, fmt.Sprintf("%s.%s: type %s, declared %s", t.Name, c.Name, got.Type, c.Type.SQLType()))
		}
		if (got.NotNull != 0) == c.Nullable {
			out = append(out, fmt.Sprintf("%s.%s: notnull=%d, declared nullable=%v", t.Name, c.Name, got.NotNull, c.Nullable))
		}
		if got.PK != t.KeyPosition(c.Name) {
			out = append(out, fmt.Sprintf("%s.%s: key position %d, declared %d", t.Name, c.Name, got.PK, t.KeyPosition(c.Name)))
		}
	}
	return out
}

// Orphans returns the rows of rel.Table whose rel.Column has no matching
// parent row. Each result holds the child's primary key columns and the
// referencing column. References are not enforced on write, so this is the
// only place they are checked.
func (h handle) Orphans(ctx context.Context, rel types.Relation) ([]Row, error) {
	child, err := h.table(rel.Table)
	if err != nil {
		return nil, err
	}

	cols := make([]ColumnRef, 0, len(child.PrimaryKey)+1)
	for _, k := range child.PrimaryKey {
		cols = append(cols, Col(rel.Table, k))
	}
	if !child.IsPrimaryKey(rel.Column) {
		cols = append(cols, Col(rel.Table, rel.Column))
	}

	return h.SelectRows(ctx, Query{
		From:    rel.Table,
		Columns: cols,
		Joins: []Join{{
			Table: rel.ParentTable,
			Left:  true,
			On:    []On{{Left: Col(rel.Table, rel.Column), Right: Col(rel.ParentTable, rel.ParentColumn)}},
		}},
		Where:   []Cond{{Column: Col(rel.ParentTable, rel.ParentColumn), Op: OpIsNull}},
		OrderBy: orderByKey(rel.Table, child.PrimaryKey),
	})
}

// OrphanReport runs Orphans for every declared relation and returns the
// non-empty results keyed by relation.
func (h handle) OrphanReport(ctx context.Context) (map[string][]Row, error) {
	report := make(map[string][]Row)
	for _, rel := range h.reg.Relations() {
		rows, err := h.Orphans(ctx, rel)
		if err != nil {
			return nil, fmt.Errorf("store: orphan check %s: %w", rel, err)
		}
		if len(rows) > 0 {
			report[rel.String()] = rows
		}
	}
	return report, nil
}

func orderByKey(table string, pk []string) []Order {
	out := make([]Order, len(pk))
	for i, k := range pk {
		out[i] = Order{Column: Col(table, k)}
	}
	return out
}
