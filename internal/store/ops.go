package store

import (
	"context"
	"fmt"
	"strings"

	ferrors "github.com/flowydb/flowydb/internal/errors"
	"github.com/flowydb/flowydb/internal/schema"
	"github.com/flowydb/flowydb/pkg/types"
)

func (h handle) table(name string) (types.TableDef, error) {
	t, ok := h.reg.Table(name)
	if !ok {
		return types.TableDef{}, ferrors.NewValidationError(ferrors.CodeUnknownTable,
			fmt.Sprintf("table %q is not declared", name))
	}
	return t, nil
}

// Insert writes row into table. Every column is written; columns absent from
// row are stored as NULL, which is only allowed for nullable columns.
func (h handle) Insert(ctx context.Context, table string, row Row, policy ConflictPolicy) error {
	t, err := h.table(table)
	if err != nil {
		return err
	}
	if err := ValidateRow(t, row); err != nil {
		return err
	}

	args := make([]interface{}, len(t.Columns))
	for i, c := range t.Columns {
		args[i] = bindValue(c, row[c.Name])
	}

	query := insertSQL(t, policy)
	if _, err := h.ext.ExecContext(ctx, query, args...); err != nil {
		return mapError(fmt.Sprintf("insert into %s", table), err)
	}
	return nil
}

func insertSQL(t types.TableDef, policy ConflictPolicy) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.Columns)), ", ")

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES (%s)",
		schema.QuoteIdent(t.Name), schema.QuoteIdents(t.ColumnNames()), placeholders)

	if policy == ConflictReplace {
		var sets []string
		for _, c := range t.Columns {
			if t.IsPrimaryKey(c.Name) {
				continue
			}
			q := schema.QuoteIdent(c.Name)
			sets = append(sets, q+" = excluded."+q)
		}
		fmt.Fprintf(&sb, " ON CONFLICT (%s)", schema.QuoteIdents(t.PrimaryKey))
		if len(sets) == 0 {
			sb.WriteString(" DO NOTHING")
		} else {
			sb.WriteString(" DO UPDATE SET ")
			sb.WriteString(strings.Join(sets, ", "))
		}
	}
	return sb.String()
}

// Get loads the row of table identified by key, which must hold every
// primary key column. Nullable columns stored as NULL are absent from the
// returned row.
func (h handle) Get(ctx context.Context, table string, key Row) (Row, error) {
	t, err := h.table(table)
	if err != nil {
		return nil, err
	}
	if err := validateKey(t, key); err != nil {
		return nil, err
	}

	where, args := keyClause(t, key)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		schema.QuoteIdents(t.ColumnNames()), schema.QuoteIdent(t.Name), where)

	raw := make(map[string]interface{}, len(t.Columns))
	if err := h.ext.QueryRowxContext(ctx, query, args...).MapScan(raw); err != nil {
		return nil, mapError(fmt.Sprintf("get from %s", table), err)
	}

	return decodeRow(t.Columns, raw)
}

func decodeRow(cols []types.ColumnDef, raw map[string]interface{}) (Row, error) {
	row := make(Row, len(cols))
	for _, c := range cols {
		v, err := scanValue(c, raw[c.Name])
		if err != nil {
			return nil, err
		}
		if v != nil {
			row[c.Name] = v
		}
	}
	return row, nil
}

// Delete removes the row identified by key and reports whether it existed.
func (h handle) Delete(ctx context.Context, table string, key Row) (bool, error) {
	t, err := h.table(table)
	if err != nil {
		return false, err
	}
	if err := validateKey(t, key); err != nil {
		return false, err
	}

	where, args := keyClause(t, key)
	res, err := h.ext.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s", schema.QuoteIdent(t.Name), where), args...)
	if err != nil {
		return false, mapError(fmt.Sprintf("delete from %s", table), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapError(fmt.Sprintf("delete from %s", table), err)
	}
	return n > 0, nil
}

// Count returns the number of rows in table.
func (h handle) Count(ctx context.Context, table string) (int64, error) {
	t, err := h.table(table)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := h.ext.QueryRowxContext(ctx,
		"SELECT COUNT(*) FROM "+schema.QuoteIdent(t.Name)).Scan(&n); err != nil {
		return 0, mapError(fmt.Sprintf("count %s", table), err)
	}
	return n, nil
}

func keyClause(t types.TableDef, key Row) (string, []interface{}) {
	conds := make([]string, len(t.PrimaryKey))
	args := make([]interface{}, len(t.PrimaryKey))
	for i, k := range t.PrimaryKey {
		c, _ := t.Column(k)
		conds[i] = schema.QuoteIdent(k) + " = ?"
		args[i] = bindValue(c, key[k])
	}
	return strings.Join(conds, " AND "), args
}
