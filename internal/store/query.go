package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	ferrors "github.com/flowydb/flowydb/internal/errors"
	"github.com/flowydb/flowydb/internal/schema"
	"github.com/flowydb/flowydb/pkg/types"
)

// ColumnRef names a column of a table taking part in a query.
type ColumnRef struct {
	Table  string
	Column string
	// Alias is the result column name (default: Column)
	Alias string
}

// Col returns a reference to table.column.
func Col(table, column string) ColumnRef {
	return ColumnRef{Table: table, Column: column}
}

// As returns a copy of the reference with a result alias.
func (c ColumnRef) As(alias string) ColumnRef {
	c.Alias = alias
	return c
}

func (c ColumnRef) outputName() string {
	if c.Alias != "" {
		return c.Alias
	}
	return c.Column
}

func (c ColumnRef) sql() string {
	return schema.QuoteIdent(c.Table) + "." + schema.QuoteIdent(c.Column)
}

// Join adds a table to a query, matched on column equality.
type Join struct {
	Table string
	// On pairs a column of an earlier table with a column of Table
	On []On
	// Left makes this a LEFT JOIN
	Left bool
}

// On is one equality condition of a join.
type On struct {
	Left  ColumnRef
	Right ColumnRef
}

// Operator is a comparison used in a Cond.
type Operator string

const (
	OpEq        Operator = "="
	OpNe        Operator = "!="
	OpLt        Operator = "<"
	OpLe        Operator = "<="
	OpGt        Operator = ">"
	OpGe        Operator = ">="
	OpIsNull    Operator = "IS NULL"
	OpIsNotNull Operator = "IS NOT NULL"
)

// Cond is one WHERE condition. Conditions are combined with AND.
type Cond struct {
	Column ColumnRef
	Op     Operator
	Value  interface{}
}

// Order is one ORDER BY term.
type Order struct {
	Column ColumnRef
	Desc   bool
}

// Query describes a select over one table or several joined tables. A query
// that joins tables only accepts tables on the registry's join allow-list.
type Query struct {
	From    string
	Columns []ColumnRef
	Joins   []Join
	Where   []Cond
	OrderBy []Order
	Limit   int
}

// selected is a result column resolved against the registry.
type selected struct {
	ref ColumnRef
	def types.ColumnDef
}

// Build validates q against reg and returns the SQL and bind arguments.
func (q Query) Build(reg *schema.Registry) (string, []interface{}, error) {
	sqlText, args, _, err := q.build(reg)
	return sqlText, args, err
}

func (q Query) build(reg *schema.Registry) (string, []interface{}, []selected, error) {
	if q.From == "" {
		return "", nil, nil, ferrors.NewQueryError(ferrors.CodeInvalidQuery, "query has no table")
	}

	tables := map[string]types.TableDef{}
	addTable := func(name string) error {
		if _, dup := tables[name]; dup {
			return ferrors.NewQueryError(ferrors.CodeInvalidQuery,
				fmt.Sprintf("table %q appears twice in one query", name))
		}
		t, ok := reg.Table(name)
		if !ok {
			return ferrors.NewValidationError(ferrors.CodeUnknownTable,
				fmt.Sprintf("table %q is not declared", name))
		}
		tables[name] = t
		return nil
	}

	if err := addTable(q.From); err != nil {
		return "", nil, nil, err
	}

	if len(q.Joins) > 0 {
		names := []string{q.From}
		for _, j := range q.Joins {
			names = append(names, j.Table)
		}
		for _, n := range names {
			if !reg.AllowsJoin(n) {
				return "", nil, nil, ferrors.NewQueryError(ferrors.CodeJoinNotAllowed,
					fmt.Sprintf("table %q may not appear in a joined query", n))
			}
		}
	}

	resolve := func(c ColumnRef) (types.ColumnDef, error) {
		t, ok := tables[c.Table]
		if !ok {
			return types.ColumnDef{}, ferrors.NewQueryError(ferrors.CodeInvalidQuery,
				fmt.Sprintf("column %s.%s refers to a table not in the query", c.Table, c.Column))
		}
		def, ok := t.Column(c.Column)
		if !ok {
			return types.ColumnDef{}, ferrors.NewValidationError(ferrors.CodeUnknownColumn,
				fmt.Sprintf("%s has no column %q", c.Table, c.Column))
		}
		return def, nil
	}

	var sb strings.Builder
	var args []interface{}

	// Joins are resolved first so selected columns may reference any table.
	var joinSQL strings.Builder
	for _, j := range q.Joins {
		if err := addTable(j.Table); err != nil {
			return "", nil, nil, err
		}
		if len(j.On) == 0 {
			return "", nil, nil, ferrors.NewQueryError(ferrors.CodeInvalidQuery,
				fmt.Sprintf("join of %q has no condition", j.Table))
		}
		conds := make([]string, len(j.On))
		for i, on := range j.On {
			if _, err := resolve(on.Left); err != nil {
				return "", nil, nil, err
			}
			if _, err := resolve(on.Right); err != nil {
				return "", nil, nil, err
			}
			conds[i] = on.Left.sql() + " = " + on.Right.sql()
		}
		if j.Left {
			joinSQL.WriteString(" LEFT JOIN ")
		} else {
			joinSQL.WriteString(" JOIN ")
		}
		joinSQL.WriteString(schema.QuoteIdent(j.Table))
		joinSQL.WriteString(" ON ")
		joinSQL.WriteString(strings.Join(conds, " AND "))
	}

	cols := q.Columns
	if len(cols) == 0 {
		for _, c := range tables[q.From].Columns {
			cols = append(cols, Col(q.From, c.Name))
		}
	}

	var out []selected
	seen := map[string]bool{}
	parts := make([]string, len(cols))
	for i, c := range cols {
		def, err := resolve(c)
		if err != nil {
			return "", nil, nil, err
		}
		name := c.outputName()
		if seen[name] {
			return "", nil, nil, ferrors.NewQueryError(ferrors.CodeInvalidQuery,
				fmt.Sprintf("result column %q selected twice; use an alias", name))
		}
		seen[name] = true
		parts[i] = c.sql() + " AS " + schema.QuoteIdent(name)
		out = append(out, selected{ref: c, def: def})
	}

	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(parts, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(schema.QuoteIdent(q.From))
	sb.WriteString(joinSQL.String())

	if len(q.Where) > 0 {
		conds := make([]string, len(q.Where))
		for i, w := range q.Where {
			def, err := resolve(w.Column)
			if err != nil {
				return "", nil, nil, err
			}
			switch w.Op {
			case OpIsNull, OpIsNotNull:
				conds[i] = w.Column.sql() + " " + string(w.Op)
			case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
				v := normalizeInput(w.Value)
				if v == nil || !def.Type.Accepts(v) {
					return "", nil, nil, ferrors.NewValidationError(ferrors.CodeTypeMismatch,
						fmt.Sprintf("%s.%s: %T is not a valid %s value", w.Column.Table, w.Column.Column, w.Value, def.Type))
				}
				conds[i] = w.Column.sql() + " " + string(w.Op) + " ?"
				args = append(args, bindValue(def, v))
			default:
				return "", nil, nil, ferrors.NewQueryError(ferrors.CodeInvalidQuery,
					fmt.Sprintf("unsupported operator %q", w.Op))
			}
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}

	if len(q.OrderBy) > 0 {
		terms := make([]string, len(q.OrderBy))
		for i, o := range q.OrderBy {
			if _, err := resolve(o.Column); err != nil {
				return "", nil, nil, err
			}
			terms[i] = o.Column.sql()
			if o.Desc {
				terms[i] += " DESC"
			}
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(terms, ", "))
	}

	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}

	return sb.String(), args, out, nil
}

// Select runs q and scans the result into dest, a pointer to a slice of
// structs with `db` tags matching the result column names.
func (h handle) Select(ctx context.Context, q Query, dest interface{}) error {
	query, args, err := q.Build(h.reg)
	if err != nil {
		return err
	}
	if err := sqlx.SelectContext(ctx, h.ext, dest, query, args...); err != nil {
		return mapError("select from "+q.From, err)
	}
	return nil
}

// SelectRows runs q and returns each result row keyed by result column name.
// Values use the Go type of their source column; NULLs are absent.
func (h handle) SelectRows(ctx context.Context, q Query) ([]Row, error) {
	query, args, cols, err := q.build(h.reg)
	if err != nil {
		return nil, err
	}

	rows, err := h.ext.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("select from "+q.From, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		raw := make(map[string]interface{}, len(cols))
		if err := rows.MapScan(raw); err != nil {
			return nil, mapError("scan "+q.From, err)
		}
		row := make(Row, len(cols))
		for _, c := range cols {
			v, err := scanValue(c.def, raw[c.ref.outputName()])
			if err != nil {
				return nil, err
			}
			if v != nil {
				row[c.ref.outputName()] = v
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("select from "+q.From, err)
	}
	return out, nil
}
