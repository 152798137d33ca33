package store

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	ferrors "github.com/flowydb/flowydb/internal/errors"
	"github.com/flowydb/flowydb/pkg/types"
)

// Row maps column names to values. A missing column and a nil value both mean
// NULL. Values read back from the database use the Go type of the column:
// string, int64, int32, int16, bool, []byte or time.Time.
type Row map[string]interface{}

// Columns returns the row's column names in lexical order.
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// ValidateRow checks row against the table declaration. It rejects unknown
// columns, absent or nil values for non-nullable columns, and values whose Go
// type cannot hold the column's scalar type.
func ValidateRow(table types.TableDef, row Row) error {
	for name := range row {
		if _, ok := table.Column(name); !ok {
			return ferrors.NewValidationError(ferrors.CodeUnknownColumn,
				fmt.Sprintf("%s has no column %q", table.Name, name))
		}
	}

	var missing []string
	for _, c := range table.Columns {
		v := normalizeInput(row[c.Name])
		if v == nil {
			if !c.Nullable {
				missing = append(missing, c.Name)
			}
			continue
		}
		if !c.Type.Accepts(v) {
			return ferrors.NewValidationError(ferrors.CodeTypeMismatch,
				fmt.Sprintf("%s.%s: %T is not a valid %s value", table.Name, c.Name, v, c.Type)).
				WithDetails(map[string]interface{}{"table": table.Name, "column": c.Name})
		}
	}

	if len(missing) > 0 {
		return ferrors.NewValidationError(ferrors.CodeMissingColumn,
			fmt.Sprintf("%s: non-nullable columns without a value: %s", table.Name, strings.Join(missing, ", "))).
			WithDetails(map[string]interface{}{"table": table.Name, "columns": missing})
	}
	return nil
}

// validateKey checks that key holds exactly the primary key columns of table,
// each with a non-nil value of the right type.
func validateKey(table types.TableDef, key Row) error {
	if len(key) != len(table.PrimaryKey) {
		return ferrors.NewValidationError(ferrors.CodeMissingColumn,
			fmt.Sprintf("%s: key must have columns %v, got %v", table.Name, table.PrimaryKey, key.Columns()))
	}
	for _, k := range table.PrimaryKey {
		v, ok := key[k]
		v = normalizeInput(v)
		if !ok || v == nil {
			return ferrors.NewValidationError(ferrors.CodeMissingColumn,
				fmt.Sprintf("%s: key column %q has no value", table.Name, k))
		}
		c, _ := table.Column(k)
		if !c.Type.Accepts(v) {
			return ferrors.NewValidationError(ferrors.CodeTypeMismatch,
				fmt.Sprintf("%s.%s: %T is not a valid %s value", table.Name, k, v, c.Type))
		}
	}
	return nil
}

// normalizeInput dereferences pointers so typed records with nullable pointer
// fields can be stored through the same path as plain values.
func normalizeInput(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}

// bindValue converts a validated value to what the driver binds for column c.
func bindValue(c types.ColumnDef, v interface{}) interface{} {
	v = normalizeInput(v)
	if v == nil {
		return nil
	}
	switch c.Type {
	case types.TypeBinary:
		// go-sqlite3 binds a nil slice as NULL
		if b, ok := v.([]byte); ok && b == nil {
			return []byte{}
		}
	case types.TypeTimestamp:
		if t, ok := v.(time.Time); ok {
			return t.UTC()
		}
	case types.TypeBigInt, types.TypeInteger, types.TypeSmallInt:
		return toInt64(v)
	}
	return v
}

// scanValue converts a driver value read from column c to the column's Go type.
func scanValue(c types.ColumnDef, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch c.Type {
	case types.TypeText:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
	case types.TypeBigInt:
		if n, ok := v.(int64); ok {
			return n, nil
		}
	case types.TypeInteger:
		if n, ok := v.(int64); ok {
			if !c.Type.Accepts(n) {
				return nil, outOfRange(c, n)
			}
			return int32(n), nil
		}
	case types.TypeSmallInt:
		if n, ok := v.(int64); ok {
			if !c.Type.Accepts(n) {
				return nil, outOfRange(c, n)
			}
			return int16(n), nil
		}
	case types.TypeBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		}
	case types.TypeBinary:
		if b, ok := v.([]byte); ok {
			out := make([]byte, len(b))
			copy(out, b)
			return out, nil
		}
	case types.TypeTimestamp:
		if t, ok := v.(time.Time); ok {
			return t.UTC(), nil
		}
	}
	return nil, ferrors.NewInternalError(
		fmt.Sprintf("column %s: unexpected driver value %T for %s", c.Name, v, c.Type), nil)
}

func outOfRange(c types.ColumnDef, n int64) error {
	return ferrors.NewValidationError(ferrors.CodeTypeMismatch,
		fmt.Sprintf("column %s: stored value %d does not fit %s", c.Name, n, c.Type)).
		WithDetails(map[string]interface{}{"column": c.Name})
}

func toInt64(v interface{}) interface{} {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	}
	return v
}
