// Package types provides the core schema description types for flowydb.
package types

import (
	"fmt"
	"math"
	"time"
)

// ColumnType is the scalar type of a column.
type ColumnType string

const (
	TypeText      ColumnType = "text"
	TypeBigInt    ColumnType = "bigint"
	TypeInteger   ColumnType = "integer"
	TypeSmallInt  ColumnType = "smallint"
	TypeBool      ColumnType = "bool"
	TypeBinary    ColumnType = "binary"
	TypeTimestamp ColumnType = "timestamp"
)

// sqlTypes maps each scalar type to its declared SQLite type. The declared
// type name matters: go-sqlite3 uses it to decode BOOLEAN and TIMESTAMP values.
var sqlTypes = map[ColumnType]string{
	TypeText:      "TEXT",
	TypeBigInt:    "BIGINT",
	TypeInteger:   "INTEGER",
	TypeSmallInt:  "SMALLINT",
	TypeBool:      "BOOLEAN",
	TypeBinary:    "BLOB",
	TypeTimestamp: "TIMESTAMP",
}

// Valid reports whether t is a known scalar type.
func (t ColumnType) Valid() bool {
	_, ok := sqlTypes[t]
	return ok
}

// SQLType returns the declared SQLite type for t, or "" if t is unknown.
func (t ColumnType) SQLType() string {
	return sqlTypes[t]
}

// Accepts reports whether v can be stored in a column of type t.
// nil is not accepted here; nullability is checked separately.
func (t ColumnType) Accepts(v interface{}) bool {
	switch t {
	case TypeText:
		_, ok := v.(string)
		return ok
	case TypeBool:
		_, ok := v.(bool)
		return ok
	case TypeBinary:
		_, ok := v.([]byte)
		return ok
	case TypeTimestamp:
		_, ok := v.(time.Time)
		return ok
	case TypeBigInt:
		return fitsInt(v, math.MinInt64, math.MaxInt64)
	case TypeInteger:
		return fitsInt(v, math.MinInt32, math.MaxInt32)
	case TypeSmallInt:
		return fitsInt(v, math.MinInt16, math.MaxInt16)
	default:
		return false
	}
}

func fitsInt(v interface{}, min, max int64) bool {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case uint8:
		n = int64(x)
	case uint16:
		n = int64(x)
	case uint32:
		n = int64(x)
	default:
		return false
	}
	return n >= min && n <= max
}

// ColumnDef defines a single column of a table.
type ColumnDef struct {
	// Name is the column name
	Name string `json:"name" yaml:"name"`

	// Type is the scalar type of the column
	Type ColumnType `json:"type" yaml:"type"`

	// Nullable indicates whether the column can contain NULL values
	Nullable bool `json:"nullable" yaml:"nullable"`
}

// TableDef defines the shape of one table.
type TableDef struct {
	// Name is the table name
	Name string `json:"name" yaml:"name"`

	// Columns lists the columns in declaration order
	Columns []ColumnDef `json:"columns" yaml:"columns"`

	// PrimaryKey lists the primary key columns in key order
	PrimaryKey []string `json:"primary_key" yaml:"primary_key"`
}

// Column returns the named column definition.
func (t *TableDef) Column(name string) (ColumnDef, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// ColumnNames returns the column names in declaration order.
func (t *TableDef) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// IsPrimaryKey reports whether name is part of the primary key.
func (t *TableDef) IsPrimaryKey(name string) bool {
	return t.KeyPosition(name) > 0
}

// KeyPosition returns the 1-based position of name within the primary key,
// or 0 when the column is not part of it.
func (t *TableDef) KeyPosition(name string) int {
	for i, k := range t.PrimaryKey {
		if k == name {
			return i + 1
		}
	}
	return 0
}

// IsComposite reports whether the primary key spans more than one column.
func (t *TableDef) IsComposite() bool {
	return len(t.PrimaryKey) > 1
}

// Relation describes a reference between two tables that is implied by naming
// and maintained by callers. It is never enforced by the database.
type Relation struct {
	Table        string `json:"table" yaml:"table"`
	Column       string `json:"column" yaml:"column"`
	ParentTable  string `json:"parent_table" yaml:"parent_table"`
	ParentColumn string `json:"parent_column" yaml:"parent_column"`
}

func (r Relation) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", r.Table, r.Column, r.ParentTable, r.ParentColumn)
}
