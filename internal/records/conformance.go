package records

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	gormschema "gorm.io/gorm/schema"

	"github.com/flowydb/flowydb/internal/schema"
	"github.com/flowydb/flowydb/pkg/types"
)

var goTypes = map[types.ColumnType]reflect.Type{
	types.TypeText:      reflect.TypeOf(""),
	types.TypeBigInt:    reflect.TypeOf(int64(0)),
	types.TypeInteger:   reflect.TypeOf(int32(0)),
	types.TypeSmallInt:  reflect.TypeOf(int16(0)),
	types.TypeBool:      reflect.TypeOf(false),
	types.TypeBinary:    reflect.TypeOf([]byte(nil)),
	types.TypeTimestamp: reflect.TypeOf(time.Time{}),
}

// Mismatch describes one disagreement between a record type and the registry.
type Mismatch struct {
	Table   string
	Column  string
	Problem string
}

func (m Mismatch) String() string {
	if m.Column == "" {
		return fmt.Sprintf("%s: %s", m.Table, m.Problem)
	}
	return fmt.Sprintf("%s.%s: %s", m.Table, m.Column, m.Problem)
}

// ConformanceError lists every mismatch found by CheckConformance.
type ConformanceError []Mismatch

func (e ConformanceError) Error() string {
	parts := make([]string, len(e))
	for i, m := range e {
		parts[i] = m.String()
	}
	return fmt.Sprintf("%d record mismatches: %s", len(e), strings.Join(parts, "; "))
}

// CheckConformance parses every record type with the gorm schema parser and
// compares table name, column order, Go types, nullability and primary key
// against reg. It also checks that each `db` tag names the same column as the
// gorm tag, since the store scans rows through the `db` tags.
func CheckConformance(reg *schema.Registry, models ...Record) error {
	if len(models) == 0 {
		models = Models()
	}

	cache := &sync.Map{}
	var mismatches ConformanceError
	covered := make(map[string]bool)

	for _, model := range models {
		parsed, err := gormschema.Parse(model, cache, gormschema.NamingStrategy{})
		if err != nil {
			return fmt.Errorf("records: failed to parse %T: %w", model, err)
		}
		mismatches = append(mismatches, compareModel(reg, parsed)...)
		covered[parsed.Table] = true
	}

	for _, name := range reg.TableNames() {
		if !covered[name] {
			mismatches = append(mismatches, Mismatch{Table: name, Problem: "no record type"})
		}
	}

	if len(mismatches) > 0 {
		return mismatches
	}
	return nil
}

func compareModel(reg *schema.Registry, parsed *gormschema.Schema) []Mismatch {
	var out []Mismatch
	add := func(column, format string, args ...interface{}) {
		out = append(out, Mismatch{Table: parsed.Table, Column: column, Problem: fmt.Sprintf(format, args...)})
	}

	def, ok := reg.Table(parsed.Table)
	if !ok {
		add("", "table not declared")
		return out
	}

	var fields []*gormschema.Field
	for _, f := range parsed.Fields {
		if f.DBName != "" {
			fields = append(fields, f)
		}
	}

	if len(fields) != len(def.Columns) {
		add("", "record has %d columns, table declares %d", len(fields), len(def.Columns))
	}

	for i, f := range fields {
		if i >= len(def.Columns) {
			add(f.DBName, "not declared")
			continue
		}
		c := def.Columns[i]
		if f.DBName != c.Name {
			add(c.Name, "field %s is at its position", f.DBName)
			continue
		}
		if tag := f.Tag.Get("db"); tag != c.Name {
			add(c.Name, "db tag %q", tag)
		}

		ft := f.FieldType
		isPtr := ft.Kind() == reflect.Ptr
		if isPtr {
			ft = ft.Elem()
		}
		if isPtr != c.Nullable {
			add(c.Name, "nullable=%v but field type is %s", c.Nullable, f.FieldType)
		}
		if want := goTypes[c.Type]; ft != want {
			add(c.Name, "field type %s, want %s", ft, want)
		}
	}

	if !reflect.DeepEqual(parsed.PrimaryFieldDBNames, def.PrimaryKey) {
		add("", "primary key %v, want %v", parsed.PrimaryFieldDBNames, def.PrimaryKey)
	}

	return out
}
