// Package schema declares the tables of the local database and validates the
// declarations when the registry is built.
package schema

import (
	"sort"

	"github.com/flowydb/flowydb/pkg/types"
)

// Registry holds the validated table declarations, the join allow-list and
// the informational relations between tables. A Registry is immutable after
// Build returns and is safe for concurrent use.
type Registry struct {
	tables    []types.TableDef
	byName    map[string]int
	allowList []string
	allowed   map[string]bool
	relations []types.Relation
}

// defaultRegistry is built once at package init. A malformed declaration
// panics here, before any database is opened.
var defaultRegistry = MustBuild(declaredTables(), joinAllowList, declaredRelations())

// Default returns the process-wide registry of the local database tables.
func Default() *Registry {
	return defaultRegistry
}

// Build validates the declarations and returns a registry.
func Build(tables []types.TableDef, allowList []string, relations []types.Relation) (*Registry, error) {
	r := &Registry{
		tables:  make([]types.TableDef, 0, len(tables)),
		byName:  make(map[string]int, len(tables)),
		allowed: make(map[string]bool, len(allowList)),
	}

	for _, t := range tables {
		if err := ValidateTable(t); err != nil {
			return nil, err
		}
		if _, dup := r.byName[t.Name]; dup {
			return nil, declarationError(types.ErrDuplicateTable, "table %q declared twice", t.Name)
		}
		r.byName[t.Name] = len(r.tables)
		r.tables = append(r.tables, cloneTable(t))
	}

	for _, name := range allowList {
		if _, ok := r.byName[name]; !ok {
			return nil, declarationError(nil, "join allow-list names undeclared table %q", name)
		}
		if r.allowed[name] {
			return nil, declarationError(types.ErrDuplicateTable, "join allow-list names %q twice", name)
		}
		r.allowed[name] = true
		r.allowList = append(r.allowList, name)
	}

	for _, rel := range relations {
		if err := r.validateRelation(rel); err != nil {
			return nil, err
		}
		r.relations = append(r.relations, rel)
	}

	return r, nil
}

// MustBuild is like Build but panics on a malformed declaration.
func MustBuild(tables []types.TableDef, allowList []string, relations []types.Relation) *Registry {
	r, err := Build(tables, allowList, relations)
	if err != nil {
		panic(err)
	}
	return r
}

// Tables returns every table definition in declaration order.
func (r *Registry) Tables() []types.TableDef {
	out := make([]types.TableDef, len(r.tables))
	for i, t := range r.tables {
		out[i] = cloneTable(t)
	}
	return out
}

// TableNames returns the declared table names in declaration order.
func (r *Registry) TableNames() []string {
	names := make([]string, len(r.tables))
	for i, t := range r.tables {
		names[i] = t.Name
	}
	return names
}

// Table looks up a table definition by name.
func (r *Registry) Table(name string) (types.TableDef, bool) {
	i, ok := r.byName[name]
	if !ok {
		return types.TableDef{}, false
	}
	return cloneTable(r.tables[i]), true
}

// JoinAllowList returns the tables that may appear together in one query.
func (r *Registry) JoinAllowList() []string {
	out := make([]string, len(r.allowList))
	copy(out, r.allowList)
	return out
}

// AllowsJoin reports whether every named table is on the join allow-list.
func (r *Registry) AllowsJoin(tables ...string) bool {
	for _, t := range tables {
		if !r.allowed[t] {
			return false
		}
	}
	return true
}

// Relations returns the references between tables that callers maintain.
func (r *Registry) Relations() []types.Relation {
	out := make([]types.Relation, len(r.relations))
	copy(out, r.relations)
	return out
}

// SortedTableNames returns the declared names in lexical order.
func (r *Registry) SortedTableNames() []string {
	names := r.TableNames()
	sort.Strings(names)
	return names
}

func (r *Registry) validateRelation(rel types.Relation) error {
	child, ok := r.Table(rel.Table)
	if !ok {
		return declarationError(nil, "relation %s: unknown table %q", rel, rel.Table)
	}
	parent, ok := r.Table(rel.ParentTable)
	if !ok {
		return declarationError(nil, "relation %s: unknown table %q", rel, rel.ParentTable)
	}
	cc, ok := child.Column(rel.Column)
	if !ok {
		return declarationError(nil, "relation %s: unknown column %q", rel, rel.Column)
	}
	pc, ok := parent.Column(rel.ParentColumn)
	if !ok {
		return declarationError(nil, "relation %s: unknown column %q", rel, rel.ParentColumn)
	}
	if cc.Type != pc.Type {
		return declarationError(nil, "relation %s: type %s does not match %s", rel, cc.Type, pc.Type)
	}
	return nil
}

func cloneTable(t types.TableDef) types.TableDef {
	cols := make([]types.ColumnDef, len(t.Columns))
	copy(cols, t.Columns)
	pk := make([]string, len(t.PrimaryKey))
	copy(pk, t.PrimaryKey)
	return types.TableDef{Name: t.Name, Columns: cols, PrimaryKey: pk}
}
