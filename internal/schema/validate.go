package schema

import (
	"fmt"

	ferrors "github.com/flowydb/flowydb/internal/errors"
	"github.com/flowydb/flowydb/pkg/types"
)

// ValidateTable validates a single table declaration.
func ValidateTable(t types.TableDef) error {
	if !ValidateIdentifier(t.Name) {
		return declarationError(types.ErrInvalidIdentifier, "table name %q", t.Name)
	}

	if len(t.Columns) == 0 {
		return declarationError(nil, "table %q has no columns", t.Name)
	}

	columns := make(map[string]types.ColumnDef, len(t.Columns))
	for _, c := range t.Columns {
		if !ValidateIdentifier(c.Name) {
			return declarationError(types.ErrInvalidIdentifier, "table %q: column name %q", t.Name, c.Name)
		}
		if _, dup := columns[c.Name]; dup {
			return declarationError(types.ErrDuplicateColumn, "table %q: column %q", t.Name, c.Name)
		}
		if !c.Type.Valid() {
			return declarationError(types.ErrUnknownType, "table %q: column %q has type %q", t.Name, c.Name, c.Type)
		}
		columns[c.Name] = c
	}

	if len(t.PrimaryKey) == 0 {
		return declarationError(nil, "table %q has no primary key", t.Name)
	}

	seen := make(map[string]bool, len(t.PrimaryKey))
	for _, k := range t.PrimaryKey {
		c, ok := columns[k]
		if !ok {
			return declarationError(types.ErrKeyColumnMissing, "table %q: key column %q", t.Name, k)
		}
		if seen[k] {
			return declarationError(types.ErrDuplicateColumn, "table %q: key column %q listed twice", t.Name, k)
		}
		if c.Nullable {
			return declarationError(nil, "table %q: key column %q is nullable", t.Name, k)
		}
		seen[k] = true
	}

	return nil
}

// ValidateIdentifier checks if a table or column name is a plain SQLite identifier.
func ValidateIdentifier(name string) bool {
	if len(name) == 0 || len(name) > 100 {
		return false
	}
	// First character must be a letter or underscore
	first := name[0]
	if (first < 'a' || first > 'z') && (first < 'A' || first > 'Z') && first != '_' {
		return false
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '_' {
			return false
		}
	}
	return true
}

func declarationError(cause error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if cause == nil {
		return ferrors.NewSchemaError(ferrors.CodeInvalidDeclaration, msg)
	}
	return ferrors.Wrap(ferrors.ErrCategorySchema, ferrors.CodeInvalidDeclaration, msg, cause)
}
