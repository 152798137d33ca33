package schema

import (
	"strings"

	"github.com/flowydb/flowydb/pkg/types"
)

// QuoteIdent quotes a SQLite identifier. Several columns (desc, order,
// timestamp) are keywords, so every generated statement quotes all names.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteIdents quotes each name and joins them with ", ".
func QuoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// CreateTableSQL returns the CREATE TABLE statement for t. No foreign keys are
// emitted; references between tables are kept by application code.
func CreateTableSQL(t types.TableDef) string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE IF NOT EXISTS ")
	sb.WriteString(QuoteIdent(t.Name))
	sb.WriteString(" (\n")
	for _, c := range t.Columns {
		sb.WriteString("    ")
		sb.WriteString(QuoteIdent(c.Name))
		sb.WriteString(" ")
		sb.WriteString(c.Type.SQLType())
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		sb.WriteString(",\n")
	}
	sb.WriteString("    PRIMARY KEY (")
	sb.WriteString(QuoteIdents(t.PrimaryKey))
	sb.WriteString(")\n)")
	return sb.String()
}

// AllSchemaSQL returns the statements needed to initialize every table in r,
// in declaration order.
func AllSchemaSQL(r *Registry) []string {
	statements := make([]string, 0, len(r.tables))
	for _, t := range r.tables {
		statements = append(statements, CreateTableSQL(t))
	}
	return statements
}
