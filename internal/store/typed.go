package store

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"

	ferrors "github.com/flowydb/flowydb/internal/errors"
	"github.com/flowydb/flowydb/internal/records"
	"github.com/flowydb/flowydb/internal/schema"
)

var mapper = reflectx.NewMapperFunc("db", sqlx.NameMapper)

// RecordRow converts a typed record into a Row keyed by its `db` tags. Nil
// pointer fields become NULL.
func RecordRow(rec records.Record) Row {
	v := reflect.Indirect(reflect.ValueOf(rec))
	fields := mapper.FieldMap(v)
	row := make(Row, len(fields))
	for name, fv := range fields {
		row[name] = normalizeInput(fv.Interface())
	}
	return row
}

// InsertRecord writes a typed record with the given conflict policy.
func InsertRecord(ctx context.Context, q Querier, rec records.Record, policy ConflictPolicy) error {
	return q.Insert(ctx, rec.TableName(), RecordRow(rec), policy)
}

// DeleteRecord removes the row holding rec's primary key.
func DeleteRecord(ctx context.Context, q Querier, rec records.Record) (bool, error) {
	key, err := keyRow(q.Registry(), rec.TableName(), rec.PrimaryKey())
	if err != nil {
		return false, err
	}
	return q.Delete(ctx, rec.TableName(), key)
}

// recordTable resolves the table of record type T, which may be a struct or
// a pointer to one.
func recordTable[T records.Record]() (string, reflect.Type, error) {
	rt := reflect.TypeOf((*T)(nil)).Elem()
	switch {
	case rt.Kind() == reflect.Struct:
		var zero T
		return zero.TableName(), nil, nil
	case rt.Kind() == reflect.Ptr && rt.Elem().Kind() == reflect.Struct:
		rec := reflect.New(rt.Elem()).Interface().(records.Record)
		return rec.TableName(), rt.Elem(), nil
	}
	return "", nil, ferrors.NewValidationError(ferrors.CodeUnknownTable,
		fmt.Sprintf("%s is not a record struct type", rt))
}

// GetRecord loads the record of type T with the given primary key values,
// passed in key column order. T may be a record struct or a pointer to one.
func GetRecord[T records.Record](ctx context.Context, q Querier, key ...interface{}) (T, error) {
	var out T
	table, elem, err := recordTable[T]()
	if err != nil {
		return out, err
	}

	t, ok := q.Registry().Table(table)
	if !ok {
		return out, ferrors.NewValidationError(ferrors.CodeUnknownTable,
			fmt.Sprintf("table %q is not declared", table))
	}
	kr, err := keyRow(q.Registry(), table, key)
	if err != nil {
		return out, err
	}
	if err := validateKey(t, kr); err != nil {
		return out, err
	}

	where, args := keyClause(t, kr)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		schema.QuoteIdents(t.ColumnNames()), schema.QuoteIdent(t.Name), where)

	var dest interface{} = &out
	if elem != nil {
		dest = reflect.New(elem).Interface()
	}
	if err := sqlx.GetContext(ctx, q.extContext(), dest, query, args...); err != nil {
		return out, mapError(fmt.Sprintf("get from %s", table), err)
	}
	if elem != nil {
		out = dest.(T)
	}
	return out, nil
}

// ListRecords returns every record of type T ordered by primary key.
func ListRecords[T records.Record](ctx context.Context, q Querier) ([]T, error) {
	table, _, err := recordTable[T]()
	if err != nil {
		return nil, err
	}

	t, ok := q.Registry().Table(table)
	if !ok {
		return nil, ferrors.NewValidationError(ferrors.CodeUnknownTable,
			fmt.Sprintf("table %q is not declared", table))
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		schema.QuoteIdents(t.ColumnNames()), schema.QuoteIdent(t.Name), schema.QuoteIdents(t.PrimaryKey))

	var out []T
	if err := sqlx.SelectContext(ctx, q.extContext(), &out, query); err != nil {
		return nil, mapError(fmt.Sprintf("list %s", table), err)
	}
	return out, nil
}

// SelectRecords runs q and scans every result row into a T.
func SelectRecords[T any](ctx context.Context, db Querier, q Query) ([]T, error) {
	var out []T
	if err := db.Select(ctx, q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func keyRow(reg *schema.Registry, table string, values []interface{}) (Row, error) {
	t, ok := reg.Table(table)
	if !ok {
		return nil, ferrors.NewValidationError(ferrors.CodeUnknownTable,
			fmt.Sprintf("table %q is not declared", table))
	}
	if len(values) != len(t.PrimaryKey) {
		return nil, ferrors.NewValidationError(ferrors.CodeMissingColumn,
			fmt.Sprintf("%s: key needs %d values %v, got %d", table, len(t.PrimaryKey), t.PrimaryKey, len(values)))
	}
	key := make(Row, len(values))
	for i, k := range t.PrimaryKey {
		key[k] = values[i]
	}
	return key, nil
}
