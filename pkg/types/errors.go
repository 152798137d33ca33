package types

import "errors"

// Declaration errors
var (
	// ErrUnknownType is returned when a column declares a scalar type that does not exist
	ErrUnknownType = errors.New("unknown column type")

	// ErrDuplicateTable is returned when two tables share a name
	ErrDuplicateTable = errors.New("duplicate table name")

	// ErrDuplicateColumn is returned when a table declares the same column twice
	ErrDuplicateColumn = errors.New("duplicate column name")

	// ErrKeyColumnMissing is returned when a primary key names a column the table does not declare
	ErrKeyColumnMissing = errors.New("primary key column not declared")

	// ErrInvalidIdentifier is returned for table or column names SQLite cannot take unquoted
	ErrInvalidIdentifier = errors.New("invalid identifier")
)
