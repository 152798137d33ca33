package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	ferrors "github.com/flowydb/flowydb/internal/errors"
)

// ConflictPolicy decides what Insert does when a row with the same primary
// key already exists.
type ConflictPolicy int

const (
	// ConflictReject fails the insert with a DUPLICATE_KEY error.
	ConflictReject ConflictPolicy = iota

	// ConflictReplace overwrites every column of the existing row.
	ConflictReplace
)

func (p ConflictPolicy) String() string {
	switch p {
	case ConflictReject:
		return "reject"
	case ConflictReplace:
		return "replace"
	default:
		return fmt.Sprintf("ConflictPolicy(%d)", int(p))
	}
}

// ParseConflictPolicy parses "reject" or "replace".
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch s {
	case "reject", "":
		return ConflictReject, nil
	case "replace":
		return ConflictReplace, nil
	default:
		return ConflictReject, fmt.Errorf("invalid conflict policy %q (must be reject or replace)", s)
	}
}

// mapError translates driver errors into structured errors.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ferrors.NewStorageError(ferrors.CodeRecordNotFound, op, err)
	}

	var se sqlite3.Error
	if errors.As(err, &se) {
		switch {
		case se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey,
			se.ExtendedCode == sqlite3.ErrConstraintUnique:
			return ferrors.NewStorageError(ferrors.CodeDuplicateKey, op, err)
		case se.ExtendedCode == sqlite3.ErrConstraintNotNull:
			return ferrors.Wrap(ferrors.ErrCategoryValidation, ferrors.CodeMissingColumn, op, err)
		case se.Code == sqlite3.ErrBusy, se.Code == sqlite3.ErrLocked:
			return ferrors.NewStorageError(ferrors.CodeBusy, op, err)
		}
	}
	return ferrors.NewInternalError(op, err)
}
