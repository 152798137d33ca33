// Package migration applies one-off user data migrations and records each in
// the user_data_migration_records table so it never runs twice.
package migration

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	ferrors "github.com/flowydb/flowydb/internal/errors"
	"github.com/flowydb/flowydb/internal/records"
	"github.com/flowydb/flowydb/internal/schema"
	"github.com/flowydb/flowydb/internal/store"
)

// Migration is a named data migration. Run executes inside the transaction
// that records it, so a failed migration leaves no trace.
type Migration struct {
	Name string
	Run  func(ctx context.Context, tx *store.Tx) error
}

// Runner applies migrations in registration order.
type Runner struct {
	store      *store.Store
	migrations []Migration
	log        *zap.Logger
	now        func() time.Time
}

// NewRunner creates a runner. Migration names must be non-empty and unique.
func NewRunner(s *store.Store, log *zap.Logger, migrations ...Migration) (*Runner, error) {
	if log == nil {
		log = zap.NewNop()
	}
	seen := make(map[string]bool, len(migrations))
	for i, m := range migrations {
		if m.Name == "" {
			return nil, fmt.Errorf("migration %d has no name", i)
		}
		if m.Run == nil {
			return nil, fmt.Errorf("migration %q has no Run function", m.Name)
		}
		if seen[m.Name] {
			return nil, fmt.Errorf("migration %q registered twice", m.Name)
		}
		seen[m.Name] = true
	}
	return &Runner{
		store:      s,
		migrations: migrations,
		log:        log.With(zap.String("component", "migration")),
		now:        time.Now,
	}, nil
}

// Run applies every migration not yet recorded and returns the names it
// applied. It stops at the first failure.
func (r *Runner) Run(ctx context.Context) ([]string, error) {
	var applied []string
	for _, m := range r.migrations {
		ran, err := r.apply(ctx, m)
		if err != nil {
			r.log.Error("migration failed", zap.String("name", m.Name), zap.Error(err))
			return applied, ferrors.NewMigrationError(fmt.Sprintf("migration %q failed", m.Name), err)
		}
		if ran {
			r.log.Info("migration applied", zap.String("name", m.Name))
			applied = append(applied, m.Name)
		} else {
			r.log.Debug("migration already applied", zap.String("name", m.Name))
		}
	}
	return applied, nil
}

func (r *Runner) apply(ctx context.Context, m Migration) (bool, error) {
	ran := false
	err := r.store.Tx(ctx, func(tx *store.Tx) error {
		done, err := isRecorded(ctx, tx, m.Name)
		if err != nil || done {
			return err
		}

		if err := m.Run(ctx, tx); err != nil {
			return err
		}

		id, err := nextID(ctx, tx)
		if err != nil {
			return err
		}
		rec := records.UserDataMigrationRecord{
			ID:            id,
			MigrationName: m.Name,
			ExecutedAt:    r.now().UTC(),
		}
		if err := store.InsertRecord(ctx, tx, rec, store.ConflictReject); err != nil {
			return err
		}
		ran = true
		return nil
	})
	return ran, err
}

// Applied returns the recorded migrations ordered by id.
func (r *Runner) Applied(ctx context.Context) ([]records.UserDataMigrationRecord, error) {
	return store.ListRecords[records.UserDataMigrationRecord](ctx, r.store)
}

// Pending returns the names of registered migrations not yet recorded.
func (r *Runner) Pending(ctx context.Context) ([]string, error) {
	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(applied))
	for _, a := range applied {
		done[a.MigrationName] = true
	}
	var pending []string
	for _, m := range r.migrations {
		if !done[m.Name] {
			pending = append(pending, m.Name)
		}
	}
	return pending, nil
}

func isRecorded(ctx context.Context, q store.Querier, name string) (bool, error) {
	rows, err := q.SelectRows(ctx, store.Query{
		From:    schema.TableUserDataMigrationRecords,
		Columns: []store.ColumnRef{store.Col(schema.TableUserDataMigrationRecords, "id")},
		Where: []store.Cond{{
			Column: store.Col(schema.TableUserDataMigrationRecords, "migration_name"),
			Op:     store.OpEq,
			Value:  name,
		}},
		Limit: 1,
	})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// nextID returns one past the highest recorded id. The id column is an
// INTEGER key but is assigned here rather than left to SQLite.
func nextID(ctx context.Context, q store.Querier) (int32, error) {
	idCol := store.Col(schema.TableUserDataMigrationRecords, "id")
	rows, err := q.SelectRows(ctx, store.Query{
		From:    schema.TableUserDataMigrationRecords,
		Columns: []store.ColumnRef{idCol},
		OrderBy: []store.Order{{Column: idCol, Desc: true}},
		Limit:   1,
	})
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 1, nil
	}
	return rows[0]["id"].(int32) + 1, nil
}
