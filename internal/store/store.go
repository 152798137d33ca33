// Package store persists records of the declared tables in a local SQLite
// database. Every statement is generated from the schema registry, so the
// on-disk layout always follows the declarations.
package store

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/flowydb/flowydb/internal/schema"
)

// Options configures how the database is opened.
type Options struct {
	// Registry supplies the table declarations (default: schema.Default())
	Registry *schema.Registry

	// JournalMode is the SQLite journal mode (default: WAL)
	JournalMode string

	// BusyTimeout is how long a writer waits on a locked database (default: 5s)
	BusyTimeout time.Duration

	// MaxOpenConns bounds the connection pool. SQLite allows one writer at a
	// time, so the default of 1 serializes all access through one connection.
	MaxOpenConns int

	// ReadOnly opens the database without write access and skips schema setup
	ReadOnly bool

	// Logger receives store events (default: no-op)
	Logger *zap.Logger
}

func (o *Options) applyDefaults() {
	if o.Registry == nil {
		o.Registry = schema.Default()
	}
	if o.JournalMode == "" {
		o.JournalMode = "WAL"
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = 5 * time.Second
	}
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = 1
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Store is an open local database.
type Store struct {
	handle
	db   *sqlx.DB
	path string
	log  *zap.Logger
}

// Open opens (creating if needed) the database at path and creates every
// declared table that does not exist yet.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	opts.applyDefaults()

	db, err := sqlx.Open("sqlite3", dsn(path, opts))
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxOpenConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to connect to %s: %w", path, err)
	}

	s := &Store{
		handle: handle{ext: db, reg: opts.Registry},
		db:     db,
		path:   path,
		log:    opts.Logger.With(zap.String("component", "store")),
	}

	if !opts.ReadOnly {
		if err := s.initSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: failed to initialize schema: %w", err)
		}
	}

	s.log.Info("database opened",
		zap.String("path", path),
		zap.String("journal_mode", opts.JournalMode),
		zap.Int("tables", len(opts.Registry.TableNames())),
		zap.Bool("read_only", opts.ReadOnly))

	return s, nil
}

func dsn(path string, opts Options) string {
	q := url.Values{}
	q.Set("_busy_timeout", fmt.Sprintf("%d", opts.BusyTimeout.Milliseconds()))
	if opts.ReadOnly {
		// the journal mode cannot be changed without write access
		q.Set("mode", "ro")
	} else {
		q.Set("_journal_mode", opts.JournalMode)
	}
	u := url.URL{Scheme: "file", Opaque: escapePath(path), RawQuery: q.Encode()}
	return u.String()
}

// escapePath percent-encodes each segment of path so characters such as
// '?', '#' and '%' reach SQLite as part of the file name.
func escapePath(path string) string {
	segs := strings.Split(filepath.ToSlash(path), "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return strings.Join(segs, "/")
}

// initSchema creates all declared tables inside one transaction.
func (s *Store) initSchema(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	for _, stmt := range schema.AllSchemaSQL(s.reg) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return tx.Commit()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DB exposes the underlying connection pool for callers that need raw SQL.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tx is a transaction. It supports the same record operations as Store.
type Tx struct {
	handle
	tx *sqlx.Tx
}

// Tx runs fn inside a transaction. The transaction commits when fn returns
// nil and rolls back otherwise, including when fn panics.
func (s *Store) Tx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return mapError("begin transaction", err)
	}

	tx := &Tx{handle: handle{ext: sqlTx, reg: s.reg}, tx: sqlTx}

	defer func() {
		if p := recover(); p != nil {
			sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			s.log.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return mapError("commit transaction", err)
	}
	return nil
}

// Querier is implemented by Store and Tx.
type Querier interface {
	Registry() *schema.Registry
	Insert(ctx context.Context, table string, row Row, policy ConflictPolicy) error
	Get(ctx context.Context, table string, key Row) (Row, error)
	Delete(ctx context.Context, table string, key Row) (bool, error)
	Count(ctx context.Context, table string) (int64, error)
	SelectRows(ctx context.Context, q Query) ([]Row, error)
	Select(ctx context.Context, q Query, dest interface{}) error

	extContext() sqlx.ExtContext
}

// handle carries the operations shared by Store and Tx.
type handle struct {
	ext sqlx.ExtContext
	reg *schema.Registry
}

// Registry returns the table declarations the handle works against.
func (h handle) Registry() *schema.Registry {
	return h.reg
}

func (h handle) extContext() sqlx.ExtContext {
	return h.ext
}
