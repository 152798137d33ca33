// Package app wires configuration, logging, the local database, backups and
// migrations into one handle for the flowydb command.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/flowydb/flowydb/internal/backup"
	"github.com/flowydb/flowydb/internal/config"
	"github.com/flowydb/flowydb/internal/logging"
	"github.com/flowydb/flowydb/internal/migration"
	"github.com/flowydb/flowydb/internal/schema"
	"github.com/flowydb/flowydb/internal/storage"
	"github.com/flowydb/flowydb/internal/store"
)

// App owns the resources of one command invocation.
type App struct {
	cfg *config.Config
	log *zap.Logger

	store   *store.Store
	objects storage.ObjectStorage
	backups *backup.Manager
	policy  store.ConflictPolicy
}

// New validates cfg, creates the data directories and builds the logger.
// Resources are opened lazily by Open and the accessors.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	return NewWithLogger(cfg, log)
}

// NewWithLogger is New with a caller-supplied logger.
func NewWithLogger(cfg *config.Config, log *zap.Logger) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	policy, err := store.ParseConflictPolicy(cfg.Database.ConflictPolicy)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &App{cfg: cfg, log: log, policy: policy}, nil
}

// Config returns the resolved configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.log
}

// ConflictPolicy returns the configured default insert conflict policy.
func (a *App) ConflictPolicy() store.ConflictPolicy {
	return a.policy
}

// Open opens the configured database, creating missing tables unless
// readOnly is set.
func (a *App) Open(ctx context.Context, readOnly bool) (*store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}

	s, err := store.Open(ctx, a.cfg.DatabasePath(), store.Options{
		Registry:     schema.Default(),
		JournalMode:  a.cfg.Database.JournalMode,
		BusyTimeout:  a.cfg.Database.BusyTimeout,
		MaxOpenConns: a.cfg.Database.MaxOpenConns,
		ReadOnly:     readOnly,
		Logger:       a.log,
	})
	if err != nil {
		return nil, err
	}
	a.store = s
	return s, nil
}

// ObjectStorage returns the configured backup storage backend.
func (a *App) ObjectStorage(ctx context.Context) (storage.ObjectStorage, error) {
	if a.objects != nil {
		return a.objects, nil
	}

	var err error
	switch a.cfg.Backup.Type {
	case "s3":
		s3cfg := storage.DefaultS3Config()
		if a.cfg.Backup.S3.Region != "" {
			s3cfg.Region = a.cfg.Backup.S3.Region
		}
		s3cfg.Endpoint = a.cfg.Backup.S3.Endpoint
		s3cfg.UsePathStyle = a.cfg.Backup.S3.UsePathStyle
		a.objects, err = storage.NewS3Storage(ctx, a.cfg.Backup.S3.Bucket, s3cfg)
	default:
		a.objects, err = storage.NewLocalStorage(a.cfg.Backup.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backup storage: %w", err)
	}
	a.log.Debug("backup storage ready", zap.String("type", a.cfg.Backup.Type))
	return a.objects, nil
}

// Backups returns the backup manager of the configured database.
func (a *App) Backups(ctx context.Context) (*backup.Manager, error) {
	if a.backups != nil {
		return a.backups, nil
	}
	s, err := a.Open(ctx, false)
	if err != nil {
		return nil, err
	}
	objects, err := a.ObjectStorage(ctx)
	if err != nil {
		return nil, err
	}
	a.backups = backup.NewManager(s, objects, backup.Options{
		Prefix: a.cfg.Backup.Prefix,
		Logger: a.log,
	})
	return a.backups, nil
}

// Migrations returns a runner over the built-in migrations.
func (a *App) Migrations(ctx context.Context) (*migration.Runner, error) {
	s, err := a.Open(ctx, false)
	if err != nil {
		return nil, err
	}
	return migration.NewRunner(s, a.log, migration.Builtin()...)
}

// Close releases every opened resource.
func (a *App) Close() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
		a.store = nil
	}
	a.log.Sync()
	return err
}
