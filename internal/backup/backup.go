// Package backup snapshots the local database into object storage and
// restores snapshots from it.
package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"go.uber.org/zap"

	ferrors "github.com/flowydb/flowydb/internal/errors"
	"github.com/flowydb/flowydb/internal/storage"
	"github.com/flowydb/flowydb/internal/store"
)

const (
	// Suffix ends every backup object key.
	Suffix = ".db.sz"

	timestampLayout = "20060102T150405Z"
)

// Options configures a Manager.
type Options struct {
	// Prefix is the key prefix backups are stored under (default: "backups")
	Prefix string

	// TempDir holds snapshots while they are compressed (default: os.TempDir())
	TempDir string

	// Logger receives backup events (default: no-op)
	Logger *zap.Logger
}

// Backup describes one stored snapshot.
type Backup struct {
	Key       string
	ID        string
	CreatedAt time.Time
	Size      int64
}

// Manager creates, lists, restores and prunes backups of one database.
type Manager struct {
	store   *store.Store
	objects storage.ObjectStorage
	prefix  string
	tempDir string
	log     *zap.Logger
	now     func() time.Time
}

// NewManager creates a backup manager for s writing to objects.
func NewManager(s *store.Store, objects storage.ObjectStorage, opts Options) *Manager {
	if opts.Prefix == "" {
		opts.Prefix = "backups"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Manager{
		store:   s,
		objects: objects,
		prefix:  strings.TrimSuffix(opts.Prefix, "/"),
		tempDir: opts.TempDir,
		log:     opts.Logger.With(zap.String("component", "backup")),
		now:     time.Now,
	}
}

// Create snapshots the database with VACUUM INTO, compresses the snapshot
// with snappy framing and uploads it as <prefix>/<UTC timestamp>-<uuid>.db.sz.
func (m *Manager) Create(ctx context.Context) (Backup, error) {
	work, err := os.MkdirTemp(m.tempDir, "flowydb-backup-")
	if err != nil {
		return Backup{}, ferrors.NewBackupError(ferrors.CodeUnexpected, "create work directory", err)
	}
	defer os.RemoveAll(work)

	snapshot := filepath.Join(work, "snapshot.db")
	if _, err := m.store.DB().ExecContext(ctx, "VACUUM INTO ?", snapshot); err != nil {
		return Backup{}, ferrors.NewBackupError(ferrors.CodeUnexpected, "snapshot database", err)
	}

	compressed := snapshot + ".sz"
	if err := compressFile(snapshot, compressed); err != nil {
		return Backup{}, ferrors.NewBackupError(ferrors.CodeUnexpected, "compress snapshot", err)
	}
	info, err := os.Stat(compressed)
	if err != nil {
		return Backup{}, ferrors.NewBackupError(ferrors.CodeUnexpected, "stat snapshot", err)
	}

	b := Backup{
		ID:        uuid.NewString(),
		CreatedAt: m.now().UTC().Truncate(time.Second),
		Size:      info.Size(),
	}
	b.Key = m.key(b)

	if err := m.objects.Upload(ctx, compressed, b.Key); err != nil {
		return Backup{}, ferrors.NewBackupError(ferrors.CodeUploadFailed, "upload "+b.Key, err)
	}

	m.log.Info("backup created",
		zap.String("key", b.Key),
		zap.Int64("size", b.Size),
		zap.String("database", m.store.Path()))
	return b, nil
}

// List returns the stored backups, oldest first. Objects under the prefix
// that are not backups are ignored.
func (m *Manager) List(ctx context.Context) ([]Backup, error) {
	objects, err := m.objects.List(ctx, m.prefix+"/")
	if err != nil {
		return nil, ferrors.NewBackupError(ferrors.CodeDownloadFailed, "list backups", err)
	}

	var out []Backup
	for _, obj := range objects {
		b, ok := ParseKey(obj.Key)
		if !ok {
			continue
		}
		b.Size = obj.Size
		out = append(out, b)
	}
	return out, nil
}

// Restore downloads the backup at key, decompresses it to dest and checks
// that its layout matches the registry. dest must not exist; on any failure
// nothing is left at dest.
func (m *Manager) Restore(ctx context.Context, key, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return ferrors.NewBackupError(ferrors.CodeUnexpected,
			fmt.Sprintf("restore target %s already exists", dest), nil)
	}

	work, err := os.MkdirTemp(m.tempDir, "flowydb-restore-")
	if err != nil {
		return ferrors.NewBackupError(ferrors.CodeUnexpected, "create work directory", err)
	}
	defer os.RemoveAll(work)

	compressed := filepath.Join(work, "backup.db.sz")
	if err := m.objects.Download(ctx, key, compressed); err != nil {
		return err
	}

	restored := filepath.Join(work, "restored.db")
	if err := decompressFile(compressed, restored); err != nil {
		return ferrors.NewBackupError(ferrors.CodeUnexpected, "decompress "+key, err)
	}

	check, err := store.Open(ctx, restored, store.Options{
		Registry: m.store.Registry(),
		ReadOnly: true,
		Logger:   m.log,
	})
	if err != nil {
		return ferrors.NewBackupError(ferrors.CodeUnexpected, "open restored database", err)
	}
	verifyErr := check.VerifySchema(ctx)
	check.Close()
	if verifyErr != nil {
		return verifyErr
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return ferrors.NewBackupError(ferrors.CodeUnexpected, "create restore directory", err)
	}
	if err := moveFile(restored, dest); err != nil {
		return ferrors.NewBackupError(ferrors.CodeUnexpected, "move restored database", err)
	}

	m.log.Info("backup restored", zap.String("key", key), zap.String("dest", dest))
	return nil
}

// Prune deletes all but the newest keep backups and returns the deleted keys.
func (m *Manager) Prune(ctx context.Context, keep int) ([]string, error) {
	if keep < 0 {
		return nil, fmt.Errorf("backup: keep must be non-negative, got %d", keep)
	}
	backups, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(backups) <= keep {
		return nil, nil
	}

	var deleted []string
	for _, b := range backups[:len(backups)-keep] {
		if err := m.objects.Delete(ctx, b.Key); err != nil {
			return deleted, ferrors.NewBackupError(ferrors.CodeUnexpected, "delete "+b.Key, err)
		}
		deleted = append(deleted, b.Key)
	}
	m.log.Info("backups pruned", zap.Int("deleted", len(deleted)), zap.Int("kept", keep))
	return deleted, nil
}

func (m *Manager) key(b Backup) string {
	return path.Join(m.prefix, b.CreatedAt.Format(timestampLayout)+"-"+b.ID+Suffix)
}

// ParseKey extracts the timestamp and id from a backup object key.
func ParseKey(key string) (Backup, bool) {
	name := path.Base(key)
	if !strings.HasSuffix(name, Suffix) {
		return Backup{}, false
	}
	name = strings.TrimSuffix(name, Suffix)

	ts, id, ok := strings.Cut(name, "-")
	if !ok {
		return Backup{}, false
	}
	created, err := time.Parse(timestampLayout, ts)
	if err != nil {
		return Backup{}, false
	}
	if _, err := uuid.Parse(id); err != nil {
		return Backup{}, false
	}
	return Backup{Key: key, ID: id, CreatedAt: created}, true
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	w := snappy.NewBufferedWriter(out)
	if _, err := io.Copy(w, in); err != nil {
		out.Close()
		return err
	}
	if err := w.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func decompressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, snappy.NewReader(in)); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// moveFile renames src to dst, copying when they are on different devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
