// Package storage provides the object stores backups are written to.
package storage

import (
	"context"
	"time"

	ferrors "github.com/flowydb/flowydb/internal/errors"
)

// Common errors for storage operations. Match them with errors.Is.
var (
	ErrObjectNotFound = ferrors.New(ferrors.ErrCategoryStorage, ferrors.CodeObjectNotFound, "object not found")
	ErrUploadFailed   = ferrors.New(ferrors.ErrCategoryStorage, ferrors.CodeUploadFailed, "upload failed")
	ErrDownloadFailed = ferrors.New(ferrors.ErrCategoryStorage, ferrors.CodeDownloadFailed, "download failed")
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStorage abstracts the object store backups live in.
// Implementations are the local filesystem and S3.
type ObjectStorage interface {
	// Upload copies the local file at localPath to objectPath.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies objectPath to the local file at localPath, creating
	// parent directories. Returns ErrObjectNotFound for a missing object.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists reports whether an object exists.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// List returns every object under prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

func uploadError(objectPath string, cause error) error {
	return ferrors.NewStorageError(ferrors.CodeUploadFailed, "upload "+objectPath, cause)
}

func downloadError(objectPath string, cause error) error {
	return ferrors.NewStorageError(ferrors.CodeDownloadFailed, "download "+objectPath, cause)
}
