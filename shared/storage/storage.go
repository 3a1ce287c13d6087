// Package storage keeps uploaded and generated files under opaque keys.
package storage

import (
	"context"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/config"
)

// Store is the upload store used by every service
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// New builds the store selected by cfg.Backend
func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(cfg.UploadDir)
	case "s3":
		return NewS3Store(cfg)
	default:
		return nil, errors.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// NewKey returns a fresh key below prefix keeping the extension of filename
func NewKey(prefix, filename string) string {
	return path.Join(prefix, uuid.NewString()+strings.ToLower(filepath.Ext(filename)))
}

// CheckUpload validates the extension and size of an upload
func CheckUpload(filename string, size int64, allowed []string, maxBytes int64) error {
	ext := strings.ToLower(filepath.Ext(filename))
	ok := false
	for _, a := range allowed {
		if ext == a {
			ok = true
			break
		}
	}
	if !ok {
		return apperr.Validation("File type not allowed. Allowed: %s", strings.Join(allowed, ", "))
	}
	if size > maxBytes {
		return apperr.Validation("File too large. Maximum: %d MB", maxBytes/(1024*1024))
	}
	return nil
}

// ReadAll fetches a whole object
func ReadAll(ctx context.Context, s Store, key string) ([]byte, error) {
	rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", key)
	}
	return data, nil
}
