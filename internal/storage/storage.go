package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/testhub/testhub-backend/internal/config"
)

var ErrInvalidKey = errors.New("invalid object key")

// Store persists uploaded objects and hands out time-limited URLs for them.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// New builds the Store selected by cfg.StorageDriver.
func New(cfg *config.Config) (Store, error) {
	switch cfg.StorageDriver {
	case "", "local":
		return NewLocalStore(cfg.UploadDir, cfg.PublicBaseURL+"/uploads", cfg.JWTSecret), nil
	case "oss":
		store, err := NewOSSStore(cfg.OSSEndpoint, cfg.OSSAccessKeyID, cfg.OSSAccessSecret, cfg.OSSBucket)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
