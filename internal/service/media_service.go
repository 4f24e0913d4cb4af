package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/testhub/testhub-backend/internal/config"
	"github.com/testhub/testhub-backend/internal/storage"
)

// Sentinel errors for media uploads.
var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
)

// Allowed image MIME types.
var allowedMIMETypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Upload is a stored object: the key to save on a question and a URL to
// preview it right away.
type Upload struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// MediaService handles file upload operations.
type MediaService struct {
	cfg   *config.Config
	store storage.Store
	urls  *storage.Resolver
}

// NewMediaService creates a new MediaService.
func NewMediaService(cfg *config.Config, store storage.Store, urls *storage.Resolver) *MediaService {
	return &MediaService{cfg: cfg, store: store, urls: urls}
}

// SaveUpload stores an uploaded image under a UUID key.
func (s *MediaService) SaveUpload(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*Upload, error) {
	contentType := header.Header.Get("Content-Type")
	ext, ok := allowedMIMETypes[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s (allowed: %s)",
			ErrUnsupportedFileType, contentType, strings.Join(allowedTypes(), ", "))
	}

	if header.Size > s.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, header.Size, s.cfg.MaxUploadBytes)
	}

	key := "questions/" + uuid.New().String() + ext
	if err := s.store.Put(ctx, key, file, contentType); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	url, err := s.urls.Resolve(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("sign upload: %w", err)
	}
	return &Upload{Key: key, URL: url}, nil
}

func allowedTypes() []string {
	types := make([]string, 0, len(allowedMIMETypes))
	for t := range allowedMIMETypes {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
