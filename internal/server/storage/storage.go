// Package storage defines the object-store capability used by the media
// service and its S3 implementation.
package storage

import (
	"context"
	"io"
	"time"

	"github.com/dmitrijs2005/transcoder/internal/server/models"
)

// ObjectStore is the blob capability the service relies on. Implementations
// return errors wrapping common.ErrorNotFound for absent keys and
// common.ErrStorageFailure for everything else.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, meta map[string]string) error
	Download(ctx context.Context, key, dest string) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]models.Object, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
}
