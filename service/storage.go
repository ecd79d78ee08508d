package service

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned by ObjectStore.Get when no object exists at the path.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is a bucket of documents addressed by path.
type ObjectStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
	Get(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, paths ...string) error
	PublicURL(path string) string
	PresignedURL(ctx context.Context, path string) (string, error)
}
