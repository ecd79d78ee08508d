package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type GCSConfig struct {
	Bucket          string
	CredentialsFile string
	PublicBaseURL   string
	ExpireDays      int
}

// GCSStore keeps documents in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	config GCSConfig
}

// NewGCSStore uses Application Default Credentials unless a credentials file is given.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, config: cfg}, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) Put(ctx context.Context, path string, data []byte, contentType string) error {
	wc := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	wc.ContentType = contentType

	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return fmt.Errorf("failed to upload object: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}

func (s *GCSStore) Get(ctx context.Context, path string) ([]byte, error) {
	reader, err := s.client.Bucket(s.bucket).Object(path).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

func (s *GCSStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.Bucket(s.bucket).Object(path).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read object attributes: %w", err)
	}
	return true, nil
}

// Delete removes every path. Missing objects are not an error.
func (s *GCSStore) Delete(ctx context.Context, paths ...string) error {
	var errs []error
	for _, p := range paths {
		err := s.client.Bucket(s.bucket).Object(p).Delete(ctx)
		if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

func (s *GCSStore) PresignedURL(ctx context.Context, path string) (string, error) {
	u, err := s.client.Bucket(s.bucket).SignedURL(path, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(time.Duration(s.config.ExpireDays) * 24 * time.Hour),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign URL: %w", err)
	}
	return u, nil
}

func (s *GCSStore) PublicURL(path string) string {
	base := strings.TrimRight(s.config.PublicBaseURL, "/")
	if base == "" {
		base = "https://storage.googleapis.com/" + s.bucket
	}
	return base + "/" + (&url.URL{Path: path}).EscapedPath()
}
