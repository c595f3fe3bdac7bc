// Package storage uploads generated scene assets and returns the URL the
// reader app fetches them from.
package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// AssetStore persists an asset and returns its public URL.
type AssetStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// ObjectKey is the object path of one scene asset of a book.
func ObjectKey(bookID string, sceneID int, modality, extension string) string {
	return fmt.Sprintf("books/%s/scene-%d-%s.%s", bookID, sceneID, modality, strings.TrimPrefix(extension, "."))
}

// GCSStore writes objects to a Google Cloud Storage bucket.
type GCSStore struct {
	client        *storage.Client
	bucket        string
	publicBaseURL string
	uploadTimeout time.Duration
}

type GCSOptions struct {
	Bucket          string
	PublicBaseURL   string
	CredentialsFile string
	UploadTimeout   time.Duration
}

func NewGCSStore(ctx context.Context, opts GCSOptions) (*GCSStore, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	clientOpts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return newGCSStoreWithClient(client, opts), nil
}

func newGCSStoreWithClient(client *storage.Client, opts GCSOptions) *GCSStore {
	timeout := opts.UploadTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &GCSStore{
		client:        client,
		bucket:        opts.Bucket,
		publicBaseURL: strings.TrimRight(opts.PublicBaseURL, "/"),
		uploadTimeout: timeout,
	}
}

func (s *GCSStore) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return s.PublicURL(key), nil
}

// PublicURL uses the configured CDN base when set, the storage.googleapis.com host otherwise.
func (s *GCSStore) PublicURL(key string) string {
	if s.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s", s.publicBaseURL, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key)
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

// DataURIStore embeds assets in the returned URL. Used when no bucket is configured.
type DataURIStore struct{}

func (DataURIStore) Upload(_ context.Context, _ string, contentType string, data []byte) (string, error) {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
