package assets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"

	"github.com/AyonJD/medeasy-scraper/internal/scraper"
)

// GCSStore writes assets to a Google Cloud Storage bucket and returns gs://
// URIs.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
	clock  scraper.Clock
}

// NewGCSStore creates a GCS-backed asset store.
func NewGCSStore(client *storage.Client, bucket, prefix string, clock scraper.Clock) (*GCSStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("assets.gcs_bucket is required")
	}
	return &GCSStore{client: client, bucket: bucket, prefix: prefix, clock: clock}, nil
}

var contentTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"html": "text/html; charset=utf-8",
}

// Save uploads data under the configured prefix and returns its gs:// URI.
func (s *GCSStore) Save(ctx context.Context, kind, ext string, data []byte) (string, error) {
	now := s.clock.Now()
	objPath := path.Join(s.prefix, kind, now.Format("2006"), now.Format("01"), assetName(now, data, ext))

	writer := s.client.Bucket(s.bucket).Object(objPath).NewWriter(ctx)
	if ct, ok := contentTypes[ext]; ok {
		writer.ContentType = ct
	}
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, objPath), nil
}
