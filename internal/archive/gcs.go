package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/statement-consolidator/internal/apperror"
)

// GCS is an Archive backed by one bucket. It assumes Application Default
// Credentials are configured.
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS creates a storage client for bucket.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCS: create storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

// Upload writes data to gs://bucket/objectName.
func (g *GCS) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Upload: copy to GCS writer: %w", &apperror.UpstreamError{Service: "gcs", Err: err})
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Upload: finalize upload: %w", &apperror.UpstreamError{Service: "gcs", Err: err})
	}
	return fmt.Sprintf("gs://%s/%s", g.bucket, objectName), nil
}

// Fetch downloads the object at uri. The bucket in uri may differ from the
// archive bucket.
func (g *GCS) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	rc, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, &apperror.UpstreamError{Service: "gcs", Err: err})
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}
	return data, nil
}

// Close releases the storage client.
func (g *GCS) Close() error {
	return g.client.Close()
}
