// Package archive keeps a copy of every uploaded statement in Google Cloud
// Storage and reads documents back from gs:// URIs.
package archive

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

// Archive stores and retrieves statement files.
type Archive interface {
	// Upload stores data under objectName and returns its gs:// URI.
	Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error)

	// Fetch downloads the object at a gs:// URI.
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// ParseURI splits gs://bucket/path/to/file.pdf into bucket and object.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// FilenameFromURI returns the last path element of a gs:// URI.
// e.g., "gs://bucket/folder/file.pdf" → "file.pdf"
func FilenameFromURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

// ObjectName builds the object path for a document uploaded at t.
func ObjectName(t time.Time, documentID, filename string) string {
	return fmt.Sprintf("statements/%04d/%02d/%s-%s", t.Year(), int(t.Month()), documentID, path.Base(filename))
}

// Mock is an in-memory Archive for tests.
type Mock struct {
	Objects map[string][]byte
	Bucket  string
}

// NewMock creates an empty Mock.
func NewMock(bucket string) *Mock {
	return &Mock{Objects: map[string][]byte{}, Bucket: bucket}
}

// Upload stores data in Objects.
func (m *Mock) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	uri := fmt.Sprintf("gs://%s/%s", m.Bucket, objectName)
	m.Objects[uri] = append([]byte(nil), data...)
	return uri, nil
}

// Fetch returns a stored object.
func (m *Mock) Fetch(ctx context.Context, uri string) ([]byte, error) {
	data, ok := m.Objects[uri]
	if !ok {
		return nil, fmt.Errorf("Fetch: %s not found", uri)
	}
	return data, nil
}
