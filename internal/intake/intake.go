// Package intake turns uploaded files into documents ready for extraction.
// ZIP archives are expanded into their supported entries.
package intake

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-consolidator/internal/archive"
	"github.com/dvloznov/statement-consolidator/internal/logger"
)

var (
	// ErrUnsupportedType means the file is not a PDF or an accepted image.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrTooLarge means the file exceeds the configured size limit.
	ErrTooLarge = errors.New("file too large")
)

// DefaultMaxFileSize is 10 MB.
const DefaultMaxFileSize = 10 * 1024 * 1024

// DefaultAcceptedTypes lists the MIME types sent to the model.
var DefaultAcceptedTypes = []string{"application/pdf", "image/png", "image/jpeg", "image/jpg", "image/webp"}

var extensionTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

// Document is one statement file.
type Document struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MIMEType  string `json:"mime_type"`
	Size      int    `json:"size"`
	SourceURI string `json:"source_uri,omitempty"`
	Data      []byte `json:"-"`
}

// Skipped records a file that was not turned into a document.
type Skipped struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Result is the outcome of adding one upload.
type Result struct {
	Documents []*Document `json:"documents"`
	Skipped   []Skipped   `json:"skipped,omitempty"`
}

// Options configures an Intake.
type Options struct {
	MaxFileSize   int64
	AcceptedTypes []string
}

// Intake validates uploads and expands archives.
type Intake struct {
	maxSize  int64
	accepted map[string]bool
	fetcher  archive.Archive
}

// New creates an Intake. fetcher resolves gs:// paths and may be nil.
func New(opts Options, fetcher archive.Archive) *Intake {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if len(opts.AcceptedTypes) == 0 {
		opts.AcceptedTypes = DefaultAcceptedTypes
	}
	accepted := make(map[string]bool, len(opts.AcceptedTypes))
	for _, t := range opts.AcceptedTypes {
		accepted[strings.ToLower(t)] = true
	}
	return &Intake{maxSize: opts.MaxFileSize, accepted: accepted, fetcher: fetcher}
}

// DetectMIMEType guesses the type of a file from its extension, then from
// its content.
func DetectMIMEType(name string, data []byte) string {
	if t, ok := extensionTypes[strings.ToLower(path.Ext(name))]; ok {
		return t
	}
	if strings.EqualFold(path.Ext(name), ".zip") {
		return "application/zip"
	}
	t := http.DetectContentType(data)
	if i := strings.Index(t, ";"); i != -1 {
		t = t[:i]
	}
	return t
}

func isZip(name, mimeType string) bool {
	switch mimeType {
	case "application/zip", "application/x-zip-compressed":
		return true
	}
	return strings.EqualFold(path.Ext(name), ".zip")
}

// Add validates one uploaded file. A ZIP archive yields one document per
// supported entry; unsupported entries are reported in Result.Skipped.
func (in *Intake) Add(ctx context.Context, name string, data []byte, mimeType string) (*Result, error) {
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = DetectMIMEType(name, data)
	}
	if isZip(name, mimeType) {
		return in.expandZip(ctx, name, data)
	}

	doc, err := in.document(name, data, mimeType)
	if err != nil {
		return nil, err
	}
	return &Result{Documents: []*Document{doc}}, nil
}

// AddPath reads a local file or a gs:// object and adds it.
func (in *Intake) AddPath(ctx context.Context, p string) (*Result, error) {
	var (
		data []byte
		name string
		err  error
	)
	if strings.HasPrefix(p, "gs://") {
		if in.fetcher == nil {
			return nil, fmt.Errorf("AddPath: %s: no archive configured for gs:// paths", p)
		}
		data, err = in.fetcher.Fetch(ctx, p)
		name = archive.FilenameFromURI(p)
	} else {
		data, err = os.ReadFile(p)
		name = filepath.Base(p)
	}
	if err != nil {
		return nil, fmt.Errorf("AddPath: %w", err)
	}

	res, err := in.Add(ctx, name, data, "")
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(p, "gs://") {
		for _, d := range res.Documents {
			d.SourceURI = p
		}
	}
	return res, nil
}

func (in *Intake) document(name string, data []byte, mimeType string) (*Document, error) {
	mimeType = strings.ToLower(mimeType)
	if !in.accepted[mimeType] {
		return nil, fmt.Errorf("%s (%s): %w", name, mimeType, ErrUnsupportedType)
	}
	if int64(len(data)) > in.maxSize {
		return nil, fmt.Errorf("%s is %d bytes, limit is %d: %w", name, len(data), in.maxSize, ErrTooLarge)
	}
	if mimeType == "image/jpg" {
		mimeType = "image/jpeg"
	}
	return &Document{
		ID:       uuid.New().String(),
		Name:     name,
		MIMEType: mimeType,
		Size:     len(data),
		Data:     data,
	}, nil
}

func (in *Intake) expandZip(ctx context.Context, name string, data []byte) (*Result, error) {
	log := logger.FromContext(ctx)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("expandZip: %s: %w", name, err)
	}

	res := &Result{Documents: []*Document{}}
	for _, f := range zr.File {
		entry := path.Base(f.Name)
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") || strings.HasPrefix(entry, ".") {
			continue
		}

		mimeType, ok := extensionTypes[strings.ToLower(path.Ext(entry))]
		if !ok {
			res.Skipped = append(res.Skipped, Skipped{Name: entry, Reason: ErrUnsupportedType.Error()})
			continue
		}
		if f.UncompressedSize64 > uint64(in.maxSize) {
			res.Skipped = append(res.Skipped, Skipped{Name: entry, Reason: ErrTooLarge.Error()})
			continue
		}

		content, err := readEntry(f, in.maxSize)
		if err != nil {
			return nil, fmt.Errorf("expandZip: %s: %w", f.Name, err)
		}
		doc, err := in.document(entry, content, mimeType)
		if err != nil {
			res.Skipped = append(res.Skipped, Skipped{Name: entry, Reason: err.Error()})
			continue
		}
		res.Documents = append(res.Documents, doc)
	}

	log.Info().
		Str("archive", name).
		Int("documents", len(res.Documents)).
		Int("skipped", len(res.Skipped)).
		Msg("expanded zip archive")
	return res, nil
}

func readEntry(f *zip.File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, err
	}
	return data, nil
}
