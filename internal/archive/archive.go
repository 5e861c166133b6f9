// Package archive snapshots raw fetched page bodies so acquisitions can be
// audited and replayed. Snapshots are keyed by fetch date and a SHA-256 of
// the page URL; the backend is pluggable (GCS, local directory, memory).
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
)

// BlobStore persists one object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Archiver writes page snapshots through a BlobStore. A nil Archiver is
// valid and archives nothing.
type Archiver struct {
	store  BlobStore
	prefix string
	logger *zap.Logger
}

// New builds an Archiver over the given store. A nil store yields a nil
// Archiver, which disables archiving at every call site.
func New(store BlobStore, prefix string, logger *zap.Logger) *Archiver {
	if store == nil {
		return nil
	}
	if prefix == "" {
		prefix = "pages"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{store: store, prefix: prefix, logger: logger}
}

// Archive stores body under <prefix>/<date>/<sha256(url)>.<ext> and returns
// the backend URI. Disabled archivers return an empty URI and no error.
func (a *Archiver) Archive(ctx context.Context, pageURL, contentType string, fetchedAt time.Time, body []byte) (string, error) {
	if a == nil || a.store == nil {
		return "", nil
	}
	if strings.TrimSpace(pageURL) == "" {
		return "", fmt.Errorf("archive: page url is required")
	}

	objectPath := a.objectPath(pageURL, contentType, fetchedAt)
	uri, err := a.store.PutObject(ctx, objectPath, contentType, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", pageURL, err)
	}

	a.logger.Debug("page archived",
		zap.String("url", pageURL),
		zap.String("uri", uri),
		zap.Int("bytes", len(body)))
	return uri, nil
}

func (a *Archiver) objectPath(pageURL, contentType string, fetchedAt time.Time) string {
	urlHash := sha256.Sum256([]byte(pageURL))
	name := fmt.Sprintf("%x%s", urlHash, extensionFor(contentType))
	return path.Join(a.prefix, fetchedAt.UTC().Format("2006-01-02"), name)
}

func extensionFor(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "pdf"):
		return ".pdf"
	case strings.Contains(ct, "json"):
		return ".json"
	case ct == "" || strings.Contains(ct, "html"):
		return ".html"
	default:
		return ".bin"
	}
}
