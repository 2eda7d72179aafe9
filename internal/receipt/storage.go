package receipt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Storage stores original receipt images. The returned URL is opaque to the
// rest of the system: nothing here ever inspects, regenerates, deletes or
// mutates a stored blob.
type Storage interface {
	// Store saves the image and returns a resolvable URL for it
	Store(ctx context.Context, data []byte, mimeType string) (string, error)
}

// extensionFor maps the accepted mime types to a file extension.
func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	default:
		return ".bin"
	}
}

// LocalStorage implements Storage on the local filesystem. Files are served
// back by the HTTP server under /files/.
type LocalStorage struct {
	basePath string
	baseURL  string
}

// NewLocalStorage creates a LocalStorage rooted at basePath. baseURL is the
// externally visible prefix for stored files, e.g. "http://localhost:8080".
func NewLocalStorage(basePath, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
		baseURL:  baseURL,
	}, nil
}

// Store saves the image under a random name and returns its /files/ URL.
func (l *LocalStorage) Store(ctx context.Context, data []byte, mimeType string) (string, error) {
	name := uuid.NewString() + extensionFor(mimeType)
	path := filepath.Join(l.basePath, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return l.baseURL + "/files/" + name, nil
}

// Dir returns the directory files are stored in, for the HTTP file handler.
func (l *LocalStorage) Dir() string {
	return l.basePath
}
