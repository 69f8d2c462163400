// Package blob stores uploaded media and returns the URL it is served from.
package blob

import (
	"context"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store persists a media object under a generated key and returns its URL.
type Store interface {
	Store(ctx context.Context, r io.Reader, size int64, contentType, name string) (string, error)
}

// Key builds a collision-free object key under prefix, keeping the original
// file extension or deriving one from contentType.
func Key(prefix, name, contentType string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if ext == "" {
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	return path.Join(prefix, uuid.NewString()+ext)
}
