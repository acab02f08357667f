// Package media persists generated binary artifacts and maps them to
// retrievable URLs. Message rows only ever carry the URL.
package media

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// Kind names the artifact family and becomes the first path segment.
const (
	KindAudio = "audio"
	KindImage = "image"
)

// Store persists binary artifacts.
type Store interface {
	// Save writes the artifact and returns its public URL. Objects
	// live under <kind>/<sessionID>/<messageID>.<ext>.
	Save(ctx context.Context, kind, sessionID, messageID, ext string, data []byte) (string, error)
}

var safeSegment = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// FileStore implements Store on the local filesystem.
type FileStore struct {
	dir     string
	baseURL string
}

// NewFileStore creates a filesystem media store rooted at dir. URLs
// are formed by joining baseURL with the object path.
func NewFileStore(dir, baseURL string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("media dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating media dir: %w", err)
	}
	return &FileStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Save implements Store
func (s *FileStore) Save(_ context.Context, kind, sessionID, messageID, ext string, data []byte) (string, error) {
	for _, seg := range []string{kind, sessionID, messageID, ext} {
		if !safeSegment.MatchString(seg) {
			return "", fmt.Errorf("invalid media path segment %q", seg)
		}
	}

	rel := path.Join(kind, sessionID, messageID+"."+ext)
	full := filepath.Join(s.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("creating media subdir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("writing media object: %w", err)
	}
	return s.baseURL + "/" + rel, nil
}

// Handler serves stored objects. Mount it at the base URL path.
func (s *FileStore) Handler() http.Handler {
	return http.FileServer(http.Dir(s.dir))
}
