package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Resolver maps a source to a readable file path.
type Resolver interface {
	Resolve(src Source) (string, error)
}

// FileResolver resolves local files to their own path and remote episodes
// to a file under DownloadsDir named by a sanitized GUID (any extension).
type FileResolver struct {
	DownloadsDir string
}

// NewFileResolver creates a resolver rooted at the given downloads directory.
func NewFileResolver(downloadsDir string) *FileResolver {
	return &FileResolver{DownloadsDir: downloadsDir}
}

// Resolve returns the readable path for src, or an error if the backing
// file does not exist.
func (r *FileResolver) Resolve(src Source) (string, error) {
	switch src.Kind() {
	case KindLocalFile:
		path := src.ID()
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("source: local file %s: %w", path, err)
		}
		return path, nil

	case KindRemoteEpisode:
		base := SanitizeID(src.ID())
		matches, err := filepath.Glob(filepath.Join(r.DownloadsDir, base+".*"))
		if err != nil {
			return "", fmt.Errorf("source: scanning downloads for %s: %w", src.ID(), err)
		}
		if len(matches) == 0 {
			return "", fmt.Errorf("source: episode %s not downloaded", src.ID())
		}
		return matches[0], nil

	default:
		return "", fmt.Errorf("source: cannot resolve zero source")
	}
}

// SanitizeID converts an arbitrary identifier into a filesystem-safe name.
// Download and export filenames share this mapping.
func SanitizeID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
