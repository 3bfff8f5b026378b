// Package export maintains the markdown document derived from a source's
// capture records.
//
// The document has two regions. Everything above the generated-body marker
// is the header: created once from source metadata, then treated as opaque
// user-owned text and preserved verbatim across syncs. Everything from the
// marker down is owned by this package and fully re-rendered from the
// capture set on every sync, so the file can always be regenerated from the
// database and never drifts from it.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/earmark-audio/earmark/internal/source"
	"github.com/earmark-audio/earmark/internal/store"
)

// Marker separates the user-owned header from the generated body.
const Marker = "<!-- earmark:generated -->"

// Metadata is the caller-supplied header input for a source. It is only
// used when the document does not exist yet.
type Metadata struct {
	Title string
	Tags  []string
}

// ListFunc supplies the authoritative capture set for a source. Sync calls
// it while holding the source's lock, so the set it returns can never go
// stale before the write lands.
type ListFunc func() ([]store.Capture, error)

// Syncer writes export documents under a single directory, one file per
// source, serializing the read-render-write cycle per source key.
type Syncer struct {
	dir string

	mu    sync.Mutex
	locks map[string]*lockEntry
}

// lockEntry is a per-source lock with a waiter count so the map entry can
// be dropped once the last sync for that source finishes.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewSyncer creates a syncer writing documents under dir.
func NewSyncer(dir string) *Syncer {
	return &Syncer{dir: dir, locks: make(map[string]*lockEntry)}
}

// Path returns the document path for a source key.
func (s *Syncer) Path(sourceKey string) string {
	return filepath.Join(s.dir, source.SanitizeID(sourceKey)+".md")
}

// Sync re-renders the document for sourceKey and writes it atomically. It
// returns the document path. The capture set is read through list under the
// source's lock: two syncs for the same source cannot interleave, so the
// document always reflects a set read after every earlier write.
//
// Failure here never invalidates already-persisted captures: the database
// is the source of truth and the document can be regenerated on demand.
func (s *Syncer) Sync(sourceKey string, list ListFunc, meta Metadata) (string, error) {
	lock := s.acquire(sourceKey)
	defer s.release(sourceKey, lock)

	captures, err := list()
	if err != nil {
		return "", fmt.Errorf("export: listing captures for %s: %w", sourceKey, err)
	}

	path := s.Path(sourceKey)

	header := ""
	if data, err := os.ReadFile(path); err == nil {
		header, _ = splitHeader(string(data))
	}
	if header == "" {
		header = renderHeader(meta)
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("export: creating %s: %w", s.dir, err)
	}

	doc := header + RenderBody(captures)

	// Write-then-rename so a reader never sees a half-written document.
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(doc), 0644); err != nil {
		return "", fmt.Errorf("export: writing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("export: replacing %s: %w", path, err)
	}

	return path, nil
}

func (s *Syncer) acquire(sourceKey string) *lockEntry {
	s.mu.Lock()
	e, ok := s.locks[sourceKey]
	if !ok {
		e = &lockEntry{}
		s.locks[sourceKey] = e
	}
	e.refs++
	s.mu.Unlock()

	e.mu.Lock()
	return e
}

func (s *Syncer) release(sourceKey string, e *lockEntry) {
	e.mu.Unlock()

	s.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(s.locks, sourceKey)
	}
	s.mu.Unlock()
}

// RenderBody renders the generated region for a capture set. Captures must
// already be ordered by anchor (store.ListForSource guarantees this); the
// same input always yields byte-identical output.
func RenderBody(captures []store.Capture) string {
	var b strings.Builder
	b.WriteString(Marker)
	b.WriteString("\n")

	if len(captures) == 0 {
		b.WriteString("\n_No captures yet._\n")
		return b.String()
	}

	for _, c := range captures {
		fmt.Fprintf(&b, "\n## %s\n\n", msToClock(c.AnchorMs))
		fmt.Fprintf(&b, "Window %s – %s · captured %s\n\n",
			msToClock(c.WindowStartMs), msToClock(c.WindowEndMs),
			c.CreatedAt.UTC().Format(time.RFC3339))

		if text := strings.TrimSpace(c.Transcription); text != "" {
			b.WriteString(text)
			b.WriteString("\n")
		} else {
			b.WriteString("_No speech detected._\n")
		}

		if notes := strings.TrimSpace(c.Notes); notes != "" {
			b.WriteString("\n")
			for _, line := range strings.Split(notes, "\n") {
				fmt.Fprintf(&b, "> %s\n", line)
			}
		}
	}

	return b.String()
}

// renderHeader builds the initial user-editable region for a new document.
func renderHeader(meta Metadata) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "title: %q\n", meta.Title)
	if len(meta.Tags) > 0 {
		fmt.Fprintf(&b, "tags: [%s]\n", strings.Join(meta.Tags, ", "))
	} else {
		b.WriteString("tags: []\n")
	}
	b.WriteString("---\n\n")
	return b.String()
}

// splitHeader returns everything above the generated-body marker. ok is
// false when the document carries no marker (treated as having no header
// worth preserving, since the whole file will be regenerated).
func splitHeader(doc string) (string, bool) {
	i := strings.Index(doc, Marker)
	if i < 0 {
		return "", false
	}
	return doc[:i], true
}

// msToClock renders a millisecond offset as mm:ss or h:mm:ss.
func msToClock(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}
