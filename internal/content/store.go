// Package content manages document bodies on disk. Each registered document
// owns one markdown file under .weave/content/ wrapped in a small YAML
// frontmatter envelope that names the document it belongs to.
package content

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// NotFoundError reports a read for a document with no content file.
type NotFoundError struct {
	DocumentID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("content: no body for document %s", e.DocumentID)
}

// Store reads and writes document bodies.
type Store interface {
	Read(documentID string) ([]byte, error)
	Write(documentID string, body []byte) error
}

// FSStore keeps one file per document under a root directory.
type FSStore struct {
	dir string
	now func() time.Time
}

// FSOption customizes an FSStore during construction.
type FSOption func(*FSStore)

// WithClock overrides the clock used for creation timestamps.
func WithClock(clock func() time.Time) FSOption {
	return func(s *FSStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewFSStore builds a store rooted at dir.
func NewFSStore(dir string, opts ...FSOption) *FSStore {
	store := &FSStore{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Read returns the body of a document, without its frontmatter envelope.
func (s *FSStore) Read(documentID string) ([]byte, error) {
	path, err := s.pathFor(documentID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{DocumentID: documentID}
		}
		return nil, fmt.Errorf("content: read %s: %w", documentID, err)
	}
	meta, body, err := ParseFrontMatter(data)
	if err != nil {
		return nil, fmt.Errorf("content: %s: %w", documentID, err)
	}
	if meta.DocumentID != documentID {
		return nil, fmt.Errorf("content: file for %s carries metadata for %s", documentID, meta.DocumentID)
	}
	return body, nil
}

// Write persists a document body, preserving the original creation timestamp
// when the file already exists.
func (s *FSStore) Write(documentID string, body []byte) error {
	path, err := s.pathFor(documentID)
	if err != nil {
		return err
	}
	meta := Metadata{DocumentID: documentID, CreatedAt: s.now().UTC()}
	if existing, readErr := os.ReadFile(path); readErr == nil {
		if prior, _, parseErr := ParseFrontMatter(existing); parseErr == nil {
			meta.CreatedAt = prior.CreatedAt
			meta.Title = prior.Title
		}
	}
	if body == nil {
		body = []byte{}
	}
	rendered, err := WriteFrontMatter(meta, body)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, rendered, 0o644)
}

func (s *FSStore) pathFor(documentID string) (string, error) {
	id := strings.TrimSpace(documentID)
	if id == "" {
		return "", fmt.Errorf("content: empty document id")
	}
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '-'
		}
		return r
	}, id)
	return filepath.Join(s.dir, name+".md"), nil
}
