package graph

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/weave/internal/relation"
	"github.com/kingrea/weave/internal/revision"
)

// documentFile is the on-disk shape of one document: its revision rows and
// its outgoing edge rows, mirrors included.
type documentFile struct {
	Weave     documentMeta     `yaml:"weave"`
	Revisions []revision.Entry `yaml:"revisions"`
	Edges     []edgeRecord     `yaml:"edges,omitempty"`
}

type documentMeta struct {
	Document string `yaml:"document"`
	Title    string `yaml:"title,omitempty"`
}

type edgeRecord struct {
	To      string    `yaml:"to"`
	Type    string    `yaml:"type"`
	Created time.Time `yaml:"created"`
}

// Save writes one YAML file per document into dir.
func (s *Store) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("graph: ensure %s: %w", dir, err)
	}
	for _, doc := range s.Documents() {
		file := documentFile{
			Weave:     documentMeta{Document: doc.ID(), Title: doc.Title()},
			Revisions: doc.Log().Snapshot(),
		}
		for _, edge := range doc.Edges() {
			file.Edges = append(file.Edges, edgeRecord{
				To:      edge.To,
				Type:    edge.Label(),
				Created: edge.CreatedAt,
			})
		}
		data, err := yaml.Marshal(file)
		if err != nil {
			return fmt.Errorf("graph: encode %s: %w", doc.ID(), err)
		}
		path := filepath.Join(dir, fileNameFor(doc.ID()))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("graph: write %s: %w", path, err)
		}
	}
	return nil
}

// Load rebuilds a store from the files Save produced. Forward edge rows are
// replayed through the store so the mirror invariant is reconstructed rather
// than trusted; reverse rows are then cross-checked against the rebuilt state.
func Load(dir string, opts ...Option) (*Store, error) {
	store := NewStore(opts...)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return store, nil
		}
		return nil, fmt.Errorf("graph: read %s: %w", dir, err)
	}
	files := make([]documentFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("graph: read %s: %w", path, err)
		}
		var file documentFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("graph: parse %s: %w", path, err)
		}
		if file.Weave.Document == "" {
			return nil, fmt.Errorf("graph: %s missing document id", path)
		}
		files = append(files, file)
	}
	for _, file := range files {
		log, err := revision.Restore(file.Revisions)
		if err != nil {
			return nil, fmt.Errorf("graph: document %s: %w", file.Weave.Document, err)
		}
		if err := store.restoreDocument(file.Weave.Document, file.Weave.Title, log); err != nil {
			return nil, err
		}
	}
	for _, file := range files {
		for _, record := range file.Edges {
			kind, err := relation.Classify(record.Type)
			if err != nil {
				// Reverse rows are rebuilt from their forward side.
				if _, ok := reverseKindOf(record.Type); ok {
					continue
				}
				return nil, fmt.Errorf("graph: document %s: %w", file.Weave.Document, err)
			}
			store.mu.Lock()
			_, err = store.addEdgeLocked(file.Weave.Document, record.To, kind, record.Created)
			store.mu.Unlock()
			if err != nil {
				return nil, fmt.Errorf("graph: document %s: %w", file.Weave.Document, err)
			}
		}
	}
	for _, file := range files {
		if err := store.checkLoadedEdges(file); err != nil {
			return nil, err
		}
	}
	if err := store.Verify(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) restoreDocument(id, title string, log *revision.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.documents[id]; exists {
		return &DuplicateDocumentError{ID: id}
	}
	s.documents[id] = &Document{id: id, title: title, log: log}
	s.order = append(s.order, id)
	return nil
}

// checkLoadedEdges confirms the rebuilt outgoing set matches the persisted
// rows, catching files whose reverse rows lost their forward counterpart.
func (s *Store) checkLoadedEdges(file documentFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.documents[file.Weave.Document]
	if len(doc.edges) != len(file.Edges) {
		return &InvariantViolationError{
			Detail: fmt.Sprintf("document %s persisted %d edges but %d were reconstructed",
				file.Weave.Document, len(file.Edges), len(doc.edges)),
		}
	}
	for _, record := range file.Edges {
		key, err := keyForRecord(file.Weave.Document, record)
		if err != nil {
			return err
		}
		if !doc.hasEdge(key) {
			return &InvariantViolationError{
				Detail: fmt.Sprintf("document %s persisted edge -[%s]-> %s was not reconstructed",
					file.Weave.Document, record.Type, record.To),
			}
		}
	}
	return nil
}

func keyForRecord(from string, record edgeRecord) (edgeKey, error) {
	if kind, err := relation.Classify(record.Type); err == nil {
		return edgeKey{from: from, to: record.To, kind: kind}, nil
	}
	if kind, ok := reverseKindOf(record.Type); ok {
		return edgeKey{from: from, to: record.To, kind: kind, reverse: true}, nil
	}
	return edgeKey{}, &relation.UnknownKindError{Label: record.Type}
}

func reverseKindOf(label string) (relation.Kind, bool) {
	for _, kind := range relation.Kinds() {
		if label == kind.ReverseLabel() {
			return kind, true
		}
	}
	return 0, false
}

func fileNameFor(id string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '-'
		default:
			return r
		}
	}, id)
	return sanitized + ".yaml"
}
