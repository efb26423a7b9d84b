package content

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingFrontMatter indicates the file did not start with a YAML fence.
	ErrMissingFrontMatter = errors.New("content: missing frontmatter")
	// ErrMalformedFrontMatter indicates the YAML block could not be parsed.
	ErrMalformedFrontMatter = errors.New("content: malformed frontmatter")
)

// Metadata identifies the document a content file belongs to.
type Metadata struct {
	DocumentID string
	Title      string
	CreatedAt  time.Time
}

// ParseFrontMatter extracts the metadata block and body from a file that
// starts with `---` YAML fences.
func ParseFrontMatter(data []byte) (Metadata, []byte, error) {
	if len(data) == 0 {
		return Metadata{}, nil, ErrMissingFrontMatter
	}
	normalized := normalizeNewlines(data)
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return Metadata{}, nil, ErrMissingFrontMatter
	}
	rest := normalized[4:]
	parts := bytes.SplitN(rest, []byte("\n---\n"), 2)
	if len(parts) < 2 {
		return Metadata{}, nil, ErrMalformedFrontMatter
	}
	var envelope weaveEnvelope
	if err := yaml.Unmarshal(parts[0], &envelope); err != nil {
		return Metadata{}, nil, fmt.Errorf("content: parse frontmatter: %w", err)
	}
	meta, err := envelope.toMetadata()
	if err != nil {
		return Metadata{}, nil, err
	}
	body := bytes.TrimPrefix(parts[1], []byte("\n"))
	return meta, body, nil
}

// WriteFrontMatter renders metadata + body with YAML fences.
func WriteFrontMatter(meta Metadata, body []byte) ([]byte, error) {
	if meta.DocumentID == "" {
		return nil, fmt.Errorf("content: metadata missing document id")
	}
	envelope := weaveEnvelope{}
	envelope.fromMetadata(meta)
	data, err := yaml.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("content: encode frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(bytes.TrimRight(data, "\n"))
	buf.WriteString("\n---\n\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

type weaveEnvelope struct {
	Weave weaveMetadata `yaml:"weave"`
}

type weaveMetadata struct {
	Document string `yaml:"document"`
	Title    string `yaml:"title,omitempty"`
	Created  string `yaml:"created"`
}

func (e weaveEnvelope) toMetadata() (Metadata, error) {
	if e.Weave.Document == "" {
		return Metadata{}, ErrMalformedFrontMatter
	}
	created, err := parseTime(e.Weave.Created)
	if err != nil {
		return Metadata{}, fmt.Errorf("content: parse created timestamp: %w", err)
	}
	return Metadata{DocumentID: e.Weave.Document, Title: e.Weave.Title, CreatedAt: created}, nil
}

func (e *weaveEnvelope) fromMetadata(meta Metadata) {
	e.Weave.Document = meta.DocumentID
	e.Weave.Title = meta.Title
	e.Weave.Created = meta.CreatedAt.UTC().Format(timeLayout)
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func parseTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("content: empty created timestamp")
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func normalizeNewlines(data []byte) []byte {
	return bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
}
