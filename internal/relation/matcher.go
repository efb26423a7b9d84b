package relation

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
	"gopkg.in/yaml.v3"
)

// Matcher resolves free-text relationship descriptions to a canonical Kind.
// Matching is best-effort judgment and lives outside the registry: a Matcher
// must resolve to one of the five kinds before Classify is consulted.
type Matcher interface {
	Match(label string) (Kind, bool)
}

// FuzzyMatcher resolves labels through exact lookup, an alias table, and
// finally fuzzy search over the known labels.
type FuzzyMatcher struct {
	aliases    map[string]Kind
	candidates []string
	byLower    map[string]Kind
}

// MatcherOption customizes FuzzyMatcher construction.
type MatcherOption func(*FuzzyMatcher)

// WithAliases merges additional alias -> kind mappings into the matcher.
func WithAliases(aliases map[string]Kind) MatcherOption {
	return func(m *FuzzyMatcher) {
		for alias, kind := range aliases {
			key := normalizeLabel(alias)
			if key == "" || !kind.Valid() {
				continue
			}
			m.aliases[key] = kind
		}
	}
}

// NewFuzzyMatcher builds a matcher seeded with the five canonical labels.
func NewFuzzyMatcher(opts ...MatcherOption) *FuzzyMatcher {
	m := &FuzzyMatcher{
		aliases: map[string]Kind{},
		byLower: map[string]Kind{},
	}
	for _, kind := range Kinds() {
		m.byLower[normalizeLabel(kind.Label())] = kind
	}
	for _, opt := range opts {
		opt(m)
	}
	m.rebuildCandidates()
	return m
}

// Match resolves label to a Kind. It reports false when no candidate is close
// enough; callers decide how to surface that to the operator.
func (m *FuzzyMatcher) Match(label string) (Kind, bool) {
	key := normalizeLabel(label)
	if key == "" {
		return 0, false
	}
	if kind, ok := m.byLower[key]; ok {
		return kind, true
	}
	if kind, ok := m.aliases[key]; ok {
		return kind, true
	}
	matches := fuzzy.Find(key, m.candidates)
	if len(matches) == 0 {
		return 0, false
	}
	best := matches[0].Str
	if kind, ok := m.byLower[best]; ok {
		return kind, true
	}
	kind, ok := m.aliases[best]
	return kind, ok
}

func (m *FuzzyMatcher) rebuildCandidates() {
	m.candidates = m.candidates[:0]
	for key := range m.byLower {
		m.candidates = append(m.candidates, key)
	}
	for key := range m.aliases {
		m.candidates = append(m.candidates, key)
	}
	sort.Strings(m.candidates)
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

type aliasFile struct {
	Aliases map[string]string `yaml:"aliases"`
}

// LoadAliases reads an alias table from a YAML file. A missing file yields an
// empty table; alias values must be canonical forward labels.
func LoadAliases(path string) (map[string]Kind, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]Kind{}, nil
		}
		return nil, fmt.Errorf("relation: read aliases %s: %w", path, err)
	}
	var parsed aliasFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("relation: parse aliases %s: %w", path, err)
	}
	aliases := make(map[string]Kind, len(parsed.Aliases))
	for alias, label := range parsed.Aliases {
		kind, err := Classify(strings.TrimSpace(label))
		if err != nil {
			return nil, fmt.Errorf("relation: alias %q: %w", alias, err)
		}
		aliases[normalizeLabel(alias)] = kind
	}
	return aliases, nil
}
