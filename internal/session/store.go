package session

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrStateNotFound is returned when no persisted session state exists yet.
var ErrStateNotFound = errors.New("session: state not found")

// StateStore persists session state snapshots.
type StateStore interface {
	Load() (State, error)
	Save(State) error
}

// Repository stores session state as JSON at a fixed path, normally
// .weave/engine/state.json.
type Repository struct {
	path string
}

// NewRepository creates a repository writing to the given path.
func NewRepository(path string) *Repository {
	return &Repository{path: path}
}

// Load reads the persisted state if present.
func (r *Repository) Load() (State, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return State{}, ErrStateNotFound
		}
		return State{}, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, err
	}
	return state, nil
}

// Save writes the session state to disk.
func (r *Repository) Save(state State) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.path, append(encoded, '\n'), 0o644)
}
