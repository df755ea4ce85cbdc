package widget

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/programmedstyle/livechat/internal/domain"
)

// Snapshot is the widget state that survives restarts, the moral
// equivalent of the browser widget's localStorage blob.
type Snapshot struct {
	SessionID  string               `json:"sessionId"`
	Name       string               `json:"name,omitempty"`
	Email      string               `json:"email,omitempty"`
	HasStarted bool                 `json:"hasStarted"`
	Synced     bool                 `json:"synced"`
	Transcript []domain.ChatMessage `json:"transcript,omitempty"`
}

// FileStore persists widget snapshots as a JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a store at the given file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the persisted snapshot. A missing file is a fresh visitor and
// yields an empty snapshot; a corrupt file is discarded the same way rather
// than wedging the widget forever.
func (s *FileStore) Load() (Snapshot, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading widget state: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, nil
	}
	return snap, nil
}

// Save atomically writes the snapshot via a temp file rename.
func (s *FileStore) Save(snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("writing widget state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing widget state: %w", err)
	}
	return nil
}
