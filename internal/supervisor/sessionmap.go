package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

const sessionMapFileName = ".opencode-sessions.json"

// SessionMap persists the derived-UUID -> original-opaque-string
// mapping for adapters (currently only opencode) whose session
// identifier is not itself a UUID. One SessionMap lives per worktree.
type SessionMap struct {
	mu   sync.Mutex
	path string
}

// NewSessionMap returns a SessionMap rooted at worktreePath.
func NewSessionMap(worktreePath string) *SessionMap {
	return &SessionMap{path: filepath.Join(worktreePath, sessionMapFileName)}
}

func (m *SessionMap) load() (map[string]string, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	out := map[string]string{}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", m.path, err)
	}
	return out, nil
}

// Put records that derived maps to original, persisting immediately.
func (m *SessionMap) Put(derived uuid.UUID, original string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mapping, err := m.load()
	if err != nil {
		return err
	}
	mapping[derived.String()] = original
	data, err := json.MarshalIndent(mapping, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0o644)
}

// Original resolves a derived UUID back to its original opaque
// session string, used when resuming a session.
func (m *SessionMap) Original(derived uuid.UUID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mapping, err := m.load()
	if err != nil {
		return "", false
	}
	original, ok := mapping[derived.String()]
	return original, ok
}
