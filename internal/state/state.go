// Package state persists reconciliation state locally or in S3, with
// optional transparent encryption and exclusive locking.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/lakeforge/lakeforge/internal/ir"
)

// Manager reads and writes state on the local filesystem.
type Manager struct {
	path string
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Read loads state from the configured path. A missing file yields a fresh
// empty state. Encrypted files are transparently decrypted.
func (m *Manager) Read() (*ir.State, error) {
	raw, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return ir.NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", m.path, err)
	}
	return Unmarshal(raw)
}

// Write saves state atomically: the file is written to a temp path in the
// same directory and renamed over the target, so a crash mid-write never
// leaves a truncated state file. If LAKEFORGE_STATE_ENCRYPTION_KEY is set
// the content is encrypted first.
func (m *Manager) Write(state *ir.State) error {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	content, err := Marshal(state)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".lakeforge-state-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set state file mode: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Marshal serializes and, when a key is configured, encrypts state.
// A state without a lineage is assigned one on its first serialization.
func Marshal(state *ir.State) ([]byte, error) {
	if state.Lineage == "" {
		state.Lineage = uuid.NewString()
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize state: %w", err)
	}
	data = append(data, '\n')

	encrypted, err := Encrypt(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt state: %w", err)
	}
	return encrypted, nil
}

// Unmarshal decrypts (if needed) and parses state content.
func Unmarshal(raw []byte) (*ir.State, error) {
	if IsEncrypted(raw) {
		decrypted, err := Decrypt(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt state: %w", err)
		}
		raw = decrypted
	}

	var state ir.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	if state.Version == 0 {
		return nil, fmt.Errorf("state file has no version")
	}
	return &state, nil
}
