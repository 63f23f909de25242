package state

import (
	"context"
	"fmt"

	"github.com/lakeforge/lakeforge/internal/ir"
)

// Backend abstracts where state lives.
type Backend interface {
	Read(ctx context.Context) (*ir.State, error)
	Write(ctx context.Context, state *ir.State) error

	// Lock takes an exclusive lock on the state; Unlock releases it.
	Lock() error
	Unlock() error
}

// BackendConfig selects and configures a backend.
type BackendConfig struct {
	Type   string            `json:"type"` // "local" or "s3"
	Config map[string]string `json:"config"`
}

// NewBackend builds a backend from configuration. An empty type means a
// local state file.
func NewBackend(cfg *BackendConfig) (Backend, error) {
	if cfg == nil {
		cfg = &BackendConfig{Type: "local"}
	}
	switch cfg.Type {
	case "local", "":
		path := cfg.Config["path"]
		if path == "" {
			path = "lakeforge.state.json"
		}
		return &localBackend{mgr: NewManager(path)}, nil
	case "s3":
		return newS3Backend(cfg.Config)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}

type localBackend struct {
	mgr *Manager
}

func (b *localBackend) Read(ctx context.Context) (*ir.State, error) {
	return b.mgr.Read()
}

func (b *localBackend) Write(ctx context.Context, state *ir.State) error {
	return b.mgr.Write(state)
}

func (b *localBackend) Lock() error   { return b.mgr.Lock() }
func (b *localBackend) Unlock() error { return b.mgr.Unlock() }
