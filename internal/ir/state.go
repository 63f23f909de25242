package ir

import "fmt"

// State is the persisted record of everything previously applied.
type State struct {
	Version   int                `json:"version"`
	Serial    int                `json:"serial"`
	Lineage   string             `json:"lineage"`
	Resources []*ResourceState   `json:"resources"`
	Outputs   map[string]*Output `json:"outputs,omitempty"`
}

// ResourceState is the last-applied snapshot of one resource.
type ResourceState struct {
	Kind         string         `json:"kind"`
	Name         string         `json:"name"`
	Provider     string         `json:"provider"`
	Inputs       map[string]any `json:"inputs"` // declared attributes, references unresolved
	InputsHash   string         `json:"inputs_hash"`
	Outputs      map[string]any `json:"outputs"` // realized attributes from the provider
	Dependencies []string       `json:"dependencies,omitempty"`
}

// Addr returns the unique address of the recorded resource (kind.name).
func (r *ResourceState) Addr() string {
	return fmt.Sprintf("%s.%s", r.Kind, r.Name)
}

// NewState returns an empty state at version 1.
func NewState() *State {
	return &State{Version: 1, Serial: 0}
}

// Resource returns the state entry at addr, or nil.
func (s *State) Resource(addr string) *ResourceState {
	for _, r := range s.Resources {
		if r.Addr() == addr {
			return r
		}
	}
	return nil
}
