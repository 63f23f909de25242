// Package provider defines the contract between the reconciliation engine
// and the adapters that talk to external services. Adapters implement CRUD
// per resource kind; the engine owns ordering, diffing and state.
package provider

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read when the resource no longer exists on the
// provider side.
var ErrNotFound = errors.New("resource not found")

// ErrInProgress is returned by Read while an asynchronous provisioning
// operation has not yet reached a terminal state. The engine polls with
// bounded backoff until the error clears or the node times out.
var ErrInProgress = errors.New("provisioning in progress")

// CreateRequest asks the adapter to create a resource.
type CreateRequest struct {
	Kind    string
	Name    string
	Desired map[string]any
}

// UpdateRequest asks the adapter to update a resource in place.
type UpdateRequest struct {
	Kind    string
	Name    string
	ID      string
	Desired map[string]any
	Prior   map[string]any
	// Changed lists the attribute names that differ from prior state, so
	// adapters can issue only the API calls those attributes need.
	Changed []string
}

// DeleteRequest asks the adapter to delete a resource.
type DeleteRequest struct {
	Kind  string
	ID    string
	Prior map[string]any
}

// ReadRequest asks the adapter for the current realized attributes.
type ReadRequest struct {
	Kind  string
	ID    string
	Prior map[string]any
}

// Response carries the realized attributes of a resource, including
// provider-computed fields such as generated ARNs and keys.
type Response struct {
	Attributes map[string]any
	// InProgress signals that provisioning was accepted but has not
	// finished; the engine polls Read until it reports a terminal state.
	InProgress bool
}

// Provider is an adapter for one external service.
type Provider interface {
	// Configure passes provider-level settings (region, account, ...)
	// before any resource operation.
	Configure(ctx context.Context, settings map[string]any) error

	Create(ctx context.Context, req *CreateRequest) (*Response, error)
	Update(ctx context.Context, req *UpdateRequest) (*Response, error)
	Delete(ctx context.Context, req *DeleteRequest) error
	Read(ctx context.Context, req *ReadRequest) (*Response, error)
}
