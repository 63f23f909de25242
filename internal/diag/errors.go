// Package diag defines the typed errors surfaced by parsing, planning and
// applying. Every error carries the offending resource address where one
// exists, so callers never have to dig through a cause chain to find out
// which declaration broke.
package diag

import (
	"fmt"
	"strings"
	"time"
)

// ParseError reports a malformed declaration. Nothing is planned or applied
// when one is returned.
type ParseError struct {
	Subject string // file or block the error originated in
	Detail  string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("parse error in %s: %s", e.Subject, e.Detail)
	}
	return fmt.Sprintf("parse error: %s", e.Detail)
}

func (e *ParseError) Unwrap() error { return e.Err }

// CycleError reports a dependency cycle, naming the participating addresses.
type CycleError struct {
	Addresses []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle between resources: %s", strings.Join(e.Addresses, ", "))
}

// UnresolvedReferenceError reports a reference to an undeclared resource.
type UnresolvedReferenceError struct {
	Address string // resource containing the reference
	Target  string // address the reference points at
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("resource %s references undeclared resource %s", e.Address, e.Target)
}

// SchemaViolationError reports a declaration that does not satisfy its
// kind's schema: wrong attribute type, missing required attribute, or an
// attempt to set a computed attribute.
type SchemaViolationError struct {
	Address string
	Err     error
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("invalid declaration for %s: %v", e.Address, e.Err)
}

func (e *SchemaViolationError) Unwrap() error { return e.Err }

// AdapterError wraps a provider-side failure. Retryable errors are retried
// with bounded exponential backoff before the node is marked failed.
type AdapterError struct {
	Address   string
	Operation string // "create", "update", "delete", "read"
	Retryable bool
	Err       error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s failed for %s: %v", e.Operation, e.Address, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// TimeoutError reports that asynchronous provisioning of a resource did not
// reach a terminal state within the configured bound.
type TimeoutError struct {
	Address string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("resource %s did not finish provisioning within %s", e.Address, e.Timeout)
}
