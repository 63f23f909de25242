package ir

import (
	"fmt"
	"strings"
)

// RefScheme prefixes a deferred reference to another resource's attribute.
// References are carried through attributes as marker strings of the form
// ref://<kind>.<name>/<attribute> and resolved against state at apply time.
const RefScheme = "ref://"

// PendingScheme prefixes a value that must be supplied manually before the
// resources consuming it can be applied, e.g. a provider-assigned principal
// from a separate reconciliation run.
const PendingScheme = "pending://"

// Resource is a single declared resource.
type Resource struct {
	Kind       string         `json:"kind"` // e.g. "aws_s3_bucket"
	Name       string         `json:"name"`
	Provider   string         `json:"provider"`
	DependsOn  []string       `json:"depends_on,omitempty"`
	Attributes map[string]any `json:"attributes"`

	// ForEach, when non-nil, expands the declaration into one resource per
	// key before planning. Attributes may carry ${each.key} and
	// ${each.value} placeholders.
	ForEach map[string]any `json:"for_each,omitempty"`
}

// Addr returns the unique address of the resource (kind.name).
func (r *Resource) Addr() string {
	return fmt.Sprintf("%s.%s", r.Kind, r.Name)
}

// Ref builds a reference marker for an attribute of the resource at addr.
func Ref(addr, attr string) string {
	return RefScheme + addr + "/" + attr
}

// ParseRef splits a reference marker into its target address and attribute.
// Returns ok=false if the string is not a reference marker.
func ParseRef(ref string) (addr, attr string, ok bool) {
	if !strings.HasPrefix(ref, RefScheme) {
		return "", "", false
	}
	rest := strings.TrimPrefix(ref, RefScheme)
	i := strings.IndexByte(rest, '/')
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

// Pending builds a pending-value marker with a human-readable label.
func Pending(label string) string {
	return PendingScheme + label
}

// IsPending reports whether v is a pending-value marker.
func IsPending(v any) bool {
	s, ok := v.(string)
	return ok && strings.HasPrefix(s, PendingScheme)
}
