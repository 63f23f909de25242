// Package schema defines the registry of known resource kinds and their
// attribute specifications. The plan engine consults it to validate
// declarations, decide which attribute changes force replacement, and to
// know which attributes are provider-computed and therefore never diffed.
package schema

import (
	"fmt"
	"sort"
)

// AttrType is the expected type of a declared attribute value.
type AttrType string

const (
	TypeString AttrType = "string"
	TypeNumber AttrType = "number"
	TypeBool   AttrType = "bool"
	TypeList   AttrType = "list"
	TypeMap    AttrType = "map"
)

// Attribute describes one attribute of a resource kind.
type Attribute struct {
	Type     AttrType
	Required bool
	// Computed attributes are assigned by the provider after creation
	// (ARNs, generated identifiers, access keys). They cannot be declared
	// and are excluded from diffs.
	Computed bool
	// ForcesReplacement marks attributes the provider cannot change in
	// place; an update to one is planned as delete-then-create.
	ForcesReplacement bool
	// Sensitive values are redacted from plan and output rendering.
	Sensitive bool
}

// Resource describes a resource kind: which provider serves it and the
// attributes it accepts or computes.
type Resource struct {
	Kind       string
	Provider   string
	Attributes map[string]*Attribute
}

// AttributeNames returns all attribute names, declared and computed, sorted.
func (r *Resource) AttributeNames() []string {
	names := make([]string, 0, len(r.Attributes))
	for name := range r.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry holds the known resource kinds.
type Registry struct {
	kinds map[string]*Resource
}

func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]*Resource)}
}

// Register adds a resource kind. Registering the same kind twice is a
// programming error and panics.
func (r *Registry) Register(res *Resource) {
	if _, exists := r.kinds[res.Kind]; exists {
		panic(fmt.Sprintf("schema: kind %q registered twice", res.Kind))
	}
	r.kinds[res.Kind] = res
}

// Kind returns the schema for a resource kind.
func (r *Registry) Kind(kind string) (*Resource, error) {
	res, ok := r.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("unknown resource kind %q", kind)
	}
	return res, nil
}

// Kinds returns all registered kind names, sorted.
func (r *Registry) Kinds() []string {
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks declared attributes against the kind's schema: required
// attributes must be present, computed attributes must not be declared, and
// value types must match. Reference and pending markers pass type checks
// because their final type is only known at apply time.
func (r *Registry) Validate(kind string, attrs map[string]any, isDeferred func(any) bool) error {
	res, err := r.Kind(kind)
	if err != nil {
		return err
	}

	for name, spec := range res.Attributes {
		val, declared := attrs[name]
		if spec.Computed {
			if declared {
				return fmt.Errorf("attribute %q of %s is computed and cannot be declared", name, kind)
			}
			continue
		}
		if spec.Required && !declared {
			return fmt.Errorf("required attribute %q of %s is missing", name, kind)
		}
		if !declared || val == nil {
			continue
		}
		if isDeferred != nil && isDeferred(val) {
			continue
		}
		if err := checkType(val, spec.Type); err != nil {
			return fmt.Errorf("attribute %q of %s: %w", name, kind, err)
		}
	}

	for name := range attrs {
		if _, known := res.Attributes[name]; !known {
			return fmt.Errorf("unknown attribute %q for %s", name, kind)
		}
	}

	return nil
}

func checkType(val any, t AttrType) error {
	switch t {
	case TypeString:
		if _, ok := val.(string); !ok {
			return fmt.Errorf("expected string, got %T", val)
		}
	case TypeNumber:
		switch val.(type) {
		case int, int64, float64:
		default:
			return fmt.Errorf("expected number, got %T", val)
		}
	case TypeBool:
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", val)
		}
	case TypeList:
		if _, ok := val.([]any); !ok {
			return fmt.Errorf("expected list, got %T", val)
		}
	case TypeMap:
		if _, ok := val.(map[string]any); !ok {
			return fmt.Errorf("expected map, got %T", val)
		}
	}
	return nil
}
