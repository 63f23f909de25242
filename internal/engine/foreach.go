package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lakeforge/lakeforge/internal/ir"
)

// ExpandForEach flattens resources carrying a for_each map into one resource
// per key, substituting ${each.key} and ${each.value} in attribute values.
// Expansion is deterministic: instances are emitted in key order.
func ExpandForEach(resources []*ir.Resource) []*ir.Resource {
	var expanded []*ir.Resource

	for _, res := range resources {
		if len(res.ForEach) == 0 {
			expanded = append(expanded, res)
			continue
		}

		keys := make([]string, 0, len(res.ForEach))
		for k := range res.ForEach {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			clone := cloneResource(res)
			clone.Name = fmt.Sprintf("%s[%q]", res.Name, key)
			clone.ForEach = nil
			clone.Attributes = substituteEach(clone.Attributes, key, res.ForEach[key])
			expanded = append(expanded, clone)
		}
	}

	return expanded
}

func cloneResource(res *ir.Resource) *ir.Resource {
	return &ir.Resource{
		Kind:       res.Kind,
		Name:       res.Name,
		Provider:   res.Provider,
		DependsOn:  append([]string{}, res.DependsOn...),
		Attributes: deepCopyMap(res.Attributes),
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

func substituteEach(attrs map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = substituteValue(v, key, value)
	}
	return out
}

func substituteValue(v any, key string, value any) any {
	switch val := v.(type) {
	case string:
		// A whole-value placeholder keeps the element's real type.
		if val == "${each.value}" {
			return value
		}
		if val == "${each.key}" {
			return key
		}
		val = strings.ReplaceAll(val, "${each.key}", key)
		val = strings.ReplaceAll(val, "${each.value}", fmt.Sprintf("%v", value))
		return val
	case map[string]any:
		return substituteEach(val, key, value)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = substituteValue(e, key, value)
		}
		return out
	default:
		return v
	}
}
