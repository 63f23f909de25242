package engine

import (
	"fmt"
	"strings"

	"github.com/lakeforge/lakeforge/internal/ir"
)

// ResolveRefs replaces every ref:// marker in a value with the referenced
// resource's realized attribute from state. A marker that is the whole value
// keeps the target's type; markers embedded in interpolated strings are
// substituted textually. Resolution runs only after every dependency has
// been applied, so a missing target is an error, not a deferral.
func ResolveRefs(v any, state *ir.State) (any, error) {
	switch val := v.(type) {
	case string:
		matches := refPattern.FindAllString(val, -1)
		if len(matches) == 0 {
			return val, nil
		}
		if len(matches) == 1 && matches[0] == val {
			return lookupRef(val, state)
		}
		out := val
		for _, m := range matches {
			resolved, err := lookupRef(m, state)
			if err != nil {
				return nil, err
			}
			out = strings.Replace(out, m, fmt.Sprintf("%v", resolved), 1)
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			rv, err := ResolveRefs(e, state)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			rv, err := ResolveRefs(e, state)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return val, nil
	}
}

func lookupRef(ref string, state *ir.State) (any, error) {
	addr, attr, ok := splitRef(ref)
	if !ok {
		return nil, fmt.Errorf("malformed reference %q", ref)
	}
	rs := state.Resource(addr)
	if rs == nil {
		return nil, fmt.Errorf("reference %s targets a resource absent from state", DescribeRef(ref))
	}
	if val, exists := rs.Outputs[attr]; exists {
		return val, nil
	}
	if val, exists := rs.Inputs[attr]; exists {
		return val, nil
	}
	return nil, fmt.Errorf("resource %s has no attribute %q", addr, attr)
}
