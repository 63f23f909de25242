package config

import (
	"fmt"
	"strings"

	"github.com/lakeforge/lakeforge/internal/ir"
	"github.com/zclconf/go-cty/cty"
)

// ctyToGo converts an evaluated cty value into plain Go values suitable for
// JSON state serialization. Integral numbers become int64, everything else
// float64.
func ctyToGo(val cty.Value) (any, error) {
	if val.IsNull() {
		return nil, nil
	}
	t := val.Type()

	switch {
	case t == cty.String:
		return val.AsString(), nil
	case t == cty.Bool:
		return val.True(), nil
	case t == cty.Number:
		bf := val.AsBigFloat()
		if i, acc := bf.Int64(); acc == 0 { // big.Exact
			return i, nil
		}
		f, _ := bf.Float64()
		return f, nil
	case t.IsTupleType() || t.IsListType() || t.IsSetType():
		var out []any
		for it := val.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			gv, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, gv)
		}
		if out == nil {
			out = []any{}
		}
		return out, nil
	case t.IsObjectType() || t.IsMapType():
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			kv, ev := it.Element()
			gv, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			out[kv.AsString()] = gv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", t.FriendlyName())
	}
}

// goToCty converts a plain Go value back into a cty value, for injecting
// resolved variables into evaluation contexts.
func goToCty(v any) cty.Value {
	switch val := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType)
	case string:
		return cty.StringVal(val)
	case bool:
		return cty.BoolVal(val)
	case int:
		return cty.NumberIntVal(int64(val))
	case int64:
		return cty.NumberIntVal(val)
	case float64:
		return cty.NumberFloatVal(val)
	case []any:
		if len(val) == 0 {
			return cty.EmptyTupleVal
		}
		elems := make([]cty.Value, len(val))
		for i, e := range val {
			elems[i] = goToCty(e)
		}
		return cty.TupleVal(elems)
	case map[string]any:
		if len(val) == 0 {
			return cty.EmptyObjectVal
		}
		attrs := make(map[string]cty.Value, len(val))
		for k, e := range val {
			attrs[k] = goToCty(e)
		}
		return cty.ObjectVal(attrs)
	default:
		return cty.StringVal(fmt.Sprintf("%v", val))
	}
}

// isDeferred reports whether a value is a whole-value reference or pending
// marker whose real type is only known at apply time.
func isDeferred(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	return strings.HasPrefix(s, ir.RefScheme) || strings.HasPrefix(s, ir.PendingScheme)
}
