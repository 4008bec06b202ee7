package expr

import (
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// ToValues converts a variable map into cty values.
func ToValues(vars map[string]any) (map[string]cty.Value, error) {
	out := make(map[string]cty.Value, len(vars))
	for k, v := range vars {
		cv, err := ToValue(v)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", k, err)
		}
		out[k] = cv
	}
	return out, nil
}

// ToValue converts a Go value into a cty value. Maps with string keys become
// objects and slices become tuples, so mixed element types are allowed.
func ToValue(v any) (cty.Value, error) {
	switch t := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case cty.Value:
		return t, nil
	case string:
		return cty.StringVal(t), nil
	case bool:
		return cty.BoolVal(t), nil
	case int:
		return cty.NumberIntVal(int64(t)), nil
	case int64:
		return cty.NumberIntVal(t), nil
	case float64:
		return cty.NumberFloatVal(t), nil
	case []string:
		vals := make([]cty.Value, len(t))
		for i, s := range t {
			vals[i] = cty.StringVal(s)
		}
		return tuple(vals), nil
	case []any:
		vals := make([]cty.Value, len(t))
		for i, e := range t {
			cv, err := ToValue(e)
			if err != nil {
				return cty.NilVal, fmt.Errorf("index %d: %w", i, err)
			}
			vals[i] = cv
		}
		return tuple(vals), nil
	case map[string]string:
		attrs := make(map[string]cty.Value, len(t))
		for k, s := range t {
			attrs[k] = cty.StringVal(s)
		}
		return cty.ObjectVal(attrs), nil
	case map[string]any:
		attrs := make(map[string]cty.Value, len(t))
		for _, k := range sortedKeys(t) {
			cv, err := ToValue(t[k])
			if err != nil {
				return cty.NilVal, fmt.Errorf("key %q: %w", k, err)
			}
			attrs[k] = cv
		}
		return cty.ObjectVal(attrs), nil
	}

	ty, err := gocty.ImpliedType(v)
	if err != nil {
		return cty.NilVal, fmt.Errorf("unsupported value of type %T: %w", v, err)
	}
	return gocty.ToCtyValue(v, ty)
}

func tuple(vals []cty.Value) cty.Value {
	if len(vals) == 0 {
		return cty.EmptyTupleVal
	}
	return cty.TupleVal(vals)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
