package arm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlattenOutputs turns nested template outputs into a flat map. Keys of
// nested objects are joined with "__" and upper-cased; {type, value}
// wrappers are unwrapped. Arrays are kept as JSON.
func FlattenOutputs(outputs map[string]any) map[string]string {
	flat := make(map[string]string)
	for key, v := range outputs {
		flattenInto(flat, key, v)
	}
	return flat
}

func flattenInto(flat map[string]string, prefix string, v any) {
	switch val := v.(type) {
	case map[string]any:
		if inner, ok := unwrapTyped(val); ok {
			flattenInto(flat, prefix, inner)
			return
		}
		for k, child := range val {
			flattenInto(flat, prefix+"__"+k, child)
		}
	case nil:
		flat[strings.ToUpper(prefix)] = ""
	case string:
		flat[strings.ToUpper(prefix)] = val
	case float64:
		// JSON numbers; 'f' keeps large integers out of exponent form.
		flat[strings.ToUpper(prefix)] = strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		flat[strings.ToUpper(prefix)] = val.String()
	case []any:
		b, err := json.Marshal(val)
		if err != nil {
			b = []byte(fmt.Sprint(val))
		}
		flat[strings.ToUpper(prefix)] = string(b)
	default:
		flat[strings.ToUpper(prefix)] = fmt.Sprint(val)
	}
}

// unwrapTyped recognizes the {"type": ..., "value": ...} output envelope.
func unwrapTyped(m map[string]any) (any, bool) {
	if len(m) != 2 {
		return nil, false
	}
	if _, ok := m["type"].(string); !ok {
		return nil, false
	}
	v, ok := m["value"]
	return v, ok
}
