package registry

// Parameter maps carry loosely typed values: float64 from the JSON and
// HCL front ends, but Go callers may store ints or other numerics. These
// helpers normalize access; a missing or mistyped parameter yields the
// fallback.

// NumberParam reads a numeric parameter.
func NumberParam(params map[string]any, id string, fallback float64) float64 {
	switch v := params[id].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return fallback
	}
}

// BoolParam reads a boolean parameter.
func BoolParam(params map[string]any, id string, fallback bool) bool {
	if v, ok := params[id].(bool); ok {
		return v
	}
	return fallback
}

// StringParam reads a string parameter.
func StringParam(params map[string]any, id string, fallback string) string {
	if v, ok := params[id].(string); ok {
		return v
	}
	return fallback
}
