package protocol

// IntConfig reads a numeric config value, accepting the float64 produced by
// JSON decoding as well as plain integers.
func IntConfig(config map[string]any, key string, fallback int) int {
	switch v := config[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return fallback
	}
}

// StringConfig reads a string config value.
func StringConfig(config map[string]any, key, fallback string) string {
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}

	return fallback
}

// StringMapConfig reads a map of strings, dropping non-string values.
func StringMapConfig(config map[string]any, key string) map[string]string {
	out := make(map[string]string)

	switch v := config[key].(type) {
	case map[string]any:
		for k, item := range v {
			if s, ok := item.(string); ok {
				out[k] = s
			}
		}
	case map[string]string:
		for k, item := range v {
			out[k] = item
		}
	}

	return out
}
