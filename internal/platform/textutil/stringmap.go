package textutil

import "strings"

// NormalizeStringMap trims every key and value and drops entries whose
// key trims to empty. Gateway metadata arrives straight from request
// payloads, so whitespace-only keys are common. Returns nil when nothing
// survives.
func NormalizeStringMap(values map[string]string) map[string]string {
	result := make(map[string]string, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		result[key] = strings.TrimSpace(value)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
