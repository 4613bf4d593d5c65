package observability

import (
	"strings"
	"unicode"
)

// sanitizeLabel strips control characters and caps the length so request
// attributes cannot inject into logs or blow up metric cardinality.
func sanitizeLabel(value string, limit int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, value)

	runes := []rune(cleaned)
	if len(runes) > limit {
		return string(runes[:limit])
	}
	return cleaned
}

// SanitizeRoute cleans a route pattern before it is used as a label.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeLabel(route, 180)
}

// SanitizeMethod cleans an HTTP method before it is used as a label.
func SanitizeMethod(method string) string {
	return sanitizeLabel(method, 10)
}

// SanitizeUserID caps identifiers logged for correlation.
func SanitizeUserID(uid string) string {
	if uid == "" {
		return ""
	}
	return sanitizeLabel(uid, 64)
}
