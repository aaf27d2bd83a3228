package observability

import (
	"strings"
	"unicode"
)

const maxSanitizedLength = 256

func sanitizeString(value string, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}

	var builder strings.Builder
	builder.Grow(len(trimmed))
	for _, r := range trimmed {
		if r == '\n' || r == '\r' {
			builder.WriteRune(' ')
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		builder.WriteRune(r)
	}

	sanitized := strings.TrimSpace(builder.String())
	if sanitized == "" {
		return fallback
	}
	if len(sanitized) > maxSanitizedLength {
		sanitized = sanitized[:maxSanitizedLength]
	}
	return sanitized
}

// SanitizeRoute normalizes a request route for logging.
func SanitizeRoute(route string) string {
	return sanitizeString(route, "unknown")
}

// SanitizeMethod normalizes an HTTP method for logging.
func SanitizeMethod(method string) string {
	return strings.ToUpper(sanitizeString(method, "unknown"))
}
