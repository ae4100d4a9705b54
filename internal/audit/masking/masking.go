// Package masking redacts personal data before it lands in the audit trail.
package masking

import "strings"

const maskToken = "****"

// MaskEmail keeps the first character of the local part and the domain:
// "jane@acme.test" becomes "j****@acme.test".
func MaskEmail(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	at := strings.LastIndex(trimmed, "@")
	if at <= 0 || at == len(trimmed)-1 {
		return MaskSecret(trimmed)
	}
	return trimmed[:1] + maskToken + trimmed[at:]
}

// MaskSecret keeps at most the last four characters.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 8 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskJSON returns a copy of input with the values of sensitive keys masked.
// Nested maps and slices are walked.
func MaskJSON(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	masked := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		masked[trimmedKey] = maskValue(trimmedKey, value)
	}
	if len(masked) == 0 {
		return nil
	}
	return masked
}

func maskValue(key string, value any) any {
	switch cast := value.(type) {
	case string:
		switch {
		case isEmailKey(key):
			return MaskEmail(cast)
		case isSecretKey(key):
			return MaskSecret(cast)
		default:
			return cast
		}
	case map[string]any:
		return MaskJSON(cast)
	case []any:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, maskValue(key, item))
		}
		return out
	default:
		return value
	}
}

func isEmailKey(key string) bool {
	key = strings.ToLower(key)
	return strings.Contains(key, "email") || key == "to" || key == "recipient"
}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	for _, marker := range []string{"secret", "token", "password"} {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}
