package core

import (
	"slices"
	"strings"
)

const RedactedValue = "[REDACTED]"

// sensitiveKeyParts mark a log field as credential material when any of them
// appears in the lowercased key.
var sensitiveKeyParts = []string{
	"token",
	"secret",
	"verifier",
	"code",
	"state",
	"master",
	"authorization",
	"credential",
	"password",
}

// traceKeys stay readable even though some contain a sensitive part.
var traceKeys = []string{
	"provider_id",
	"organization_id",
	"initiated_by",
	"encryption_key_id",
	"target_key_id",
	"token_type",
	"error_kind",
	"error_code",
	"status_code",
	"job_id",
	"request_id",
}

// RedactSensitiveMap copies metadata for logging. Values under credential
// keys are replaced, and so are sealed envelopes and bearer headers found
// under any key.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if sensitiveKey(key) {
			out[key] = RedactedValue
			continue
		}
		out[key] = redactValue(value)
	}
	return out
}

func redactValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return RedactSensitiveMap(typed)
	case []any:
		out := make([]any, 0, len(typed))
		for _, item := range typed {
			out = append(out, redactValue(item))
		}
		return out
	case string:
		if looksLikeCredential(typed) {
			return RedactedValue
		}
		return typed
	default:
		return value
	}
}

func sensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || slices.Contains(traceKeys, key) {
		return false
	}
	return slices.ContainsFunc(sensitiveKeyParts, func(part string) bool {
		return strings.Contains(key, part)
	})
}

// looksLikeCredential spots a v1 envelope (five colon separated parts) or an
// Authorization header value.
func looksLikeCredential(value string) bool {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "v1:") && strings.Count(value, ":") == 4 {
		return true
	}
	lower := strings.ToLower(value)
	return strings.HasPrefix(lower, "bearer ") || strings.HasPrefix(lower, "basic ")
}
