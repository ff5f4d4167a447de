package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// sensitiveKeys lists log keys that carry cardholder or loyalty account data
// lifted from the payment and loyalty subsystems of a transaction record.
var sensitiveKeys = map[string]struct{}{
	"account":         {},
	"account_number":  {},
	"cardholder":      {},
	"cardholder_name": {},
	"auth_code":       {},
}

// IsSensitive reports whether the provided log key must be masked before it
// is emitted.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := sensitiveKeys[normalized]
	return ok
}

// MaskAccount masks an account or card number, keeping only the trailing four
// digits so operators can correlate a log line with a stored row. Values too
// short to carry a meaningful suffix are fully redacted.
func MaskAccount(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	if len(value) <= 4 {
		return RedactedValue
	}
	return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
}

// MaskField returns a slog.Attr with the value replaced by the redaction
// placeholder when the key names sensitive data. The original key casing is
// preserved for readability.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || !IsSensitive(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
