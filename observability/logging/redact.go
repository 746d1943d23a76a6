package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue replaces secret material in log output.
const RedactedValue = "[REDACTED]"

// secretMarkers match attribute keys that carry credentials. A key is secret
// when its lowercased form contains any marker.
var secretMarkers = []string{
	"authorization",
	"token",
	"secret",
	"passphrase",
	"password",
	"private",
	"keypair",
}

// publicKeys are never redacted even when they contain a marker.
var publicKeys = map[string]struct{}{
	"tokenscope": {},
	"token_type": {},
}

// IsSecret reports whether values logged under key must be masked.
func IsSecret(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if _, ok := publicKeys[normalized]; ok {
		return false
	}
	for _, marker := range secretMarkers {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}

// SecretMarkers returns the sorted key fragments that trigger redaction.
func SecretMarkers() []string {
	out := append([]string(nil), secretMarkers...)
	sort.Strings(out)
	return out
}

// MaskBearer keeps the auth scheme of an Authorization header and hides the
// credential.
func MaskBearer(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return header
	}
	if scheme, _, ok := strings.Cut(header, " "); ok {
		return scheme + " " + RedactedValue
	}
	return RedactedValue
}

// MaskField builds a string attribute, masking the value when key is secret.
// Empty values pass through.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || !IsSecret(key) {
		return slog.String(key, value)
	}
	if strings.EqualFold(key, "authorization") {
		return slog.String(key, MaskBearer(value))
	}
	return slog.String(key, RedactedValue)
}

// redactAttr is the ReplaceAttr stage that masks secret string attributes
// logged without MaskField.
func redactAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() != slog.KindString || !IsSecret(attr.Key) {
		return attr
	}
	return MaskField(attr.Key, attr.Value.String())
}
