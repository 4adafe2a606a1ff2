package tracing

import (
	"strings"
)

const (
	// MaxSQLLength bounds db.statement span attributes.
	MaxSQLLength = 500
	// MaxValueLength bounds general-purpose attribute values.
	MaxValueLength = 200
)

// piiAttributeNames flags attribute names whose values must be masked. CV
// documents carry applicant contact details, so anything that smells like an
// identifier is masked before it reaches the trace backend.
var piiAttributeNames = map[string]bool{
	"email":    true,
	"phone":    true,
	"name":     true,
	"address":  true,
	"password": true,
	"secret":   true,
	"token":    true,
}

// SafeAttributeValue masks PII-bearing attribute values and truncates the
// rest to maxLength.
func SafeAttributeValue(name, value string, maxLength int) string {
	lowerName := strings.ToLower(name)
	for keyword := range piiAttributeNames {
		if strings.Contains(lowerName, keyword) {
			return MaskPII(value)
		}
	}
	return TruncateString(value, maxLength)
}

// MaskPII keeps the first and last character and masks the middle. Short
// values are fully masked.
func MaskPII(value string) string {
	runes := []rune(value)
	if len(runes) <= 2 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[0]) + strings.Repeat("*", len(runes)-2) + string(runes[len(runes)-1])
}

// TruncateString caps a value at maxLength runes with an ellipsis marker.
func TruncateString(value string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = MaxValueLength
	}
	runes := []rune(value)
	if len(runes) <= maxLength {
		return value
	}
	return string(runes[:maxLength]) + "..."
}
