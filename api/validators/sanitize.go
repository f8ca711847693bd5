package validators

import "strings"

// SanitizeString trims input and caps it at maxLen bytes.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen > 0 && len(trimmed) > maxLen {
		return trimmed[:maxLen]
	}
	return trimmed
}

// OptionalString sanitizes a nullable field, collapsing blanks to nil.
func OptionalString(input *string, maxLen int) *string {
	if input == nil {
		return nil
	}
	value := SanitizeString(*input, maxLen)
	if value == "" {
		return nil
	}
	return &value
}
