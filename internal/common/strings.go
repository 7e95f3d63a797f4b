package common

import "strings"

// ToLowerWithTrim normalizes config identifiers such as log levels and component names.
func ToLowerWithTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
