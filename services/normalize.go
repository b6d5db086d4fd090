package services

import "strings"

// NormalizeName canonicalizes a free-text food name for comparison:
// lower-cased, trimmed, internal whitespace runs collapsed to one space.
func NormalizeName(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}
