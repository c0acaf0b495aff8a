package utils

import (
	"strings"
	"unicode"
)

// SanitizeInput keeps letters, digits, spaces, dashes and underscores.
func SanitizeInput(input string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == ' ' || r == '-' || r == '_' {
			return r
		}
		return -1
	}, input)
}

// CleanCandidate strips mention and markdown decoration around a username
// candidate ("<@name>", "**name**", "`name`").
func CleanCandidate(input string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '@', '!', '&', '*', '`', '~', '|':
			return -1
		}
		return r
	}, input))
}
