// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// WhatsApp webhooks deliver numbers without a leading plus; parsing assumes
// this region when no country code is present.
const defaultRegion = "BR"

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	// Numbers arriving as bare digits with a country code still parse once
	// prefixed with a plus.
	candidate := trimmed
	if !strings.HasPrefix(candidate, "+") && digitCount(candidate) >= 12 {
		candidate = "+" + candidate
	}

	number, err := phonenumbers.Parse(candidate, defaultRegion)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

func digitCount(s string) int {
	count := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			count++
		}
	}
	return count
}
