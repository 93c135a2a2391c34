package utils

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// NormalizePhone normalizes a phone number to E.164 using the contact's
// stored dialing prefix (e.g. "+1") when the number itself carries no
// country code. Numbers that fail metadata validation are rejected before
// any provider sees them.
func NormalizePhone(phone, dialingPrefix string) (string, error) {
	candidate := strings.TrimSpace(phone)
	if candidate == "" {
		return "", fmt.Errorf("phone number cannot be empty")
	}

	if !strings.HasPrefix(candidate, "+") {
		if dialingPrefix == "" {
			dialingPrefix = "+1"
		}
		if !strings.HasPrefix(dialingPrefix, "+") {
			dialingPrefix = "+" + dialingPrefix
		}
		candidate = dialingPrefix + candidate
	}

	parsed, err := phonenumbers.Parse(candidate, "ZZ")
	if err != nil {
		return "", fmt.Errorf("failed to parse phone number: %w", err)
	}

	if !phonenumbers.IsValidNumber(parsed) {
		return "", fmt.Errorf("invalid phone number: %s", candidate)
	}

	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

// IsValidPhone reports whether the number normalizes to a valid E.164
// number with the given dialing prefix as fallback.
func IsValidPhone(phone, dialingPrefix string) bool {
	_, err := NormalizePhone(phone, dialingPrefix)
	return err == nil
}
