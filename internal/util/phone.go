package util

import (
	"errors"
	"regexp"
	"strings"
)

// DefaultCountryCode is prefixed to local (0-leading) Kenyan numbers.
const DefaultCountryCode = "254"

var (
	ErrInvalidPhone = errors.New("invalid phone number")

	phoneJunk = regexp.MustCompile(`[^\d\+]+`)
	e164      = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)
)

// NormalizePhone tries to normalize user input into E.164-like format.
// Input it cannot make sense of is returned cleaned but otherwise untouched.
func NormalizePhone(raw string) string {
	s := phoneJunk.ReplaceAllString(strings.TrimSpace(raw), "")

	switch {
	case strings.HasPrefix(s, "+"):
	case strings.HasPrefix(s, "00"):
		s = "+" + s[2:]
	case strings.HasPrefix(s, "0") && len(s) == 10:
		s = "+" + DefaultCountryCode + s[1:]
	case (strings.HasPrefix(s, "7") || strings.HasPrefix(s, "1")) && len(s) == 9:
		s = "+" + DefaultCountryCode + s
	case strings.HasPrefix(s, DefaultCountryCode) && len(s) == 12:
		s = "+" + s
	}

	return s
}

// ParsePhone normalizes raw and rejects anything that is not E.164 afterwards.
func ParsePhone(raw string) (string, error) {
	s := NormalizePhone(raw)
	if !e164.MatchString(s) {
		return "", ErrInvalidPhone
	}
	return s, nil
}
