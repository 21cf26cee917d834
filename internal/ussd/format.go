package ussd

import (
	"strings"
	"unicode/utf8"

	"github.com/tuitora/tuitora-gateway/internal/model"
)

const (
	PrefixContinue = "CON "
	PrefixEnd      = "END "

	// FallbackText ends the session when the request could not be handled at all.
	FallbackText = "An error occurred. Please try again later."

	ellipsis = "..."
)

// Formatter turns a menu response into the provider's wire text.
type Formatter struct {
	// MaxLength bounds the whole payload, prefix included. Zero means no limit.
	MaxLength int
}

// Format prefixes the body with CON or END based only on r.Status. A body that
// already carries either prefix is not prefixed twice.
func (f Formatter) Format(r model.USSDResponse) string {
	body := StripPrefix(r.Text)
	if f.MaxLength > len(PrefixEnd) {
		body = Fit(body, f.MaxLength-len(PrefixEnd))
	}
	if r.Terminal() {
		return PrefixEnd + body
	}
	return PrefixContinue + body
}

// Format uses a Formatter without a length limit.
func Format(r model.USSDResponse) string { return Formatter{}.Format(r) }

// StripPrefix removes any leading CON/END markers.
func StripPrefix(s string) string {
	for {
		switch {
		case strings.HasPrefix(s, PrefixContinue):
			s = s[len(PrefixContinue):]
		case strings.HasPrefix(s, PrefixEnd):
			s = s[len(PrefixEnd):]
		default:
			return s
		}
	}
}

// Fit shortens s to at most max runes, preferring to cut at a line break,
// and marks the cut with "...".
func Fit(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= len(ellipsis) {
		return string([]rune(s)[:max])
	}
	cut := string([]rune(s)[:max-len(ellipsis)])
	if i := strings.LastIndex(cut, "\n"); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " \n") + ellipsis
}
