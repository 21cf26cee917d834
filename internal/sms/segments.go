package sms

import (
	"strings"
	"unicode/utf8"
)

const (
	GSM7SegmentLength = 160
	UCS2SegmentLength = 70
)

// gsm7 is the GSM 03.38 default alphabet plus the extension table.
const gsm7 = "@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞÆæßÉ !\"#¤%&'()*+,-./0123456789:;<=>?" +
	"¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà" +
	"^{}\\[~]|€\f"

// IsGSM7 reports whether s can be sent with the GSM-7 alphabet.
func IsGSM7(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(gsm7, r) {
			return false
		}
	}
	return true
}

// Segments is the number of SMS parts message is billed as: 160 characters per
// part for GSM-7 text, 70 when any character needs UCS-2. Used for reporting
// only; the provider does the real splitting.
func Segments(message string) int {
	n := utf8.RuneCountInString(message)
	if n == 0 {
		return 0
	}
	size := GSM7SegmentLength
	if !IsGSM7(message) {
		size = UCS2SegmentLength
	}
	return (n + size - 1) / size
}
