package util

import (
	"errors"
	"strings"
	"unicode"
)

var ErrInvalidPhoneNumber = errors.New("invalid phone number")

// NormalizePhone strips formatting characters from a phone number so that
// the same number always hashes to the same lookup key.
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if unicode.IsDigit(r) || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidatePhone checks a normalized phone number for a plausible length.
// Real deliverability is the SMS provider's problem.
func ValidatePhone(phone string) error {
	normalized := NormalizePhone(phone)
	digits := strings.TrimPrefix(normalized, "+")
	if len(digits) < 10 || len(digits) > 15 {
		return ErrInvalidPhoneNumber
	}
	for _, r := range digits {
		if !unicode.IsDigit(r) {
			return ErrInvalidPhoneNumber
		}
	}
	return nil
}
