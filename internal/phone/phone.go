// Package phone normalizes Brazilian mobile numbers the way the send form
// collects them: "(XX) XXXXX-XXXX".
package phone

import (
	"errors"
	"regexp"
	"strings"
)

const maxDigits = 11

var (
	ErrIncompletePhone = errors.New("incomplete phone number")
	ErrInvalidPhone    = errors.New("invalid phone number")
)

var maskPattern = regexp.MustCompile(`(\(\d{2}\) \d{2})\d{3}`)

// Digits strips everything but ASCII digits.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Format applies the (XX) XXXXX-XXXX mask progressively, keeping at most 11
// digits.
func Format(s string) string {
	d := Digits(s)
	if len(d) > maxDigits {
		d = d[:maxDigits]
	}
	switch {
	case len(d) > 7:
		return "(" + d[:2] + ") " + d[2:7] + "-" + d[7:]
	case len(d) > 2:
		return "(" + d[:2] + ") " + d[2:]
	default:
		return d
	}
}

// Validate checks that s formats to a complete number and returns the
// formatted form.
func Validate(s string) (string, error) {
	if len(Digits(s)) > maxDigits {
		return "", ErrInvalidPhone
	}
	f := Format(s)
	switch {
	case len(f) < 14:
		return "", ErrIncompletePhone
	case len(f) > 15:
		return "", ErrInvalidPhone
	}
	return f, nil
}

// Mask hides three digits of a formatted number for display in listings.
func Mask(s string) string {
	return maskPattern.ReplaceAllString(s, "$1***")
}
