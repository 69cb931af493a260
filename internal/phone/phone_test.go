package phone

import (
	"errors"
	"testing"
)

func TestDigits(t *testing.T) {
	t.Parallel()

	if got := Digits("(11) 99999-9999"); got != "11999999999" {
		t.Fatalf("expected %q, got %q", "11999999999", got)
	}
	if got := Digits("abc"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestFormat_Progressive(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"1", "1"},
		{"11", "11"},
		{"119", "(11) 9"},
		{"1199999", "(11) 99999"},
		{"11999999", "(11) 99999-9"},
		{"11999999999", "(11) 99999-9999"},
		{"1199999999912", "(11) 99999-9999"},
		{"(11) 9999-99999", "(11) 99999-9999"},
	}

	for _, tc := range cases {
		if got := Format(tc.in); got != tc.want {
			t.Fatalf("Format(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	got, err := Validate("11999999999")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "(11) 99999-9999" {
		t.Fatalf("unexpected formatted phone %q", got)
	}

	if _, err := Validate("(11) 9999-999"); !errors.Is(err, ErrIncompletePhone) {
		t.Fatalf("expected ErrIncompletePhone, got %v", err)
	}

	if _, err := Validate("119999999991"); !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("expected ErrInvalidPhone, got %v", err)
	}

	got, err = Validate("1199999999")
	if err != nil {
		t.Fatalf("ten digit landline form should pass, got %v", err)
	}
	if len(got) != 14 {
		t.Fatalf("expected 14 chars, got %q", got)
	}
}

func TestMask(t *testing.T) {
	t.Parallel()

	if got := Mask("(11) 99999-9999"); got != "(11) 99***-9999" {
		t.Fatalf("unexpected mask %q", got)
	}
	if got := Mask("+5511999999999"); got != "+5511999999999" {
		t.Fatalf("expected unmatched input to pass through, got %q", got)
	}
}
