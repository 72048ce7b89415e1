package phone

import (
	"errors"
	"strings"
)

var ErrInvalidNumber = errors.New("phone: invalid number")

// Normalize turns a user or carrier supplied number into E.164 form.
// Ten digit numbers are assumed to be North American.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidNumber
	}

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 10 && !strings.HasPrefix(raw, "+"):
		return "+1" + digits, nil
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits, nil
	case strings.HasPrefix(raw, "+") && len(digits) >= 8 && len(digits) <= 15:
		return "+" + digits, nil
	default:
		return "", ErrInvalidNumber
	}
}
