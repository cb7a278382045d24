package gateway

import (
	"strings"

	"antarin/internal/model"
)

// NormalizePhone canonicalises a phone number to country-code-prefixed
// digits with no symbols (e.g. "0812-3456-7890" -> "6281234567890"). Every
// lookup and send uses the canonical form, so two spellings of the same
// number always hit the same customer or courier record.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) < 8:
		return "", model.ErrInvalidPhone
	case strings.HasPrefix(digits, "62"):
		return digits, nil
	case strings.HasPrefix(digits, "0"):
		return "62" + digits[1:], nil
	default:
		return "62" + digits, nil
	}
}
