package session

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxInputSize caps a player action in bytes.
const DefaultMaxInputSize = 4096

var (
	// ErrInvalidInput wraps every input rejection.
	ErrInvalidInput  = errors.New("invalid input")
	ErrInputTooLarge = fmt.Errorf("%w: exceeds maximum allowed size", ErrInvalidInput)
	ErrInvalidUTF8   = fmt.Errorf("%w: contains invalid UTF-8 sequences", ErrInvalidInput)
	ErrEmptyInput    = fmt.Errorf("%w: empty", ErrInvalidInput)
)

// SanitizeInput enforces the size limit, validates UTF-8 and strips control
// characters other than newline, tab and carriage return. Oversized input is
// rejected, never truncated.
func SanitizeInput(input string, limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultMaxInputSize
	}
	if len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	clean := strings.IndexFunc(input, unsafeControl) < 0
	if !clean {
		var b strings.Builder
		b.Grow(len(input))
		for _, r := range input {
			if !unsafeControl(r) {
				b.WriteRune(r)
			}
		}
		input = b.String()
	}
	if strings.TrimSpace(input) == "" {
		return "", ErrEmptyInput
	}
	return input, nil
}

func unsafeControl(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r'
}
