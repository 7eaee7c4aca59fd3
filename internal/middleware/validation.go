package middleware

import (
	"errors"
	"unicode/utf8"
)

// ValidateChannelID validates a channel ID path parameter.
func ValidateChannelID(id string) error {
	if len(id) == 0 {
		return errors.New("channel ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("channel ID exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New("channel ID must be valid UTF-8")
	}
	return nil
}
