package utils

import (
	"crypto/rand"
	"errors"
	"fmt"
)

const codeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// DefaultCodeLength is the length of generated short codes.
const DefaultCodeLength = 6

// Custom code constraints.
const (
	MinCustomCodeLength = 3
	MaxCustomCodeLength = 10
)

// Validation failures for custom short codes.
var (
	ErrCodeLength  = fmt.Errorf("custom code must be %d-%d characters long", MinCustomCodeLength, MaxCustomCodeLength)
	ErrCodeCharset = errors.New("custom code can only contain letters, numbers, hyphens, and underscores")
)

// maxUnbiasedByte is the largest multiple of the alphabet size below 256.
// Bytes at or above it are rejected: reducing them modulo 62 would make the
// first few alphabet characters more likely than the rest.
const maxUnbiasedByte = 256 / len(codeAlphabet) * len(codeAlphabet)

// GenerateShortCode generates a random alphanumeric short code of the given
// length, each character drawn uniformly from the alphabet. Uniqueness is not
// guaranteed here; callers must check against the store and retry on
// collision.
func GenerateShortCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultCodeLength
	}

	out := make([]byte, 0, length)
	buf := make([]byte, 2*length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiasedByte {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// ValidateCustomCode checks a user-supplied short code against the length and
// charset rules. It returns ErrCodeLength or ErrCodeCharset on violation.
func ValidateCustomCode(code string) error {
	if len(code) < MinCustomCodeLength || len(code) > MaxCustomCodeLength {
		return ErrCodeLength
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c == '-' || c == '_':
		default:
			return ErrCodeCharset
		}
	}
	return nil
}
