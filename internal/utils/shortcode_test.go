package utils

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateShortCode(t *testing.T) {
	shape := regexp.MustCompile(`^[A-Za-z0-9]{6}$`)

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		code, err := GenerateShortCode(DefaultCodeLength)
		require.NoError(t, err)
		assert.Regexp(t, shape, code)
		seen[code] = struct{}{}
	}

	// 62^6 keyspace; 1000 draws colliding down to <990 distinct codes would
	// indicate a broken entropy source, not bad luck.
	assert.Greater(t, len(seen), 990)
}

func TestGenerateShortCodeUniformity(t *testing.T) {
	// 62 does not divide 256, so naive byte%62 would skew characters mapped
	// from the low residues about 25% above the rest. Rejection sampling keeps
	// every alphabet character equally likely; with 2000 expected draws per
	// character a biased generator lands near 2500 and blows the band, while
	// random noise stays within a few standard deviations (~45).
	const (
		draws    = 2000 * len(codeAlphabet)
		expected = draws / len(codeAlphabet)
		slack    = 300
	)

	counts := make(map[byte]int, len(codeAlphabet))
	for drawn := 0; drawn < draws; {
		code, err := GenerateShortCode(DefaultCodeLength)
		require.NoError(t, err)
		for i := 0; i < len(code) && drawn < draws; i++ {
			counts[code[i]]++
			drawn++
		}
	}

	for i := 0; i < len(codeAlphabet); i++ {
		c := codeAlphabet[i]
		assert.InDelta(t, expected, counts[c], slack, "character %q drawn %d times", c, counts[c])
	}
}

func TestGenerateShortCodeCustomLength(t *testing.T) {
	code, err := GenerateShortCode(10)
	require.NoError(t, err)
	assert.Len(t, code, 10)

	// Non-positive length falls back to the default.
	code, err = GenerateShortCode(0)
	require.NoError(t, err)
	assert.Len(t, code, DefaultCodeLength)
}

func TestValidateCustomCode(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr error
	}{
		{"valid alphanumeric", "abc123", nil},
		{"valid with hyphen and underscore", "my-code_1", nil},
		{"minimum length", "abc", nil},
		{"maximum length", "abcdefghij", nil},
		{"too short", "ab", ErrCodeLength},
		{"too long", "abcdefghijk", ErrCodeLength},
		{"invalid charset space", "my code", ErrCodeCharset},
		{"invalid charset symbol", "code!", ErrCodeCharset},
		{"invalid charset unicode", "codé42", ErrCodeCharset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCustomCode(tt.code)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
