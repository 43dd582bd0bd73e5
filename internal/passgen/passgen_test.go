package passgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateLowercaseOnly(t *testing.T) {
	pw := Generate(12, Classes{})

	assert.Len(t, pw, 12)
	for _, r := range pw {
		assert.True(t, r >= 'a' && r <= 'z', "unexpected character %q", r)
	}
}

func TestGenerateAllClasses(t *testing.T) {
	charset := lower + upper + digits + symbols
	pw := Generate(6, Classes{Uppercase: true, Digits: true, Symbols: true})

	assert.Len(t, pw, 6)
	for _, r := range pw {
		assert.True(t, strings.ContainsRune(charset, r), "unexpected character %q", r)
	}
}

func TestGenerateSelectiveClasses(t *testing.T) {
	// Symbols disabled: every character must come from the other classes.
	charset := lower + upper + digits
	pw := Generate(30, Classes{Uppercase: true, Digits: true})

	for _, r := range pw {
		assert.True(t, strings.ContainsRune(charset, r), "unexpected character %q", r)
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, 6},
		{5, 6},
		{6, 6},
		{12, 12},
		{30, 30},
		{99, 30},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Clamp(tt.in))
	}
}

func TestStrengthLabels(t *testing.T) {
	assert.Equal(t, "Very Weak", VeryWeak.String())
	assert.Equal(t, "Weak", Weak.String())
	assert.Equal(t, "Fair", Fair.String())
	assert.Equal(t, "Strong", Strong.String())
	assert.Equal(t, "Very Strong", VeryStrong.String())
	assert.Equal(t, "Unknown", Strength(42).String())
}

func TestScoreOrdering(t *testing.T) {
	assert.Equal(t, VeryWeak, Score("a"))
	assert.GreaterOrEqual(t, Score("kX9#mQv7@Lz4pR2!"), Fair)
}
