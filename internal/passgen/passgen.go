// Package passgen builds candidate passwords from a character-class
// configuration and maps estimated password strength to display labels.
package passgen

import (
	"math/rand"
	"strings"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

const (
	lower   = "abcdefghijklmnopqrstuvwxyz"
	upper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits  = "0123456789"
	symbols = "!@#$%^&*()_+-=[]{}|;:,.<>?"
)

// MinLength and MaxLength bound generated passwords. Callers clamp a
// requested length before invoking Generate.
const (
	MinLength = 6
	MaxLength = 30
)

// Classes selects the character classes beyond lowercase. Lowercase is
// always included so the character set is never empty.
type Classes struct {
	Uppercase bool
	Digits    bool
	Symbols   bool
}

// Clamp limits a requested length to the supported range.
func Clamp(length int) int {
	if length < MinLength {
		return MinLength
	}
	if length > MaxLength {
		return MaxLength
	}
	return length
}

// Generate produces length characters drawn uniformly at random from the
// concatenation of the enabled classes.
func Generate(length int, c Classes) string {
	charset := lower
	if c.Uppercase {
		charset += upper
	}
	if c.Digits {
		charset += digits
	}
	if c.Symbols {
		charset += symbols
	}

	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(charset[rand.Intn(len(charset))])
	}
	return b.String()
}

// Strength is the five-level ordinal produced by the scorer.
type Strength int

const (
	VeryWeak Strength = iota
	Weak
	Fair
	Strong
	VeryStrong
)

var labels = [...]string{"Very Weak", "Weak", "Fair", "Strong", "Very Strong"}

func (s Strength) String() string {
	if s < VeryWeak || s > VeryStrong {
		return "Unknown"
	}
	return labels[s]
}

// Score rates a password on the five-level scale. The estimation itself
// is delegated to zxcvbn; only the ordinal is used.
func Score(password string) Strength {
	return Strength(zxcvbn.PasswordStrength(password, nil).Score)
}
