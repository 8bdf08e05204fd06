package auth

import (
	"fmt"
	"strings"
	"unicode"
)

const minPasswordLength = 12

// ValidatePassword checks password complexity: at least 12 characters
// with an upper case letter, a lower case letter, a digit, and a special
// character. Returns the first violated requirement.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	classes := map[string]func(rune) bool{
		"uppercase letter":  unicode.IsUpper,
		"lowercase letter":  unicode.IsLower,
		"digit":             unicode.IsDigit,
		"special character": isSpecialChar,
	}
	for _, name := range []string{"uppercase letter", "lowercase letter", "digit", "special character"} {
		if !strings.ContainsFunc(password, classes[name]) {
			return fmt.Errorf("password must contain at least 1 %s", name)
		}
	}
	return nil
}

func isSpecialChar(r rune) bool {
	return strings.ContainsRune("!@#$%^&*()-_=+[]{}|;:',.<>?/`~\"\\", r)
}
