package auth

import (
	"fmt"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt cost for observer passwords
const PasswordCost = 12

var (
	uppercase = regexp.MustCompile(`[A-Z]`)
	lowercase = regexp.MustCompile(`[a-z]`)
	digit     = regexp.MustCompile(`[0-9]`)
	special   = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// HashPassword returns the bcrypt hash of password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IsStrongPassword checks length and character class requirements
func IsStrongPassword(password string) bool {
	return len(password) >= 8 &&
		uppercase.MatchString(password) &&
		lowercase.MatchString(password) &&
		digit.MatchString(password) &&
		special.MatchString(password)
}
