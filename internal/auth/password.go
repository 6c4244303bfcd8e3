package auth

import "golang.org/x/crypto/bcrypt"

// Password length bounds for team and host passwords.
const (
	MinPasswordLen = 4
	MaxPasswordLen = 72
)

// HashPassword returns the bcrypt hash of pw.
func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost) // cost=10
	return string(b), err
}

// CheckPassword reports whether pw matches hash. An empty hash never matches.
func CheckPassword(hash, pw string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// ValidPassword reports whether pw fits the accepted length range.
func ValidPassword(pw string) bool {
	return len(pw) >= MinPasswordLen && len(pw) <= MaxPasswordLen
}
