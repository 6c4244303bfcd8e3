package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"
)

// JoinCodeAlphabet omits characters that are easy to confuse (0/O, 1/I).
const JoinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// JoinCodeLen is the length of generated join codes.
const JoinCodeLen = 6

// NewJoinCode returns a random join code.
func NewJoinCode() (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(JoinCodeAlphabet)))
	for i := 0; i < JoinCodeLen; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(JoinCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeJoinCode trims and upper-cases a user-supplied code.
func NormalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// JoinCodeDigest returns HMAC-SHA256(salt, normalized code) as hex.
// Only the digest is stored; the code itself is shown once at creation.
func JoinCodeDigest(salt, code string) string {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(NormalizeJoinCode(code)))
	return hex.EncodeToString(h.Sum(nil))
}
