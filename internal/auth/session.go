// internal/auth/session.go
//
// Participant session tokens.
//
// A session is an HS256 JWT carrying the game, team, participant name and
// the session id issued at registration. The engine compares the sid
// against the stored registration on every roll/proof, so a token only
// stays useful while its registration exists.

package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails parsing or claim checks.
var ErrInvalidToken = errors.New("invalid token")

// Session is the identity carried by a participant bearer token.
type Session struct {
	GameID      string `json:"gameId"`
	TeamID      string `json:"teamId"`
	Participant string `json:"participant"`
	SessionID   string `json:"sid"`
}

// Signer issues and verifies session tokens.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner returns a Signer using secret and a lifetime of days.
func NewSigner(secret string, days int) *Signer {
	if days <= 0 {
		days = 14
	}
	return &Signer{secret: []byte(secret), ttl: time.Duration(days) * 24 * time.Hour, now: time.Now}
}

// Sign returns a signed token for s and its expiry.
func (k *Signer) Sign(s Session) (string, time.Time, error) {
	now := k.now()
	exp := now.Add(k.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"gameId":      s.GameID,
		"teamId":      s.TeamID,
		"participant": s.Participant,
		"sid":         s.SessionID,
		"exp":         exp.Unix(),
		"iat":         now.Unix(),
	})
	ss, err := token.SignedString(k.secret)
	return ss, exp, err
}

// Verify parses tokenStr and returns its session.
func (k *Signer) Verify(tokenStr string) (Session, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return k.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(k.now))
	if err != nil || !token.Valid {
		return Session{}, ErrInvalidToken
	}
	var s Session
	s.GameID, _ = claims["gameId"].(string)
	s.TeamID, _ = claims["teamId"].(string)
	s.Participant, _ = claims["participant"].(string)
	s.SessionID, _ = claims["sid"].(string)
	if s.GameID == "" || s.TeamID == "" || s.Participant == "" || s.SessionID == "" {
		return Session{}, ErrInvalidToken
	}
	return s, nil
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) string {
	a := r.Header.Get("Authorization")
	if len(a) > 7 && strings.EqualFold(a[:7], "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	return ""
}
