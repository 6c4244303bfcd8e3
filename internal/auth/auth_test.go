package auth

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSessionRoundTrip(t *testing.T) {
	k := NewSigner("secret", 1)
	in := Session{GameID: "g", TeamID: "t", Participant: "Zezima", SessionID: "sid"}
	tok, exp, err := k.Sign(in)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if d := time.Until(exp); d < 23*time.Hour || d > 25*time.Hour {
		t.Fatalf("expiry %v not ~1 day away", exp)
	}
	got, err := k.Verify(tok)
	if err != nil || got != in {
		t.Fatalf("Verify = %+v, %v", got, err)
	}
}

func TestVerifyRejects(t *testing.T) {
	k := NewSigner("secret", 1)
	good, _, _ := k.Sign(Session{GameID: "g", TeamID: "t", Participant: "p", SessionID: "s"})
	other, _, _ := NewSigner("other", 1).Sign(Session{GameID: "g", TeamID: "t", Participant: "p", SessionID: "s"})
	missing, _, _ := k.Sign(Session{GameID: "g", TeamID: "t", Participant: "p"})

	expired := NewSigner("secret", 1)
	expired.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	old, _, _ := expired.Sign(Session{GameID: "g", TeamID: "t", Participant: "p", SessionID: "s"})

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"gameId": "g", "teamId": "t", "participant": "p", "sid": "s"})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := map[string]string{
		"garbage":        "not.a.token",
		"wrong secret":   other,
		"missing sid":    missing,
		"expired":        old,
		"alg none":       unsigned,
		"swapped claims": swapPayload(good, missing),
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := k.Verify(tok); err != ErrInvalidToken {
				t.Fatalf("Verify = %v, want ErrInvalidToken", err)
			}
		})
	}
}

// swapPayload grafts the claims segment of from onto the signature of sig.
func swapPayload(sig, from string) string {
	a, b := strings.Split(sig, "."), strings.Split(from, ".")
	return a[0] + "." + b[1] + "." + a[2]
}

func TestBearerToken(t *testing.T) {
	tests := []struct{ header, want string }{
		{"Bearer abc", "abc"},
		{"bearer  abc ", "abc"},
		{"Basic abc", ""},
		{"", ""},
	}
	for _, tc := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}
		if got := BearerToken(r); got != tc.want {
			t.Errorf("BearerToken(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}

func TestPasswords(t *testing.T) {
	h, err := HashPassword("hunter22")
	if err != nil {
		t.Fatal(err)
	}
	if !CheckPassword(h, "hunter22") || CheckPassword(h, "hunter23") || CheckPassword("", "") {
		t.Fatal("CheckPassword mismatch")
	}
	if ValidPassword("abc") || !ValidPassword("abcd") || ValidPassword(strings.Repeat("x", 73)) {
		t.Fatal("ValidPassword bounds")
	}
}

func TestJoinCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		c, err := NewJoinCode()
		if err != nil {
			t.Fatal(err)
		}
		if len(c) != JoinCodeLen {
			t.Fatalf("len(%q) = %d", c, len(c))
		}
		for _, r := range c {
			if !strings.ContainsRune(JoinCodeAlphabet, r) {
				t.Fatalf("code %q has %q outside alphabet", c, r)
			}
		}
		seen[c] = true
	}
	if len(seen) < 45 {
		t.Fatalf("only %d distinct codes in 50", len(seen))
	}

	a := JoinCodeDigest("salt", " abc234 ")
	if a != JoinCodeDigest("salt", "ABC234") {
		t.Fatal("digest not case/space insensitive")
	}
	if a == JoinCodeDigest("pepper", "ABC234") {
		t.Fatal("digest ignores salt")
	}
	if len(a) != 64 {
		t.Fatalf("digest len = %d", len(a))
	}
}
