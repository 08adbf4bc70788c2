package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/transcoder/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const (
	testIssuer   = "transcoderapp"
	testAudience = "transcoderapp-web"
)

func mustVerifier(t *testing.T, secrets ...string) *Verifier {
	t.Helper()
	v, err := NewVerifier(secrets, testIssuer, testAudience)
	if err != nil {
		t.Fatalf("NewVerifier error: %v", err)
	}
	return v
}

func TestIssueAndVerify_Success(t *testing.T) {
	t.Parallel()

	iss := NewIssuer([]byte("super-secret"), testIssuer, testAudience, time.Hour)
	tok, err := iss.Issue(Identity{Username: "alice", Email: "alice@example.com", Groups: []string{"Admin"}})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	claims, err := mustVerifier(t, "super-secret").Verify(tok)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if claims["username"] != "alice" {
		t.Fatalf("username mismatch: got %v", claims["username"])
	}
	groups, ok := claims["groups"].([]any)
	if !ok || len(groups) != 1 || groups[0] != "Admin" {
		t.Fatalf("groups mismatch: got %#v", claims["groups"])
	}
}

func TestVerify_RotatedSecrets(t *testing.T) {
	t.Parallel()

	old := NewIssuer([]byte("old"), testIssuer, testAudience, time.Hour)
	tok, err := old.Issue(Identity{Username: "bob"})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	if _, err := mustVerifier(t, "new", "old").Verify(tok); err != nil {
		t.Fatalf("token signed with a retired secret should verify: %v", err)
	}
	if _, err := mustVerifier(t, "new").Verify(tok); !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken once the secret is dropped, got %v", err)
	}
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()

	iss := NewIssuer([]byte("secret"), testIssuer, testAudience, -1*time.Second)
	tok, err := iss.Issue(Identity{Username: "u1"})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	_, err = mustVerifier(t, "secret").Verify(tok)
	if !errors.Is(err, common.ErrTokenExpired) {
		t.Fatalf("expected common.ErrTokenExpired, got %v", err)
	}
}

func TestVerify_Rejections(t *testing.T) {
	t.Parallel()

	sign := func(method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))
	base := func() jwt.MapClaims {
		return jwt.MapClaims{"iss": testIssuer, "aud": testAudience, "exp": exp, "typ": "access", "username": "u"}
	}

	wrongIssuer := base()
	wrongIssuer["iss"] = "someone-else"
	wrongAudience := base()
	wrongAudience["aud"] = "other-app"
	refresh := base()
	refresh["typ"] = "refresh"
	noExp := base()
	delete(noExp, "exp")

	tests := map[string]string{
		"garbage":        "not-a-token",
		"wrong issuer":   sign(jwt.SigningMethodHS256, []byte("secret"), wrongIssuer),
		"wrong audience": sign(jwt.SigningMethodHS256, []byte("secret"), wrongAudience),
		"refresh token":  sign(jwt.SigningMethodHS256, []byte("secret"), refresh),
		"no expiry":      sign(jwt.SigningMethodHS256, []byte("secret"), noExp),
		"hs512":          sign(jwt.SigningMethodHS512, []byte("secret"), base()),
		"none alg":       sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, base()),
	}

	v := mustVerifier(t, "secret")
	for name, tok := range tests {
		if _, err := v.Verify(tok); !errors.Is(err, common.ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestNewVerifier_RequiresSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewVerifier(nil, testIssuer, testAudience); err == nil {
		t.Fatal("expected error without secrets")
	}
}
