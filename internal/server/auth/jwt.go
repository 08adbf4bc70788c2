// Package auth verifies bearer tokens and mints development tokens. Tokens
// are HS256 JWTs; secrets rotate by listing the new secret first.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/transcoder/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenTypeAccess is the only accepted "typ" claim.
const TokenTypeAccess = "access"

// Identity is the subject of an issued token.
type Identity struct {
	Username string
	Email    string
	Groups   []string
}

// Issuer signs access tokens with one secret.
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func NewIssuer(secret []byte, issuer, audience string, ttl time.Duration) *Issuer {
	return &Issuer{secret: secret, issuer: issuer, audience: audience, ttl: ttl, now: time.Now}
}

// Issue returns a signed access token for id.
func (i *Issuer) Issue(id Identity) (string, error) {
	now := i.now()
	claims := jwt.MapClaims{
		"iss": i.issuer,
		"aud": i.audience,
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(now.Add(i.ttl)),
		"jti": uuid.NewString(),
		"typ": TokenTypeAccess,
	}
	if id.Username != "" {
		claims["sub"] = id.Username
		claims["username"] = id.Username
	}
	if id.Email != "" {
		claims["email"] = id.Email
	}
	if len(id.Groups) > 0 {
		claims["groups"] = id.Groups
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", err
	}
	return token, nil
}

// Verifier checks signature, expiry, issuer, audience and token type.
type Verifier struct {
	secrets  [][]byte
	issuer   string
	audience string
	now      func() time.Time
}

// NewVerifier accepts tokens signed with any of secrets.
func NewVerifier(secrets []string, issuer, audience string) (*Verifier, error) {
	if len(secrets) == 0 {
		return nil, errors.New("no verification secrets")
	}
	v := &Verifier{issuer: issuer, audience: audience, now: time.Now}
	for _, s := range secrets {
		v.secrets = append(v.secrets, []byte(s))
	}
	return v, nil
}

// Verify parses token and returns its claims. Each secret is tried in turn.
// Expired tokens yield common.ErrTokenExpired; every other rejection wraps
// common.ErrInvalidToken.
func (v *Verifier) Verify(token string) (map[string]any, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var err error
	for _, secret := range v.secrets {
		claims := jwt.MapClaims{}
		var parsed *jwt.Token
		parsed, err = jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
			return secret, nil
		}, opts...)
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			continue
		}
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
		}
		if !parsed.Valid {
			return nil, common.ErrInvalidToken
		}
		if typ, _ := claims["typ"].(string); typ != TokenTypeAccess {
			return nil, fmt.Errorf("%w: unexpected token type %q", common.ErrInvalidToken, typ)
		}
		return map[string]any(claims), nil
	}
	return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
}
