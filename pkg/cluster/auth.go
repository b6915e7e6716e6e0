package cluster

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenTTL is how long a token between nodes is valid.
const TokenTTL = 5 * time.Minute

// IssueToken signs a token (HS256) proving the request comes from issuer, a member of the cluster.
func IssueToken(secret []byte, issuer string, audience string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// VerifyToken verifies token is signed with secret for audience, and returns its claims.
//
// Errors are wrapped with ErrInvalidToken.
func VerifyToken(secret []byte, audience string, token string) (*jwt.RegisteredClaims, error) {
	tok, err := jwt.ParseWithClaims(
		token, new(jwt.RegisteredClaims),
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	claims, ok := tok.Claims.(*jwt.RegisteredClaims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
