// Package identity binds API callers to the ledger address they submit
// as. Wallets and transaction signing live outside this system; the only
// identity concern here is knowing which address a request acts for.
package identity

import (
	"fmt"
	"time"

	"github.com/crediflow/crediflow/internal/record"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the JWT claims of an API token. The subject is the ledger
// address all of the caller's submissions are owned by.
type Claims struct {
	jwt.RegisteredClaims
	Address string `json:"address"`
}

// TokenIssuer issues and verifies API tokens signed with HS256.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenIssuer creates a TokenIssuer.
//
//	issuerURL — the "iss" claim value; typically the gateway's base URL.
//	ttl       — token lifetime (default: 1 hour).
func NewTokenIssuer(secret []byte, issuerURL string, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("token secret must be at least 32 bytes")
	}
	if ttl == 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{secret: secret, issuer: issuerURL, ttl: ttl}, nil
}

// Issue creates a signed token binding the given ledger address.
func (t *TokenIssuer) Issue(address string) (string, error) {
	if err := record.ValidateAddress("address", address); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   address,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.New().String(),
		},
		Address: address,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning its claims.
func (t *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Address == "" {
		return nil, fmt.Errorf("token has no bound address")
	}
	return claims, nil
}
