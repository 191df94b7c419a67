// Package auth issues and verifies credentials: bcrypt password hashes and
// HS256 bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/authsync/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token claim set: registered claims (sub, iss, aud, iat, exp)
// plus the account email. Nothing else is embedded.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// AccountID returns the subject as a numeric account id.
func (c *Claims) AccountID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// TokenIssuer signs and verifies bearer tokens with a shared secret.
type TokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
	validity time.Duration
	now      func() time.Time
}

// NewTokenIssuer returns an issuer, or common.ErrConfiguration when the
// secret is empty or whitespace only.
func NewTokenIssuer(secret, issuer, audience string, validity time.Duration) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("%w: empty signing secret", common.ErrConfiguration)
	}
	if validity <= 0 {
		validity = common.DefaultTokenValidity
	}
	return &TokenIssuer{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		validity: validity,
		now:      time.Now,
	}, nil
}

// Issue signs a token for the account, valid for the configured horizon.
func (t *TokenIssuer) Issue(accountID int64, email string) (string, error) {
	now := t.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(accountID, 10),
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{t.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.validity)),
		},
		Email: email,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify checks signature, algorithm, issuer, audience and expiry. Expired
// tokens return an error matching both common.ErrTokenExpired and
// common.ErrInvalidToken; every other failure matches common.ErrInvalidToken.
func (t *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithAudience(t.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", common.ErrInvalidToken, common.ErrTokenExpired)
		}
		return nil, common.ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
