package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	accessTokenTTL  = 30 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
)

// ErrInvalidToken is returned when a presented token fails verification.
var ErrInvalidToken = errors.New("server: invalid token")

// TokenIssuer signs and verifies the backend's HS256 tokens.
type TokenIssuer struct {
	secret []byte
}

// NewTokenIssuer creates an issuer from a shared secret.
func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret)}
}

type tokenClaims struct {
	UserID   int    `json:"userId"`
	Username string `json:"username"`
	Kind     string `json:"kind"`
	jwt.RegisteredClaims
}

// IssuePair mints an access/refresh token pair for a user.
func (t *TokenIssuer) IssuePair(userID int, username string) (access, refresh string, err error) {
	access, err = t.sign(userID, username, "access", accessTokenTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = t.sign(userID, username, "refresh", refreshTokenTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (t *TokenIssuer) sign(userID int, username, kind string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		UserID:   userID,
		Username: username,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Verify checks a token's signature and kind and returns its subject.
func (t *TokenIssuer) Verify(token, kind string) (userID int, username string, err error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !parsed.Valid || claims.Kind != kind {
		return 0, "", ErrInvalidToken
	}
	return claims.UserID, claims.Username, nil
}
