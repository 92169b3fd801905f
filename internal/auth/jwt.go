// Package auth verifies the access tokens operators present when joining a
// broadcast session.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	ErrNoSecret     = errors.New("auth: no signing secret configured")
	ErrInvalidToken = errors.New("auth: invalid token")
)

type TokenClaims struct {
	UserID        string `json:"uid"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
	TokenType     string `json:"typ"`
	jwt.RegisteredClaims
}

// VerifyToken parses raw and checks its HS256 signature and expiry.
func VerifyToken(raw string, secret []byte) (*TokenClaims, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyAccessToken is VerifyToken restricted to access tokens. It returns
// the user id carried by the token.
func VerifyAccessToken(raw string, secret []byte) (string, error) {
	claims, err := VerifyToken(raw, secret)
	if err != nil {
		return "", err
	}
	if claims.TokenType != TypeAccess || claims.UserID == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}

// IssueAccessToken signs an access token for userID. The controller binary
// uses it when it is given a secret instead of a token.
func IssueAccessToken(userID string, secret []byte, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := &TokenClaims{
		UserID:    userID,
		TokenType: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ClientToken picks the token a client presents when joining. An explicit
// access token wins; otherwise one is signed for userID. With neither the
// client joins anonymously and the result is empty.
func ClientToken(accessToken, userID string, secret []byte, ttl time.Duration) (string, error) {
	switch {
	case accessToken != "":
		return accessToken, nil
	case userID == "":
		return "", nil
	}
	return IssueAccessToken(userID, secret, ttl)
}
