package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	oauthStateCookie   = "botanswer_oauth_state"
	oauthStateLifetime = 10 * time.Minute
)

var errInvalidState = errors.New("invalid or expired oauth state")

// oauthStateClaims carries the PKCE verifier between authorize and callback.
type oauthStateClaims struct {
	AdminID  uint64 `json:"aid"`
	Provider string `json:"prv"`
	Verifier string `json:"vrf"`
	jwt.RegisteredClaims
}

func signOAuthState(key []byte, adminID uint64, provider, verifier string, now time.Time) (string, error) {
	claims := oauthStateClaims{
		AdminID:  adminID,
		Provider: provider,
		Verifier: verifier,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(oauthStateLifetime)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign oauth state: %w", err)
	}
	return signed, nil
}

func parseOAuthState(key []byte, raw string, now time.Time) (*oauthStateClaims, error) {
	claims := &oauthStateClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil || !token.Valid {
		return nil, errInvalidState
	}
	if claims.Verifier == "" {
		return nil, errInvalidState
	}
	return claims, nil
}
