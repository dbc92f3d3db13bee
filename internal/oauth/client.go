package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// TokenSet is what a token endpoint hands back.
type TokenSet struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        time.Duration
	RefreshExpiresIn time.Duration // zero when the provider does not say
	AccountID        string
}

// Refresher trades a refresh token for a new TokenSet.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (TokenSet, error)
}

// Client is the full subscription grant flow of one provider.
type Client interface {
	Refresher
	AuthorizeURL(verifier string) string
	Exchange(ctx context.Context, code, verifier string) (TokenSet, error)
}

// StatusError reports a non-2xx answer from a token endpoint.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("oauth: token endpoint returned status %d", e.Status)
}

var errEmptyAccessToken = errors.New("oauth: token endpoint returned no access token")

// NewVerifier returns a fresh PKCE code verifier.
func NewVerifier() string {
	return oauth2.GenerateVerifier()
}

// challenge returns the S256 PKCE challenge for a verifier.
func challenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}
