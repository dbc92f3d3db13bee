package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// OpenAI (ChatGPT Plus/Pro) grant constants shared with the Codex CLI.
const (
	OpenAIClientID     = "app_EMoamEEZ73f0CkXaXp7hrann"
	OpenAIAuthorizeURL = "https://auth.openai.com/oauth/authorize"
	OpenAITokenURL     = "https://auth.openai.com/oauth/token"
	OpenAIRedirectURL  = "http://localhost:1455/auth/callback"
	openAIAuthClaim    = "https://api.openai.com/auth"
)

var errStateMismatch = errors.New("oauth: openai exchange: state mismatch")

// OpenAIClient runs the standard form-encoded authorization code and refresh
// grants through x/oauth2.
type OpenAIClient struct {
	cfg        oauth2.Config
	httpClient *http.Client
}

// NewOpenAIClient builds a client against the production endpoints.
func NewOpenAIClient(httpClient *http.Client) *OpenAIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &OpenAIClient{
		cfg: oauth2.Config{
			ClientID:    OpenAIClientID,
			RedirectURL: OpenAIRedirectURL,
			Scopes:      []string{"openid", "profile", "email", "offline_access"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   OpenAIAuthorizeURL,
				TokenURL:  OpenAITokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
	}
}

// WithTokenURL points the client at another token endpoint.
func (c *OpenAIClient) WithTokenURL(tokenURL string) *OpenAIClient {
	clone := *c
	clone.cfg.Endpoint.TokenURL = tokenURL
	return &clone
}

// AuthorizeURL builds the consent URL. The state is the PKCE challenge.
func (c *OpenAIClient) AuthorizeURL(verifier string) string {
	return c.cfg.AuthCodeURL(challenge(verifier),
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("id_token_add_organizations", "true"),
		oauth2.SetAuthURLParam("codex_cli_simplified_flow", "true"),
	)
}

// Exchange accepts either a bare code or the full redirect URL the browser landed on.
func (c *OpenAIClient) Exchange(ctx context.Context, code, verifier string) (TokenSet, error) {
	authCode, state := splitRedirect(code)
	if authCode == "" {
		return TokenSet{}, fmt.Errorf("oauth: openai exchange: empty authorization code")
	}
	if state != "" && state != challenge(verifier) {
		return TokenSet{}, errStateMismatch
	}
	tok, err := c.cfg.Exchange(c.context(ctx), authCode, oauth2.VerifierOption(verifier))
	if err != nil {
		return TokenSet{}, convertRetrieveError("openai exchange", err)
	}
	return openAITokenSet(tok)
}

// Refresh uses the refresh_token grant.
func (c *OpenAIClient) Refresh(ctx context.Context, refreshToken string) (TokenSet, error) {
	src := c.cfg.TokenSource(c.context(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return TokenSet{}, convertRetrieveError("openai refresh", err)
	}
	return openAITokenSet(tok)
}

func (c *OpenAIClient) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func openAITokenSet(tok *oauth2.Token) (TokenSet, error) {
	if tok == nil || tok.AccessToken == "" {
		return TokenSet{}, errEmptyAccessToken
	}
	set := TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    time.Duration(tok.ExpiresIn) * time.Second,
	}
	if set.ExpiresIn <= 0 && !tok.Expiry.IsZero() {
		set.ExpiresIn = time.Until(tok.Expiry)
	}
	set.RefreshExpiresIn = durationExtra(tok.Extra("refresh_token_expires_in"))
	if idToken, ok := tok.Extra("id_token").(string); ok {
		set.AccountID = accountIDFromIDToken(idToken)
	}
	return set, nil
}

// accountIDFromIDToken reads the ChatGPT account id claim. The token came
// straight from the issuer over TLS, so the signature is not re-verified.
func accountIDFromIDToken(idToken string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return ""
	}
	auth, ok := claims[openAIAuthClaim].(map[string]any)
	if !ok {
		return ""
	}
	id, _ := auth["chatgpt_account_id"].(string)
	return id
}

func durationExtra(v any) time.Duration {
	switch n := v.(type) {
	case float64:
		return time.Duration(n) * time.Second
	case int64:
		return time.Duration(n) * time.Second
	case string:
		if secs, err := strconv.ParseInt(n, 10, 64); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

func splitRedirect(raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "code=") {
		return raw, ""
	}
	query := raw
	if idx := strings.Index(raw, "?"); idx >= 0 {
		query = raw[idx+1:]
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return "", ""
	}
	return values.Get("code"), values.Get("state")
}

func convertRetrieveError(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return &StatusError{Status: retrieveErr.Response.StatusCode, Body: string(retrieveErr.Body)}
	}
	return fmt.Errorf("oauth: %s: %w", op, err)
}
