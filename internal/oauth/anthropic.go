package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Anthropic subscription grant constants shared with the official CLI.
const (
	AnthropicClientID     = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"
	AnthropicAuthorizeURL = "https://claude.ai/oauth/authorize"
	AnthropicTokenURL     = "https://console.anthropic.com/v1/oauth/token"
	AnthropicRedirectURL  = "https://console.anthropic.com/oauth/code/callback"
	anthropicScope        = "org:create_api_key user:profile user:inference"
	maxTokenBody          = 1 << 20
)

// AnthropicClient talks to the Claude Pro/Max token endpoint. It speaks JSON
// bodies, which the generic oauth2 form exchange does not.
type AnthropicClient struct {
	httpClient   *http.Client
	authorizeURL string
	tokenURL     string
}

// NewAnthropicClient builds a client against the production endpoints.
func NewAnthropicClient(httpClient *http.Client) *AnthropicClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &AnthropicClient{
		httpClient:   httpClient,
		authorizeURL: AnthropicAuthorizeURL,
		tokenURL:     AnthropicTokenURL,
	}
}

// WithTokenURL points the client at another token endpoint.
func (c *AnthropicClient) WithTokenURL(tokenURL string) *AnthropicClient {
	clone := *c
	clone.tokenURL = tokenURL
	return &clone
}

// AuthorizeURL builds the consent URL. The verifier doubles as state.
func (c *AnthropicClient) AuthorizeURL(verifier string) string {
	q := url.Values{}
	q.Set("code", "true")
	q.Set("client_id", AnthropicClientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", AnthropicRedirectURL)
	q.Set("scope", anthropicScope)
	q.Set("code_challenge", challenge(verifier))
	q.Set("code_challenge_method", "S256")
	q.Set("state", verifier)
	return c.authorizeURL + "?" + q.Encode()
}

// Exchange trades a pasted "code#state" value for tokens.
func (c *AnthropicClient) Exchange(ctx context.Context, code, verifier string) (TokenSet, error) {
	code = strings.TrimSpace(code)
	authCode, state, _ := strings.Cut(code, "#")
	if state == "" {
		state = verifier
	}
	if authCode == "" {
		return TokenSet{}, fmt.Errorf("oauth: anthropic exchange: empty authorization code")
	}
	return c.post(ctx, map[string]string{
		"code":          authCode,
		"state":         state,
		"grant_type":    "authorization_code",
		"client_id":     AnthropicClientID,
		"redirect_uri":  AnthropicRedirectURL,
		"code_verifier": verifier,
	})
}

// Refresh uses the refresh_token grant.
func (c *AnthropicClient) Refresh(ctx context.Context, refreshToken string) (TokenSet, error) {
	return c.post(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
		"client_id":     AnthropicClientID,
	})
}

type anthropicTokenResponse struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	ExpiresIn             int64  `json:"expires_in"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in"`
	TokenType             string `json:"token_type"`
	Account               struct {
		UUID string `json:"uuid"`
	} `json:"account"`
}

func (c *AnthropicClient) post(ctx context.Context, body map[string]string) (TokenSet, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return TokenSet{}, fmt.Errorf("oauth: anthropic: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, bytes.NewReader(payload))
	if err != nil {
		return TokenSet{}, fmt.Errorf("oauth: anthropic: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TokenSet{}, fmt.Errorf("oauth: anthropic: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBody))
	if err != nil {
		return TokenSet{}, fmt.Errorf("oauth: anthropic: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return TokenSet{}, &StatusError{Status: resp.StatusCode, Body: string(raw)}
	}
	var decoded anthropicTokenResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return TokenSet{}, fmt.Errorf("oauth: anthropic: decode body: %w", err)
	}
	if decoded.AccessToken == "" {
		return TokenSet{}, errEmptyAccessToken
	}
	return TokenSet{
		AccessToken:      decoded.AccessToken,
		RefreshToken:     decoded.RefreshToken,
		ExpiresIn:        time.Duration(decoded.ExpiresIn) * time.Second,
		RefreshExpiresIn: time.Duration(decoded.RefreshTokenExpiresIn) * time.Second,
		AccountID:        decoded.Account.UUID,
	}, nil
}
