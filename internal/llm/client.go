package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eamarucci/bot-answer/internal/credential"
	"github.com/eamarucci/bot-answer/internal/providers"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DefaultTimeout bounds one upstream call when none is configured.
const DefaultTimeout = 60 * time.Second

// TokenSource hands out OAuth access tokens.
type TokenSource interface {
	AccessToken(ctx context.Context, principalID uint64, provider providers.ID) (string, error)
}

// Client dispatches a resolved credential to the adapter under a fixed timeout.
type Client struct {
	adapter *Adapter
	tokens  TokenSource
	timeout time.Duration
}

// NewClient creates a completion client. tokens may be nil when OAuth is unused.
func NewClient(adapter *Adapter, tokens TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{adapter: adapter, tokens: tokens, timeout: timeout}
}

// CreateChatCompletion runs one completion for the credential. Failures are *Error.
func (c *Client) CreateChatCompletion(ctx context.Context, messages []Message, model string, cred credential.Credential) (Result, error) {
	requestID := uuid.NewString()
	entry := log.WithFields(log.Fields{"request_id": requestID, "model": model})

	var req Request
	switch cr := cred.(type) {
	case credential.APICredential:
		req = Request{Messages: messages, Model: model, Provider: cr.Provider, Secret: cr.Key, Mode: AuthAPIKey}
	case credential.OAuthCredential:
		if c.tokens == nil {
			return Result{}, oauthError(cr.OAuthProvider, errors.New("no token source configured"))
		}
		token, err := c.tokens.AccessToken(ctx, cr.PrincipalID, cr.OAuthProvider)
		if err != nil {
			entry.WithError(err).WithField("admin_id", cr.PrincipalID).Warn("llm: oauth token unavailable")
			return Result{}, oauthError(cr.OAuthProvider, err)
		}
		req = Request{Messages: messages, Model: model, Provider: cr.Provider, Secret: token, Mode: AuthOAuth}
	default:
		return Result{}, &Error{
			Kind:         KindUnknown,
			Message:      fmt.Sprintf("unsupported credential %T", cred),
			UserFriendly: "Ocorreu um erro inesperado. Tente novamente.",
		}
	}
	entry = entry.WithFields(log.Fields{"provider": req.Provider, "source": cred.Origin()})

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	result, err := c.adapter.Complete(callCtx, req)
	if err != nil {
		entry.WithError(err).WithField("elapsed", time.Since(started)).Error("llm: completion failed")
		return Result{}, err
	}
	result.RequestID = requestID
	entry.WithFields(log.Fields{
		"elapsed":        time.Since(started),
		"content_length": len(result.Content),
	}).Info("llm: completion received")
	return result, nil
}

func oauthError(provider providers.ID, err error) *Error {
	name := string(provider)
	switch provider {
	case providers.Anthropic:
		name = "Claude"
	case providers.OpenAI:
		name = "ChatGPT"
	}
	return &Error{
		Kind:         KindOAuth,
		Message:      fmt.Sprintf("oauth %s: %v", provider, err),
		UserFriendly: fmt.Sprintf("Conexao OAuth com %s indisponivel. Admin: reconecte a conta no painel web.", name),
		Err:          err,
	}
}
