package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/eamarucci/bot-answer/internal/providers"
	log "github.com/sirupsen/logrus"
)

const maxResponseBody = 8 << 20

// AuthMode says how the credential is presented upstream.
type AuthMode int

const (
	// AuthAPIKey uses the descriptor's auth header with a static key.
	AuthAPIKey AuthMode = iota
	// AuthOAuth uses a subscription bearer token.
	AuthOAuth
)

// Request is one provider-agnostic completion call.
type Request struct {
	Messages []Message
	Model    string
	Provider providers.ID
	Secret   string
	Mode     AuthMode
}

// AdapterConfig tunes request bodies.
type AdapterConfig struct {
	MaxTokens        int
	IncludeReasoning bool
}

// Adapter translates requests into provider wire formats and normalizes answers.
type Adapter struct {
	table      *providers.Table
	httpClient *http.Client
	cfg        AdapterConfig
}

// NewAdapter creates an adapter. table and httpClient may be nil.
func NewAdapter(table *providers.Table, httpClient *http.Client, cfg AdapterConfig) *Adapter {
	if table == nil {
		table = providers.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2000
	}
	return &Adapter{table: table, httpClient: httpClient, cfg: cfg}
}

type preparedCall struct {
	url     string
	headers http.Header
	body    any
	format  providers.Format
}

func (a *Adapter) prepare(req Request) (preparedCall, *Error) {
	desc, ok := a.table.Lookup(req.Provider)
	if !ok {
		return preparedCall{}, unknownProviderError(string(req.Provider))
	}
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")

	if req.Mode == AuthOAuth && desc.Format == providers.FormatAnthropic {
		headers.Set("Authorization", "Bearer "+req.Secret)
		headers.Set("anthropic-version", providers.AnthropicVersion)
		headers.Set("anthropic-beta", anthropicOAuthBeta)
		headers.Set("User-Agent", anthropicOAuthAgent)
		return preparedCall{
			url:     desc.ChatURL() + anthropicOAuthQuery,
			headers: headers,
			body:    buildAnthropicOAuthBody(req.Messages, req.Model, a.cfg.MaxTokens),
			format:  providers.FormatAnthropic,
		}, nil
	}

	for k, v := range desc.ExtraHeaders {
		headers.Set(k, v)
	}
	if req.Mode == AuthOAuth {
		headers.Set("Authorization", "Bearer "+req.Secret)
	} else {
		name, value := desc.ApplyAuth(req.Secret)
		headers.Set(name, value)
	}

	call := preparedCall{url: desc.ChatURL(), headers: headers, format: desc.Format}
	if desc.Format == providers.FormatAnthropic {
		call.body = buildAnthropicBody(req.Messages, req.Model, a.cfg.MaxTokens)
	} else {
		call.body = buildOpenAIBody(req.Messages, req.Model, a.cfg.MaxTokens, a.cfg.IncludeReasoning)
	}
	return call, nil
}

// Complete performs exactly one upstream call. Failures are always *Error.
func (a *Adapter) Complete(ctx context.Context, req Request) (Result, error) {
	call, prepErr := a.prepare(req)
	if prepErr != nil {
		return Result{}, prepErr
	}
	payload, err := json.Marshal(call.body)
	if err != nil {
		return Result{}, transportError(fmt.Errorf("encode body: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, call.url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, transportError(err)
	}
	httpReq.Header = call.headers

	fields := log.Fields{"provider": req.Provider, "model": req.Model}
	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, timeoutError(err)
		}
		return Result{}, transportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, timeoutError(err)
		}
		return Result{}, transportError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		classified := classify(resp.StatusCode, raw)
		log.WithFields(fields).WithField("status", resp.StatusCode).WithField("upstream", upstreamMessage(raw, resp.StatusCode)).Error("llm: upstream error")
		return Result{}, classified
	}

	var result Result
	var parseErr *Error
	if call.format == providers.FormatAnthropic {
		result, parseErr = parseAnthropicResponse(raw, resp.StatusCode, req.Model)
	} else {
		result, parseErr = parseOpenAIResponse(raw, resp.StatusCode, req.Model)
	}
	if parseErr != nil {
		log.WithFields(fields).WithField("kind", parseErr.Kind).Error("llm: unusable response body")
		return Result{}, parseErr
	}
	return result, nil
}
