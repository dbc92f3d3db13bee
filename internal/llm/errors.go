package llm

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind is the error taxonomy surfaced to callers.
type Kind string

const (
	KindTimeout             Kind = "timeout"
	KindContextTooLong      Kind = "context_too_long"
	KindAuthFailed          Kind = "auth_failed"
	KindQuotaExhausted      Kind = "quota_exhausted"
	KindRateLimited         Kind = "rate_limited"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindNoResponse          Kind = "no_response"
	KindUnknownProvider     Kind = "unknown_provider"
	KindOAuth               Kind = "oauth_error"
	KindUnknown             Kind = "unknown"
)

// Error carries a diagnostic message for logs and a localized one for users.
type Error struct {
	Kind         Kind
	Message      string
	UserFriendly string
	Status       int
	Err          error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage returns the text safe to show in chat.
func (e *Error) UserMessage() string { return e.UserFriendly }

func timeoutError(err error) *Error {
	return &Error{
		Kind:         KindTimeout,
		Message:      "Request timed out",
		UserFriendly: "A requisicao demorou muito. Tente uma pergunta mais curta ou tente novamente.",
		Err:          err,
	}
}

func noResponseError() *Error {
	return &Error{
		Kind:         KindNoResponse,
		Message:      "No response from model",
		UserFriendly: "O modelo nao retornou uma resposta. Tente novamente.",
	}
}

func unknownProviderError(provider string) *Error {
	return &Error{
		Kind:         KindUnknownProvider,
		Message:      fmt.Sprintf("unknown provider %q", provider),
		UserFriendly: fmt.Sprintf("Provedor %q nao e suportado.", provider),
	}
}

func transportError(err error) *Error {
	return &Error{
		Kind:         KindUnknown,
		Message:      fmt.Sprintf("Unexpected error: %v", err),
		UserFriendly: "Ocorreu um erro inesperado. Tente novamente.",
		Err:          err,
	}
}

// upstreamMessage pulls a message out of {error:{message}}, {message} or
// {error:"..."} bodies.
func upstreamMessage(body []byte, status int) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "message"} {
			if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.String() != "" {
				return v.String()
			}
		}
		if v := gjson.GetBytes(body, "error"); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return http.StatusText(status)
}

// classify maps a failed upstream answer onto the taxonomy.
func classify(status int, body []byte) *Error {
	message := upstreamMessage(body, status)
	lower := strings.ToLower(message)
	if strings.Contains(lower, "context") || strings.Contains(lower, "token") || strings.Contains(lower, "length") {
		return &Error{
			Kind:         KindContextTooLong,
			Message:      "Context too long for model",
			UserFriendly: "Mensagem muito longa para o modelo atual. Tente uma pergunta mais curta.",
			Status:       status,
		}
	}
	orDefault := func(fallback string) string {
		if message == "" {
			return fallback
		}
		return message
	}
	switch status {
	case http.StatusUnauthorized:
		return &Error{
			Kind:         KindAuthFailed,
			Message:      "API authentication failed: " + orDefault("Unauthorized"),
			UserFriendly: "Erro de configuracao: chave API invalida. Contate o administrador.",
			Status:       status,
		}
	case http.StatusPaymentRequired:
		return &Error{
			Kind:         KindQuotaExhausted,
			Message:      "Payment required: " + orDefault("Insufficient credits"),
			UserFriendly: "Erro: creditos da API esgotados. Contate o administrador.",
			Status:       status,
		}
	case http.StatusTooManyRequests:
		return &Error{
			Kind:         KindRateLimited,
			Message:      "Rate limit exceeded: " + orDefault("Too many requests"),
			UserFriendly: "Muitas requisicoes. Aguarde alguns segundos e tente novamente.",
			Status:       status,
		}
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return &Error{
			Kind:         KindUpstreamUnavailable,
			Message:      fmt.Sprintf("Upstream error %d: %s", status, orDefault("Service unavailable")),
			UserFriendly: "Servico temporariamente indisponivel. Tente novamente em instantes.",
			Status:       status,
		}
	default:
		return &Error{
			Kind:         KindUnknown,
			Message:      fmt.Sprintf("API error %d: %s", status, orDefault("Unknown error")),
			UserFriendly: fmt.Sprintf("Erro inesperado (%d). Tente novamente.", status),
			Status:       status,
		}
	}
}
