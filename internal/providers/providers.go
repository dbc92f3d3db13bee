package providers

import (
	"sort"
	"strings"
)

// ID identifies an LLM provider.
type ID string

// Canonical provider identifiers.
const (
	OpenRouter ID = "openrouter"
	OpenAI     ID = "openai"
	Anthropic  ID = "anthropic"
	Groq       ID = "groq"
)

// Fallback is the provider used when no layer names one.
const Fallback = OpenRouter

// Format tags the request/response wire shape of a provider.
type Format string

// Supported wire formats.
const (
	FormatOpenAI    Format = "openai"
	FormatAnthropic Format = "anthropic"
)

// AnthropicVersion is the API version header sent to Anthropic.
const AnthropicVersion = "2023-06-01"

// Descriptor holds the static HTTP shape of a provider.
type Descriptor struct {
	ID           ID
	Name         string
	BaseURL      string
	ChatPath     string
	ModelsPath   string
	AuthHeader   string            // Empty means "Authorization: Bearer <key>".
	ExtraHeaders map[string]string // Static headers added to every call.
	Format       Format
}

// ChatURL returns the absolute chat/completions endpoint.
func (d Descriptor) ChatURL() string {
	return strings.TrimRight(d.BaseURL, "/") + d.ChatPath
}

// ModelsURL returns the absolute models-list endpoint.
func (d Descriptor) ModelsURL() string {
	return strings.TrimRight(d.BaseURL, "/") + d.ModelsPath
}

// ApplyAuth returns the auth header name and value for a static key.
func (d Descriptor) ApplyAuth(key string) (string, string) {
	if d.AuthHeader != "" {
		return d.AuthHeader, key
	}
	return "Authorization", "Bearer " + key
}

// Table is an immutable provider lookup table.
type Table struct {
	byID map[ID]Descriptor
}

// NewTable builds a table from descriptors; later entries replace earlier ones.
func NewTable(descriptors ...Descriptor) *Table {
	byID := make(map[ID]Descriptor, len(descriptors))
	for _, d := range descriptors {
		if d.ExtraHeaders != nil {
			headers := make(map[string]string, len(d.ExtraHeaders))
			for k, v := range d.ExtraHeaders {
				headers[k] = v
			}
			d.ExtraHeaders = headers
		}
		byID[d.ID] = d
	}
	return &Table{byID: byID}
}

// Lookup returns the descriptor for id after alias normalization.
func (t *Table) Lookup(id ID) (Descriptor, bool) {
	if t == nil {
		return Descriptor{}, false
	}
	d, ok := t.byID[Normalize(string(id))]
	if !ok {
		return Descriptor{}, false
	}
	return d, true
}

// IDs returns the known provider ids in sorted order.
func (t *Table) IDs() []ID {
	if t == nil {
		return nil
	}
	out := make([]ID, 0, len(t.byID))
	for id := range t.byID {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// WithBaseURL returns a copy of the table with one provider's base URL replaced.
func (t *Table) WithBaseURL(id ID, baseURL string) *Table {
	descriptors := make([]Descriptor, 0, len(t.byID))
	for _, d := range t.byID {
		if d.ID == id && strings.TrimSpace(baseURL) != "" {
			d.BaseURL = strings.TrimSpace(baseURL)
		}
		descriptors = append(descriptors, d)
	}
	return NewTable(descriptors...)
}

var defaultTable = NewTable(
	Descriptor{
		ID:         OpenRouter,
		Name:       "OpenRouter",
		BaseURL:    "https://openrouter.ai/api/v1",
		ChatPath:   "/chat/completions",
		ModelsPath: "/models",
		ExtraHeaders: map[string]string{
			"HTTP-Referer": "https://github.com/eamarucci/bot-answer",
			"X-Title":      "BotAnswer",
		},
		Format: FormatOpenAI,
	},
	Descriptor{
		ID:         OpenAI,
		Name:       "OpenAI",
		BaseURL:    "https://api.openai.com/v1",
		ChatPath:   "/chat/completions",
		ModelsPath: "/models",
		Format:     FormatOpenAI,
	},
	Descriptor{
		ID:           Anthropic,
		Name:         "Anthropic",
		BaseURL:      "https://api.anthropic.com/v1",
		ChatPath:     "/messages",
		ModelsPath:   "/models",
		AuthHeader:   "x-api-key",
		ExtraHeaders: map[string]string{"anthropic-version": AnthropicVersion},
		Format:       FormatAnthropic,
	},
	Descriptor{
		ID:         Groq,
		Name:       "Groq",
		BaseURL:    "https://api.groq.com/openai/v1",
		ChatPath:   "/chat/completions",
		ModelsPath: "/models",
		Format:     FormatOpenAI,
	},
)

// Default returns the built-in provider table.
func Default() *Table { return defaultTable }

var aliases = map[string]ID{
	"openrouter":  OpenRouter,
	"open-router": OpenRouter,
	"openai":      OpenAI,
	"chatgpt":     OpenAI,
	"codex":       OpenAI,
	"anthropic":   Anthropic,
	"claude":      Anthropic,
	"claude-code": Anthropic,
	"groq":        Groq,
}

// Normalize maps provider inputs to canonical identifiers.
// Unknown values are returned lowercased so lookups fail loudly.
func Normalize(value string) ID {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return ""
	}
	if alias, ok := aliases[trimmed]; ok {
		return alias
	}
	return ID(trimmed)
}

// OAuthCapable reports whether a provider offers a subscription OAuth grant.
func OAuthCapable(id ID) bool {
	switch Normalize(string(id)) {
	case Anthropic, OpenAI:
		return true
	default:
		return false
	}
}
