package llm

import (
	"encoding/json"
	"strings"
)

// Anthropic subscription (OAuth) request requirements. The upstream rejects
// OAuth bearer tokens unless every one of these is present.
const (
	ClaudeCodeSystemPrefix = "You are Claude Code, Anthropic's official CLI for Claude."
	anthropicOAuthBeta     = "oauth-2025-04-20,interleaved-thinking-2025-05-14"
	anthropicOAuthAgent    = "claude-cli/2.1.2 (external, cli)"
	anthropicOAuthQuery    = "?beta=true"
)

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type cacheControl struct {
	Type string `json:"type"`
}

type systemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    any                `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Thinking string `json:"thinking"`
	} `json:"content"`
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// toAnthropic pulls system messages out and converts content parts.
func toAnthropic(messages []Message) (string, []anthropicMessage) {
	var system []string
	out := make([]anthropicMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			text := msg.Content
			if len(msg.Parts) > 0 {
				text = joinText(msg.Parts)
			}
			if text != "" {
				system = append(system, text)
			}
		case RoleUser, RoleAssistant:
			if len(msg.Parts) == 0 {
				out = append(out, anthropicMessage{Role: msg.Role, Content: msg.Content})
				continue
			}
			blocks := make([]anthropicBlock, 0, len(msg.Parts))
			for _, part := range msg.Parts {
				if block, ok := toAnthropicBlock(part); ok {
					blocks = append(blocks, block)
				}
			}
			if len(blocks) > 0 {
				out = append(out, anthropicMessage{Role: msg.Role, Content: blocks})
			}
		}
	}
	return strings.Join(system, "\n\n"), out
}

func toAnthropicBlock(part ContentPart) (anthropicBlock, bool) {
	switch part.Type {
	case PartText:
		return anthropicBlock{Type: "text", Text: part.Text}, true
	case PartImageURL:
		if part.ImageURL == nil || part.ImageURL.URL == "" {
			return anthropicBlock{}, false
		}
		url := part.ImageURL.URL
		if !strings.HasPrefix(url, "data:") {
			return anthropicBlock{Type: "image", Source: &anthropicSource{Type: "url", URL: url}}, true
		}
		mime, payload, ok := parseDataURI(url)
		if !ok {
			return anthropicBlock{}, false
		}
		return anthropicBlock{Type: "image", Source: &anthropicSource{Type: "base64", MediaType: mime, Data: payload}}, true
	default:
		// Anthropic has no video input.
		return anthropicBlock{}, false
	}
}

// parseDataURI splits data:<mime>;base64,<payload>.
func parseDataURI(uri string) (string, string, bool) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", "", false
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok || payload == "" {
		return "", "", false
	}
	mime, ok := strings.CutSuffix(header, ";base64")
	if !ok || mime == "" || strings.Contains(mime, ";") {
		return "", "", false
	}
	return mime, payload, true
}

func joinText(parts []ContentPart) string {
	var texts []string
	for _, p := range parts {
		if p.Type == PartText && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func buildAnthropicBody(messages []Message, model string, maxTokens int) anthropicRequest {
	system, converted := toAnthropic(messages)
	body := anthropicRequest{Model: model, MaxTokens: maxTokens, Messages: converted}
	if system != "" {
		body.System = system
	}
	return body
}

// buildAnthropicOAuthBody always sends system as blocks led by the fixed prefix.
func buildAnthropicOAuthBody(messages []Message, model string, maxTokens int) anthropicRequest {
	system, converted := toAnthropic(messages)
	return anthropicRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    oauthSystemBlocks(system),
		Messages:  converted,
	}
}

func oauthSystemBlocks(callerPrompt string) []systemBlock {
	blocks := []systemBlock{{Type: "text", Text: ClaudeCodeSystemPrefix}}
	if callerPrompt != "" {
		blocks = append(blocks, systemBlock{
			Type:         "text",
			Text:         callerPrompt,
			CacheControl: &cacheControl{Type: "ephemeral"},
		})
	}
	return blocks
}

func parseAnthropicResponse(raw []byte, status int, requestedModel string) (Result, *Error) {
	var decoded anthropicResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Result{}, classify(status, raw)
	}
	var texts []string
	for _, block := range decoded.Content {
		if block.Type == "text" && block.Text != "" {
			texts = append(texts, block.Text)
		}
	}
	if len(texts) == 0 {
		return Result{}, noResponseError()
	}
	model := decoded.Model
	if model == "" {
		model = requestedModel
	}
	result := Result{Content: strings.Join(texts, "\n"), Model: model}
	if decoded.Usage != nil {
		result.Usage = &Usage{
			PromptTokens:     decoded.Usage.InputTokens,
			CompletionTokens: decoded.Usage.OutputTokens,
			TotalTokens:      decoded.Usage.InputTokens + decoded.Usage.OutputTokens,
		}
	}
	return result, nil
}
