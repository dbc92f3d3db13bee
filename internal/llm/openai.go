package llm

import (
	"encoding/json"
	"strings"
)

// TruncationHint is appended when a model stopped at max_tokens.
const TruncationHint = "\n\n[...resposta truncada. Faca uma pergunta mais especifica para continuar]"

type openAIRequest struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	MaxTokens        int       `json:"max_tokens"`
	Stream           bool      `json:"stream"`
	IncludeReasoning bool      `json:"include_reasoning"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

func buildOpenAIBody(messages []Message, model string, maxTokens int, includeReasoning bool) openAIRequest {
	return openAIRequest{
		Model:            model,
		Messages:         messages,
		MaxTokens:        maxTokens,
		Stream:           false,
		IncludeReasoning: includeReasoning,
	}
}

func parseOpenAIResponse(raw []byte, status int, requestedModel string) (Result, *Error) {
	var decoded openAIResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Result{}, classify(status, raw)
	}
	if len(decoded.Choices) == 0 {
		return Result{}, noResponseError()
	}
	choice := decoded.Choices[0]
	content := ""
	if choice.Message.Content != nil {
		content = *choice.Message.Content
	}
	if strings.TrimSpace(content) == "" {
		return Result{}, noResponseError()
	}
	if choice.FinishReason == "length" {
		content += TruncationHint
	}
	model := decoded.Model
	if model == "" {
		model = requestedModel
	}
	return Result{Content: content, Model: model, Usage: decoded.Usage}, nil
}
