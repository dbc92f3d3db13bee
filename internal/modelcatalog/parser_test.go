package modelcatalog

import (
	"testing"

	"github.com/eamarucci/bot-answer/internal/providers"
)

func TestParseModelsOpenRouterKeepsTextModels(t *testing.T) {
	payload := []byte(`{"data":[
		{"id":"z/image-gen","name":"Image Gen","architecture":{"output_modalities":["image"]}},
		{"id":"openai/gpt-4o","name":"OpenAI: GPT-4o","context_length":128000,"description":"omni","pricing":{"prompt":"0.0000025","completion":"0.00001"},"architecture":{"output_modalities":["text"]}},
		{"id":"anthropic/claude-3.5-sonnet","name":"Anthropic: Claude 3.5 Sonnet","context_length":200000,"architecture":{"output_modalities":["text","image"]}}
	]}`)

	refs, err := ParseModels(providers.OpenRouter, payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 text models, got %d", len(refs))
	}
	if refs[0].ModelID != "anthropic/claude-3.5-sonnet" || refs[1].ModelID != "openai/gpt-4o" {
		t.Fatalf("unexpected order %q, %q", refs[0].ModelID, refs[1].ModelID)
	}
	gpt := refs[1]
	if gpt.ContextLength != 128000 || gpt.PromptPrice != "0.0000025" || gpt.CompletionPrice != "0.00001" || gpt.Description != "omni" {
		t.Fatalf("unexpected fields %+v", gpt)
	}
	if len(gpt.Extra) == 0 {
		t.Fatalf("expected raw entry in Extra")
	}
}

func TestParseModelsProviderFilters(t *testing.T) {
	cases := []struct {
		name     string
		provider providers.ID
		payload  string
		want     []string
	}{
		{
			name:     "openai chat prefixes",
			provider: providers.OpenAI,
			payload:  `{"data":[{"id":"gpt-4o"},{"id":"text-embedding-3-small"},{"id":"o3-mini"},{"id":"dall-e-3"},{"id":"o1"}]}`,
			want:     []string{"gpt-4o", "o1", "o3-mini"},
		},
		{
			name:     "anthropic display names",
			provider: providers.Anthropic,
			payload:  `{"data":[{"id":"claude-3-haiku-20240307","display_name":"Claude Haiku 3"},{"id":"claude-sonnet-4-20250514","display_name":"Claude Sonnet 4"}]}`,
			want:     []string{"claude-3-haiku-20240307", "claude-sonnet-4-20250514"},
		},
		{
			name:     "groq drops inactive and audio",
			provider: providers.Groq,
			payload:  `{"data":[{"id":"llama-3.3-70b-versatile","active":true,"context_window":131072},{"id":"whisper-large-v3","active":true},{"id":"distil-whisper"},{"id":"old","active":false},{"id":"gemma2-9b-it"}]}`,
			want:     []string{"gemma2-9b-it", "llama-3.3-70b-versatile"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			refs, err := ParseModels(tc.provider, []byte(tc.payload))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if len(refs) != len(tc.want) {
				t.Fatalf("expected %v, got %+v", tc.want, refs)
			}
			for i, id := range tc.want {
				if refs[i].ModelID != id {
					t.Fatalf("position %d: expected %q, got %q", i, id, refs[i].ModelID)
				}
			}
		})
	}
}

func TestParseModelsRejectsInvalidPayload(t *testing.T) {
	if _, err := ParseModels(providers.OpenAI, nil); err == nil {
		t.Fatalf("expected error for empty payload")
	}
	if _, err := ParseModels(providers.OpenAI, []byte("{nope")); err == nil {
		t.Fatalf("expected error for invalid json")
	}
	refs, err := ParseModels(providers.OpenAI, []byte(`{"object":"list"}`))
	if err != nil || refs != nil {
		t.Fatalf("expected no models without data, got %v (%v)", refs, err)
	}
}
