package credential

import "strings"

// DefaultVisionMarkers are substrings of aggregator vision model names that do
// not pin an OAuth provider. The list tracks one catalog and will drift; it is
// configurable through the llm.vision-markers setting.
var DefaultVisionMarkers = []string{"nvidia", "nemotron", "vision"}

// ModelIntent is the routing classification of a requested model string.
type ModelIntent struct {
	NoModel        bool
	WantsAnthropic bool
	WantsOpenAI    bool
}

// ClassifyModel decides which OAuth branch a requested model points at.
func ClassifyModel(model string, visionMarkers []string) ModelIntent {
	m := strings.ToLower(strings.TrimSpace(model))
	intent := ModelIntent{}
	if m == "" || m == AutoModel {
		intent.NoModel = true
	} else {
		for _, marker := range visionMarkers {
			marker = strings.ToLower(strings.TrimSpace(marker))
			if marker != "" && strings.Contains(m, marker) {
				intent.NoModel = true
				break
			}
		}
	}
	if m == "" {
		return intent
	}
	intent.WantsAnthropic = strings.Contains(m, "claude") ||
		strings.Contains(m, "anthropic")
	intent.WantsOpenAI = strings.Contains(m, "gpt") ||
		strings.Contains(m, "openai") ||
		strings.HasPrefix(m, "o1") ||
		strings.HasPrefix(m, "o3")
	return intent
}
