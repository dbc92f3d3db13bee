package llm

import "encoding/json"

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content part types.
const (
	PartText     = "text"
	PartImageURL = "image_url"
	PartVideoURL = "video_url"
)

// MediaURL is an external URL or a data:<mime>;base64,<payload> URI.
type MediaURL struct {
	URL string `json:"url"`
}

// ContentPart is one typed element of a multimodal message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *MediaURL `json:"image_url,omitempty"`
	VideoURL *MediaURL `json:"video_url,omitempty"`
}

// Message is a provider-agnostic chat message. When Parts is non-empty it
// replaces Content on the wire.
type Message struct {
	Role    string
	Content string
	Parts   []ContentPart
}

// TextMessage builds a plain message.
func TextMessage(role, content string) Message {
	return Message{Role: role, Content: content}
}

// MarshalJSON renders content as a string or as a list of parts.
func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Parts) > 0 {
		return json.Marshal(struct {
			Role    string        `json:"role"`
			Content []ContentPart `json:"content"`
		}{Role: m.Role, Content: m.Parts})
	}
	return json.Marshal(struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{Role: m.Role, Content: m.Content})
}

// Usage counts tokens of one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is a successful, normalized completion.
type Result struct {
	Content   string
	Model     string
	Usage     *Usage
	RequestID string
}
