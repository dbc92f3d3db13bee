package modelcatalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/eamarucci/bot-answer/internal/models"
	"github.com/eamarucci/bot-answer/internal/providers"
	"github.com/tidwall/gjson"
	"gorm.io/datatypes"
)

// ParseModels converts a provider's models listing into catalog rows, keeping
// only chat models, sorted by display name.
func ParseModels(provider providers.ID, data []byte) ([]models.ModelReference, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("parse models: empty payload")
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("parse models: invalid json")
	}
	list := gjson.GetBytes(data, "data")
	if !list.IsArray() {
		return nil, nil
	}

	var refs []models.ModelReference
	list.ForEach(func(_, m gjson.Result) bool {
		id := m.Get("id").String()
		if id == "" {
			return true
		}
		ref := models.ModelReference{Provider: string(provider), ModelID: id, Name: id}
		keep := true
		switch provider {
		case providers.OpenRouter:
			keep = hasTextOutput(m)
			if name := m.Get("name").String(); name != "" {
				ref.Name = name
			}
			ref.ContextLength = int(m.Get("context_length").Int())
			ref.Description = m.Get("description").String()
			ref.PromptPrice = m.Get("pricing.prompt").String()
			ref.CompletionPrice = m.Get("pricing.completion").String()
		case providers.OpenAI:
			keep = strings.HasPrefix(id, "gpt-") || strings.HasPrefix(id, "o1") || strings.HasPrefix(id, "o3")
		case providers.Anthropic:
			if name := m.Get("display_name").String(); name != "" {
				ref.Name = name
			}
		case providers.Groq:
			active := m.Get("active")
			keep = (!active.Exists() || active.Bool()) && !strings.Contains(id, "whisper") && !strings.Contains(id, "distil")
			ref.ContextLength = int(m.Get("context_window").Int())
		}
		if keep {
			ref.Extra = datatypes.JSON(m.Raw)
			refs = append(refs, ref)
		}
		return true
	})

	sort.SliceStable(refs, func(i, j int) bool {
		a, b := strings.ToLower(refs[i].Name), strings.ToLower(refs[j].Name)
		if a == b {
			return refs[i].Name < refs[j].Name
		}
		return a < b
	})
	return refs, nil
}

func hasTextOutput(m gjson.Result) bool {
	for _, modality := range m.Get("architecture.output_modalities").Array() {
		if modality.String() == "text" {
			return true
		}
	}
	return false
}
