// Package modelalias maps short model aliases used in chat commands to full
// model ids and back to display names.
package modelalias

import (
	"sort"
	"strings"
	"sync/atomic"
)

// Built-in aliases.
const (
	AliasAuto   = "auto"
	AliasVision = "vision"
)

// Alias describes one alias for help output.
type Alias struct {
	Alias       string
	ModelID     string
	Description string
}

type snapshot struct {
	byAlias map[string]Alias
	byModel map[string]string
}

var globalSnapshot atomic.Value

func init() {
	globalSnapshot.Store(snapshot{byAlias: map[string]Alias{}, byModel: map[string]string{}})
}

// Configure replaces the alias table. The default and vision models become the
// "auto" and "vision" aliases; extra maps further aliases to model ids.
func Configure(defaultModel, visionModel string, extra map[string]string) {
	byAlias := make(map[string]Alias)
	byModel := make(map[string]string)
	add := func(alias, modelID, description string) {
		alias = strings.ToLower(strings.TrimSpace(alias))
		modelID = strings.TrimSpace(modelID)
		if alias == "" || modelID == "" {
			return
		}
		byAlias[alias] = Alias{Alias: alias, ModelID: modelID, Description: description}
		if _, ok := byModel[modelID]; !ok {
			byModel[modelID] = alias
		}
	}
	add(AliasAuto, defaultModel, "Modelo padrao configurado")
	add(AliasVision, visionModel, "Modelo de vision para imagens/videos")
	for alias, modelID := range extra {
		add(alias, modelID, alias)
	}
	globalSnapshot.Store(snapshot{byAlias: byAlias, byModel: byModel})
}

// Resolve maps an alias or known model id to the full model id.
func Resolve(input string) (string, bool) {
	snap := loadSnapshot()
	lower := strings.ToLower(strings.TrimSpace(input))
	if entry, ok := snap.byAlias[lower]; ok {
		return entry.ModelID, true
	}
	trimmed := strings.TrimSpace(input)
	if _, ok := snap.byModel[trimmed]; ok {
		return trimmed, true
	}
	if _, ok := snap.byModel[lower]; ok {
		return trimmed, true
	}
	return "", false
}

// ResolveOr returns the resolved model id or the input unchanged.
func ResolveOr(input string) string {
	if resolved, ok := Resolve(input); ok {
		return resolved
	}
	return strings.TrimSpace(input)
}

// DisplayName returns the alias of a model id, or the last path segment of the id.
func DisplayName(modelID string) string {
	if alias, ok := loadSnapshot().byModel[modelID]; ok {
		return alias
	}
	parts := strings.Split(modelID, "/")
	return parts[len(parts)-1]
}

// List returns the configured aliases sorted by name.
func List() []Alias {
	snap := loadSnapshot()
	out := make([]Alias, 0, len(snap.byAlias))
	for _, a := range snap.byAlias {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

func loadSnapshot() snapshot {
	snap, ok := globalSnapshot.Load().(snapshot)
	if !ok || snap.byAlias == nil || snap.byModel == nil {
		return snapshot{byAlias: map[string]Alias{}, byModel: map[string]string{}}
	}
	return snap
}
