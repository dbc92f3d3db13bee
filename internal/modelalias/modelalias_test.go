package modelalias

import "testing"

func TestResolveAndDisplay(t *testing.T) {
	Configure("openrouter/free", "nvidia/nemotron-nano-12b-v2-vl:free", map[string]string{"Sonnet": "anthropic/claude-3.5-sonnet"})

	if got, ok := Resolve(" AUTO "); !ok || got != "openrouter/free" {
		t.Fatalf("auto alias: %q %v", got, ok)
	}
	if got, ok := Resolve("sonnet"); !ok || got != "anthropic/claude-3.5-sonnet" {
		t.Fatalf("extra alias: %q %v", got, ok)
	}
	if got, ok := Resolve("nvidia/nemotron-nano-12b-v2-vl:free"); !ok || got != "nvidia/nemotron-nano-12b-v2-vl:free" {
		t.Fatalf("known model id: %q %v", got, ok)
	}
	if _, ok := Resolve("mistral/unknown"); ok {
		t.Fatalf("unknown model should not resolve")
	}
	if got := ResolveOr("mistral/unknown"); got != "mistral/unknown" {
		t.Fatalf("ResolveOr should pass through, got %q", got)
	}

	if got := DisplayName("openrouter/free"); got != "auto" {
		t.Fatalf("display of default: %q", got)
	}
	if got := DisplayName("meta-llama/llama-3.3-70b-instruct"); got != "llama-3.3-70b-instruct" {
		t.Fatalf("display of unknown: %q", got)
	}
	if got := DisplayName("gpt-4o"); got != "gpt-4o" {
		t.Fatalf("display without slash: %q", got)
	}

	list := List()
	if len(list) != 3 || list[0].Alias != "auto" || list[1].Alias != "sonnet" || list[2].Alias != "vision" {
		t.Fatalf("unexpected list %+v", list)
	}
}
