package roomsettings

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "rooms.db"), Defaults{
		Model:         "openrouter/free",
		BasePrompt:    "BASE",
		DefaultPrompt: "Voce e um assistente.",
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDefaultsWhenUnset(t *testing.T) {
	s := openTestStore(t)
	if got := s.EffectiveModel("!room"); got != "openrouter/free" {
		t.Fatalf("unexpected default model %q", got)
	}
	if got := s.Model("!room"); got != "" {
		t.Fatalf("expected no override, got %q", got)
	}
	if got := s.EffectiveSystemPrompt("!room"); got != "BASE\n\nContexto adicional: Voce e um assistente." {
		t.Fatalf("unexpected prompt %q", got)
	}
}

func TestOverridesPersistAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.db")
	defaults := Defaults{Model: "openrouter/free", BasePrompt: "BASE", DefaultPrompt: "default"}
	s, err := Open(path, defaults)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.SetModel("!room", "anthropic/claude-3.5-sonnet"); err != nil {
		t.Fatalf("set model: %v", err)
	}
	if err := s.SetSystemPrompt("!room", "Fale como pirata."); err != nil {
		t.Fatalf("set prompt: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = Open(path, defaults)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got := s.Get("!room")
	if got.Model != "anthropic/claude-3.5-sonnet" || got.SystemPrompt != "Fale como pirata." || got.UpdatedAt.IsZero() {
		t.Fatalf("unexpected settings %+v", got)
	}
	if p := s.EffectiveSystemPrompt("!room"); p != "BASE\n\nContexto adicional: Fale como pirata." {
		t.Fatalf("unexpected prompt %q", p)
	}

	if err := s.Reset("!room"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := s.EffectiveModel("!room"); got != "openrouter/free" {
		t.Fatalf("reset should restore default, got %q", got)
	}
}
