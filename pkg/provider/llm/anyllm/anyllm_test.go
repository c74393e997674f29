package anyllm

import "testing"

func TestNewValidation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("New with empty providerName: expected error, got nil")
	}
	if _, err := New("ollama", ""); err == nil {
		t.Error("New with empty model: expected error, got nil")
	}
	if _, err := New("not-a-provider", "some-model"); err == nil {
		t.Error("New with unknown provider: expected error, got nil")
	}
}

func TestNewSupportedBackends(t *testing.T) {
	t.Parallel()

	// Ollama and llamacpp construct without credentials.
	for _, name := range []string{"ollama", "llamacpp"} {
		p, err := New(name, "llama3.2")
		if err != nil {
			t.Errorf("New(%q) error: %v", name, err)
			continue
		}
		if p.Name() != name {
			t.Errorf("Name() = %q, want %q", p.Name(), name)
		}
	}
}

func TestNewOllama(t *testing.T) {
	t.Parallel()

	p, err := NewOllama("llama3.2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "ollama" {
		t.Errorf("Name() = %q, want %q", p.Name(), "ollama")
	}
}
