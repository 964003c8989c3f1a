package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestPromptFamilies(t *testing.T) {
	tests := []struct {
		family Family
		want   []string
	}{
		{FamilyLlama, []string{"<s>[INST] <<SYS>>\nsys\n<</SYS>>\n\nhello [/INST]"}},
		{FamilyMistral, []string{"<s>[INST] sys\n\nQUESTION: hello [/INST]"}},
		{FamilyQwen, []string{"<|im_start|>system\nsys<|im_end|>", "<|im_start|>user\nhello<|im_end|>", "<|im_start|>assistant\n"}},
	}
	for _, tt := range tests {
		got, err := Prompt(tt.family, "sys", "hello")
		if err != nil {
			t.Fatalf("%s: %v", tt.family, err)
		}
		for _, w := range tt.want {
			if !strings.Contains(got, w) {
				t.Errorf("%s prompt missing %q:\n%s", tt.family, w, got)
			}
		}
	}

	if _, err := Prompt(Family("gpt"), "s", "u"); err == nil {
		t.Error("expected error for unknown family")
	}
}

func TestSystemPromptMentionsTodayAndContext(t *testing.T) {
	today := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	got := SystemPrompt("Berlin is a city.", today)

	for _, want := range []string{
		"2026-08-01",
		"CONTEXT:\nBerlin is a city.",
		"do not know the answer",
		"YYYY-MM-DD",
		"most current information",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func generateServer(t *testing.T, fn func(prompt string) string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Inputs     string `json:"inputs"`
			Parameters struct {
				MaxNewTokens int `json:"max_new_tokens"`
			} `json:"parameters"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		if req.Parameters.MaxNewTokens == 0 {
			http.Error(w, "missing max_new_tokens", 400)
			return
		}
		json.NewEncoder(w).Encode([]map[string]string{{"generated_text": fn(req.Inputs)}})
	}))
}

func TestGenerateStripsPromptPrefix(t *testing.T) {
	srv := generateServer(t, func(prompt string) string {
		return prompt + "  Kai Wegner.  "
	})
	defer srv.Close()

	c, err := NewClient(ClientOptions{URL: srv.URL, Family: FamilyMistral})
	if err != nil {
		t.Fatal(err)
	}

	answer, err := c.Generate(context.Background(), "Who is the mayor of Berlin?", "Berlin head of government Kai Wegner.")
	if err != nil {
		t.Fatal(err)
	}
	if answer != "Kai Wegner." {
		t.Errorf("answer = %q", answer)
	}
}

func TestGenerateRequiresAuthWhenConfigured(t *testing.T) {
	var sawAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth.Store(r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]map[string]string{{"generated_text": "x"}})
	}))
	defer srv.Close()

	t.Setenv("TEST_LLM_KEY", "secret-token")
	c, err := NewClient(ClientOptions{URL: srv.URL, Family: FamilyLlama, APIKeyEnv: "TEST_LLM_KEY"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Generate(context.Background(), "q", ""); err != nil {
		t.Fatal(err)
	}
	if got := sawAuth.Load().(string); got != "Bearer secret-token" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestNewClientFailsOnMissingKey(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "")
	_, err := NewClient(ClientOptions{URL: "http://x", Family: FamilyLlama, APIKeyEnv: "TEST_LLM_KEY"})
	if err == nil {
		t.Fatal("expected error for unset key env")
	}
}

func TestGenerateRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode([]map[string]string{{"generated_text": "ok"}})
	}))
	defer srv.Close()

	c, err := NewClient(ClientOptions{URL: srv.URL, Family: FamilyQwen})
	if err != nil {
		t.Fatal(err)
	}
	answer, err := c.Generate(context.Background(), "q", "")
	if err != nil {
		t.Fatal(err)
	}
	if answer != "ok" {
		t.Errorf("answer = %q", answer)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}
