package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{API: APIAnthropic}); err == nil {
		t.Fatal("expected error for missing model")
	}
	if _, err := New(Config{API: "mystery", Model: "m"}); err == nil {
		t.Fatal("expected error for unsupported api type")
	}
	client, err := New(Config{Model: "claude-sonnet-4-5"})
	if err != nil {
		t.Fatal(err)
	}
	if client.Name() != "claude-sonnet-4-5" {
		t.Fatalf("unexpected client name %q", client.Name())
	}
}

func TestOpenAICompat_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req compatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Error(err)
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "summarize" {
			t.Errorf("unexpected request %+v", req)
		}
		_ = json.NewEncoder(w).Encode(compatResponse{
			Choices: []struct {
				Message compatMessage `json:"message"`
			}{{Message: compatMessage{Role: "assistant", Content: " a summary \n"}}},
		})
	}))
	defer server.Close()

	client, err := New(Config{
		API:     APIOpenAICompat,
		Model:   "gpt-test",
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	out, err := client.Generate(context.Background(), "summarize")
	if err != nil {
		t.Fatal(err)
	}
	if out != "a summary" {
		t.Fatalf("unexpected completion %q", out)
	}
}

func TestOpenAICompat_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newOpenAICompat(Config{Model: "m", BaseURL: server.URL, Timeout: 5 * time.Second, MaxOutputTokens: 64})
	if _, err := client.Generate(context.Background(), "hi"); err == nil {
		t.Fatal("expected status error")
	}
}

func TestOpenAICompat_EmptyPrompt(t *testing.T) {
	client := newOpenAICompat(Config{Model: "m", BaseURL: "http://localhost:0", Timeout: time.Second})
	if _, err := client.Generate(context.Background(), "  "); err == nil {
		t.Fatal("expected empty prompt error")
	}
}
