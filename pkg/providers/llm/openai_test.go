package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/turnkit/voicecore/pkg/orchestrator"
)

func TestOpenAILLM_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var req struct {
			Model    string                 `json:"model"`
			Messages []orchestrator.Message `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		resp := map[string]interface{}{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1,
			"model":   req.Model,
			"choices": []map[string]interface{}{
				{
					"index": 0,
					"message": map[string]string{
						"role":    "assistant",
						"content": "hello from openai",
					},
					"finish_reason": "stop",
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	l := NewOpenAILLMWithBaseURL("test-key", server.URL, "gpt-4o")

	messages := []orchestrator.Message{{Role: "user", Content: "hi"}}
	resp, err := l.Complete(context.Background(), messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "hello from openai" {
		t.Errorf("expected 'hello from openai', got '%s'", resp)
	}
	if l.Name() != "openai-llm" {
		t.Errorf("expected openai-llm, got %s", l.Name())
	}
}

func TestOpenAILLM_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		chunks := []string{"Hello", ", ", "world", "."}
		for _, c := range chunks {
			payload := map[string]interface{}{
				"id":      "chatcmpl-test",
				"object":  "chat.completion.chunk",
				"created": 1,
				"model":   "gpt-4o",
				"choices": []map[string]interface{}{
					{"index": 0, "delta": map[string]string{"content": c}},
				},
			}
			data, _ := json.Marshal(payload)
			w.Write([]byte("data: " + string(data) + "\n\n"))
			if flusher != nil {
				flusher.Flush()
			}
		}
		w.Write([]byte("data: [DONE]\n\n"))
		if flusher != nil {
			flusher.Flush()
		}
	}))
	defer server.Close()

	l := NewOpenAILLMWithBaseURL("test-key", server.URL, "gpt-4o")

	var got strings.Builder
	err := l.Stream(context.Background(), []orchestrator.Message{{Role: "user", Content: "hi"}}, 100, 0.5, func(token string) error {
		got.WriteString(token)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if got.String() != "Hello, world." {
		t.Fatalf("expected assembled stream 'Hello, world.', got %q", got.String())
	}
}
