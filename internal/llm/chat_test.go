package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatClient_Complete(t *testing.T) {
	var gotReq ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("expected /v1/chat/completions, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}

		resp := ChatResponse{
			Choices: []ChatChoice{
				{Message: Message{Role: "assistant", Content: "The answer."}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewChatClient(server.URL, "test-key", "test-model")
	client.MaxRetries = 1

	answer, err := client.Complete(context.Background(), "You are helpful.", []Message{
		{Role: "user", Content: "What is this?"},
	}, 0.3)
	if err != nil {
		t.Fatalf("Complete() unexpected error: %v", err)
	}
	if answer != "The answer." {
		t.Errorf("Complete() = %q, want %q", answer, "The answer.")
	}

	if len(gotReq.Messages) != 2 {
		t.Fatalf("request had %d messages, want 2", len(gotReq.Messages))
	}
	if gotReq.Messages[0].Role != "system" || gotReq.Messages[0].Content != "You are helpful." {
		t.Errorf("first message = %+v, want the system prompt", gotReq.Messages[0])
	}
	if gotReq.Temperature != 0.3 {
		t.Errorf("request temperature = %v, want 0.3", gotReq.Temperature)
	}
}

func TestChatClient_Complete_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCause ErrorCause
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, wantCause: CauseRateLimited},
		{name: "server error", status: http.StatusInternalServerError, wantCause: CauseUnavailable},
		{name: "invalid request", status: http.StatusBadRequest, wantCause: CauseInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			client := NewChatClient(server.URL, "test-key", "test-model")
			client.MaxRetries = 1

			_, err := client.Complete(context.Background(), "sys", nil, 0.3)
			if err == nil {
				t.Fatal("Complete() expected error, got nil")
			}
			serr, ok := err.(*ServiceError)
			if !ok {
				t.Fatalf("Complete() error = %T, want *ServiceError", err)
			}
			if serr.Cause != tt.wantCause {
				t.Errorf("ServiceError.Cause = %v, want %v", serr.Cause, tt.wantCause)
			}
			if serr.Service != "chat" {
				t.Errorf("ServiceError.Service = %v, want chat", serr.Service)
			}
		})
	}
}

func TestChatClient_Complete_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ChatResponse{})
	}))
	defer server.Close()

	client := NewChatClient(server.URL, "test-key", "test-model")
	client.MaxRetries = 1

	_, err := client.Complete(context.Background(), "sys", nil, 0.3)
	if err == nil {
		t.Fatal("Complete() expected error for empty choices, got nil")
	}
}
