package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"docqa/internal/contextutil"
)

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chat.go -package=mocks docqa/internal/llm ChatCompleter

// Message is a single message in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompleter generates a completion for a prompt.
type ChatCompleter interface {
	// Complete sends systemPrompt plus messages and returns the answer text.
	Complete(ctx context.Context, systemPrompt string, messages []Message, temperature float64) (string, error)
}

// ChatClient talks to an OpenAI-compatible chat completions API.
type ChatClient struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int
	MaxRetries int
	client     *http.Client
}

// NewChatClient creates a chat completion client.
func NewChatClient(baseURL, apiKey, model string) *ChatClient {
	return &ChatClient{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Model:      model,
		MaxTokens:  1000,
		MaxRetries: defaultMaxRetries,
		client:     http.DefaultClient,
	}
}

// ChatRequest is the request payload for chat completions.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// ChatChoice is a single choice in the chat response.
type ChatChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// ChatResponse is the response from the chat completions API.
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Choices []ChatChoice `json:"choices"`
}

// Complete sends a chat completion request. Retryable failures (rate limit,
// 5xx, network) back off exponentially; invalid-request failures surface
// immediately.
func (c *ChatClient) Complete(ctx context.Context, systemPrompt string, messages []Message, temperature float64) (string, error) {
	logger := contextutil.LoggerFromContext(ctx)

	all := make([]Message, 0, len(messages)+1)
	all = append(all, Message{Role: "system", Content: systemPrompt})
	all = append(all, messages...)

	var lastErr error
	for attempt := 1; attempt <= c.MaxRetries; attempt++ {
		answer, err := c.completeOnce(ctx, all, temperature)
		if err == nil {
			return answer, nil
		}
		lastErr = err

		se, ok := err.(*ServiceError)
		if !ok || !se.Retryable() || attempt == c.MaxRetries {
			return "", err
		}
		wait := retryDelay(attempt)
		logger.WarnContext(ctx, "chat call failed, retrying",
			"attempt", attempt, "max_retries", c.MaxRetries, "wait", wait.String(), "error", err)
		if err := sleepCtx(ctx, wait); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

func (c *ChatClient) completeOnce(ctx context.Context, messages []Message, temperature float64) (string, error) {
	url := fmt.Sprintf("%s/v1/chat/completions", c.BaseURL)

	payload := ChatRequest{
		Model:       c.Model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   c.MaxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", transportError("chat", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", classifyStatus("chat", resp.StatusCode, string(raw))
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}

	return chatResp.Choices[0].Message.Content, nil
}
