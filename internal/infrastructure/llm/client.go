package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gigisung0503/eios/internal/config"
	"github.com/gigisung0503/eios/internal/ports"
)

// Client implements ports.ChatClient against OpenAI-compatible
// chat-completions APIs (openai, deepseek, or a local endpoint).
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
}

var _ ports.ChatClient = (*Client)(nil)

// NewClient builds a client for the active provider in the AI config.
func NewClient(cfg config.AIConfig) *Client {
	provider := cfg.Active()
	return &Client{
		baseURL: strings.TrimSuffix(provider.BaseURL, "/"),
		model:   cfg.Model,
		apiKey:  provider.APIKey,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Complete posts the prompt as a single user message. Sampling is pinned
// low-temperature, high-top-p to favor deterministic, format-compliant
// answers. The answer is taken from choices[0].message.content, with a
// provider-specific flat "answer" field as fallback.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c.baseURL == "" || c.model == "" {
		return "", fmt.Errorf("llm client misconfigured")
	}

	body, err := json.Marshal(map[string]any{
		"model":       c.model,
		"messages":    []map[string]string{{"role": "user", "content": prompt}},
		"temperature": 0.2,
		"top_p":       0.95,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("completion error %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var data struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Answer string `json:"answer"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}

	if len(data.Choices) > 0 && data.Choices[0].Message.Content != "" {
		return strings.TrimSpace(data.Choices[0].Message.Content), nil
	}
	if data.Answer != "" {
		return strings.TrimSpace(data.Answer), nil
	}
	return "", fmt.Errorf("unexpected completion response format")
}
