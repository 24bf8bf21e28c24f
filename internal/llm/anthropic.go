package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// anthropicClient is a single-turn, non-streaming Messages API client.
// Structurally grounded on the teacher's multi-provider adapter
// (internal/llm/providers/anthropic/adapter.go) but stripped down to the
// one capability this harness needs: one prompt in, one completion text
// out, no tool calls, no streaming, no multi-provider abstraction.
type anthropicClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewFromEnv builds a Client from ANTHROPIC_API_KEY and, optionally,
// ANTHROPIC_BASE_URL. It is the only concrete Client constructor the
// factory ships; any other provider is wired in by the caller
// implementing Client (or Func) directly.
func NewFromEnv() (Client, error) {
	key := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if key == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	base := strings.TrimRight(strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL")), "/")
	if base == "" {
		base = "https://api.anthropic.com"
	}
	return &anthropicClient{apiKey: key, baseURL: base, http: &http.Client{Timeout: 0}}, nil
}

func (c *anthropicClient) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := 8192
	body := map[string]any{
		"model":       req.Model,
		"max_tokens":  maxTokens,
		"temperature": req.Temperature,
		"messages": []map[string]any{
			{"role": "user", "content": req.Prompt},
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("anthropic: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("anthropic: read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("anthropic: messages.create failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(rawBytes)))
	}

	var parsed struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(rawBytes, &parsed); err != nil {
		return "", fmt.Errorf("anthropic: decode response: %w", err)
	}

	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic: response contained no text content")
	}
	return sb.String(), nil
}
