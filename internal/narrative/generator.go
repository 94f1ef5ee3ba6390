// Package narrative builds generator prompts and talks to the chat model
// that narrates student actions.
package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Generator produces raw model output for an action. Implementations return
// whatever the model emitted; interpreting it is the applicator's job.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ChatConfig configures the chat completion endpoint and HTTP behavior.
type ChatConfig struct {
	ChatURL     string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
}

type chatGenerator struct {
	cfg ChatConfig
}

// NewChatGenerator builds a Generator over an Ollama-style /api/chat
// endpoint.
func NewChatGenerator(cfg ChatConfig) (Generator, error) {
	if strings.TrimSpace(cfg.ChatURL) == "" {
		return nil, fmt.Errorf("chat url is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 350
	}
	return &chatGenerator{cfg: cfg}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (g *chatGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	userPrompt = strings.TrimSpace(userPrompt)
	if userPrompt == "" {
		return "", fmt.Errorf("user prompt is required")
	}

	requestBody, err := json.Marshal(map[string]any{
		"model": g.cfg.Model,
		"messages": []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		"stream": false,
		"options": map[string]any{
			"temperature": g.cfg.Temperature,
			"num_predict": g.cfg.MaxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.ChatURL, bytes.NewReader(requestBody))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		// Credential material travels only in the Authorization header and is
		// never echoed in errors.
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	res, err := g.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, err := io.ReadAll(io.LimitReader(res.Body, 4096))
		if err != nil {
			return "", fmt.Errorf("read chat error body: %w", err)
		}
		return "", fmt.Errorf("chat request status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Message struct {
			Content  string `json:"content"`
			Thinking string `json:"thinking"`
		} `json:"message"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}

	reply := strings.TrimSpace(payload.Message.Content)
	if reply == "" {
		reply = strings.TrimSpace(payload.Message.Thinking)
	}
	if reply == "" {
		return "", fmt.Errorf("chat response missing content")
	}
	return reply, nil
}

// ExtractJSONBlock returns the outermost JSON object embedded in model
// output, or the trimmed input when no valid object is found. Models wrap
// their JSON in prose often enough that callers should not trust raw output.
func ExtractJSONBlock(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		candidate := text[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate
		}
	}
	return strings.TrimSpace(text)
}
