// Copyright 2026 The apisentry Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package reasoning calls a best-effort OpenAI-compatible backend for
// structured judgements. Callers must treat every error as recoverable; the
// healing pipeline pairs each call with a deterministic fallback.
package reasoning

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/apisentry/apisentry/internal/config"
)

// Client performs structured-judgement calls against an OpenAI-compatible
// chat completions endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewClient creates a reasoning client from configuration. An empty base URL
// yields a client whose calls always fail, which the two-tier judges treat as
// "backend absent".
func NewClient(cfg config.ReasoningConfig) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout()},
	}
}

// Available reports whether a backend endpoint is configured at all.
func (c *Client) Available() bool { return c.baseURL != "" }

// Complete sends a system/user prompt pair and returns the assistant text.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if !c.Available() {
		return "", fmt.Errorf("reasoning: backend not configured")
	}

	payload := []byte(`{}`)
	payload, _ = sjson.SetBytes(payload, "model", c.model)
	payload, _ = sjson.SetBytes(payload, "temperature", 0)
	payload, _ = sjson.SetBytes(payload, "messages.0.role", "system")
	payload, _ = sjson.SetBytes(payload, "messages.0.content", systemPrompt)
	payload, _ = sjson.SetBytes(payload, "messages.1.role", "user")
	payload, _ = sjson.SetBytes(payload, "messages.1.content", userPrompt)

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("reasoning: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("User-Agent", "apisentry-reasoning")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("reasoning: request failed: %w", err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("reasoning: close response body error: %v", errClose)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reasoning: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reasoning: backend returned status %d", resp.StatusCode)
	}

	content := gjson.GetBytes(raw, "choices.0.message.content").String()
	if content == "" {
		return "", fmt.Errorf("reasoning: empty completion")
	}

	log.Debugf("reasoning: completion in %s (%d bytes)", time.Since(start).Round(time.Millisecond), len(content))
	return content, nil
}

// ExtractJSON pulls the first JSON object out of an assistant reply. Models
// routinely wrap JSON in markdown fences or prose; gjson tolerates neither.
func ExtractJSON(reply string) (string, error) {
	trimmed := strings.TrimSpace(reply)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.Index(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("reasoning: no JSON object in reply")
	}
	candidate := trimmed[start : end+1]
	if !gjson.Valid(candidate) {
		return "", fmt.Errorf("reasoning: malformed JSON in reply")
	}
	return candidate, nil
}
