package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const pollinationsURL = "https://text.pollinations.ai/openai"

type PollinationsProvider struct {
	client  *http.Client
	baseURL string
}

func NewPollinationsProvider() *PollinationsProvider {
	return &PollinationsProvider{
		client: &http.Client{
			Timeout: 25 * time.Second,
		},
		baseURL: pollinationsURL,
	}
}

func (p *PollinationsProvider) Generate(ctx context.Context, messages []Message, cfg *GenerationConfig) (string, error) {
	payload := map[string]interface{}{
		"model":       "openai",
		"messages":    toOpenAIMessages(messages),
		"temperature": 1,
		"private":     true,
	}
	if cfg != nil {
		if cfg.Temperature != nil {
			payload["temperature"] = *cfg.Temperature
		}
		if cfg.MaxOutputTokens > 0 {
			payload["max_tokens"] = cfg.MaxOutputTokens
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", newStatusError("pollinations", resp, body)
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		return "", fmt.Errorf("pollinations returned html")
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}

	if len(parsed.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	reply := cleanReply(parsed.Choices[0].Message.Content)
	if reply == "" {
		return "", ErrEmptyResponse
	}
	if isGarbageResponse(reply) {
		return "", ErrBlocked
	}

	return reply, nil
}
