package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kiliankoe/royale/internal/ai"
)

type Client struct {
	Host string
	http *http.Client
}

func New(host string, timeout time.Duration) *Client {
	if host == "" {
		host = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{Host: strings.TrimRight(host, "/"), http: &http.Client{Timeout: timeout}}
}

func (c *Client) Name() string { return "ollama" }

func (c *Client) Complete(ctx context.Context, req ai.Request) (string, error) {
	messages := make([]map[string]string, 0, 2)
	if req.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.Prompt})
	options := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	payload := map[string]any{
		"model":    req.Model,
		"messages": messages,
		"options":  options,
		"stream":   false,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Host+"/api/chat", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("ollama status %d", resp.StatusCode)
	}
	var out struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Message.Content), nil
}
