package notes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/umangiveystaff/iveymeetingnotetaker/internal/session"
)

var (
	// ErrEndpointUnreachable indicates the local summarization endpoint
	// could not be reached or returned an error status.
	ErrEndpointUnreachable = errors.New("summarization endpoint unreachable")

	// ErrEmptyResponse indicates the endpoint replied without content.
	ErrEmptyResponse = errors.New("summarization endpoint returned empty response")
)

// ClientConfig contains summarization client configuration.
type ClientConfig struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// Client sends one synchronous, non-streaming summarization request to
// a local-only endpoint. Both completion-style ("response") and
// chat-style ("choices[0].message.content") reply shapes are accepted.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// generateRequest is the request shape of the local endpoint.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateResponse tolerates both supported reply shapes.
type generateResponse struct {
	Response string `json:"response"`
	Choices  []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewClient creates a summarization client. The endpoint must point at
// a loopback address; anything else is rejected outright.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}
	if config.Timeout <= 0 {
		config.Timeout = 180 * time.Second
	}

	u, err := url.Parse(config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", config.Endpoint, err)
	}
	if !isLoopback(u.Hostname()) {
		return nil, fmt.Errorf("endpoint %q is not a loopback address; summarization never leaves this device", config.Endpoint)
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Summarize sends the prompt and returns the parsed notes.
func (c *Client) Summarize(ctx context.Context, prompt string) (session.Notes, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.config.Model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return session.Notes{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return session.Notes{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return session.Notes{}, fmt.Errorf(
			"%w: %v (is the local model server running at %s? try: ollama serve)",
			ErrEndpointUnreachable, err, c.config.Endpoint,
		)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return session.Notes{}, fmt.Errorf("%w: read response: %v", ErrEndpointUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return session.Notes{}, fmt.Errorf(
			"%w: HTTP %d: %s (is model %q pulled? try: ollama pull %s)",
			ErrEndpointUnreachable, resp.StatusCode, strings.TrimSpace(string(respBody)),
			c.config.Model, c.config.Model,
		)
	}

	var gen generateResponse
	if err := json.Unmarshal(respBody, &gen); err != nil {
		return session.Notes{}, fmt.Errorf("%w: parse response: %v", ErrEndpointUnreachable, err)
	}

	content := gen.Response
	if content == "" && len(gen.Choices) > 0 {
		content = gen.Choices[0].Message.Content
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return session.Notes{}, ErrEmptyResponse
	}

	return session.Notes{Text: content, GeneratedAt: time.Now()}, nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
