package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/umangiveystaff/iveymeetingnotetaker/internal/audio"
)

// HTTPConfig contains loopback speech server client configuration.
type HTTPConfig struct {
	Endpoint   string
	Timeout    time.Duration
	MaxRetries int
	Language   string
}

// HTTPEngine talks to a whisper.cpp-style inference server running on
// loopback. Chunks are uploaded as WAV via multipart form data.
type HTTPEngine struct {
	config     HTTPConfig
	httpClient *http.Client
	healthURL  string

	loaded bool
	mu     sync.Mutex
}

// inferenceResponse is the reply shape of the local inference server.
type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// NewHTTPEngine creates a speech engine client for the given endpoint.
func NewHTTPEngine(config HTTPConfig) (*HTTPEngine, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	u, err := url.Parse(config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", config.Endpoint, err)
	}
	healthURL := fmt.Sprintf("%s://%s/health", u.Scheme, u.Host)

	return &HTTPEngine{
		config:    config,
		healthURL: healthURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Load verifies the inference server is up and its model ready. The
// check runs once; later calls return immediately.
func (e *HTTPEngine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.loaded {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.healthURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: cannot reach inference server at %s: %v", ErrModelLoad, e.healthURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: inference server health check returned HTTP %d", ErrModelLoad, resp.StatusCode)
	}

	e.loaded = true
	return nil
}

// Transcribe uploads one chunk for inference, retrying transient
// failures with exponential backoff.
func (e *HTTPEngine) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	wav, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return "", fmt.Errorf("encode chunk: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := e.doRequest(ctx, wav)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if !isRetryableError(err) {
			break
		}
	}

	return "", fmt.Errorf("transcription failed after %d attempts: %w", e.config.MaxRetries+1, lastErr)
}

// doRequest performs a single multipart upload to the inference server.
func (e *HTTPEngine) doRequest(ctx context.Context, wav []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", "chunk.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(wav); err != nil {
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := map[string]string{
		"response_format": "json",
	}
	if e.config.Language != "" {
		fields["language"] = e.config.Language
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	var inference inferenceResponse
	if err := json.Unmarshal(respBody, &inference); err != nil {
		return "", fmt.Errorf("failed to parse response JSON: %w", err)
	}
	if inference.Error != "" {
		return "", fmt.Errorf("inference server error: %s", inference.Error)
	}

	return inference.Text, nil
}

// isRetryableError reports whether a transcription error is worth
// retrying: 5xx, rate limiting, and connection-level failures.
func isRetryableError(err error) bool {
	if err == context.DeadlineExceeded {
		return true
	}

	errStr := err.Error()
	if strings.Contains(errStr, "HTTP error 5") {
		return true
	}
	if strings.Contains(errStr, "HTTP error 429") {
		return true
	}
	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "refused") {
		return true
	}

	return false
}
