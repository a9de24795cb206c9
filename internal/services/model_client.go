package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HTTPModelClient is an HTTP implementation of the ModelClient interface.
type HTTPModelClient struct {
	url    string
	client *http.Client
}

// NewHTTPModelClient creates a new HTTPModelClient. Completion calls can run
// long, so the timeout is configured separately from other outbound calls.
func NewHTTPModelClient(url string, timeout time.Duration) *HTTPModelClient {
	return &HTTPModelClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Complete sends a system prompt plus context to the model and returns the
// generated text.
func (c *HTTPModelClient) Complete(ctx context.Context, systemPrompt, userContext string) (string, error) {
	requestBody, err := json.Marshal(map[string]string{
		"system_prompt": systemPrompt,
		"context":       userContext,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/complete", bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return "", fmt.Errorf("completion: %w", ErrModelTimeout)
		}
		return "", fmt.Errorf("completion: %w: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion: %w: status code %d", ErrModelUnavailable, resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	return result.Text, nil
}

// GetEmbedding returns the embedding for a given text.
func (c *HTTPModelClient) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	requestBody, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/embedding", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get embedding: status code %d", resp.StatusCode)
	}

	var embedding []float32
	if err := json.NewDecoder(resp.Body).Decode(&embedding); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	return embedding, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
