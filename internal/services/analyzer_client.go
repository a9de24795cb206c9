package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"pipeforge/pkg/models"
)

// HTTPAnalyzerClient is an HTTP implementation of the AnalyzerClient interface.
type HTTPAnalyzerClient struct {
	url    string
	client *http.Client
}

// NewHTTPAnalyzerClient creates a new HTTPAnalyzerClient.
func NewHTTPAnalyzerClient(url string, timeout time.Duration) *HTTPAnalyzerClient {
	return &HTTPAnalyzerClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Analyze asks the analyzer for a repository profile.
func (c *HTTPAnalyzerClient) Analyze(ctx context.Context, repoRef, credential string) (*models.RepositoryProfile, error) {
	requestBody, err := json.Marshal(map[string]string{
		"repo_ref":   repoRef,
		"credential": credential,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/analyze", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("analyze %s: %w", repoRef, ErrRepoNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to analyze repository: status code %d", resp.StatusCode)
	}

	var profile models.RepositoryProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	return &profile, nil
}
