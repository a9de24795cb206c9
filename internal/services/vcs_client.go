package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"pipeforge/pkg/models"
)

// GitVCSClient is an HTTP implementation of the VCSClient interface against a
// GitLab-style REST API.
type GitVCSClient struct {
	url          string
	defaultToken string
	client       *http.Client
}

// NewGitVCSClient creates a new GitVCSClient. The default token is used when a
// workflow request carries no credential of its own.
func NewGitVCSClient(url, defaultToken string, timeout time.Duration) *GitVCSClient {
	return &GitVCSClient{
		url:          url,
		defaultToken: defaultToken,
		client:       &http.Client{Timeout: timeout},
	}
}

func (c *GitVCSClient) token(credential string) string {
	if credential != "" {
		return credential
	}
	return c.defaultToken
}

func (c *GitVCSClient) do(ctx context.Context, credential, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		requestBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewBuffer(requestBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("PRIVATE-TOKEN", c.token(credential))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	return resp, nil
}

// CreateBranch creates a branch from the given ref.
func (c *GitVCSClient) CreateBranch(ctx context.Context, repoRef, credential, branch, fromRef string) error {
	path := fmt.Sprintf("/projects/%s/repository/branches?branch=%s&ref=%s",
		url.PathEscape(repoRef), url.QueryEscape(branch), url.QueryEscape(fromRef))
	resp, err := c.do(ctx, credential, "POST", path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to create branch %s: status code %d", branch, resp.StatusCode)
	}
	return nil
}

type commitAction struct {
	Action   string `json:"action"`
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

// CommitFiles writes the given files to a branch as one commit. Each file is
// created or updated depending on whether it already exists on the branch.
func (c *GitVCSClient) CommitFiles(ctx context.Context, repoRef, credential, branch string, files map[string]string, message string) (string, error) {
	actions := make([]commitAction, 0, len(files))
	for filePath, content := range files {
		action := "create"
		exists, err := c.fileExists(ctx, repoRef, credential, branch, filePath)
		if err != nil {
			return "", err
		}
		if exists {
			action = "update"
		}
		actions = append(actions, commitAction{Action: action, FilePath: filePath, Content: content})
	}

	body := map[string]any{
		"branch":         branch,
		"commit_message": message,
		"actions":        actions,
	}
	path := fmt.Sprintf("/projects/%s/repository/commits", url.PathEscape(repoRef))
	resp, err := c.do(ctx, credential, "POST", path, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to commit to %s: status code %d", branch, resp.StatusCode)
	}

	var commit struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&commit); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}
	return commit.ID, nil
}

func (c *GitVCSClient) fileExists(ctx context.Context, repoRef, credential, branch, filePath string) (bool, error) {
	path := fmt.Sprintf("/projects/%s/repository/files/%s?ref=%s",
		url.PathEscape(repoRef), url.PathEscape(filePath), url.QueryEscape(branch))
	resp, err := c.do(ctx, credential, "HEAD", path, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// GetExecutionStatus resolves the latest execution for a ref and returns its
// ID and state.
func (c *GitVCSClient) GetExecutionStatus(ctx context.Context, repoRef, credential, ref string) (string, models.ExecutionState, error) {
	path := fmt.Sprintf("/projects/%s/pipelines?ref=%s&per_page=1",
		url.PathEscape(repoRef), url.QueryEscape(ref))
	resp, err := c.do(ctx, credential, "GET", path, nil)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("failed to get execution status for %s: status code %d", ref, resp.StatusCode)
	}

	var pipelines []struct {
		ID     json.Number `json:"id"`
		Status string      `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pipelines); err != nil {
		return "", "", fmt.Errorf("failed to decode response body: %w", err)
	}
	if len(pipelines) == 0 {
		return "", models.ExecutionQueued, nil
	}
	return pipelines[0].ID.String(), mapExecutionState(pipelines[0].Status), nil
}

// GetJobs returns the per-job status breakdown without log text.
func (c *GitVCSClient) GetJobs(ctx context.Context, repoRef, credential, executionID string) ([]models.JobStatus, error) {
	return c.jobs(ctx, repoRef, credential, executionID, false)
}

// GetJobLogs returns the per-job breakdown with log text populated for failed jobs.
func (c *GitVCSClient) GetJobLogs(ctx context.Context, repoRef, credential, executionID string) ([]models.JobStatus, error) {
	return c.jobs(ctx, repoRef, credential, executionID, true)
}

func (c *GitVCSClient) jobs(ctx context.Context, repoRef, credential, executionID string, withLogs bool) ([]models.JobStatus, error) {
	path := fmt.Sprintf("/projects/%s/pipelines/%s/jobs",
		url.PathEscape(repoRef), url.PathEscape(executionID))
	resp, err := c.do(ctx, credential, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get jobs for execution %s: status code %d", executionID, resp.StatusCode)
	}

	var raw []struct {
		ID           json.Number `json:"id"`
		Name         string      `json:"name"`
		Status       string      `json:"status"`
		AllowFailure bool        `json:"allow_failure"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	jobs := make([]models.JobStatus, 0, len(raw))
	for _, j := range raw {
		job := models.JobStatus{
			JobName:      j.Name,
			State:        j.Status,
			AllowFailure: j.AllowFailure,
		}
		if withLogs && j.Status == "failed" {
			// Log fetch failures leave the job entry in place; the classifier
			// copes with empty logs.
			if logText, err := c.jobTrace(ctx, repoRef, credential, j.ID.String()); err == nil {
				job.LogText = logText
			}
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (c *GitVCSClient) jobTrace(ctx context.Context, repoRef, credential, jobID string) (string, error) {
	path := fmt.Sprintf("/projects/%s/jobs/%s/trace", url.PathEscape(repoRef), url.PathEscape(jobID))
	resp, err := c.do(ctx, credential, "GET", path, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get job trace: status code %d", resp.StatusCode)
	}
	trace, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read job trace: %w", err)
	}
	return string(trace), nil
}

// CancelExecution cancels a still-running execution.
func (c *GitVCSClient) CancelExecution(ctx context.Context, repoRef, credential, executionID string) error {
	path := fmt.Sprintf("/projects/%s/pipelines/%s/cancel",
		url.PathEscape(repoRef), url.PathEscape(executionID))
	resp, err := c.do(ctx, credential, "POST", path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to cancel execution %s: status code %d", executionID, resp.StatusCode)
	}
	return nil
}

// mapExecutionState converts remote pipeline statuses to the internal state set.
func mapExecutionState(status string) models.ExecutionState {
	switch status {
	case "created", "pending", "waiting_for_resource", "preparing", "scheduled":
		return models.ExecutionQueued
	case "running":
		return models.ExecutionRunning
	case "success":
		return models.ExecutionSucceeded
	case "failed":
		return models.ExecutionFailed
	case "canceled", "skipped":
		return models.ExecutionCanceled
	default:
		return models.ExecutionRunning
	}
}
