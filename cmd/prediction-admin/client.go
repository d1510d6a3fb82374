package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rohittupe/prediction-service/internal/domain/model"
)

const (
	pollInterval      = 250 * time.Millisecond
	clientTimeout     = 30 * time.Second
	maxErrorBodyBytes = 64 << 10
)

type jobStatus struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

func (s jobStatus) terminal() bool {
	return s.Status == string(model.JobStateCompleted) || s.Status == string(model.JobStateFailed)
}

// apiError is a non-2xx response decoded from the service's error envelope.
type apiError struct {
	StatusCode int
	Code       string `json:"error"`
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"`
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("api returned %d", e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: clientTimeout},
	}
}

func (c *apiClient) Submit(ctx context.Context, req model.PredictionRequest) (jobStatus, error) {
	var out jobStatus
	err := c.do(ctx, http.MethodPost, "/predict", req, &out)
	return out, err
}

func (c *apiClient) Status(ctx context.Context, id string) (jobStatus, error) {
	var out jobStatus
	err := c.do(ctx, http.MethodGet, "/status/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *apiClient) Result(ctx context.Context, id string) (model.PredictionResult, error) {
	var out model.PredictionResult
	err := c.do(ctx, http.MethodGet, "/result/"+url.PathEscape(id), nil, &out)
	return out, err
}

// AwaitTerminal polls Status until the job completes or fails, or ctx ends.
func (c *apiClient) AwaitTerminal(ctx context.Context, id string, every time.Duration) (jobStatus, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		status, err := c.Status(ctx, id)
		if err != nil {
			return jobStatus{}, err
		}
		if status.terminal() {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, fmt.Errorf("waiting for job %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &apiError{StatusCode: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		if jsonErr := json.Unmarshal(raw, apiErr); jsonErr != nil {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
