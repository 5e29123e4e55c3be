// This file implements the HTTP client the trigger commands use to
// talk to a running daemon's API, including API key authentication.
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/scanward/scanward/internal/config"
	"github.com/scanward/scanward/internal/orchestrator"
)

const clientTimeout = 30 * time.Second

// apiClient is a thin authenticated client for the daemon's API.
type apiClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// triggerResult mirrors the API's trigger response.
type triggerResult struct {
	Status  string `json:"status"`
	JobID   string `json:"job_id"`
	Network string `json:"network"`
	Message string `json:"message"`
}

// apiError is a non-2xx answer from the daemon.
type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// newAPIClient builds a client from configuration. The API key comes
// from the environment so it never lands in config files.
func newAPIClient(cfg *config.Config) *apiClient {
	return &apiClient{
		baseURL: fmt.Sprintf("http://%s", cfg.GetAPIAddress()),
		apiKey:  apiKeyFromEnv(),
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

func apiKeyFromEnv() string {
	if key := os.Getenv("SCANWARD_API_KEY"); key != "" {
		return key
	}
	if keyFile := os.Getenv("SCANWARD_API_KEY_FILE"); keyFile != "" && !strings.Contains(keyFile, "..") {
		if data, err := os.ReadFile(keyFile); err == nil { // #nosec G304 -- operator-provided key file
			return strings.TrimSpace(string(data))
		}
	}
	return ""
}

// trigger posts to /scan or /topology and returns the accepted job.
func (c *apiClient) trigger(path, network string) (*triggerResult, error) {
	var body io.Reader = http.NoBody
	if network != "" {
		payload, err := json.Marshal(map[string]string{"network": network})
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var result triggerResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// status fetches /status.
func (c *apiClient) status() (*orchestrator.StatusReport, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/status", http.NoBody)
	if err != nil {
		return nil, err
	}

	var report orchestrator.StatusReport
	if err := c.do(req, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// health fetches /health.
func (c *apiClient) health() (*orchestrator.HealthReport, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return nil, err
	}

	var report orchestrator.HealthReport
	if err := c.do(req, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *apiClient) do(req *http.Request, dest any) error {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("User-Agent", "scanward-cli/"+version)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed, is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return parseAPIError(resp.StatusCode, data)
	}

	if dest != nil {
		if err := json.Unmarshal(data, dest); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func parseAPIError(statusCode int, data []byte) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	message := http.StatusText(statusCode)
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		message = body.Message
	}
	return &apiError{StatusCode: statusCode, Message: message}
}
