package servicedesk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"linaro/webforms/internal/config"
	"linaro/webforms/internal/secrets"
)

// maxErrorBodyBytes limits how much upstream error body gets captured in an
// Error; Atlassian error pages can be large HTML blobs.
const maxErrorBodyBytes = 500

// Error is a non-success response from the ticketing system, carrying enough
// context to log and classify the failure.
type Error struct {
	Status   int
	Method   string
	Endpoint string
	Body     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("service desk API error %d %s %s: %s", e.Status, e.Method, e.Endpoint, e.Body)
}

// Client is a thin client for the Atlassian service desk REST API,
// authenticating with Basic credentials of a service account whose password
// comes from the injected secret provider.
type Client struct {
	baseURL    string
	username   string
	secrets    secrets.Provider
	httpClient *http.Client
}

// NewClient creates a service desk client.
func NewClient(cfg *config.Config, provider secrets.Provider) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.ServiceDeskBaseURL, "/"),
		username:   cfg.ServiceDeskUsername,
		secrets:    provider,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// do issues one API call. experimental adds the X-ExperimentalApi header the
// customer endpoints still require. A non-nil out is filled from the JSON
// response body; 204 responses leave it untouched.
func (c *Client) do(ctx context.Context, method, endpoint string, payload interface{}, experimental bool, out interface{}) error {
	password, err := c.secrets.Password(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain service desk credential: %w", err)
	}

	var bodyReader io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload for %s %s: %w", method, endpoint, err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request for %s %s: %w", method, endpoint, err)
	}
	req.SetBasicAuth(c.username, password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Linaro-WebForms-Gateway/2.0")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if experimental {
		req.Header.Set("X-ExperimentalApi", "true")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed for %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response for %s %s: %w", method, endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{
			Status:   resp.StatusCode,
			Method:   method,
			Endpoint: endpoint,
			Body:     truncate(string(rawBody), maxErrorBodyBytes),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(rawBody) == 0 {
		return nil
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		return fmt.Errorf("expected JSON from %s but got %s: %s", endpoint, contentType, truncate(string(rawBody), maxErrorBodyBytes))
	}

	if err := json.Unmarshal(rawBody, out); err != nil {
		return fmt.Errorf("failed to parse JSON from %s: %w: %s", endpoint, err, truncate(string(rawBody), maxErrorBodyBytes))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// IsStatus reports whether err is a service desk Error with the given HTTP
// status.
func IsStatus(err error, status int) bool {
	var sdErr *Error
	if errors.As(err, &sdErr) {
		return sdErr.Status == status
	}
	return false
}
