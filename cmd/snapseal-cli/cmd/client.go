package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// APIClient handles HTTP requests to the snapshot API
type APIClient struct {
	BaseURL        string
	OrganizationID string
	HTTPClient     *http.Client
}

// NewAPIClient creates a new API client
func NewAPIClient(baseURL, organizationID string) *APIClient {
	return &APIClient{
		BaseURL:        baseURL,
		OrganizationID: organizationID,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Request makes an HTTP request to the snapshot API
func (c *APIClient) Request(method, path string, body interface{}) (*http.Response, error) {
	url := c.BaseURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	req.Header.Set("Content-Type", "application/json")
	if c.OrganizationID != "" {
		req.Header.Set("X-Organization-ID", c.OrganizationID)
	}

	if verbose {
		fmt.Fprintf(debugWriter, "→ %s %s\n", method, url)
		if body != nil {
			jsonData, _ := json.MarshalIndent(body, "", "  ")
			fmt.Fprintf(debugWriter, "Request Body:\n%s\n", string(jsonData))
		}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if verbose {
		fmt.Fprintf(debugWriter, "← %s %s\n", resp.Status, resp.Proto)
	}

	return resp, nil
}

// Get performs a GET request
func (c *APIClient) Get(path string) (*http.Response, error) {
	return c.Request(http.MethodGet, path, nil)
}

// Post performs a POST request
func (c *APIClient) Post(path string, body interface{}) (*http.Response, error) {
	return c.Request(http.MethodPost, path, body)
}

// ReadResponseBody reads and closes the response body
func ReadResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// CheckResponse checks for API errors in the response
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, err := ReadResponseBody(resp)
	if err != nil {
		return fmt.Errorf("HTTP %d: failed to read error response", resp.StatusCode)
	}

	var errorResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}

	if err := json.Unmarshal(body, &errorResp); err != nil {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	if errorResp.Error != "" {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, errorResp.Error)
	}

	if errorResp.Message != "" {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, errorResp.Message)
	}

	return fmt.Errorf("HTTP %d: unknown error", resp.StatusCode)
}
