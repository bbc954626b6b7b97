// Package servicenow talks to the ServiceNow Table API for change requests,
// and provides a local stand-in for instances that aren't configured.
package servicenow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// Record is the subset of a ServiceNow change_request row the dialogue needs.
type Record struct {
	SysID  string `json:"sys_id"`
	Number string `json:"number"`
	State  string `json:"state"`
}

// Client communicates with a ServiceNow instance over the Table API.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// NewClient creates a client for the given instance name
// (https://<instance>.service-now.com).
func NewClient(instance, username, password string) *Client {
	return &Client{
		baseURL:  fmt.Sprintf("https://%s.service-now.com/api/now", instance),
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(baseURL, username, password string) *Client {
	c := NewClient("", username, password)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// tableResponse wraps every Table API payload.
type tableResponse struct {
	Result Record `json:"result"`
}

// CreateChangeRequest creates a change request from the collected field map
// and returns the created record. There is no automatic retry; a failed
// attempt surfaces to the caller and the dialogue stays resumable.
func (c *Client) CreateChangeRequest(ctx context.Context, fields map[string]string) (Record, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return Record{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/table/change_request", bytes.NewReader(body))
	if err != nil {
		return Record{}, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Record{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Record{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var tr tableResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return Record{}, fmt.Errorf("decoding response: %w", err)
	}
	if tr.Result.State == "" {
		tr.Result.State = "New"
	}
	return tr.Result, nil
}

// GetChangeRequest fetches a change request by its sys_id.
func (c *Client) GetChangeRequest(ctx context.Context, sysID string) (Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/table/change_request/"+sysID, nil)
	if err != nil {
		return Record{}, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Record{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Record{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var tr tableResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return Record{}, fmt.Errorf("decoding response: %w", err)
	}
	return tr.Result, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.username, c.password)
}
