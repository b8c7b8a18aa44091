// Package tabular provides HTTP clients for the remote tabular server
// collaborators: model introspection, metadata edits, and query
// execution. The wire shapes are the minimum the orchestration core
// needs; everything behind them is the remote server's business.
package tabular

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

	"modelsentry/internal/domain"
)

var (
	_ domain.ModelIntrospector = (*Client)(nil)
	_ domain.ModelEditor       = (*Client)(nil)
)

// Client talks to a tabular gateway over HTTP.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a Client. timeout bounds individual requests; the
// per-job context still governs overall cancellation.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// baseURL normalizes a configured server address to a URL. Addresses
// are commonly given as bare host:port.
func baseURL(serverAddress string) string {
	if strings.Contains(serverAddress, "://") {
		return strings.TrimRight(serverAddress, "/")
	}
	return "http://" + strings.TrimRight(serverAddress, "/")
}

// Snapshot retrieves the model metadata tree.
func (c *Client) Snapshot(ctx context.Context, serverAddress, databaseName string) (*domain.ModelSnapshot, error) {
	endpoint := fmt.Sprintf("%s/databases/%s/model", baseURL(serverAddress), url.PathEscape(databaseName))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, domain.ErrUnavailable("build snapshot request: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.ErrUnavailable("fetch model snapshot: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrNotFound("database %q not found on %s", databaseName, serverAddress)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.ErrUnavailable("fetch model snapshot: unexpected status %d", resp.StatusCode)
	}

	var snap domain.ModelSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, domain.ErrUnavailable("decode model snapshot: %v", err)
	}
	return &snap, nil
}

// UpdateObject sets one metadata property of a model object.
func (c *Client) UpdateObject(ctx context.Context, serverAddress, databaseName, objectPath, property, value string) error {
	endpoint := fmt.Sprintf("%s/databases/%s/objects", baseURL(serverAddress), url.PathEscape(databaseName))
	payload, err := json.Marshal(map[string]string{
		"object":   objectPath,
		"property": property,
		"value":    value,
	})
	if err != nil {
		return fmt.Errorf("marshal object update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload))
	if err != nil {
		return domain.ErrUnavailable("build object update request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ErrUnavailable("update model object: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound("object %q not found in %q", objectPath, databaseName)
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.ErrUnavailable("update model object: status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
