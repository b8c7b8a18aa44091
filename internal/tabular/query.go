package tabular

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"modelsentry/internal/domain"
)

var (
	_ domain.QueryEngine    = (*QueryClient)(nil)
	_ domain.QueryCanceller = (*QueryClient)(nil)
)

// QueryClient executes queries against one database of the tabular
// gateway. It also exposes the gateway's native cancel primitive;
// remote cancellation is best-effort only.
type QueryClient struct {
	serverAddress string
	databaseName  string
	httpClient    *http.Client
}

// NewQueryClient creates a QueryClient bound to one database.
func NewQueryClient(serverAddress, databaseName string, timeout time.Duration) *QueryClient {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &QueryClient{
		serverAddress: serverAddress,
		databaseName:  databaseName,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Columns []domain.QueryColumn     `json:"columns"`
	Rows    []map[string]interface{} `json:"rows"`
	Error   string                   `json:"error,omitempty"`
}

// Run executes queryText and returns the result set.
func (c *QueryClient) Run(ctx context.Context, queryText string) (*domain.QueryResult, error) {
	endpoint := fmt.Sprintf("%s/databases/%s/query", baseURL(c.serverAddress), url.PathEscape(c.databaseName))
	payload, err := json.Marshal(queryRequest{Query: queryText})
	if err != nil {
		return nil, fmt.Errorf("marshal query request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, domain.ErrUnavailable("build query request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.ErrUnavailable("execute query: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.ErrUnavailable("read query response: %v", err)
	}

	var qr queryResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return nil, domain.ErrUnavailable("decode query response: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK || qr.Error != "" {
		msg := qr.Error
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		return nil, domain.ErrUnavailable("execute query: %s", msg)
	}

	return &domain.QueryResult{Columns: qr.Columns, Rows: qr.Rows}, nil
}

// CancelQuery asks the gateway to stop an execution. The caller must
// not rely on the remote side actually stopping.
func (c *QueryClient) CancelQuery(ctx context.Context, executionID string) error {
	endpoint := fmt.Sprintf("%s/databases/%s/query/%s/cancel",
		baseURL(c.serverAddress), url.PathEscape(c.databaseName), url.PathEscape(executionID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return domain.ErrUnavailable("build cancel request: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ErrUnavailable("cancel query: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return domain.ErrUnavailable("cancel query: unexpected status %d", resp.StatusCode)
	}
	return nil
}
