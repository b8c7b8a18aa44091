package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"modelsentry/internal/domain"
)

var _ domain.RuleProvider = (*HTTPProvider)(nil)

// HTTPProvider fetches the best-practice rule catalog from a remote
// JSON document and caches it until the TTL expires or Invalidate is
// called. The document may be a bare rule array or wrapped in a
// {"rules": [...]} envelope.
type HTTPProvider struct {
	url    string
	ttl    time.Duration
	client *http.Client
	logger *slog.Logger

	group singleflight.Group

	mu        sync.RWMutex
	cached    []domain.Rule
	fetchedAt time.Time
}

// NewHTTPProvider creates a provider for the given catalog URL. ttl <= 0
// caches indefinitely until Invalidate.
func NewHTTPProvider(url string, ttl time.Duration, logger *slog.Logger) *HTTPProvider {
	return &HTTPProvider{
		url:    url,
		ttl:    ttl,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

type catalogEnvelope struct {
	Rules []domain.Rule `json:"rules"`
}

// Fetch returns the cached catalog, refreshing it when stale.
// Concurrent refreshes collapse into a single request.
func (p *HTTPProvider) Fetch(ctx context.Context) ([]domain.Rule, error) {
	p.mu.RLock()
	cached, fetchedAt := p.cached, p.fetchedAt
	p.mu.RUnlock()

	if cached != nil && (p.ttl <= 0 || time.Since(fetchedAt) < p.ttl) {
		return cached, nil
	}

	v, err, _ := p.group.Do("catalog", func() (interface{}, error) {
		return p.fetchRemote(ctx)
	})
	if err != nil {
		// Serve the stale copy if we have one; the catalog changes rarely.
		if cached != nil {
			p.logger.Warn("catalog refresh failed, serving cached rules", "error", err)
			return cached, nil
		}
		return nil, err
	}
	return v.([]domain.Rule), nil
}

// Invalidate drops the cached catalog.
func (p *HTTPProvider) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.fetchedAt = time.Time{}
	p.mu.Unlock()
}

func (p *HTTPProvider) fetchRemote(ctx context.Context) ([]domain.Rule, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, domain.ErrUnavailable("build catalog request: %v", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, domain.ErrUnavailable("fetch rule catalog: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.ErrUnavailable("fetch rule catalog: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.ErrUnavailable("read rule catalog: %v", err)
	}

	rules, err := decodeCatalog(body)
	if err != nil {
		return nil, domain.ErrUnavailable("decode rule catalog: %v", err)
	}

	p.mu.Lock()
	p.cached = rules
	p.fetchedAt = time.Now()
	p.mu.Unlock()

	p.logger.Info("rule catalog refreshed", "rules", len(rules))
	return rules, nil
}

// decodeCatalog accepts both publication shapes of the catalog.
func decodeCatalog(body []byte) ([]domain.Rule, error) {
	var bare []domain.Rule
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare, nil
	}

	var env catalogEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("catalog is neither a rule array nor an envelope: %w", err)
	}
	if env.Rules == nil {
		return nil, fmt.Errorf("catalog envelope has no rules field")
	}
	return env.Rules, nil
}

// StaticProvider serves a fixed rule set. Used by tests and by
// deployments that pin a local catalog.
type StaticProvider struct {
	rules []domain.Rule
}

// NewStaticProvider creates a provider over a fixed rule slice.
func NewStaticProvider(rules []domain.Rule) *StaticProvider {
	return &StaticProvider{rules: rules}
}

// Fetch returns the fixed rule set.
func (p *StaticProvider) Fetch(context.Context) ([]domain.Rule, error) {
	return p.rules, nil
}

// Invalidate is a no-op for a static catalog.
func (p *StaticProvider) Invalidate() {}
