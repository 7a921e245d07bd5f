package access

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// LoginResponse is the session info returned by GET /login.
type LoginResponse struct {
	Level     string `json:"level"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// HTTPProvider resolves the caller's level from the API's login endpoint and
// caches it for TTL.
type HTTPProvider struct {
	url        string
	token      string
	ttl        time.Duration
	httpClient *http.Client

	mu      sync.Mutex
	cached  *LoginResponse
	fetched time.Time
}

// HTTPProviderConfig holds configuration for the login provider.
type HTTPProviderConfig struct {
	// LoginURL is the full URL of the login endpoint
	LoginURL string

	// Token is the bearer token of the operator
	Token string

	// TTL is how long a resolved level is reused (default: 5m)
	TTL time.Duration

	// Timeout is the HTTP request timeout (default: 10s)
	Timeout time.Duration
}

// NewHTTPProvider creates a login-backed level provider.
func NewHTTPProvider(cfg HTTPProviderConfig) *HTTPProvider {
	if cfg.TTL == 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPProvider{
		url:   cfg.LoginURL,
		token: cfg.Token,
		ttl:   cfg.TTL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// CurrentLevel returns the caller's level.
func (p *HTTPProvider) CurrentLevel(ctx context.Context) (string, error) {
	login, err := p.Login(ctx)
	if err != nil {
		return "", err
	}
	return login.Level, nil
}

// Login returns the session info, fetching it when the cache has expired.
func (p *HTTPProvider) Login(ctx context.Context) (*LoginResponse, error) {
	p.mu.Lock()
	if p.cached != nil && time.Since(p.fetched) < p.ttl {
		login := *p.cached
		p.mu.Unlock()
		return &login, nil
	}
	p.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create login request: %w", err)
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login returned status %d", resp.StatusCode)
	}

	var login LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}

	p.mu.Lock()
	p.cached = &login
	p.fetched = time.Now()
	p.mu.Unlock()

	return &login, nil
}
