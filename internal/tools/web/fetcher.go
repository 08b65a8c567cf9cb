// Package web implements the web content tools: fetch (markdown, raw, or
// link extraction) and links (ranked same-site link listing).
//
// Security:
//   - Optional domain allowlist enforced before every request and redirect
//   - DNS resolution checked: private/internal IPs blocked (SSRF protection)
//   - Response body capped to prevent OOM
//   - Redirect count bounded
//   - Timeout enforced via context
package web

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	defaultMaxResponseBytes = 5 << 20 // 5 MB
	defaultTimeoutSeconds   = 10
	defaultUserAgent        = "Mozilla/5.0 (X11; Linux i686; rv:135.0) Gecko/20100101 Firefox/135.0"
	maxRedirects            = 5
)

// Config configures web content retrieval.
type Config struct {
	UserAgent         string   // Empty = USER_AGENT env or a browser default.
	MaxResponseBytes  int64    // Maximum response body size. 0 = 5 MB.
	TimeoutSeconds    int      // HTTP timeout. 0 = 10s.
	AllowedDomains    []string // Empty = any public host.
	AllowPrivateHosts bool     // Disable the private-IP SSRF check (dev/test only).
}

// Fetcher retrieves web content within the configured restrictions.
type Fetcher struct {
	config Config
	logger *slog.Logger
}

// NewFetcher creates a fetcher with the given restrictions.
func NewFetcher(cfg Config, logger *slog.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		if ua := os.Getenv("USER_AGENT"); ua != "" {
			cfg.UserAgent = ua
		} else {
			cfg.UserAgent = defaultUserAgent
		}
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = defaultMaxResponseBytes
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = defaultTimeoutSeconds
	}
	return &Fetcher{config: cfg, logger: logger}
}

// ValidateURL checks scheme and allowlist without touching the network.
func (f *Fetcher) ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("only http/https schemes allowed, got %q", parsed.Scheme)
	}
	if !IsDomainAllowed(parsed.Hostname(), f.config.AllowedDomains) {
		return fmt.Errorf("domain %q is not in the allowlist", parsed.Hostname())
	}
	return nil
}

// Get fetches a model-supplied URL and returns the response body as text.
// The domain allowlist and private-IP checks apply. Non-2xx statuses and
// empty bodies are errors with descriptive messages.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (string, error) {
	if err := f.ValidateURL(rawURL); err != nil {
		return "", err
	}

	parsed, _ := url.Parse(rawURL)
	if !f.config.AllowPrivateHosts {
		if err := CheckSSRF(parsed.Hostname()); err != nil {
			return "", err
		}
	}

	return f.do(ctx, rawURL, f.checkRedirect)
}

// GetTrusted fetches an operator-configured URL, such as the search backend.
// The scheme must still be http(s) and redirects stay bounded, but the
// domain allowlist and private-IP checks do not apply — the operator chose
// the endpoint, the model did not.
func (f *Fetcher) GetTrusted(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("only http/https schemes allowed, got %q", parsed.Scheme)
	}

	return f.do(ctx, rawURL, func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("too many redirects (max %d)", maxRedirects)
		}
		return nil
	})
}

func (f *Fetcher) do(ctx context.Context, rawURL string, checkRedirect func(*http.Request, []*http.Request) error) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(f.config.TimeoutSeconds)*time.Second)
	defer cancel()

	client := &http.Client{CheckRedirect: checkRedirect}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	f.logger.InfoContext(ctx, "fetching url", slog.String("url", rawURL))

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("timeout while fetching %s: %w", rawURL, err)
		}
		return "", fmt.Errorf("failed to connect to %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading response from %s: %w", rawURL, err)
	}

	text := strings.TrimSpace(string(body))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("failed to fetch %s: HTTP %d (%s)", rawURL, resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if text == "" {
		return "", fmt.Errorf("failed to fetch %s: HTTP %d with empty body", rawURL, resp.StatusCode)
	}

	return text, nil
}

// checkRedirect validates that redirect targets stay within the allowlist
// and never reach private addresses.
func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("too many redirects (max %d)", maxRedirects)
	}

	host := req.URL.Hostname()
	if !IsDomainAllowed(host, f.config.AllowedDomains) {
		return fmt.Errorf("redirect to disallowed domain %q blocked", host)
	}
	if !f.config.AllowPrivateHosts {
		if err := CheckSSRF(host); err != nil {
			return err
		}
	}
	return nil
}
