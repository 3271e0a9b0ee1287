// Package backend is the HTTP client for the remote cite-agent service:
// auth, academic search, financial data, and chat completion. Each method
// performs exactly one round trip with its own timeout; retries live in
// the Retrier, not here.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Spectating101/cite-agent-sub002/internal/logging"
)

// AuthPayload is the session object as the server sends it. Field names
// are the server's; normalization to the internal schema happens once, in
// the auth package.
type AuthPayload struct {
	Email           string `json:"email"`
	AccessToken     string `json:"access_token"`
	UserID          string `json:"user_id"`
	DailyTokenLimit int64  `json:"daily_token_limit"`
	ExpiresAt       int64  `json:"expires_at"` // unix seconds, 0 = omitted
	TempAPIKey      string `json:"temp_api_key,omitempty"`
	TempKeyExpires  int64  `json:"temp_key_expires,omitempty"`
	TempKeyProvider string `json:"temp_key_provider,omitempty"`
}

// Paper is one academic search hit.
type Paper struct {
	Title    string   `json:"title"`
	Authors  []string `json:"authors"`
	Year     int      `json:"year"`
	Venue    string   `json:"venue"`
	DOI      string   `json:"doi,omitempty"`
	Abstract string   `json:"abstract,omitempty"`
}

// SeriesPoint is one observation in a financial series.
type SeriesPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// Series is a named financial data series.
type Series struct {
	Symbol string        `json:"symbol"`
	Metric string        `json:"metric"`
	Unit   string        `json:"unit,omitempty"`
	Points []SeriesPoint `json:"points"`
}

// Client talks to the cite-agent backend.
type Client struct {
	baseURL     string
	httpc       *http.Client
	toolTimeout time.Duration
	chatTimeout time.Duration
	log         *zap.Logger
}

// NewClient creates a backend client. toolTimeout bounds search/finance
// calls; chatTimeout bounds chat completion.
func NewClient(baseURL string, toolTimeout, chatTimeout time.Duration) *Client {
	return &Client{
		baseURL:     baseURL,
		httpc:       &http.Client{},
		toolTimeout: toolTimeout,
		chatTimeout: chatTimeout,
		log:         logging.Backend(),
	}
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Login authenticates against the remote auth endpoint.
func (c *Client) Login(ctx context.Context, email, secret string) (*AuthPayload, error) {
	var out AuthPayload
	err := c.post(ctx, "/api/auth/login", c.toolTimeout, "", map[string]string{
		"email":    email,
		"password": secret,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates a new account on the remote auth endpoint.
func (c *Client) Register(ctx context.Context, email, secret string) (*AuthPayload, error) {
	var out AuthPayload
	err := c.post(ctx, "/api/auth/register", c.toolTimeout, "", map[string]string{
		"email":    email,
		"password": secret,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh exchanges the current token for a new one.
func (c *Client) Refresh(ctx context.Context, token string) (*AuthPayload, error) {
	var out AuthPayload
	err := c.post(ctx, "/auth/refresh", c.toolTimeout, token, map[string]string{}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchPapers runs an academic search.
func (c *Client) SearchPapers(ctx context.Context, token, query string, limit int) ([]Paper, error) {
	if limit <= 0 {
		limit = 10
	}
	var out struct {
		Papers []Paper `json:"papers"`
	}
	err := c.post(ctx, "/api/search/academic", c.toolTimeout, token, map[string]any{
		"query": query,
		"limit": limit,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Papers, nil
}

// FinancialSeries fetches a financial data series for a symbol/metric.
func (c *Client) FinancialSeries(ctx context.Context, token, symbol, metric string) (*Series, error) {
	var out Series
	err := c.post(ctx, "/api/finance/series", c.toolTimeout, token, map[string]string{
		"symbol": symbol,
		"metric": metric,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatCompletion asks the backend chat endpoint to synthesize text.
func (c *Client) ChatCompletion(ctx context.Context, token, prompt string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	err := c.post(ctx, "/api/chat/completions", c.chatTimeout, token, map[string]string{
		"prompt": prompt,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

// Health probes backend availability. Used through a ProbeGate so a dead
// backend is not hammered.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.toolTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// post performs one JSON round trip.
func (c *Client) post(ctx context.Context, path string, timeout time.Duration, token string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		c.log.Debug("request failed",
			zap.String("path", path),
			zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	c.log.Debug("request completed",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %s", ErrUnauthorized, path)
	}
	if resp.StatusCode == http.StatusConflict {
		return fmt.Errorf("%w: %s", ErrConflict, path)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
