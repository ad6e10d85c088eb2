package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"debtflow/internal/logging"
)

// DefaultTimeout applies when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is kept in APIError.
const maxErrorBody = 4 << 10

// APIError is a non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// Config configures a Client.
type Config struct {
	BaseURL   string
	Token     string
	Timeout   time.Duration
	UserAgent string
}

// Client implements every collaborator interface over HTTP JSON.
type Client struct {
	baseURL    *url.URL
	token      string
	userAgent  string
	httpClient *http.Client
}

var (
	_ Movements = (*Client)(nil)
	_ Wallets   = (*Client)(nil)
	_ PixKeys   = (*Client)(nil)
	_ Gateway   = (*Client)(nil)
)

// NewClient creates a client. The cookie jar keeps session cookies the
// backend sets alongside the bearer token.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("api base URL required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid api base URL: %w", err)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "debtflow"
	}
	return &Client{
		baseURL:   base,
		token:     cfg.Token,
		userAgent: ua,
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
	}, nil
}

// do sends body (if non-nil) as JSON and decodes the response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, header http.Header, body, out interface{}) error {
	ref := &url.URL{Path: strings.TrimLeft(path, "/")}
	if len(query) > 0 {
		ref.RawQuery = query.Encode()
	}
	target := c.baseURL.ResolveReference(ref)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.Get(logging.CategoryAPI).Warn("%s %s failed: %v", method, path, err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	logging.APIDebug("%s %s -> %d (%s)", method, path, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}

// errorMessage pulls "message" or "error" out of a JSON error body, falling
// back to the trimmed text.
func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(raw))
}

// =============================================================================
// MOVEMENTS
// =============================================================================

// CheckDuplicates returns existing movements matching criteria.
func (c *Client) CheckDuplicates(ctx context.Context, criteria DuplicateCriteria) ([]DuplicateCandidate, error) {
	var out struct {
		Candidates []DuplicateCandidate `json:"candidates"`
	}
	if err := c.do(ctx, http.MethodPost, "movements/check-duplicates", nil, nil, criteria, &out); err != nil {
		return nil, err
	}
	return out.Candidates, nil
}

// Create creates a movement. The idempotency key makes a retried create safe.
func (c *Client) Create(ctx context.Context, in MovementInput, idempotencyKey string) (Movement, error) {
	var header http.Header
	if idempotencyKey != "" {
		header = http.Header{"Idempotency-Key": []string{idempotencyKey}}
	}
	var out Movement
	if err := c.do(ctx, http.MethodPost, "movements", nil, header, in, &out); err != nil {
		return Movement{}, err
	}
	return out, nil
}

// =============================================================================
// WALLETS AND PIX KEYS
// =============================================================================

// ListWallets returns the user's wallets.
func (c *Client) ListWallets(ctx context.Context) ([]Wallet, error) {
	var out []Wallet
	if err := c.do(ctx, http.MethodGet, "wallets", nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPixKeys returns PIX keys, optionally filtered by wallet.
func (c *Client) ListPixKeys(ctx context.Context, walletID string) ([]PixKey, error) {
	var q url.Values
	if walletID != "" {
		q = url.Values{"wallet_id": []string{walletID}}
	}
	var out []PixKey
	if err := c.do(ctx, http.MethodGet, "pix-keys", q, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreatePixKey registers a PIX key.
func (c *Client) CreatePixKey(ctx context.Context, in PixKeyInput) (PixKey, error) {
	var out PixKey
	if err := c.do(ctx, http.MethodPost, "pix-keys", nil, nil, in, &out); err != nil {
		return PixKey{}, err
	}
	return out, nil
}

// =============================================================================
// GATEWAY
// =============================================================================

// ConnectionStatus reports whether the gateway account is connected.
func (c *Client) ConnectionStatus(ctx context.Context) (GatewayStatus, error) {
	var out GatewayStatus
	if err := c.do(ctx, http.MethodGet, "gateway/status", nil, nil, nil, &out); err != nil {
		return GatewayStatus{}, err
	}
	return out, nil
}

// AuthorizationURL returns the URL that starts gateway authorization.
func (c *Client) AuthorizationURL(ctx context.Context) (string, error) {
	var out struct {
		AuthURL string `json:"auth_url"`
	}
	if err := c.do(ctx, http.MethodGet, "gateway/authorization-url", nil, nil, nil, &out); err != nil {
		return "", err
	}
	if out.AuthURL == "" {
		return "", fmt.Errorf("gateway returned an empty authorization URL")
	}
	return out.AuthURL, nil
}
