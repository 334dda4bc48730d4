// Package remote is the client of the hosted plan backend. Plans, saves and
// server-rendered exports go through its REST API under a bearer token.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"lifeplan/internal/core"
	"lifeplan/internal/plans"
)

var (
	ErrUnauthorized = errors.New("remote backend: unauthorized")
	ErrNoToken      = errors.New("remote backend: no access token, log in first")
)

// APIError is a non-2xx response of the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote backend: status %d", e.Status)
	}
	return fmt.Sprintf("remote backend: status %d: %s", e.Status, e.Message)
}

// Credentials are the email/password pair exchanged for a token.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type Client struct {
	baseURL *url.URL
	anon    *http.Client // auth endpoints
	authed  *http.Client // everything else, bearer attached by oauth2.Transport
	tokens  *tokenSource
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	token      string
}

// WithHTTPClient sets the underlying client; its Transport is wrapped.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithToken starts the client with an existing access token.
func WithToken(token string) Option {
	return func(o *clientOptions) { o.token = token }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid remote base url %q", baseURL)
	}
	o := clientOptions{httpClient: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(&o)
	}

	ts := &tokenSource{}
	if o.token != "" {
		ts.set(&oauth2.Token{AccessToken: o.token, TokenType: "Bearer"})
	}
	base := o.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	return &Client{
		baseURL: u,
		anon:    o.httpClient,
		authed: &http.Client{
			Timeout:   o.httpClient.Timeout,
			Transport: &oauth2.Transport{Source: ts, Base: base},
		},
		tokens: ts,
	}, nil
}

// Token returns the current access token, if any.
func (c *Client) Token() (string, bool) {
	t, err := c.tokens.Token()
	if err != nil {
		return "", false
	}
	return t.AccessToken, true
}

// Login exchanges credentials for an access token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, creds Credentials) (string, error) {
	var tr tokenResponse
	if err := c.do(ctx, c.anon, http.MethodPost, "/auth/token", creds, &tr); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("login: empty access token")
	}
	tok := &oauth2.Token{AccessToken: tr.AccessToken, TokenType: "Bearer"}
	if tr.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	c.tokens.set(tok)
	return tr.AccessToken, nil
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, creds Credentials) error {
	if err := c.do(ctx, c.anon, http.MethodPost, "/auth/register", creds, nil); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return nil
}

// RequestPasswordReset asks the backend to mail a reset link.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	if err := c.do(ctx, c.anon, http.MethodPost, "/auth/password-reset", body, nil); err != nil {
		return fmt.Errorf("password reset: %w", err)
	}
	return nil
}

func (c *Client) ListPlans(ctx context.Context) ([]core.PlanSummary, error) {
	var out []core.PlanSummary
	if err := c.do(ctx, c.authed, http.MethodGet, "/plans", nil, &out); err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return out, nil
}

func (c *Client) GetPlan(ctx context.Context, id string) (core.Plan, error) {
	var p core.Plan
	if err := c.do(ctx, c.authed, http.MethodGet, "/plans/"+url.PathEscape(id), nil, &p); err != nil {
		return core.Plan{}, fmt.Errorf("get plan %s: %w", id, err)
	}
	return p, nil
}

// SavePlan sends {category: {items: [...]}} as a PATCH.
func (c *Client) SavePlan(ctx context.Context, id string, req core.SaveRequest) (core.Plan, error) {
	var p core.Plan
	if err := c.do(ctx, c.authed, http.MethodPatch, "/plans/"+url.PathEscape(id), req, &p); err != nil {
		return core.Plan{}, fmt.Errorf("save plan %s: %w", id, err)
	}
	return p, nil
}

func (c *Client) CreatePlan(ctx context.Context, p core.Plan) (core.Plan, error) {
	var out core.Plan
	if err := c.do(ctx, c.authed, http.MethodPost, "/plans", p, &out); err != nil {
		return core.Plan{}, fmt.Errorf("create plan: %w", err)
	}
	return out, nil
}

func (c *Client) DeletePlan(ctx context.Context, id string) error {
	if err := c.do(ctx, c.authed, http.MethodDelete, "/plans/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete plan %s: %w", id, err)
	}
	return nil
}

// ExportPlan streams the rendered export. The caller closes the reader.
func (c *Client) ExportPlan(ctx context.Context, id string, format plans.ExportFormat) (io.ReadCloser, error) {
	q := url.Values{"format": {string(format)}}
	req, err := c.newRequest(ctx, http.MethodGet, "/plans/"+url.PathEscape(id)+"/export?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.authed.Do(req)
	if err != nil {
		return nil, fmt.Errorf("export plan %s: %w", id, unwrapTokenErr(err))
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("export plan %s: %w", id, err)
	}
	return resp.Body, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return unwrapTokenErr(err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg := readMessage(resp.Body)
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", plans.ErrNotFound, msg)
	default:
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
}

// readMessage extracts {"message"} or {"error"} from an error body, falling
// back to the raw text.
func readMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(b, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(b))
}

func unwrapTokenErr(err error) error {
	if errors.Is(err, ErrNoToken) {
		return ErrNoToken
	}
	return err
}

// tokenSource hands the current token to oauth2.Transport.
type tokenSource struct {
	mu  sync.RWMutex
	tok *oauth2.Token
}

func (s *tokenSource) set(t *oauth2.Token) {
	s.mu.Lock()
	s.tok = t
	s.mu.Unlock()
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tok == nil || !s.tok.Valid() {
		return nil, ErrNoToken
	}
	return s.tok, nil
}

var (
	_ plans.Store    = (*Client)(nil)
	_ plans.Exporter = (*Client)(nil)
)
