package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// CredentialSupplier is the external token service. The client calls
// Refresh at most once per outbound call.
type CredentialSupplier interface {
	Token(ctx context.Context, tenant string) (string, error)
	Refresh(ctx context.Context, tenant string) (string, error)
}

// StaticSupplier serves a fixed token. Refresh hands back the same value,
// which is enough for local runs against a long-lived token.
type StaticSupplier string

func (s StaticSupplier) Token(context.Context, string) (string, error)   { return string(s), nil }
func (s StaticSupplier) Refresh(context.Context, string) (string, error) { return string(s), nil }

type ClientConfig struct {
	BaseURL        string
	Tenant         string
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RPS            int
}

// Client issues authenticated calls against the marketplace API. On a 401
// it asks the supplier for one fresh token and retries exactly once; a
// second 401 surfaces as ErrAuth. Transient failures (429, 5xx, transport,
// unparseable bodies) are retried with bounded exponential backoff in the
// typed endpoint methods, kept separate from the auth policy.
type Client struct {
	cfg     ClientConfig
	httpc   *http.Client
	creds   CredentialSupplier
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

func NewClient(cfg ClientConfig, creds CredentialSupplier, log *zap.Logger) *Client {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 250 * time.Millisecond
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 8
	}
	br := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "marketplace",
		Timeout: 15 * time.Second,
	})
	return &Client{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		creds:   creds,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.RPS),
		breaker: br,
		log:     log,
	}
}

// do performs one authenticated call and classifies the response status.
// The request body, if any, is buffered so the auth retry can replay it.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "encode request body")
		}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	tok, err := c.creds.Token(ctx, c.cfg.Tenant)
	if err != nil {
		return nil, errors.Wrap(err, "get token")
	}
	resp, err := c.send(ctx, method, path, q, payload, tok)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		tok, err = c.creds.Refresh(ctx, c.cfg.Tenant)
		if err != nil {
			return nil, errors.Wrap(err, "refresh token")
		}
		resp, err = c.send(ctx, method, path, q, payload, tok)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			drain(resp)
			return nil, ErrAuth
		}
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		drain(resp)
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		drain(resp)
		return nil, errors.Wrapf(ErrTransient, "upstream status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		defer resp.Body.Close()
		var apiErr struct {
			Code string `json:"code"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Code == "cursor_unsupported" {
			return nil, ErrCursorUnsupported
		}
		return nil, errors.Errorf("upstream status %d (%s)", resp.StatusCode, apiErr.Code)
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, path string, q url.Values, payload []byte, token string) (*http.Response, error) {
	u := c.cfg.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	out, err := c.breaker.Execute(func() (any, error) { return c.httpc.Do(req) })
	if err != nil {
		return nil, errors.Wrapf(ErrTransient, "request failed: %v", err)
	}
	return out.(*http.Response), nil
}

// withRetry runs fn until it succeeds, fails non-transiently, or exhausts
// the configured attempts.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, ErrTransient) {
			return err
		}
		if attempt == c.cfg.RetryAttempts {
			break
		}
		delay := backoff(c.cfg.RetryBaseDelay, attempt)
		c.log.Warn("transient upstream error, backing off",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func backoff(base time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	return d + time.Duration(rand.Int63n(int64(base)))
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
