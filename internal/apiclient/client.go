// Package apiclient is the REST transport to the execution service. Every
// response is unwrapped from the {success, message, data} envelope.
package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/HamedDawoudzai/hybrid-exchange/internal/auth"
	"github.com/HamedDawoudzai/hybrid-exchange/internal/domain"
)

const maxBody = 8 << 20

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RPS        float64
	Burst      int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	base    string
	http    *http.Client
	session *auth.Session
	limiter *rate.Limiter
	logger  *slog.Logger
}

func New(session *auth.Session, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:8080/api"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RPS <= 0 {
		opts.RPS = 20
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		http:    opts.HTTPClient,
		session: session,
		limiter: rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst),
		logger:  opts.Logger,
	}
}

func (c *Client) Session() *auth.Session { return c.session }

func do[T any](ctx context.Context, c *Client, method, path string, query url.Values, body any) (T, error) {
	var zero T

	token, err := c.session.TokenFor(ctx)
	if err != nil {
		return zero, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return zero, fmt.Errorf("%s %s: %w", method, path, err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return zero, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return zero, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w: %w", method, path, domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return zero, fmt.Errorf("read %s %s: %w: %w", method, path, domain.ErrTransport, err)
	}
	c.logger.Debug("execution service call",
		"method", method, "path", path, "status", resp.StatusCode,
		"request_id", reqID, "elapsed", time.Since(start))

	if resp.StatusCode == http.StatusUnauthorized {
		c.session.ExpireToken(token)
		return zero, domain.ErrUnauthorized
	}

	data = bytes.TrimSpace(data)
	var env domain.Envelope[T]
	var decodeErr error
	if len(data) > 0 {
		decodeErr = json.Unmarshal(data, &env)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Message
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return zero, &domain.ServiceError{Status: resp.StatusCode, Message: msg}
	}
	if len(data) == 0 {
		return zero, nil
	}
	if decodeErr != nil {
		return zero, fmt.Errorf("decode %s %s: %w", method, path, decodeErr)
	}
	if !env.Success {
		return zero, &domain.ServiceError{Status: resp.StatusCode, Message: env.Message}
	}
	return env.Data, nil
}
