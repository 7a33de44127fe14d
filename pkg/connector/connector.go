// Package connector performs outbound HTTP calls to integrations, applying
// their auth, timeout, retry and rate limit settings.
package connector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/conduit/pkg/models"
	"golang.org/x/time/rate"
)

const (
	// IdempotencyHeader carries the side-effect key of an outbound call.
	IdempotencyHeader = "Idempotency-Key"

	maxBodyBytes = 64 * 1024
)

// StatusError is returned when the integration answered with status >= 400.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether another attempt could succeed.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Request describes one logical call to an integration.
type Request struct {
	Integration    *models.Integration
	Method         string // defaults to the integration method
	Path           string // appended to the endpoint
	Query          map[string]string
	Headers        map[string]string
	Body           []byte
	IdempotencyKey string
}

// Result is the last response received for a request.
type Result struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Latency    time.Duration
	Attempts   int
}

type limiterEntry struct {
	limiter *rate.Limiter
	config  models.RateLimit
}

// Client executes requests against integrations.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	limiters   sync.Map // integration id -> *limiterEntry
}

// New creates a client. A nil httpClient uses a default client without a global timeout.
func New(logger *slog.Logger, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{httpClient: httpClient, logger: logger}
}

// Do executes req with retries. A response with status >= 400 is returned
// together with a *StatusError.
func (c *Client) Do(ctx context.Context, req Request) (*Result, error) {
	integration := req.Integration
	if integration == nil {
		return nil, errors.New("request has no integration")
	}

	err := c.wait(ctx, integration)
	if err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var (
		result   *Result
		attempts int
	)

	operation := func() error {
		attempts++

		res, err := c.once(ctx, req)
		if res != nil {
			res.Attempts = attempts
			result = res
		}

		if err == nil {
			return nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return backoff.Permanent(err)
		}

		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}

		return err
	}

	notify := func(err error, wait time.Duration) {
		c.logger.WarnContext(ctx, "Retrying integration call",
			"integration_id", integration.ID,
			"attempt", attempts,
			"wait", wait,
			"error", err,
		)
	}

	err = backoff.RetryNotify(operation, c.policy(ctx, integration.Retry), notify)

	return result, err
}

func (c *Client) policy(ctx context.Context, retry models.RetryPolicy) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = 0

	if retry.InitialIntervalMs > 0 {
		policy.InitialInterval = time.Duration(retry.InitialIntervalMs) * time.Millisecond
	}

	if retry.MaxIntervalMs > 0 {
		policy.MaxInterval = time.Duration(retry.MaxIntervalMs) * time.Millisecond
	}

	policy.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(policy, uint64(max(retry.Attempts, 0))), ctx) //nolint:gosec // bounded by validation
}

func (c *Client) wait(ctx context.Context, integration *models.Integration) error {
	limit := integration.RateLimit
	if !limit.Enabled || limit.Requests <= 0 {
		return nil
	}

	value, loaded := c.limiters.Load(integration.ID)

	entry, _ := value.(*limiterEntry)
	if !loaded || entry.config != limit {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Every(limit.Interval()/time.Duration(limit.Requests)), limit.Requests),
			config:  limit,
		}
		c.limiters.Store(integration.ID, entry)
	}

	return entry.limiter.Wait(ctx)
}

func (c *Client) once(ctx context.Context, req Request) (*Result, error) {
	integration := req.Integration

	attemptCtx, cancel := context.WithTimeout(ctx, integration.TimeoutDuration())
	defer cancel()

	httpReq, err := c.build(attemptCtx, req)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	started := time.Now()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &Result{Latency: time.Since(started)}, err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	result := &Result{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
		Latency:    time.Since(started),
	}

	if err != nil {
		return result, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return result, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
	}

	return result, nil
}

func (c *Client) build(ctx context.Context, req Request) (*http.Request, error) {
	integration := req.Integration

	target, err := url.Parse(strings.TrimRight(integration.Endpoint, "/") + req.Path)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	query := target.Query()
	for key, value := range integration.QueryParams {
		query.Set(key, value)
	}

	for key, value := range req.Query {
		query.Set(key, value)
	}

	if integration.Auth.Type == models.AuthTypeAPIKey && integration.Auth.KeyIn == "query" {
		query.Set(integration.Auth.KeyName, integration.Auth.KeyValue)
	}

	target.RawQuery = query.Encode()

	method := req.Method
	if method == "" {
		method = integration.Method
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range integration.Headers {
		httpReq.Header.Set(key, value)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if req.IdempotencyKey != "" {
		httpReq.Header.Set(IdempotencyHeader, req.IdempotencyKey)
	}

	applyAuth(httpReq, integration.Auth)

	return httpReq, nil
}

func applyAuth(req *http.Request, auth models.Auth) {
	switch auth.Type {
	case models.AuthTypeBearer:
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	case models.AuthTypeBasic:
		req.SetBasicAuth(auth.Username, auth.Password)
	case models.AuthTypeAPIKey:
		if auth.KeyIn != "query" {
			req.Header.Set(auth.KeyName, auth.KeyValue)
		}
	case models.AuthTypeNone:
	}
}

// Sample converts the outcome of a call into a health sample.
func Sample(integrationID string, source models.SampleSource, result *Result, err error) models.Sample {
	sample := models.Sample{
		IntegrationID: integrationID,
		Source:        source,
		Timestamp:     time.Now().UTC(),
	}

	if result != nil {
		sample.StatusCode = result.StatusCode
		sample.LatencyMs = result.Latency.Milliseconds()
	}

	var statusErr *StatusError

	switch {
	case err == nil:
	case errors.As(err, &statusErr):
		if statusErr.StatusCode >= 500 {
			sample.Error = statusErr.Error()
		}
	case errors.Is(err, context.DeadlineExceeded):
		sample.Error = "timeout"
	default:
		sample.Error = err.Error()
	}

	return sample
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}

	return value[:limit]
}

// Excerpt returns at most limit bytes of the response body.
func (r *Result) Excerpt(limit int) string {
	if r == nil {
		return ""
	}

	return truncate(string(r.Body), limit)
}
