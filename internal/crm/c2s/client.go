package c2s

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/c2s-leadsync/internal/config"
	"github.com/example/c2s-leadsync/internal/crm"
	"github.com/example/c2s-leadsync/internal/util"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 1 << 20
)

// HTTPClient abstracts the http.Client Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option customises the behaviour of the CRM client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used to talk to the CRM.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithClock overrides the clock used for pacing and timings.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRandomSource makes retry jitter deterministic. Useful for tests.
func WithRandomSource(src rand.Source) Option {
	return func(c *Client) {
		if src != nil {
			c.rnd = rand.New(src)
		}
	}
}

// WithBodyLimit adjusts how many bytes are read from a response body.
func WithBodyLimit(limit int64) Option {
	return func(c *Client) {
		if limit > 0 {
			c.maxBodyBytes = limit
		}
	}
}

// Client issues authenticated requests to the C2S API. Every request is
// paced by the rate limiter, bounded by the configured timeout and, unless
// it is a health check, retried on transient failures. RetryAttempts is the
// total number of attempts per request.
type Client struct {
	logger        zerolog.Logger
	baseURL       string
	token         string
	timeout       time.Duration
	retryAttempts int
	retryDelay    time.Duration
	httpClient    HTTPClient
	limiter       *rateLimiter
	maxBodyBytes  int64
	now           func() time.Time

	randMu sync.Mutex
	rnd    *rand.Rand
}

// NewClient constructs a CRM client from cfg. An empty token is accepted so
// that a disabled integration can still be wired; the provider refuses to
// call the API in that case.
func NewClient(cfg config.C2SConfig, logger zerolog.Logger, opts ...Option) (*Client, error) {
	base, err := util.ValidateHTTPURL(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("c2s client: base url: %w", err)
	}
	if cfg.RetryAttempts < 0 {
		return nil, errors.New("c2s client: retry attempts cannot be negative")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		logger:        logger.With().Str("component", "c2s_client").Logger(),
		baseURL:       strings.TrimRight(base, "/"),
		token:         strings.TrimSpace(cfg.Token),
		timeout:       timeout,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    time.Duration(cfg.RetryDelayMs) * time.Millisecond,
		httpClient:    &http.Client{},
		maxBodyBytes:  defaultMaxBodyBytes,
		now:           time.Now,
		rnd:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	c.limiter = newRateLimiter(time.Duration(cfg.RateLimitMs)*time.Millisecond, c.now)
	return c, nil
}

// HasCredentials reports whether an API token is configured.
func (c *Client) HasCredentials() bool {
	return c.token != ""
}

// CreateLead creates a lead. This is the only request wrapped in the
// vendor envelope.
func (c *Client) CreateLead(ctx context.Context, payload crm.LeadPayload) (*Lead, error) {
	body := leadEnvelope{Data: leadEnvelopeData{Type: leadResourceType, Attributes: payload}}
	var out dataEnvelope[Lead]
	if err := c.do(ctx, call{method: http.MethodPost, path: "/leads", body: body, out: &out}); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// UpdateLead replaces the mutable attributes of a lead.
func (c *Client) UpdateLead(ctx context.Context, id string, payload crm.LeadPayload) (*Lead, error) {
	var out dataEnvelope[Lead]
	if err := c.do(ctx, call{method: http.MethodPut, path: leadPath(id, ""), body: payload, out: &out}); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// GetLeads lists leads matching q.
func (c *Client) GetLeads(ctx context.Context, q LeadQuery) (*LeadList, error) {
	var out LeadList
	if err := c.do(ctx, call{method: http.MethodGet, path: "/leads", query: q.values(), out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetLead fetches a single lead.
func (c *Client) GetLead(ctx context.Context, id string) (*Lead, error) {
	var out dataEnvelope[Lead]
	if err := c.do(ctx, call{method: http.MethodGet, path: leadPath(id, ""), out: &out}); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// MarkInteracted records the first interaction with a lead.
func (c *Client) MarkInteracted(ctx context.Context, id string) error {
	return c.do(ctx, call{method: http.MethodPost, path: leadPath(id, "interact")})
}

// CreateMessage appends a note to a lead's timeline.
func (c *Client) CreateMessage(ctx context.Context, id, message string) error {
	return c.do(ctx, call{method: http.MethodPost, path: leadPath(id, "create_message"), body: messageRequest{Message: message}})
}

// AddTags attaches tags to a lead.
func (c *Client) AddTags(ctx context.Context, id string, tags []string) error {
	return c.do(ctx, call{method: http.MethodPost, path: leadPath(id, "tags"), body: tagsRequest{Tags: tags}})
}

// GetTags lists the tags attached to a lead.
func (c *Client) GetTags(ctx context.Context, id string) ([]Tag, error) {
	var out dataEnvelope[[]Tag]
	if err := c.do(ctx, call{method: http.MethodGet, path: leadPath(id, "tags"), out: &out}); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// GetSellers lists the sellers of the company.
func (c *Client) GetSellers(ctx context.Context) ([]Seller, error) {
	var out dataEnvelope[[]Seller]
	if err := c.do(ctx, call{method: http.MethodGet, path: "/sellers", out: &out}); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// CreateSeller registers a seller.
func (c *Client) CreateSeller(ctx context.Context, in SellerInput) (*Seller, error) {
	var out dataEnvelope[Seller]
	if err := c.do(ctx, call{method: http.MethodPost, path: "/sellers", body: in, out: &out}); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// UpdateSeller updates a seller.
func (c *Client) UpdateSeller(ctx context.Context, id string, in SellerInput) (*Seller, error) {
	var out dataEnvelope[Seller]
	path := "/sellers/" + url.PathEscape(strings.TrimSpace(id))
	if err := c.do(ctx, call{method: http.MethodPut, path: path, body: in, out: &out}); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// CreateVisit schedules a visit and returns its id.
func (c *Client) CreateVisit(ctx context.Context, in VisitRequest) (string, error) {
	var out dataEnvelope[resourceID]
	if err := c.do(ctx, call{method: http.MethodPost, path: "/visits", body: in, out: &out}); err != nil {
		return "", err
	}
	return out.Data.ID.String(), nil
}

// CreateActivity records an activity and returns its id.
func (c *Client) CreateActivity(ctx context.Context, in ActivityRequest) (string, error) {
	var out dataEnvelope[resourceID]
	if err := c.do(ctx, call{method: http.MethodPost, path: "/activities", body: in, out: &out}); err != nil {
		return "", err
	}
	return out.Data.ID.String(), nil
}

// MarkDone closes a lead as a won deal.
func (c *Client) MarkDone(ctx context.Context, id string, in DoneRequest) error {
	return c.do(ctx, call{method: http.MethodPost, path: leadPath(id, "done"), body: in})
}

// Subscribe registers hookURL for lead webhooks.
func (c *Client) Subscribe(ctx context.Context, hookURL string) error {
	return c.do(ctx, call{method: http.MethodPost, path: "/leads/subscribe", body: subscriptionRequest{HookURL: hookURL}})
}

// Unsubscribe removes a webhook registration.
func (c *Client) Unsubscribe(ctx context.Context, hookURL string) error {
	return c.do(ctx, call{method: http.MethodPost, path: "/leads/unsubscribe", body: subscriptionRequest{HookURL: hookURL}})
}

// GetDistributionQueues lists the lead distribution queues.
func (c *Client) GetDistributionQueues(ctx context.Context) ([]DistributionQueue, error) {
	var out dataEnvelope[[]DistributionQueue]
	if err := c.do(ctx, call{method: http.MethodGet, path: "/distribution_queues", out: &out}); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// HealthCheck issues a single cheap request without retries.
func (c *Client) HealthCheck(ctx context.Context) error {
	query := url.Values{}
	query.Set("perpage", "1")
	return c.do(ctx, call{method: http.MethodGet, path: "/leads", query: query, skipRetry: true})
}

func leadPath(id, action string) string {
	path := "/leads/" + url.PathEscape(strings.TrimSpace(id))
	if action != "" {
		path += "/" + action
	}
	return path
}

type call struct {
	method    string
	path      string
	query     url.Values
	body      any
	out       any
	skipRetry bool
}

func (c *Client) do(ctx context.Context, r call) error {
	attempts := c.retryAttempts
	if attempts < 1 || r.skipRetry {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := c.backoff(attempt - 2)
			c.logger.Info().
				Str("method", r.method).
				Str("path", r.path).
				Int("attempt", attempt).
				Dur("backoff", delay).
				Msg("c2s client: retrying request after transient error")
			if werr := sleep(ctx, delay); werr != nil {
				return fmt.Errorf("c2s client: %s %s: waiting for retry: %w", r.method, r.path, werr)
			}
		}

		start := c.now()
		var status int
		status, err = c.send(ctx, r)
		duration := c.now().Sub(start)

		logEvent := c.logger.With().
			Str("method", r.method).
			Str("path", r.path).
			Int("attempt", attempt).
			Int("status", status).
			Dur("duration", duration).
			Logger()

		if err == nil {
			logEvent.Debug().Msg("c2s client: request succeeded")
			return nil
		}

		if !crm.IsRetryable(err) || attempt == attempts {
			logEvent.Error().Err(err).Msg("c2s client: request failed")
			return err
		}
		logEvent.Warn().Err(err).Msg("c2s client: request attempt failed")
	}
	return err
}

func (c *Client) send(ctx context.Context, r call) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("c2s client: rate limiter: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return 0, crm.WrapValidation(fmt.Errorf("c2s client: encode request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	endpoint := c.baseURL + r.path
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(reqCtx, r.method, endpoint, body)
	if err != nil {
		return 0, crm.WrapPermanent(fmt.Errorf("c2s client: new request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if timedOut(ctx, reqCtx) {
			return 0, fmt.Errorf("%w: %s %s exceeded %s", crm.ErrRequestTimeout, r.method, r.path, c.timeout)
		}
		return 0, fmt.Errorf("c2s client: %s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		if timedOut(ctx, reqCtx) {
			return resp.StatusCode, fmt.Errorf("%w: %s %s exceeded %s", crm.ErrRequestTimeout, r.method, r.path, c.timeout)
		}
		return resp.StatusCode, crm.WrapTransient(fmt.Errorf("c2s client: read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, parseAPIError(resp.StatusCode, data)
	}

	if r.out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, r.out); err != nil {
			return resp.StatusCode, crm.WrapPermanent(fmt.Errorf("c2s client: decode response: %w", err))
		}
	}
	return resp.StatusCode, nil
}

// timedOut reports whether the per-request deadline fired while the
// caller's context is still live.
func timedOut(parent, req context.Context) bool {
	return parent.Err() == nil && errors.Is(req.Err(), context.DeadlineExceeded)
}
