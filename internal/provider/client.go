package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"sportsync/internal/config"
	"sportsync/internal/domain"
	"sportsync/internal/logging"
	"sportsync/internal/metrics"
	"sportsync/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 16 << 20

// Store persists the provider record, its counters and request logs.
type Store interface {
	EnsureProvider(ctx context.Context, p *models.DataProvider) (*models.DataProvider, error)
	GetProviderByName(ctx context.Context, name string) (*models.DataProvider, error)
	RecordProviderSuccess(ctx context.Context, id int64, at time.Time) error
	RecordProviderFailure(ctx context.Context, id int64, hard bool, at time.Time) error
	CreateRequestLog(ctx context.Context, l *models.APIRequestLog) error
}

// Client issues cached, deduplicated, rate limited requests to the provider.
type Client struct {
	store      Store
	cache      domain.Cache
	httpClient *http.Client
	logger     *zerolog.Logger
	flight     singleflight.Group
	now        func() time.Time

	mu       sync.RWMutex
	name     string
	provider *models.DataProvider
	limiter  *rate.Limiter
	timeout  time.Duration
}

// NewClient builds an unconfigured client; call Configure before use.
// cache may be nil to disable response caching.
func NewClient(store Store, cache domain.Cache, logger *zerolog.Logger) *Client {
	return &Client{
		store:      store,
		cache:      cache,
		httpClient: &http.Client{},
		logger:     logging.Component(logger, "provider"),
		now:        time.Now,
		name:       models.DefaultProviderName,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		timeout:    30 * time.Second,
	}
}

// Configure upserts the provider record from cfg and applies its timeout and
// rate limit. It is safe to call again when the config file changes.
func (c *Client) Configure(ctx context.Context, cfg config.ProviderConfig) error {
	p := &models.DataProvider{
		Name:      cfg.Name,
		BaseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		APIKey:    cfg.APIKey,
		Headers:   map[string]string{cfg.HeaderName: cfg.HeaderTemplate},
		TimeoutMS: int(cfg.Timeout / time.Millisecond),
		IsActive:  strings.TrimSpace(cfg.APIKey) != "",
	}
	if p.Name == "" {
		p.Name = models.DefaultProviderName
	}

	stored, err := c.store.EnsureProvider(ctx, p)
	if err != nil {
		return fmt.Errorf("failed to save provider: %w", err)
	}

	limit := rate.Inf
	if cfg.RateLimitRPS > 0 {
		limit = rate.Limit(cfg.RateLimitRPS)
	}
	burst := cfg.RateLimitBurst
	if burst < 1 {
		burst = 1
	}

	c.mu.Lock()
	c.name = stored.Name
	c.provider = stored
	c.limiter = rate.NewLimiter(limit, burst)
	if cfg.Timeout > 0 {
		c.timeout = cfg.Timeout
	}
	c.mu.Unlock()

	metrics.SetProviderHealth(stored.HealthScore)
	c.logger.Info().
		Str("provider", stored.Name).
		Bool("configured", stored.Configured()).
		Msg("provider configured")
	return nil
}

// Reload re-reads the provider record, picking up counter and key changes.
func (c *Client) Reload(ctx context.Context) (*models.DataProvider, error) {
	c.mu.RLock()
	name := c.name
	c.mu.RUnlock()

	p, err := c.store.GetProviderByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to reload provider %s: %w", name, err)
	}

	c.mu.Lock()
	c.provider = p
	c.mu.Unlock()

	metrics.SetProviderHealth(p.HealthScore)
	return p, nil
}

func (c *Client) snapshot() (*models.DataProvider, *rate.Limiter, time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.provider, c.limiter, c.timeout
}

// Request returns the provider envelope for endpoint and params, serving from
// cache within the endpoint TTL and collapsing concurrent identical calls.
// The returned envelope may be shared between callers and must not be mutated.
func (c *Client) Request(ctx context.Context, endpoint string, params map[string]string) (*Envelope, error) {
	endpoint = normalizeEndpoint(endpoint)

	p, limiter, timeout := c.snapshot()
	if !p.Configured() {
		c.logger.Debug().Str("endpoint", endpoint).Msg("provider not configured, returning empty response")
		return EmptyEnvelope(endpoint), nil
	}

	ttl := TTL(endpoint, params)
	key := CacheKey(endpoint, params)

	if ttl > 0 {
		if env, ok := c.cached(ctx, key); ok {
			return env, nil
		}
	}

	ch := c.flight.DoChan(key, func() (any, error) {
		// The shared call outlives any single caller's cancellation.
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		if ttl > 0 {
			if env, ok := c.cached(callCtx, key); ok {
				return env, nil
			}
		}
		env, err := c.fetch(callCtx, p, limiter, endpoint, params)
		if err != nil {
			return env, err
		}
		if ttl > 0 && c.cache != nil {
			if err := c.cache.SetJSON(callCtx, key, env, ttl); err != nil {
				c.logger.Warn().Err(err).Str("key", key).Msg("failed to cache response")
			}
		}
		return env, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		env, _ := res.Val.(*Envelope)
		return env, res.Err
	}
}

func (c *Client) cached(ctx context.Context, key string) (*Envelope, bool) {
	if c.cache == nil {
		return nil, false
	}
	var env Envelope
	found, err := c.cache.GetJSON(ctx, key, &env)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache lookup failed")
		return nil, false
	}
	metrics.IncCache(found)
	if !found {
		return nil, false
	}
	return &env, true
}

// fetch performs one network call and records its outcome.
func (c *Client) fetch(ctx context.Context, p *models.DataProvider, limiter *rate.Limiter, endpoint string, params map[string]string) (*Envelope, error) {
	if err := limiter.Wait(ctx); err != nil {
		return nil, &RequestError{Endpoint: endpoint, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	fullURL := p.BaseURL + endpoint
	if encoded := values.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	headers := p.RenderHeaders()
	reqLog := &models.APIRequestLog{
		ProviderID: p.ID,
		Endpoint:   endpoint,
		Params:     params,
		Headers:    redactHeaders(headers),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, &RequestError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	start := c.now()
	resp, err := c.httpClient.Do(req)
	var body []byte
	if err == nil {
		reqLog.StatusCode = resp.StatusCode
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()
	}
	elapsed := c.now().Sub(start)
	reqLog.DurationMS = elapsed.Milliseconds()

	logCall := func(ev *zerolog.Event) {
		ev.Str("endpoint", endpoint).
			Int("status", reqLog.StatusCode).
			Int64("duration_ms", reqLog.DurationMS).
			Msg("provider request")
	}

	var reqErr *RequestError
	switch {
	case err != nil:
		reqErr = &RequestError{Endpoint: endpoint, Err: err}
	case resp.StatusCode != http.StatusOK:
		reqErr = &RequestError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	var env *Envelope
	if reqErr == nil {
		env, err = parseEnvelope(body)
		if err != nil {
			reqErr = &RequestError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
		}
	}
	reqLog.ResponseBody = capBody(body)

	if reqErr != nil {
		logCall(c.logger.Error().Err(reqErr))
		reqLog.ErrorMessage = reqErr.Error()
		c.recordFailure(ctx, p, true, reqLog)
		metrics.ObserveProviderRequest(endpoint, "error", elapsed.Seconds())
		return nil, reqErr
	}

	if soft := classifySoftError(endpoint, env.Errors); soft != nil {
		logCall(c.logger.Error().Err(soft).Str("kind", string(soft.Kind)))
		reqLog.ErrorMessage = soft.Error()
		c.recordFailure(ctx, p, false, reqLog)
		metrics.ObserveProviderRequest(endpoint, "soft_error", elapsed.Seconds())
		return env, soft
	}

	logCall(c.logger.Info())
	reqLog.Success = true
	if err := c.store.RecordProviderSuccess(ctx, p.ID, c.now()); err != nil {
		c.logger.Warn().Err(err).Msg("failed to record provider usage")
	}
	c.saveLog(ctx, reqLog)
	metrics.ObserveProviderRequest(endpoint, "ok", elapsed.Seconds())
	return env, nil
}

func (c *Client) recordFailure(ctx context.Context, p *models.DataProvider, hard bool, reqLog *models.APIRequestLog) {
	if err := c.store.RecordProviderFailure(ctx, p.ID, hard, c.now()); err != nil {
		c.logger.Warn().Err(err).Msg("failed to record provider failure")
	}
	c.saveLog(ctx, reqLog)
}

func (c *Client) saveLog(ctx context.Context, reqLog *models.APIRequestLog) {
	reqLog.CreatedAt = c.now().UTC()
	if err := c.store.CreateRequestLog(ctx, reqLog); err != nil {
		c.logger.Warn().Err(err).Str("endpoint", reqLog.Endpoint).Msg("failed to save request log")
	}
}

// InvalidateCache drops cached provider responses whose key starts with
// prefix. An empty prefix drops all of them.
func (c *Client) InvalidateCache(ctx context.Context, prefix string) (int, error) {
	if c.cache == nil {
		return 0, nil
	}
	if !strings.HasPrefix(prefix, models.CachePrefixAPI) {
		prefix = models.CachePrefixAPI + prefix
	}
	n, err := c.cache.DeletePrefix(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate %s: %w", prefix, err)
	}
	c.logger.Info().Str("prefix", prefix).Int("deleted", n).Msg("cache invalidated")
	return n, nil
}
