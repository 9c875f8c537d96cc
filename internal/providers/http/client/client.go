package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/chatgate/internal/infrastructure/resilience"
)

// StatusError is returned by Execute for responses the site rejected
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("site responded %s", e.Status)
}

// Config configures a Client
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// Retries applies to GET and HEAD only
	Retries int
	MinWait time.Duration
	MaxWait time.Duration
	// RPS limits requests per second; zero means unlimited
	RPS float64
	// Breaker guards calls; a private breaker is created when nil
	Breaker *resilience.Breaker
}

// Client wraps resty with rate limiting, a circuit breaker and a cookie jar
type Client struct {
	Resty   *resty.Client
	Limiter *rate.Limiter
	Breaker *resilience.Breaker
	Mu      sync.RWMutex
}

// New creates a site client with its own cookie jar
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MinWait <= 0 {
		cfg.MinWait = time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "chatgate/1.0"
	}

	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil

	restyClient := resty.New()
	restyClient.
		SetTransport(retryClient.HTTPClient.Transport).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(cfg.MinWait).
		SetRetryMaxWaitTime(cfg.MaxWait).
		AddRetryCondition(retryIdempotent).
		SetHeader("User-Agent", cfg.UserAgent)
	if cfg.BaseURL != "" {
		restyClient.SetBaseURL(cfg.BaseURL)
	}

	c := &Client{
		Resty:   restyClient,
		Limiter: newLimiter(cfg.RPS),
		Breaker: cfg.Breaker,
	}
	if c.Breaker == nil {
		c.Breaker = resilience.New("http-site", resilience.Settings{
			MaxRequests: 2,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts resilience.Counts) bool {
				return counts.ConsecutiveFailures >= 10 ||
					(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.7)
			},
		})
	}
	c.ResetCookies()
	return c
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func retryIdempotent(resp *resty.Response, err error) bool {
	if resp == nil || resp.Request == nil {
		return false
	}
	switch resp.Request.Method {
	case http.MethodGet, http.MethodHead:
	default:
		return false
	}
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	code := resp.StatusCode()
	return code == http.StatusTooManyRequests || code >= 500
}

// ResetCookies replaces the cookie jar with an empty one
func (c *Client) ResetCookies() {
	jar, _ := cookiejar.New(nil)
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.SetCookieJar(jar)
}

// SetHeader adds a default header
func (c *Client) SetHeader(key, value string) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.SetHeader(key, value)
}

// SetTimeout configures the per-request timeout
func (c *Client) SetTimeout(d time.Duration) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.SetTimeout(d)
}

// Request creates a request after the breaker and rate limiter admit it
func (c *Client) Request(ctx context.Context) (*resty.Request, error) {
	if !c.Breaker.Allow() {
		return nil, resilience.ErrCircuitOpen
	}
	return c.newRequest(ctx)
}

func (c *Client) newRequest(ctx context.Context) (*resty.Request, error) {
	if err := c.Limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	c.Mu.RLock()
	defer c.Mu.RUnlock()
	return c.Resty.R().SetContext(ctx), nil
}

// Execute runs fn through the circuit breaker. Responses with status 401,
// 403, 429 or 5xx are returned together with a *StatusError and count as
// breaker failures.
func (c *Client) Execute(ctx context.Context, fn func(r *resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	var resp *resty.Response
	err := c.Breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := c.newRequest(ctx)
		if err != nil {
			return err
		}
		resp, err = fn(req)
		if err != nil {
			return err
		}
		if rejected(resp.StatusCode()) {
			return &StatusError{Code: resp.StatusCode(), Status: resp.Status()}
		}
		return nil
	})
	return resp, err
}

func rejected(code int) bool {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	}
	return false
}

// BreakerState returns the current circuit breaker state
func (c *Client) BreakerState() resilience.State {
	return c.Breaker.State()
}

// BreakerCounts returns circuit breaker statistics
func (c *Client) BreakerCounts() resilience.Counts {
	return c.Breaker.Counts()
}
