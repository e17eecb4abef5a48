// Package httpclient builds the outbound HTTP client shared by the phishing
// list fetcher, the headless page loader and the chain RPC client: resty on
// top of a retrying transport, a token bucket, and a circuit breaker.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/dappbridge/internal/infrastructure/resilience"
)

// ErrUnavailable is returned while the breaker for an upstream is open.
var ErrUnavailable = errors.New("upstream unavailable")

// Options configures a Client.
type Options struct {
	Name      string
	Timeout   time.Duration
	Retries   int
	MinWait   time.Duration
	MaxWait   time.Duration
	UserAgent string
	// RequestsPerSecond <= 0 disables client-side throttling.
	RequestsPerSecond float64
	Breaker           resilience.Settings
	Logger            *zap.Logger
}

// DefaultOptions returns options suitable for a small JSON upstream.
func DefaultOptions(name string) Options {
	return Options{
		Name:      name,
		Timeout:   15 * time.Second,
		Retries:   2,
		MinWait:   250 * time.Millisecond,
		MaxWait:   2 * time.Second,
		UserAgent: "dappbridge/1.0",
		Breaker: resilience.Settings{
			MaxRequests: 2,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts resilience.Counts) bool {
				return counts.ConsecutiveFailures >= 5 ||
					(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.5)
			},
		},
	}
}

// Client wraps resty with rate limiting and a circuit breaker.
type Client struct {
	Resty   *resty.Client
	Limiter *rate.Limiter
	Breaker *resilience.Breaker
}

// New creates a client from opts.
func New(opts Options) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.Retries
	retryClient.RetryWaitMin = opts.MinWait
	retryClient.RetryWaitMax = opts.MaxWait
	retryClient.Logger = nil
	// Hand the final 5xx back to resty instead of a "giving up" error so
	// the breaker sees the status code.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if opts.Logger != nil {
		retryClient.Logger = leveledLogger{opts.Logger.Named("retry").Sugar()}
	}

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		Resty:   restyClient,
		Limiter: limiter,
		Breaker: resilience.New(opts.Name, opts.Breaker),
	}
}

// Request creates a request bound to ctx once the limiter admits it.
func (c *Client) Request(ctx context.Context) (*resty.Request, error) {
	if c.Breaker.State() == resilience.StateOpen {
		return nil, fmt.Errorf("%s: %w", c.Breaker.Name(), ErrUnavailable)
	}
	if err := c.Limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}
	return c.Resty.R().SetContext(ctx), nil
}

// Do sends a request through the breaker. Transport errors and 5xx
// responses count against the upstream; 4xx responses do not.
func (c *Client) Do(ctx context.Context, send func(*resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	req, err := c.Request(ctx)
	if err != nil {
		return nil, err
	}

	var resp *resty.Response
	err = c.Breaker.Run(ctx, func(ctx context.Context) error {
		var sendErr error
		resp, sendErr = send(req)
		if sendErr != nil {
			return sendErr
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return &StatusError{Code: resp.StatusCode()}
		}
		return nil
	})

	switch {
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		return nil, fmt.Errorf("%s: %w", c.Breaker.Name(), ErrUnavailable)
	case err != nil:
		return resp, err
	}
	return resp, nil
}

// StatusError reports an upstream 5xx.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Code)
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
