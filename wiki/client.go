package wiki

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config tunes the upstream HTTP client. Zero values fall back to the
// defaults below.
type Config struct {
	// BaseURL is the Action API endpoint, e.g.
	// "https://en.wikipedia.org/w/api.php".
	BaseURL string

	// UserAgent identifies wikiatlas to the Wikimedia APIs, which require
	// a descriptive agent string.
	UserAgent string

	// Timeout is the hard per-request upper bound, independent of retries
	// and of caller cancellation.
	Timeout time.Duration

	// MaxAttempts is the total attempt budget per request (first try
	// included). After it is exhausted the request fails with
	// ErrUpstreamUnavailable.
	MaxAttempts int

	// RateLimit/RateBurst throttle outbound calls so bursts of cache
	// misses cannot hammer the upstream service.
	RateLimit rate.Limit
	RateBurst int

	Logger zerolog.Logger
}

const (
	defaultBaseURL     = "https://en.wikipedia.org/w/api.php"
	defaultUserAgent   = "wikiatlas/1.0 (https://github.com/mkorolev/wikiatlas)"
	defaultTimeout     = 8 * time.Second
	defaultMaxAttempts = 4

	// Backoff shape: rate-limited responses wait longer each attempt,
	// other transient failures retry after a short fixed pause.
	rateLimitedWait = 1 * time.Second
	transientWait   = 500 * time.Millisecond

	// maxResponseBytes caps how much of an upstream body is read.
	maxResponseBytes = 8 << 20
)

// Client is a rate-limited, retrying HTTP client for the Wikipedia
// Action API. Safe for concurrent use.
type Client struct {
	inner   *retryablehttp.Client
	base    string
	ua      string
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewClient builds a Client from cfg, applying defaults for unset fields.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 5
	}

	r := retryablehttp.NewClient()
	r.RetryMax = cfg.MaxAttempts - 1
	r.HTTPClient.Timeout = cfg.Timeout
	r.Logger = retryLogger{log: cfg.Logger}
	r.CheckRetry = checkRetry
	r.Backoff = backoff

	return &Client{
		inner:   r,
		base:    cfg.BaseURL,
		ua:      cfg.UserAgent,
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		log:     cfg.Logger,
	}
}

// checkRetry retries rate-limited (429) responses, server errors, and
// network-level failures. Other statuses fail immediately: a 4xx is the
// request's fault and repeating it cannot help.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return true, nil
	}
	return false, nil
}

// backoff waits linearly longer per attempt after a 429 (the upstream asked
// us to slow down) and a short fixed pause after anything else retryable.
func backoff(_, _ time.Duration, attemptNum int, resp *http.Response) time.Duration {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		return time.Duration(attemptNum+1) * rateLimitedWait
	}
	return transientWait
}

// get performs one logical GET against the Action API with the query
// values applied, returning the response body. All transport-level detail
// is folded into ErrUpstreamUnavailable.
func (c *Client) get(ctx context.Context, q url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q.Set("format", "json")
	u := c.base + "?" + q.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("wiki: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.ua)

	resp, err := c.inner.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstreamUnavailable, err)
	}
	return body, nil
}

// retryLogger adapts zerolog to retryablehttp.LeveledLogger.
type retryLogger struct{ log zerolog.Logger }

func (l retryLogger) Error(msg string, kv ...interface{}) { l.emit(l.log.Error(), msg, kv) }
func (l retryLogger) Warn(msg string, kv ...interface{})  { l.emit(l.log.Warn(), msg, kv) }
func (l retryLogger) Info(msg string, kv ...interface{})  { l.emit(l.log.Debug(), msg, kv) }
func (l retryLogger) Debug(msg string, kv ...interface{}) { l.emit(l.log.Debug(), msg, kv) }

func (l retryLogger) emit(e *zerolog.Event, msg string, kv []interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			e = e.Interface(k, kv[i+1])
		}
	}
	e.Msg(msg)
}

var _ retryablehttp.LeveledLogger = retryLogger{}
