// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package http

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"reflect"
	"runtime"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wneessen/waybar-location/internal/logger"
)

const (
	// DefaultTimeout is the default timeout value for the HTTPClient
	DefaultTimeout = time.Second * 10
	// MaxRetryAfter caps the pause a server can request with a Retry-After header
	MaxRetryAfter = time.Minute * 10
)

var (
	// version is the version of the application (will be set at build time)
	version = "dev"
	// UserAgent is the User-Agent that the HTTP client sends with API requests. Nominatim's usage
	// policy requires an identifying agent.
	UserAgent = fmt.Sprintf("Mozilla/5.0 (%s; %s) waybar-location/%s (+https://github.com/wneessen/waybar-location/)",
		runtime.GOOS,
		runtime.GOARCH,
		version,
	)

	ErrNonPointerTarget = errors.New("target must be a non-nil pointer")
)

// StatusError is returned for responses with an HTTP status of 400 or above.
type StatusError struct {
	StatusCode int
	Status     string
	// RetryAfter is the pause the server asked for, zero if it did not ask
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return "unexpected HTTP status: " + e.Status
}

// Temporary reports whether the request may succeed when repeated later.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Client wraps the stdlib http.Client. Every outgoing request first waits for the client's
// rate limiter. When a server answers with a Retry-After header, all requests of the client
// are held back until that time has passed.
type Client struct {
	*http.Client
	logger  *logger.Logger
	limiter *rate.Limiter

	pauseLock   sync.Mutex
	pausedUntil time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit limits the client to rps requests per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// New returns a new HTTP client. Without options the client is not rate limited.
func New(logger *logger.Logger, opts ...Option) *Client {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	httpTransport := &http.Transport{TLSClientConfig: tlsConfig}
	httpClient := &http.Client{
		Timeout:   DefaultTimeout,
		Transport: httpTransport,
	}
	client := &Client{
		Client:  httpClient,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Get performs a HTTP GET request for the given URL and json-unmarshals the response
// into target
func (h *Client) Get(ctx context.Context, endpoint string, target any, query url.Values, headers map[string]string) (int, error) {
	return h.GetWithTimeout(ctx, endpoint, target, query, headers, DefaultTimeout)
}

// GetWithTimeout performs a HTTP GET request for the given URL and timeout and JSON-unmarshals
// the response into target
func (h *Client) GetWithTimeout(ctx context.Context, endpoint string, target any, query url.Values, headers map[string]string, timeout time.Duration) (int, error) {
	reqURL, err := url.Parse(endpoint)
	if err != nil {
		return 0, fmt.Errorf("failed to parse URL: %w", err)
	}
	if len(query) > 0 {
		reqURL.RawQuery = query.Encode()
	}
	return h.do(ctx, http.MethodGet, reqURL.String(), target, nil, headers, timeout)
}

// Post performs a HTTP POST request for the given URL and json-unmarshals the response
// into target
func (h *Client) Post(ctx context.Context, url string, target any, body io.Reader, headers map[string]string) (int, error) {
	return h.PostWithTimeout(ctx, url, target, body, headers, DefaultTimeout)
}

// PostWithTimeout performs a HTTP POST request for the given URL and timeout and JSON-unmarshals
// the response into target
func (h *Client) PostWithTimeout(ctx context.Context, url string, target any, body io.Reader, headers map[string]string, timeout time.Duration) (int, error) {
	return h.do(ctx, http.MethodPost, url, target, body, headers, timeout)
}

func (h *Client) do(ctx context.Context, method, endpoint string, target any, body io.Reader, headers map[string]string, timeout time.Duration) (int, error) {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return 0, ErrNonPointerTarget
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := h.waitForPause(ctx); err != nil {
		return 0, fmt.Errorf("waiting for retry-after: %w", err)
	}
	if err := h.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, fmt.Errorf("failed create new HTTP request with context: %w", err)
	}
	request.Header.Set("User-Agent", UserAgent)
	for k, v := range headers {
		request.Header.Set(k, v)
	}

	response, err := h.Do(request)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	if response == nil {
		return 0, errors.New("nil response received")
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			h.logger.Error("failed to close HTTP request body", logger.Err(err))
		}
	}(response.Body)

	if response.StatusCode >= http.StatusBadRequest {
		statusErr := &StatusError{
			StatusCode: response.StatusCode,
			Status:     response.Status,
			RetryAfter: parseRetryAfter(response.Header.Get("Retry-After"), time.Now()),
		}
		if statusErr.RetryAfter > 0 {
			h.logger.Warn("server requested a pause", slog.String("endpoint", endpoint),
				slog.Duration("retry_after", statusErr.RetryAfter))
			h.pauseFor(statusErr.RetryAfter)
		}
		return response.StatusCode, statusErr
	}
	if err = json.NewDecoder(response.Body).Decode(target); err != nil {
		return response.StatusCode, fmt.Errorf("failed to decode JSON: %w", err)
	}

	return response.StatusCode, nil
}

func (h *Client) pauseFor(wait time.Duration) {
	h.pauseLock.Lock()
	defer h.pauseLock.Unlock()
	if until := time.Now().Add(wait); until.After(h.pausedUntil) {
		h.pausedUntil = until
	}
}

func (h *Client) waitForPause(ctx context.Context) error {
	h.pauseLock.Lock()
	wait := time.Until(h.pausedUntil)
	h.pauseLock.Unlock()
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func parseRetryAfter(val string, now time.Time) time.Duration {
	if val == "" {
		return 0
	}
	var wait time.Duration
	if secs, err := strconv.Atoi(val); err == nil {
		wait = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(val); err == nil {
		wait = at.Sub(now)
	}
	return min(max(wait, 0), MaxRetryAfter)
}
