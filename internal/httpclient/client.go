// Package httpclient provides a centralized HTTP client factory with preset
// configurations for the gateway's outbound calls, plus bounded retry for
// transient failures.
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
)

// Preset timeout durations for the gateway's outbound call classes.
const (
	// AuthTimeout bounds auth provider lookups; they gate every request.
	AuthTimeout = 10 * time.Second

	// NotifyTimeout bounds fire-and-forget notification deliveries.
	NotifyTimeout = 10 * time.Second

	// BackendTimeout bounds non-transfer backend calls. Transfer calls are
	// bounded by inactivity instead of total duration and use no client
	// timeout.
	BackendTimeout = 100 * time.Second
)

// retryAttempts bounds transient-failure retries per logical call.
const retryAttempts = 3

// Options configures an HTTP client.
type Options struct {
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Option is a functional option for configuring HTTP clients.
type Option func(*Options)

// WithTimeout sets the client timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithTransport sets a custom transport.
func WithTransport(t http.RoundTripper) Option {
	return func(o *Options) {
		o.Transport = t
	}
}

// New creates a new HTTP client with the given options.
func New(opts ...Option) *http.Client {
	cfg := &Options{
		Timeout: BackendTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
	}
	if cfg.Transport != nil {
		client.Transport = cfg.Transport
	}
	return client
}

// NewAuth creates the client for auth provider calls.
func NewAuth() *http.Client {
	return New(WithTimeout(AuthTimeout))
}

// NewNotify creates the client for notification deliveries.
func NewNotify() *http.Client {
	return New(WithTimeout(NotifyTimeout))
}

// NewBackend creates the client for non-transfer backend calls.
func NewBackend() *http.Client {
	return New(WithTimeout(BackendTimeout))
}

// NewTransfer creates the client for streaming transfers; no total timeout,
// callers bound it by inactivity.
func NewTransfer() *http.Client {
	return New(WithTimeout(0))
}

// DoWithRetry performs a request with bounded exponential backoff on
// transport errors and 5xx answers other than 501 Not Implemented. makeReq builds a fresh request per
// attempt; handle consumes the terminal response and its error is returned
// without further retries. The response body is closed in all cases.
func DoWithRetry(ctx context.Context, client *http.Client, makeReq func(ctx context.Context) (*http.Request, error), handle func(resp *http.Response) error) error {
	return retry.Do(
		func() error {
			req, err := makeReq(ctx)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode >= http.StatusInternalServerError && resp.StatusCode != http.StatusNotImplemented {
				return fmt.Errorf("upstream answered %d", resp.StatusCode)
			}
			if err := handle(resp); err != nil {
				return retry.Unrecoverable(err)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(retryAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}
