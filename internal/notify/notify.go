// Package notify delivers fire-and-forget events after successful mutating
// actions. Delivery failures never affect the request that triggered them.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/floodgatehq/floodgate/internal/auth"
	"github.com/floodgatehq/floodgate/internal/httpclient"
	"github.com/sourcegraph/conc"
)

// Event describes one successful mutation.
type Event struct {
	Action   string        `json:"action"`
	Resource string        `json:"resource"`
	Provider string        `json:"provider"`
	Path     string        `json:"path"`
	Metadata any           `json:"metadata,omitempty"`
	Identity auth.Identity `json:"identity"`
	Time     time.Time     `json:"time"`
}

// Notifier is called after any successful mutating action. Implementations
// must tolerate failure silently.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Noop discards all events.
type Noop struct{}

func (Noop) Notify(ctx context.Context, event Event) {}

// Webhook posts events as JSON to a configured URL on a background
// goroutine. The request context's cancellation is honoured (a disconnected
// client abandons the delivery); its deadline is not, since the response has
// already been sent.
type Webhook struct {
	url    string
	client *http.Client
	logger *slog.Logger
	wg     conc.WaitGroup
}

// NewWebhook creates a webhook notifier targeting url.
func NewWebhook(url string, logger *slog.Logger) *Webhook {
	return &Webhook{
		url:    url,
		client: httpclient.NewNotify(),
		logger: logger,
	}
}

func (w *Webhook) Notify(ctx context.Context, event Event) {
	// Detach from the request deadline but keep its cancellation.
	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), httpclient.NotifyTimeout)
	w.wg.Go(func() {
		defer cancel()
		stop := context.AfterFunc(ctx, func() {
			if errors.Is(ctx.Err(), context.Canceled) {
				cancel()
			}
		})
		defer stop()
		w.deliver(deliverCtx, event)
	})
}

func (w *Webhook) deliver(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		w.logger.Error("encode notification failed", "err", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		w.logger.Error("build notification request failed", "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("notification delivery failed",
			"action", event.Action,
			"resource", event.Resource,
			"err", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		w.logger.Warn("notification rejected",
			"action", event.Action,
			"resource", event.Resource,
			"status", resp.StatusCode)
	}
}

// Wait blocks until in-flight deliveries finish; used on shutdown and in
// tests.
func (w *Webhook) Wait() {
	w.wg.Wait()
}
