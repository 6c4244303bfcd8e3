// internal/notify/notify.go
//
// Fire-and-forget game notifications.
//
// Roll and proof outcomes are posted as {"content": "..."} JSON to a
// webhook (a per-game URL, else the process default). Delivery runs on its
// own goroutine with its own deadline; failures are logged and dropped so a
// slow or broken sink never affects the request that triggered it.

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

// Notifier delivers a message to a webhook. Send must not block the caller.
type Notifier interface {
	Send(url, content string)
}

// Noop discards every message.
type Noop struct{}

func (Noop) Send(string, string) {}

// Message is the webhook body.
type Message struct {
	Content string `json:"content"`
}

// Webhook posts messages with a fasthttp client.
type Webhook struct {
	http       *fasthttp.Client
	defaultURL string
	timeout    time.Duration
	wg         sync.WaitGroup
}

// Option configures a Webhook.
type Option func(*Webhook)

// WithTimeout bounds each delivery.
func WithTimeout(d time.Duration) Option {
	return func(w *Webhook) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// NewWebhook returns a Webhook that falls back to defaultURL when Send gets none.
func NewWebhook(defaultURL string, opts ...Option) *Webhook {
	w := &Webhook{
		http:       &fasthttp.Client{ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second, MaxConnsPerHost: 16},
		defaultURL: strings.TrimSpace(defaultURL),
		timeout:    5 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Send schedules delivery of content and returns immediately.
func (w *Webhook) Send(url, content string) {
	target := strings.TrimSpace(url)
	if target == "" {
		target = w.defaultURL
	}
	if target == "" || strings.TrimSpace(content) == "" {
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		if err := w.post(ctx, target, content); err != nil {
			log.Warn().Err(err).Str("url", redact(target)).Msg("webhook delivery failed")
		}
	}()
}

// Wait blocks until in-flight deliveries finish. Used on shutdown and in tests.
func (w *Webhook) Wait() { w.wg.Wait() }

func (w *Webhook) post(ctx context.Context, url, content string) error {
	payload, err := json.Marshal(Message{Content: content})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(url)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	deadline := time.Now().Add(w.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := w.http.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if status := resp.StatusCode(); status < 200 || status >= 300 {
		return fmt.Errorf("webhook status=%d", status)
	}
	return nil
}

// redact keeps scheme and host; webhook paths usually embed a secret.
func redact(url string) string {
	rest := url
	scheme := ""
	if i := strings.Index(url, "://"); i >= 0 {
		scheme, rest = url[:i+3], url[i+3:]
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return scheme + rest
}
