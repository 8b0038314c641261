package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"x402-subscriptions/internal/config"
	"x402-subscriptions/internal/domain/ports/adapter"
	"x402-subscriptions/internal/infra/logging"
	"x402-subscriptions/internal/infra/metrics"
	"x402-subscriptions/internal/infra/worker"
)

var _ adapter.Notifier = (*Sender)(nil)

// Submitter is the part of worker.Pool the sender needs.
type Submitter interface {
	Submit(task worker.Task) error
}

// payload is the JSON body POSTed to a provider.
type payload struct {
	ID             string    `json:"id"`
	Event          string    `json:"event"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	ServiceID      string    `json:"service_id,omitempty"`
	Data           any       `json:"data,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Sender delivers provider webhooks in the background. A failed delivery is
// logged and counted, never retried.
type Sender struct {
	client    *http.Client
	pool      Submitter
	userAgent string
	timeout   time.Duration
	log       *zerolog.Logger
}

func NewSender(cfg config.WebhookConfig, client *http.Client, pool Submitter, logger *zerolog.Logger) *Sender {
	if client == nil {
		client = &http.Client{}
	}
	l := logger.With().Str("component", "WebhookSender").Logger()
	return &Sender{client: client, pool: pool, userAgent: cfg.UserAgent, timeout: cfg.Timeout, log: &l}
}

func (s *Sender) Notify(ctx context.Context, webhookURL string, ev adapter.Event) {
	if webhookURL == "" {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(payload{
		ID:             ulid.Make().String(),
		Event:          string(ev.Type),
		SubscriptionID: ev.SubscriptionID,
		UserID:         ev.UserID,
		ServiceID:      ev.ServiceID,
		Data:           ev.Data,
		Timestamp:      ev.Timestamp,
	})
	if err != nil {
		metrics.IncWebhook(string(ev.Type), "error")
		s.log.Error().Err(err).Str("event", string(ev.Type)).Msg("encode webhook")
		return
	}
	traceID := logging.TraceID(ctx)

	err = s.pool.Submit(func(ctx context.Context) error {
		return s.deliver(ctx, webhookURL, string(ev.Type), traceID, body)
	})
	if err != nil {
		metrics.IncWebhook(string(ev.Type), "dropped")
		lg := logging.With(ctx, s.log)
		lg.Warn().Err(err).Str("event", string(ev.Type)).Msg("webhook dropped")
	}
}

func (s *Sender) deliver(ctx context.Context, url, event, traceID string, body []byte) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		metrics.IncWebhook(event, "error")
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", event)
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	if traceID != "" {
		req.Header.Set("X-Request-ID", traceID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		metrics.IncWebhook(event, "error")
		return fmt.Errorf("deliver %s webhook: %w", event, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.IncWebhook(event, "rejected")
		return fmt.Errorf("deliver %s webhook: provider answered %d", event, resp.StatusCode)
	}
	metrics.IncWebhook(event, "delivered")
	s.log.Debug().Str("event", event).Str("trace_id", traceID).Msg("webhook delivered")
	return nil
}
