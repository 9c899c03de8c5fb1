package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	EventDocumentSent      = "document.sent"
	EventDocumentSigned    = "document.signed"
	EventDocumentCancelled = "document.cancelled"
	EventDocumentExpired   = "document.expired"
)

type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data"`
}

// Publisher hands lifecycle events to the notification service.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

type HTTPPublisher struct {
	url        string
	secret     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPPublisher(url, secret string, timeout time.Duration) *HTTPPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPPublisher{
		url:        strings.TrimSpace(url),
		secret:     secret,
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default().With("component", "webhooks"),
	}
}

func NewEvent(eventType string, at time.Time, data map[string]any) Event {
	return Event{ID: "evt_" + uuid.NewString(), Type: eventType, OccurredAt: at.UTC(), Data: data}
}

func (p *HTTPPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventIDHeader, ev.ID)
	req.Header.Set(EventTypeHeader, ev.Type)
	if p.secret != "" {
		req.Header.Set(SignatureHeader, Sign(p.secret, body))
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery %s: %w", ev.ID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook delivery %s: status %d", ev.ID, resp.StatusCode)
	}
	p.logger.DebugContext(ctx, "webhook delivered", "event_id", ev.ID, "type", ev.Type)
	return nil
}
