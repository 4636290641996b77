package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-metal/internal/events"
	"github.com/noah-isme/backend-metal/internal/obs"
	"github.com/noah-isme/backend-metal/internal/resilience"
)

// ErrPermanent marks a delivery the intake endpoint refused; retrying will not help.
var ErrPermanent = errors.New("notify: intake rejected delivery")

// Deliverer forwards order events to the intake webhook.
type Deliverer struct {
	URL       string
	Secret    string
	HTTP      *resilience.HTTPClient
	Replay    ReplayProtector
	ReplayTTL time.Duration
	UserAgent string
	Now       func() time.Time
}

// Enabled reports whether a webhook URL is configured.
func (d *Deliverer) Enabled() bool {
	return d != nil && strings.TrimSpace(d.URL) != ""
}

type envelope struct {
	EventID    string          `json:"eventId"`
	Topic      string          `json:"topic"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// Deliver posts ev to the webhook and returns the response status. Events already
// delivered within the replay window are acknowledged without a request.
func (d *Deliverer) Deliver(ctx context.Context, ev events.Event) (int, error) {
	if !d.Enabled() {
		return 0, errors.New("notify: webhook url not configured")
	}
	client := d.HTTP
	if client == nil {
		client = &resilience.HTTPClient{Client: NewHTTPClient(5*time.Second, false), MaxAttempts: 1}
	}
	ctx, span := otel.Tracer("notify.Deliverer").Start(ctx, "Deliverer.Deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("intake.event_id", ev.ID),
		attribute.String("intake.topic", ev.Topic),
	)
	start := time.Now()

	if err := validateURL(d.URL); err != nil {
		span.RecordError(err)
		obs.ObserveWebhook("failed", time.Since(start))
		return 0, fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	body, err := json.Marshal(envelope{
		EventID:    ev.ID,
		Topic:      ev.Topic,
		Data:       ev.Payload,
		OccurredAt: ev.OccurredAt,
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	key := replayKey(ev.ID)
	if d.Replay != nil && d.ReplayTTL > 0 {
		ok, err := d.Replay.Acquire(ctx, key, d.ReplayTTL)
		if err != nil {
			span.RecordError(err)
			return 0, err
		}
		if !ok {
			span.AddEvent("delivery replay prevented")
			obs.ObserveWebhook("suppressed", time.Since(start))
			return http.StatusOK, nil
		}
	}

	status, err := d.post(ctx, client, ev.ID, body)
	if err != nil || status < 200 || status >= 300 {
		if d.Replay != nil && d.ReplayTTL > 0 {
			_ = d.Replay.Release(context.WithoutCancel(ctx), key)
		}
		obs.ObserveWebhook("failed", time.Since(start))
		if err == nil {
			err = fmt.Errorf("%w: status %d", ErrPermanent, status)
		}
		span.RecordError(err)
		return status, err
	}
	obs.ObserveWebhook("delivered", time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", status))
	return status, nil
}

func (d *Deliverer) post(ctx context.Context, client *resilience.HTTPClient, eventID string, body []byte) (int, error) {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	ts := now().Unix()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	agent := d.UserAgent
	if agent == "" {
		agent = "metal-intake/1.0"
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", agent)
	req.Header.Set("X-Event-ID", eventID)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Idempotency-Key", eventID)
	if d.Secret != "" {
		req.Header.Set("X-Signature", ComputeSignature(d.Secret, ts, eventID, body))
	}
	resp, err := client.Do(ctx, req)
	if err != nil {
		var statusErr *resilience.StatusError
		if errors.As(err, &statusErr) {
			return statusErr.Code, err
		}
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return errors.New("webhook url must be http or https")
	}
	if parsed.Host == "" {
		return errors.New("webhook url must include host")
	}
	if parsed.Scheme == "http" {
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" {
			return errors.New("http webhook only allowed for localhost")
		}
	}
	return nil
}

// ComputeSignature calculates the webhook signature: hex HMAC-SHA256 over
// "<ts>.<eventID>.<body>" keyed with the shared secret.
func ComputeSignature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// NewHTTPClient returns a traced HTTP client for webhook delivery.
func NewHTTPClient(timeout time.Duration, insecure bool) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(transport),
	}
}

func replayKey(eventID string) string {
	return "intake:wh:" + eventID
}
