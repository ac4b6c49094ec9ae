// Package notification announces received AS2 messages to an external HTTP
// endpoint with bounded, exponentially backed-off retries.
package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/telhawk-systems/as2hooks/common/signing"
	"github.com/telhawk-systems/as2hooks/internal/models"
)

// HeaderDeliveryID is constant across the retries of one notification so
// receivers can drop duplicates.
const HeaderDeliveryID = "X-Delivery-ID"

// Channel delivers one serialized payload.
type Channel interface {
	Send(ctx context.Context, deliveryID string, body []byte) error
	Type() string
}

// WebhookChannel POSTs JSON payloads to a fixed URL.
type WebhookChannel struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
	signer    *signing.Signer
	client    *http.Client
}

// NewWebhookChannel creates a webhook channel. timeout bounds both the TCP
// connect and the full request. A nil signer disables X-Signature.
func NewWebhookChannel(url, userAgent string, timeout time.Duration, signer *signing.Signer) *WebhookChannel {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}).DialContext

	return &WebhookChannel{
		URL:       url,
		UserAgent: userAgent,
		Timeout:   timeout,
		signer:    signer,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// Type names the channel kind for logs.
func (w *WebhookChannel) Type() string {
	return "webhook"
}

// Send performs one attempt. A non-2xx status yields *models.RejectedError;
// any other error is a transport failure.
func (w *WebhookChannel) Send(ctx context.Context, deliveryID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", w.UserAgent)
	req.Header.Set(HeaderDeliveryID, deliveryID)
	if w.signer != nil {
		req.Header.Set(signing.HeaderSignature, w.signer.Sign(body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &models.RejectedError{StatusCode: resp.StatusCode}
	}
	return nil
}

// LogChannel writes notifications to a log function instead of the network.
type LogChannel struct {
	logger func(format string, v ...any)
}

// NewLogChannel creates a log-based channel for dry runs.
func NewLogChannel(logger func(format string, v ...any)) *LogChannel {
	return &LogChannel{logger: logger}
}

// Type names the channel kind for logs.
func (l *LogChannel) Type() string {
	return "log"
}

// Send prints the delivery ID and body instead of sending them.
func (l *LogChannel) Send(_ context.Context, deliveryID string, body []byte) error {
	l.logger("NOTIFICATION %s: %s", deliveryID, body)
	return nil
}
