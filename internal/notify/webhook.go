// Package notify forwards alert intents to an external delivery endpoint.
// The engine only emits intents; whether a webhook, SMS gateway, or nothing
// at all sits behind the URL is not its concern.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"

	"github.com/banshee-data/occupancy.report/internal/engine"
	"github.com/banshee-data/occupancy.report/internal/httputil"
)

// WebhookNotifier POSTs each alert intent as JSON to a configured URL.
// Delivery failures are logged and dropped; the alert log in the database
// remains the durable record.
type WebhookNotifier struct {
	url    string
	client httputil.HTTPClient
	logger *log.Logger
}

// NewWebhookNotifier creates a notifier for the given URL. A nil client
// uses the standard http.DefaultClient wrapper; a nil logger uses
// log.Default().
func NewWebhookNotifier(url string, client httputil.HTTPClient, logger *log.Logger) *WebhookNotifier {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &WebhookNotifier{
		url:    url,
		client: client,
		logger: logger,
	}
}

// Deliver sends one intent. Returns an error for the caller to count; the
// engine never sees it.
func (n *WebhookNotifier) Deliver(intent engine.AlertIntent) error {
	payload, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("marshal alert intent: %w", err)
	}

	resp, err := n.client.Post(n.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("post alert intent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliverAll drains a channel of intents until it closes, logging failures.
// Run it as a goroutine over the engine's intent channel.
func (n *WebhookNotifier) DeliverAll(intents <-chan engine.AlertIntent, onDelivered func(engine.AlertIntent)) {
	for intent := range intents {
		if onDelivered != nil {
			onDelivered(intent)
		}
		if n.url == "" {
			continue
		}
		if err := n.Deliver(intent); err != nil {
			n.logger.Printf("notify: room %s count=%d: %v", intent.RoomID, intent.Count, err)
		} else {
			n.logger.Printf("notify: delivered alert for room %s (count=%d, threshold=%d)",
				intent.RoomID, intent.Count, intent.Threshold)
		}
	}
}
