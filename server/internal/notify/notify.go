package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/obsidianstack/teamprofiles/server/internal/config"
)

const deliveryTimeout = 10 * time.Second

// Event describes one invalidation.
type Event struct {
	Keys   []string  `json:"keys"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Notifier fans invalidation events out to the configured webhooks.
type Notifier struct {
	webhooks []config.WebhookConfig
	client   *http.Client
	wg       sync.WaitGroup
}

// New creates a Notifier for webhooks. A nil client uses a default one.
func New(webhooks []config.WebhookConfig, client *http.Client) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: deliveryTimeout}
	}
	return &Notifier{webhooks: webhooks, client: client}
}

// Invalidated queues delivery of an event for keys. It returns immediately.
func (n *Notifier) Invalidated(keys []string, reason string) {
	if len(n.webhooks) == 0 {
		return
	}
	ev := Event{Keys: keys, Reason: reason, At: time.Now().UTC()}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliver(ev)
	}()
}

// Wait blocks until every queued delivery has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) deliver(ev Event) {
	for _, wh := range n.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = n.sendSlack(url, ev)
		case "teams":
			err = n.sendTeams(url, ev)
		case "http":
			err = n.sendHTTP(url, ev)
		default:
			slog.Warn("notify: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			slog.Error("notify: webhook delivery failed", "type", wh.Type, "reason", ev.Reason, "err", err)
		} else {
			slog.Debug("notify: webhook delivered", "type", wh.Type, "reason", ev.Reason, "keys", len(ev.Keys))
		}
	}
}

func summary(ev Event) string {
	return fmt.Sprintf("Team listing refreshed (%s): %s", ev.Reason, strings.Join(ev.Keys, ", "))
}

func (n *Notifier) sendSlack(url string, ev Event) error {
	body, _ := json.Marshal(map[string]string{"text": summary(ev)})
	return n.post(url, body)
}

func (n *Notifier) sendTeams(url string, ev Event) error {
	body, _ := json.Marshal(map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": "00D4FF",
		"summary":    "Team listing refreshed",
		"title":      "Team profiles cache invalidated",
		"text":       summary(ev),
	})
	return n.post(url, body)
}

func (n *Notifier) sendHTTP(url string, ev Event) error {
	body, _ := json.Marshal(map[string]interface{}{"event": ev})
	return n.post(url, body)
}

func (n *Notifier) post(url string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
