// Package notify posts finished-recording notices to an HTTP webhook.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"eufy-bridge/pkg/models"
)

// EventRecordingFinished is the event name carried in every notice.
const EventRecordingFinished = "recording.finished"

const defaultTimeout = 10 * time.Second

type WebhookConfig struct {
	URL string
	// Cooldown is the minimum interval between notices for the same camera.
	Cooldown time.Duration
	Timeout  time.Duration
}

// Webhook sends RecordingNotice bodies as JSON.
type Webhook struct {
	HTTP     *resty.Client
	url      string
	cooldown time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewWebhook(cfg WebhookConfig) (*Webhook, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if cfg.Cooldown < 0 {
		return nil, fmt.Errorf("webhook cooldown must be non-negative")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	r := resty.New()
	r.SetHeader("Content-Type", "application/json")
	r.SetHeader("Accept", "application/json")
	r.SetTimeout(timeout)

	return &Webhook{
		HTTP:     r,
		url:      cfg.URL,
		cooldown: cfg.Cooldown,
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}, nil
}

// Notify posts a notice for rec unless one was sent for the same camera
// within the cooldown. Skipped notices return nil.
func (w *Webhook) Notify(ctx context.Context, rec models.Recording) error {
	key := rec.Serial
	now := w.now()
	if !w.shouldSend(key, now) {
		return nil
	}

	notice := models.RecordingNotice{
		Event:     EventRecordingFinished,
		Recording: rec,
		Seconds:   rec.Duration().Seconds(),
	}
	resp, err := w.HTTP.R().
		SetContext(ctx).
		SetBody(notice).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("post notice: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned %s: %s", resp.Status(), strings.TrimSpace(resp.String()))
	}

	w.markSent(key, now)
	return nil
}

func (w *Webhook) shouldSend(key string, now time.Time) bool {
	if w.cooldown == 0 {
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	last, ok := w.lastSent[key]
	return !ok || now.Sub(last) >= w.cooldown
}

func (w *Webhook) markSent(key string, now time.Time) {
	w.mu.Lock()
	w.lastSent[key] = now
	w.mu.Unlock()
}
