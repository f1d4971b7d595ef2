package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"form-intake/internal/submission"
)

// WebhookEvent represents an event that can trigger a webhook
type WebhookEvent string

const WebhookEventSubmissionCreated WebhookEvent = "submission.created"

// WebhookPayload represents the data sent to webhook endpoints
type WebhookPayload struct {
	Event     WebhookEvent          `json:"event"`
	Timestamp time.Time             `json:"timestamp"`
	Data      submission.Submission `json:"data"`
}

type WebhookConfig struct {
	URL    string
	Secret string
	// Retries is the number of extra attempts after the first one.
	Retries int
}

// Webhook posts every created submission to one endpoint. Deliveries run
// in the background so the write path never waits for the receiver.
type Webhook struct {
	cfg     WebhookConfig
	client  *http.Client
	logger  *slog.Logger
	metrics *Metrics
	// backoff is the pause before retry n (n >= 1).
	backoff func(n int) time.Duration

	// stop ends backoff waits. Requests already on the wire are bounded
	// by the client timeout and always finish.
	stop   chan struct{}
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewWebhook(cfg WebhookConfig, logger *slog.Logger, metrics *Metrics) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Webhook{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		metrics: metrics,
		backoff: func(n int) time.Duration {
			return time.Duration(n*n) * time.Second
		},
		stop: make(chan struct{}),
	}
}

// Hook is registered on the submission write path.
func (wh *Webhook) Hook() submission.Hook {
	return func(_ context.Context, sub submission.Submission) {
		payload := WebhookPayload{
			Event:     WebhookEventSubmissionCreated,
			Timestamp: time.Now().UTC(),
			Data:      sub,
		}
		wh.mu.Lock()
		defer wh.mu.Unlock()
		if wh.closed {
			wh.logger.Warn("webhook closed, submission not delivered", "submission_id", sub.ID)
			return
		}
		wh.wg.Add(1)
		go func() {
			defer wh.wg.Done()
			wh.send(payload)
		}()
	}
}

// Close abandons pending retries and waits for in-flight deliveries.
// Submissions created afterwards are not delivered.
func (wh *Webhook) Close() {
	wh.mu.Lock()
	if wh.closed {
		wh.mu.Unlock()
		return
	}
	wh.closed = true
	close(wh.stop)
	wh.mu.Unlock()

	wh.wg.Wait()
}

func (wh *Webhook) send(payload WebhookPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		wh.logger.Error("failed to marshal webhook payload", "error", err)
		return
	}
	log := wh.logger.With("url", wh.cfg.URL, "event", payload.Event, "submission_id", payload.Data.ID)

	for attempt := 0; attempt <= wh.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(wh.backoff(attempt)):
			case <-wh.stop:
				log.Warn("webhook delivery abandoned on shutdown", "attempts", attempt)
				wh.metrics.RecordWebhookDelivery(false)
				return
			}
		}

		err := wh.post(payload, body)
		if err == nil {
			log.Info("webhook delivered", "attempt", attempt+1)
			wh.metrics.RecordWebhookDelivery(true)
			return
		}
		log.Warn("webhook attempt failed", "attempt", attempt+1, "error", err)
	}

	log.Error("webhook delivery failed after max retries", "attempts", wh.cfg.Retries+1)
	wh.metrics.RecordWebhookDelivery(false)
}

func (wh *Webhook) post(payload WebhookPayload, body []byte) error {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, wh.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "FormIntake-Webhook/1.0")
	req.Header.Set("X-Webhook-Event", string(payload.Event))
	req.Header.Set("X-Webhook-Timestamp", payload.Timestamp.Format(time.RFC3339))
	if wh.cfg.Secret != "" {
		req.Header.Set("X-Webhook-Signature", SignWebhook(body, wh.cfg.Secret))
	}

	resp, err := wh.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
}

// SignWebhook returns the X-Webhook-Signature value for body:
// "sha256=" followed by the hex HMAC-SHA256 under secret.
func SignWebhook(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
