package notifier

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"tagexceptions/src/lifecycle"
	"tagexceptions/src/model"
)

const (
	HeaderEventID   = "X-Event-ID"
	HeaderSignature = "X-Signature"
)

// New returns a webhook notifier when a URL is configured, otherwise a
// notifier that only logs.
func New(cfg Config) lifecycle.Notifier {
	if cfg.WebhookURL == "" {
		logger.Warn("NOTIFY_WEBHOOK_URL not set, notifications will only be logged")
		return LogNotifier{}
	}
	return NewWebhookNotifier(cfg)
}

// WebhookNotifier posts signed lifecycle events to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	secret string
	http   *resty.Client
	now    func() time.Time
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}

	code := r.StatusCode()
	return code >= 500 || code == 429 || code == 408
}

func NewWebhookNotifier(cfg Config) *WebhookNotifier {
	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		AddRetryCondition(isRetryableResp)

	return &WebhookNotifier{
		url:    cfg.WebhookURL,
		secret: cfg.WebhookSecret,
		http:   httpClient,
		now:    time.Now,
	}
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (n *WebhookNotifier) Notify(ctx context.Context, resourceID string, kind model.EventKind) error {
	payload := model.Notification{
		EventID:    uuid.NewString(),
		ResourceID: resourceID,
		EventKind:  kind,
		OccurredAt: n.now().UTC(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req := n.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader(HeaderEventID, payload.EventID).
		SetBody(body)
	if n.secret != "" {
		req.SetHeader(HeaderSignature, "sha256="+Sign(body, n.secret))
	}

	resp, err := req.Post(n.url)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("notification webhook returned status %d", resp.StatusCode())
	}

	logger.WithFields(logger.Fields{
		"eventID":    payload.EventID,
		"resourceID": resourceID,
		"eventKind":  kind,
	}).Debug("Notification delivered")

	return nil
}

// LogNotifier writes notifications to the log instead of delivering them.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, resourceID string, kind model.EventKind) error {
	logger.WithFields(logger.Fields{
		"resourceID": resourceID,
		"eventKind":  kind,
	}).Info("Exception notification")
	return nil
}
