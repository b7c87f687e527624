// Package remediation hands unwaived compliance violations to the system
// that fixes resource tags.
package remediation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"

	"tagexceptions/src/lifecycle"
)

// New returns an HTTP trigger when a URL is configured, otherwise a trigger
// that only logs.
func New(cfg Config) lifecycle.Remediator {
	if cfg.URL == "" {
		logger.Warn("REMEDIATION_URL not set, remediation requests will only be logged")
		return LogTrigger{}
	}
	return NewHTTPTrigger(cfg)
}

type remediationRequest struct {
	ResourceARN      string          `json:"resource_arn"`
	ViolationDetails json.RawMessage `json:"violation_details"`
}

// HTTPTrigger posts remediation requests to an HTTP endpoint.
// Requests are not retried here; the caller owns retry policy.
type HTTPTrigger struct {
	url  string
	http *resty.Client
}

func NewHTTPTrigger(cfg Config) *HTTPTrigger {
	client := resty.New().SetTimeout(cfg.Timeout)
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	return &HTTPTrigger{url: cfg.URL, http: client}
}

func (t *HTTPTrigger) Remediate(ctx context.Context, resourceID string, details json.RawMessage) error {
	resp, err := t.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(remediationRequest{ResourceARN: resourceID, ViolationDetails: details}).
		Post(t.url)
	if err != nil {
		return fmt.Errorf("post remediation: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("remediation endpoint returned status %d", resp.StatusCode())
	}

	logger.WithFields(logger.Fields{
		"resourceID": resourceID,
		"status":     resp.StatusCode(),
	}).Info("Remediation requested")

	return nil
}

// LogTrigger records the remediation request in the log only.
type LogTrigger struct{}

func (LogTrigger) Remediate(_ context.Context, resourceID string, details json.RawMessage) error {
	logger.WithFields(logger.Fields{
		"resourceID": resourceID,
		"details":    string(details),
	}).Warn("Remediation required")
	return nil
}
