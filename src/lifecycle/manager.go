// Package lifecycle owns the tagging exception state machine: creation,
// expiry sweeps, administrative revocation and violation correlation.
//
// The Manager keeps no state between calls. Every read-modify-write goes
// through the Store's conditional write, so concurrent invocations on the
// same resource are linearized by the database.
package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tagexceptions/src/apperr"
	"tagexceptions/src/metrics"
	"tagexceptions/src/model"
	"tagexceptions/src/repository"
)

const (
	opCreate    = "create_exception"
	opSweep     = "cleanup_expired"
	opViolation = "handle_compliance_violation"
	opRevoke    = "revoke_exception"
	opHistory   = "exception_history"
)

type Manager struct {
	cfg        Config
	store      Store
	notifier   Notifier
	remediator Remediator
	metrics    *metrics.Recorder
	now        func() time.Time
	log        *logrus.Entry
}

// NewManager wires a manager. notifier and remediator may be nil, in which
// case notifications are dropped and unwaived violations are only recorded.
func NewManager(cfg Config, store Store, notifier Notifier, remediator Remediator) *Manager {
	return &Manager{
		cfg:        cfg.withDefaults(),
		store:      store,
		notifier:   notifier,
		remediator: remediator,
		now:        time.Now,
		log:        logrus.WithField("component", "lifecycle"),
	}
}

// WithClock returns a copy of the manager that reads time from now.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	c := *m
	c.now = now
	return &c
}

// WithMetrics returns a copy of the manager that records to r.
func (m *Manager) WithMetrics(r *metrics.Recorder) *Manager {
	c := *m
	c.metrics = r
	return &c
}

// WithLogger returns a copy of the manager that logs to log.
func (m *Manager) WithLogger(log *logrus.Entry) *Manager {
	c := *m
	c.log = log
	return &c
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// Create records a new active exception for in.ResourceID. An existing
// active exception for the same resource is revoked as superseded in the
// same transaction.
func (m *Manager) Create(ctx context.Context, in CreateInput) (*model.TaggingException, error) {
	resourceID := strings.TrimSpace(in.ResourceID)
	reason := strings.TrimSpace(in.Reason)
	if resourceID == "" {
		return nil, apperr.Validation(opCreate, "resource_arn is required")
	}
	if reason == "" {
		return nil, apperr.Validation(opCreate, "reason is required")
	}

	ttl := m.cfg.DefaultTTL
	if in.TTL != nil {
		if *in.TTL <= 0 {
			return nil, apperr.Validation(opCreate, "ttl must be positive")
		}
		if *in.TTL > m.cfg.MaxTTL {
			return nil, apperr.Validation(opCreate, "ttl exceeds the maximum of "+m.cfg.MaxTTL.String())
		}
		ttl = *in.TTL
	}

	var (
		created, superseded *model.TaggingException
		err                 error
	)
	for attempt := 1; attempt <= m.cfg.WriteAttempts; attempt++ {
		created, superseded, err = m.createOnce(ctx, resourceID, reason, strings.TrimSpace(in.RequestedBy), ttl)
		if !errors.Is(err, repository.ErrVersionConflict) {
			break
		}
		m.log.WithFields(logrus.Fields{
			"op":         opCreate,
			"resourceID": resourceID,
			"attempt":    attempt,
		}).Debug("Concurrent write on resource, retrying")
	}
	if err != nil {
		return nil, m.storeErr(opCreate, err)
	}

	m.metrics.ExceptionCreated(superseded != nil)
	if superseded != nil {
		m.metrics.Transition(model.ExceptionStatusRevoked)
		if err := m.notify(ctx, superseded.ResourceID, model.EventExceptionSuperseded); err != nil {
			created.NotificationFailed = true
		}
	}

	m.log.WithFields(logrus.Fields{
		"op":         opCreate,
		"resourceID": resourceID,
		"id":         created.ID,
		"expiresAt":  created.ExpiresAt,
		"superseded": superseded != nil,
	}).Info("Exception created")

	return created, nil
}

func (m *Manager) createOnce(
	ctx context.Context,
	resourceID, reason, requestedBy string,
	ttl time.Duration,
) (created, superseded *model.TaggingException, err error) {

	now := m.clock()
	err = m.withStoreTimeout(ctx, func(ctx context.Context) error {
		return m.store.Atomically(ctx, func(tx Store) error {
			existing, err := tx.GetActive(ctx, resourceID)
			if err != nil {
				return err
			}

			rec := &model.TaggingException{
				ResourceID:  resourceID,
				Reason:      reason,
				RequestedBy: requestedBy,
				Status:      model.ExceptionStatusActive,
				CreatedAt:   now,
				ExpiresAt:   now.Add(ttl),
			}

			if existing != nil {
				expected := existing.Version
				revokedAt := now
				existing.Status = model.ExceptionStatusRevoked
				existing.RevokedAt = &revokedAt
				existing.RevokeReason = model.RevokeReasonSuperseded
				if err := tx.Put(ctx, existing, expected); err != nil {
					return err
				}
				supersedes := existing.ID
				rec.SupersedesID = &supersedes
			}

			if err := tx.Put(ctx, rec, 0); err != nil {
				return err
			}

			created, superseded = rec, existing
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return created, superseded, nil
}

// Sweep expires every active exception whose expiry has passed.
func (m *Manager) Sweep(ctx context.Context) (SweepResult, error) {
	return m.SweepAt(ctx, m.clock())
}

// SweepAt expires every active exception with expires_at <= now and emits
// one notification per transitioned record. Running it twice with the same
// now transitions nothing the second time. Failed notifications do not undo
// the transition; they set PartialFailure.
func (m *Manager) SweepAt(ctx context.Context, now time.Time) (SweepResult, error) {
	start := time.Now()
	defer func() { m.metrics.ObserveSweep(time.Since(start)) }()

	now = now.UTC()
	log := m.log.WithFields(logrus.Fields{"op": opSweep, "now": now})
	log.Info("Starting cleanup of expired exceptions")

	var due []model.TaggingException
	err := m.withStoreTimeout(ctx, func(ctx context.Context) error {
		var err error
		due, err = m.store.ScanActive(ctx, now)
		return err
	})
	if err != nil {
		return SweepResult{}, m.storeErr(opSweep, err)
	}

	var result SweepResult
	for i := range due {
		rec := &due[i]
		expected := rec.Version
		expiredAt := now
		rec.Status = model.ExceptionStatusExpired
		rec.ExpiredAt = &expiredAt

		err := m.withStoreTimeout(ctx, func(ctx context.Context) error {
			return m.store.Put(ctx, rec, expected)
		})
		if errors.Is(err, repository.ErrVersionConflict) {
			log.WithField("id", rec.ID).Debug("Exception changed concurrently, skipping")
			continue
		}
		if err != nil {
			log.WithField("expired", result.Expired).WithError(err).Error("Sweep aborted")
			return result, m.storeErr(opSweep, err)
		}

		result.Expired++
		m.metrics.Transition(model.ExceptionStatusExpired)

		if err := m.notify(ctx, rec.ResourceID, model.EventExceptionExpired); err != nil {
			result.NotificationFailures++
			result.PartialFailure = true
		}
	}

	log.WithFields(logrus.Fields{
		"scanned":              len(due),
		"expired":              result.Expired,
		"notificationFailures": result.NotificationFailures,
	}).Info("Cleanup completed")

	return result, nil
}

// HandleViolation correlates a compliance violation with the resource's
// active exception. A live exception waives it; otherwise the violation is
// handed to the remediator exactly once. The correlation is recorded either way.
func (m *Manager) HandleViolation(
	ctx context.Context,
	resourceID string,
	details json.RawMessage,
) (ViolationResult, error) {

	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return ViolationResult{}, apperr.Validation(opViolation, "resource_arn is required")
	}
	details = bytes.TrimSpace(details)
	if len(details) == 0 || details[0] != '{' || !json.Valid(details) {
		return ViolationResult{}, apperr.Validation(opViolation, "violation_details must be a JSON object")
	}

	now := m.clock()
	var result ViolationResult
	err := m.withStoreTimeout(ctx, func(ctx context.Context) error {
		return m.store.Atomically(ctx, func(tx Store) error {
			active, err := tx.GetActive(ctx, resourceID)
			if err != nil {
				return err
			}

			result = ViolationResult{Outcome: model.ViolationUnwaived}
			if active != nil {
				id := active.ID
				result.ExceptionID = &id
				if active.IsActiveAt(now) {
					result.Outcome = model.ViolationWaived
				}
			}

			return tx.RecordViolation(ctx, &model.ViolationCorrelation{
				ResourceID:           resourceID,
				ExceptionID:          result.ExceptionID,
				Outcome:              result.Outcome,
				Details:              string(details),
				RemediationRequested: !result.Waived() && m.remediator != nil,
				CreatedAt:            now,
			})
		})
	})
	if err != nil {
		return ViolationResult{}, m.storeErr(opViolation, err)
	}

	m.metrics.Violation(result.Outcome)
	log := m.log.WithFields(logrus.Fields{
		"op":         opViolation,
		"resourceID": resourceID,
		"outcome":    result.Outcome,
	})

	if result.Waived() {
		log.WithField("exceptionID", *result.ExceptionID).Info("Violation waived by active exception")
		return result, nil
	}

	if m.remediator == nil {
		log.Warn("Violation unwaived but no remediator is configured")
		return result, nil
	}

	if err := m.remediator.Remediate(ctx, resourceID, details); err != nil {
		log.WithError(err).Error("Failed to trigger remediation")
		return result, apperr.Remediation(opViolation, err)
	}
	result.Remediated = true

	log.Info("Violation unwaived, remediation triggered")
	return result, nil
}

// Revoke moves the active exception for resourceID to revoked.
func (m *Manager) Revoke(ctx context.Context, resourceID, reason string) (*model.TaggingException, error) {
	resourceID = strings.TrimSpace(resourceID)
	reason = strings.TrimSpace(reason)
	if resourceID == "" {
		return nil, apperr.Validation(opRevoke, "resource_arn is required")
	}
	if reason == "" {
		return nil, apperr.Validation(opRevoke, "reason is required")
	}

	var (
		revoked *model.TaggingException
		err     error
	)
	for attempt := 1; attempt <= m.cfg.WriteAttempts; attempt++ {
		now := m.clock()
		err = m.withStoreTimeout(ctx, func(ctx context.Context) error {
			return m.store.Atomically(ctx, func(tx Store) error {
				rec, err := tx.GetActive(ctx, resourceID)
				if err != nil {
					return err
				}
				if rec == nil {
					return apperr.NotFound(opRevoke, "no active exception for resource")
				}

				expected := rec.Version
				rec.Status = model.ExceptionStatusRevoked
				rec.RevokedAt = &now
				rec.RevokeReason = reason
				if err := tx.Put(ctx, rec, expected); err != nil {
					return err
				}
				revoked = rec
				return nil
			})
		})
		if !errors.Is(err, repository.ErrVersionConflict) {
			break
		}
	}
	if err != nil {
		return nil, m.storeErr(opRevoke, err)
	}

	m.metrics.Transition(model.ExceptionStatusRevoked)
	if err := m.notify(ctx, resourceID, model.EventExceptionRevoked); err != nil {
		revoked.NotificationFailed = true
	}

	m.log.WithFields(logrus.Fields{
		"op":         opRevoke,
		"resourceID": resourceID,
		"id":         revoked.ID,
	}).Info("Exception revoked")

	return revoked, nil
}

// History returns every exception recorded for resourceID, newest first.
func (m *Manager) History(ctx context.Context, resourceID string) ([]model.TaggingException, error) {
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return nil, apperr.Validation(opHistory, "resource_arn is required")
	}

	var recs []model.TaggingException
	err := m.withStoreTimeout(ctx, func(ctx context.Context) error {
		var err error
		recs, err = m.store.History(ctx, resourceID)
		return err
	})
	if err != nil {
		return nil, m.storeErr(opHistory, err)
	}
	return recs, nil
}

// clock truncates to microseconds, the precision Postgres keeps.
func (m *Manager) clock() time.Time {
	return m.now().UTC().Truncate(time.Microsecond)
}

func (m *Manager) withStoreTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()
	return fn(ctx)
}

// storeErr classifies an error coming back from the store. Errors that are
// already classified pass through unchanged.
func (m *Manager) storeErr(op string, err error) error {
	var classified *apperr.Error
	if errors.As(err, &classified) {
		return err
	}
	if errors.Is(err, repository.ErrVersionConflict) {
		return apperr.Conflict(op, err)
	}
	m.metrics.StoreError(op)
	return apperr.StoreUnavailable(op, err)
}

func (m *Manager) notify(ctx context.Context, resourceID string, kind model.EventKind) error {
	if m.notifier == nil {
		return nil
	}
	if err := m.notifier.Notify(ctx, resourceID, kind); err != nil {
		m.metrics.NotificationFailed()
		m.log.WithFields(logrus.Fields{
			"resourceID": resourceID,
			"eventKind":  kind,
		}).WithError(err).Warn("Failed to deliver notification")
		return apperr.NotificationDelivery("notify", err)
	}
	return nil
}
