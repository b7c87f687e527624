package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tagexceptions/src/model"
)

// ErrVersionConflict is returned by Put when the stored record no longer has
// the expected version, or when an insert would create a second active
// exception for the same resource.
var ErrVersionConflict = errors.New("tagging exception version conflict")

// TaggingExceptionStore is the durable store behind the lifecycle manager.
// Writes are conditional on the record version so that concurrent callers on
// the same resource are linearized by the database.
type TaggingExceptionStore interface {
	// GetActive returns the active exception for resourceID.
	// Returns (nil, nil) if there is none.
	GetActive(ctx context.Context, resourceID string) (*model.TaggingException, error)
	// Put inserts rec when rec.ID is zero, otherwise updates it only if the
	// stored version equals expectedVersion. rec.Version is advanced on success.
	Put(ctx context.Context, rec *model.TaggingException, expectedVersion int) error
	// ScanActive returns active exceptions with expires_at <= before.
	ScanActive(ctx context.Context, before time.Time) ([]model.TaggingException, error)
	// History returns every exception recorded for resourceID, newest first.
	History(ctx context.Context, resourceID string) ([]model.TaggingException, error)
	// RecordViolation persists a violation correlation row.
	RecordViolation(ctx context.Context, c *model.ViolationCorrelation) error
	// Atomically runs fn inside a single database transaction.
	Atomically(ctx context.Context, fn func(tx TaggingExceptionStore) error) error
}

// GormTaggingExceptionRepository implements TaggingExceptionStore using GORM.
type GormTaggingExceptionRepository struct {
	db     *gorm.DB
	readDB *gorm.DB
}

// NewTaggingExceptionRepository creates a repository on the main database.
// History queries go to readDB when it is not nil.
func NewTaggingExceptionRepository(db, readDB *gorm.DB) *GormTaggingExceptionRepository {
	logger.WithField("component", "TaggingExceptionRepository").
		Info("Creating new TaggingExceptionRepository with MainDB")

	if readDB == nil {
		readDB = db
	}
	return &GormTaggingExceptionRepository{db: db, readDB: readDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *GormTaggingExceptionRepository) WithDB(db *gorm.DB) *GormTaggingExceptionRepository {
	return &GormTaggingExceptionRepository{db: db, readDB: db}
}

func (r *GormTaggingExceptionRepository) GetActive(
	ctx context.Context,
	resourceID string,
) (*model.TaggingException, error) {

	var rec model.TaggingException
	err := r.db.WithContext(ctx).
		Where("resource_id = ? AND status = ?", resourceID, model.ExceptionStatusActive).
		First(&rec).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":       "TaggingExceptionRepository",
			"op":         "GetActive",
			"resourceID": resourceID,
		}).WithError(err).Error("Failed to fetch active exception")

		return nil, err
	}

	return &rec, nil
}

func (r *GormTaggingExceptionRepository) Put(
	ctx context.Context,
	rec *model.TaggingException,
	expectedVersion int,
) error {

	fields := logger.Fields{
		"repo":            "TaggingExceptionRepository",
		"op":              "Put",
		"resourceID":      rec.ResourceID,
		"status":          rec.Status,
		"expectedVersion": expectedVersion,
	}

	if rec.ID == 0 {
		if expectedVersion != 0 {
			return ErrVersionConflict
		}
		rec.Version = 1
		if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				logger.WithFields(fields).Warn("Active exception already exists for resource")
				return ErrVersionConflict
			}
			logger.WithFields(fields).WithError(err).Error("Failed to create exception")
			return err
		}

		logger.WithFields(fields).WithField("id", rec.ID).Debug("Exception created")
		return nil
	}

	res := r.db.WithContext(ctx).
		Model(&model.TaggingException{}).
		Where("id = ? AND version = ?", rec.ID, expectedVersion).
		Updates(map[string]interface{}{
			"status":        rec.Status,
			"expired_at":    rec.ExpiredAt,
			"revoked_at":    rec.RevokedAt,
			"revoke_reason": rec.RevokeReason,
			"version":       gorm.Expr("version + 1"),
		})

	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrVersionConflict
		}
		logger.WithFields(fields).WithError(res.Error).Error("Failed to update exception")
		return res.Error
	}
	if res.RowsAffected == 0 {
		logger.WithFields(fields).Debug("Conditional write lost the race")
		return ErrVersionConflict
	}

	rec.Version = expectedVersion + 1
	return nil
}

func (r *GormTaggingExceptionRepository) ScanActive(
	ctx context.Context,
	before time.Time,
) ([]model.TaggingException, error) {

	var recs []model.TaggingException
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", model.ExceptionStatusActive, before).
		Order("expires_at ASC, id ASC").
		Find(&recs).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TaggingExceptionRepository",
			"op":     "ScanActive",
			"before": before,
		}).WithError(err).Error("Failed to scan active exceptions")

		return nil, err
	}

	return recs, nil
}

func (r *GormTaggingExceptionRepository) History(
	ctx context.Context,
	resourceID string,
) ([]model.TaggingException, error) {

	var recs []model.TaggingException
	err := r.readDB.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Order("created_at DESC, id DESC").
		Find(&recs).Error

	if err != nil {
		return nil, err
	}

	return recs, nil
}

func (r *GormTaggingExceptionRepository) RecordViolation(
	ctx context.Context,
	c *model.ViolationCorrelation,
) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *GormTaggingExceptionRepository) Atomically(
	ctx context.Context,
	fn func(tx TaggingExceptionStore) error,
) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.WithDB(tx))
	})
}
