package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tagexceptions/src/model"
)

// GormSystemErrorRepository handles persistence of unanticipated failures.
type GormSystemErrorRepository struct {
	db *gorm.DB
}

// NewSystemErrorRepository creates a new repository instance.
func NewSystemErrorRepository(db *gorm.DB) *GormSystemErrorRepository {
	return &GormSystemErrorRepository{db: db}
}

// Create persists a new system error in the database.
func (r *GormSystemErrorRepository) Create(
	ctx context.Context,
	rec *model.SystemError,
) error {

	logger.WithFields(map[string]interface{}{
		"service": rec.Service,
		"module":  rec.Module,
		"method":  rec.Method,
		"level":   rec.Level,
	}).Error("Persisting system error")

	return r.db.WithContext(ctx).Create(rec).Error
}
