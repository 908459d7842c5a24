package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/edunexa-api/internal/models"
)

const (
	defaultActivityPage = 50
	maxActivityPage     = 200
)

// ActivityLogFilter narrows activity log queries. Empty fields match everything.
type ActivityLogFilter struct {
	ActorID    string
	EntityType string
	EntityID   string
	Limit      int
}

func (f ActivityLogFilter) scope(tx *gorm.DB) *gorm.DB {
	conditions := map[string]string{
		"actor_id":    f.ActorID,
		"entity_type": f.EntityType,
		"entity_id":   f.EntityID,
	}
	for column, value := range conditions {
		if value != "" {
			tx = tx.Where(column+" = ?", value)
		}
	}

	limit := f.Limit
	if limit <= 0 || limit > maxActivityPage {
		limit = defaultActivityPage
	}
	return tx.Order("created_at DESC").Order("id DESC").Limit(limit)
}

// ActivityLogRepository appends to and reads the audit trail. Entries are
// never updated.
type ActivityLogRepository interface {
	Create(ctx context.Context, entry *models.ActivityLog) error
	List(ctx context.Context, filter ActivityLogFilter) ([]models.ActivityLog, error)
}

type activityLogRepository struct {
	db *gorm.DB
}

// NewActivityLogRepository constructs the activity log repository.
func NewActivityLogRepository(db *gorm.DB) ActivityLogRepository {
	return &activityLogRepository{db: db}
}

func (r *activityLogRepository) Create(ctx context.Context, entry *models.ActivityLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *activityLogRepository) List(ctx context.Context, filter ActivityLogFilter) ([]models.ActivityLog, error) {
	var entries []models.ActivityLog
	err := r.db.WithContext(ctx).Scopes(filter.scope).Find(&entries).Error
	return entries, err
}
