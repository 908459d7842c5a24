package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/edunexa-api/internal/models"
)

const (
	defaultInboxPage = 50
	maxInboxPage     = 100
)

// NotificationRepository stores per-user notifications.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.Notification, error)
	// MarkRead returns gorm.ErrRecordNotFound when id does not belong to userID.
	MarkRead(ctx context.Context, id uint, userID string) (models.Notification, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository constructs a repository backed by GORM.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func ownedBy(userID string) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where("user_id = ?", userID)
	}
}

func inboxPage(limit, offset int) func(*gorm.DB) *gorm.DB {
	if limit <= 0 || limit > maxInboxPage {
		limit = defaultInboxPage
	}
	if offset < 0 {
		offset = 0
	}
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset)
	}
}

func (r *notificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	tx := r.db.WithContext(ctx).Scopes(ownedBy(userID), inboxPage(limit, offset))
	if unreadOnly {
		tx = tx.Where("read = ?", false)
	}

	var notifications []models.Notification
	err := tx.Find(&notifications).Error
	return notifications, err
}

func (r *notificationRepository) MarkRead(ctx context.Context, id uint, userID string) (models.Notification, error) {
	var notification models.Notification
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Scopes(ownedBy(userID)).First(&notification, id).Error; err != nil {
			return err
		}
		if notification.Read {
			return nil
		}
		notification.Read = true
		return tx.Model(&notification).Update("read", true).Error
	})
	if err != nil {
		return models.Notification{}, err
	}
	return notification, nil
}
