package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Eddie2111/trip-otter-dev-sub001/internal/models"
)

// NotificationRepository handles persistence for notification entities.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	FindByID(ctx context.Context, id uint) (models.Notification, error)
	ListByReceiver(ctx context.Context, receiverID string, limit, offset int) ([]models.Notification, error)
	UnreadIDs(ctx context.Context, receiverID string) ([]uint, error)
	MarkRead(ctx context.Context, id uint, receiverID string) (models.Notification, error)
	MarkReadBatch(ctx context.Context, ids []uint, receiverID string) error
	Delete(ctx context.Context, id uint, receiverID string) (models.Notification, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository constructs a repository backed by GORM.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *notificationRepository) FindByID(ctx context.Context, id uint) (models.Notification, error) {
	var notification models.Notification
	if err := r.db.WithContext(ctx).First(&notification, id).Error; err != nil {
		return models.Notification{}, err
	}
	return notification, nil
}

func (r *notificationRepository) ListByReceiver(ctx context.Context, receiverID string, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var notifications []models.Notification
	if err := r.db.WithContext(ctx).
		Where("receiver_id = ?", receiverID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&notifications).Error; err != nil {
		return nil, err
	}

	return notifications, nil
}

func (r *notificationRepository) UnreadIDs(ctx context.Context, receiverID string) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("receiver_id = ? AND is_read = ?", receiverID, false).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id uint, receiverID string) (models.Notification, error) {
	var notification models.Notification
	if err := r.db.WithContext(ctx).Where("id = ? AND receiver_id = ?", id, receiverID).First(&notification).Error; err != nil {
		return models.Notification{}, err
	}

	if notification.IsRead {
		return notification, nil
	}

	notification.IsRead = true
	if err := r.db.WithContext(ctx).Save(&notification).Error; err != nil {
		return models.Notification{}, err
	}

	return notification, nil
}

func (r *notificationRepository) MarkReadBatch(ctx context.Context, ids []uint, receiverID string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id IN ? AND receiver_id = ?", ids, receiverID).
		Update("is_read", true).Error
}

func (r *notificationRepository) Delete(ctx context.Context, id uint, receiverID string) (models.Notification, error) {
	var notification models.Notification
	if err := r.db.WithContext(ctx).Where("id = ? AND receiver_id = ?", id, receiverID).First(&notification).Error; err != nil {
		return models.Notification{}, err
	}

	if err := r.db.WithContext(ctx).Delete(&notification).Error; err != nil {
		return models.Notification{}, err
	}

	return notification, nil
}
