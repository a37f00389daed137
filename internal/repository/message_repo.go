package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Eddie2111/trip-otter-dev-sub001/internal/models"
)

// MessageRepository persists chat messages for history replay. Deletes are
// tombstones: soft-deleted rows never reappear in any listing.
type MessageRepository interface {
	Save(ctx context.Context, message *models.Message) error
	FindByID(ctx context.Context, id string) (models.Message, error)
	ListPrivate(ctx context.Context, identityA, identityB string, before time.Time, limit int) ([]models.Message, error)
	ListGroup(ctx context.Context, groupID string, before time.Time, limit int) ([]models.Message, error)
	ListGlobal(ctx context.Context, before time.Time, limit int) ([]models.Message, error)
	Update(ctx context.Context, id, senderID, content string) (models.Message, error)
	Delete(ctx context.Context, id, senderID string) (models.Message, error)
	ClearGroup(ctx context.Context, groupID string) error
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a message repository backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Save(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *messageRepository) FindByID(ctx context.Context, id string) (models.Message, error) {
	var message models.Message
	if err := r.db.WithContext(ctx).First(&message, "id = ?", id).Error; err != nil {
		return models.Message{}, err
	}
	return message, nil
}

func (r *messageRepository) ListPrivate(ctx context.Context, identityA, identityB string, before time.Time, limit int) ([]models.Message, error) {
	query := r.db.WithContext(ctx).
		Where("group_id = '' OR group_id IS NULL").
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			identityA, identityB, identityB, identityA)
	return listMessages(query, before, limit)
}

func (r *messageRepository) ListGroup(ctx context.Context, groupID string, before time.Time, limit int) ([]models.Message, error) {
	query := r.db.WithContext(ctx).Where("group_id = ?", groupID)
	return listMessages(query, before, limit)
}

func (r *messageRepository) ListGlobal(ctx context.Context, before time.Time, limit int) ([]models.Message, error) {
	query := r.db.WithContext(ctx).
		Where("(receiver_id = '' OR receiver_id IS NULL) AND (group_id = '' OR group_id IS NULL)")
	return listMessages(query, before, limit)
}

func listMessages(query *gorm.DB, before time.Time, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if !before.IsZero() {
		query = query.Where("created_at < ?", before)
	}

	var messages []models.Message
	if err := query.Order("created_at DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	// Reverse to chronological order ascending for clients.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *messageRepository) Update(ctx context.Context, id, senderID, content string) (models.Message, error) {
	var message models.Message
	if err := r.db.WithContext(ctx).Where("id = ? AND sender_id = ?", id, senderID).First(&message).Error; err != nil {
		return models.Message{}, err
	}

	message.Content = content
	message.Edited = true
	if err := r.db.WithContext(ctx).Save(&message).Error; err != nil {
		return models.Message{}, err
	}

	return message, nil
}

func (r *messageRepository) Delete(ctx context.Context, id, senderID string) (models.Message, error) {
	var message models.Message
	if err := r.db.WithContext(ctx).Where("id = ? AND sender_id = ?", id, senderID).First(&message).Error; err != nil {
		return models.Message{}, err
	}

	if err := r.db.WithContext(ctx).Delete(&message).Error; err != nil {
		return models.Message{}, err
	}

	return message, nil
}

func (r *messageRepository) ClearGroup(ctx context.Context, groupID string) error {
	return r.db.WithContext(ctx).Where("group_id = ?", groupID).Delete(&models.Message{}).Error
}
