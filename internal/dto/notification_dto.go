package dto

import (
	"time"

	"github.com/Eddie2111/trip-otter-dev-sub001/internal/models"
)

// NotificationCreateRequest describes the payload for the createNotification
// intent and the REST endpoint backing it.
type NotificationCreateRequest struct {
	CreatedByID     string `json:"created_by_id" validate:"required,max=64"`
	CreatedByName   string `json:"created_by_name" validate:"required,max=255"`
	CreatedByAvatar string `json:"created_by_avatar" validate:"omitempty,max=512"`
	ReceiverID      string `json:"receiver_id" validate:"required,max=64"`
	Type            string `json:"type" validate:"required,oneof=LIKE COMMENT FOLLOW REPORT"`
	Content         string `json:"content" validate:"required,min=1,max=2000"`
	PostURL         string `json:"post_url" validate:"omitempty,max=512"`
}

// NotificationActionRequest identifies a notification for mark-read/remove.
type NotificationActionRequest struct {
	NotificationID uint `json:"notification_id" validate:"required"`
}

// NotificationResponse represents notification data returned to clients.
type NotificationResponse struct {
	ID              uint      `json:"id"`
	CreatedByID     string    `json:"created_by_id"`
	CreatedByName   string    `json:"created_by_name"`
	CreatedByAvatar string    `json:"created_by_avatar,omitempty"`
	ReceiverID      string    `json:"receiver_id"`
	Type            string    `json:"type"`
	Content         string    `json:"content"`
	PostURL         string    `json:"post_url,omitempty"`
	IsRead          bool      `json:"is_read"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewNotificationResponse converts a notification model to a DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:              model.ID,
		CreatedByID:     model.CreatedByID,
		CreatedByName:   model.CreatedByName,
		CreatedByAvatar: model.CreatedByAvatar,
		ReceiverID:      model.ReceiverID,
		Type:            model.Type,
		Content:         model.Content,
		PostURL:         model.PostURL,
		IsRead:          model.IsRead,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
}

// NewNotificationResponseSlice converts a slice to DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}

// NotificationRemovedPayload announces a deletion to the owner's connection.
type NotificationRemovedPayload struct {
	NotificationID uint `json:"notification_id"`
}

// MarkAllReadResult summarises a batched mark-all-read run.
type MarkAllReadResult struct {
	Updated int    `json:"updated"`
	Failed  []uint `json:"failed,omitempty"`
}
