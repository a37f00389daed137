package dto

import (
	"encoding/json"
	"time"

	"github.com/Eddie2111/trip-otter-dev-sub001/internal/models"
)

// Envelope is the framing for every websocket payload in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Push wraps an outbound event with its already-typed payload.
type Push struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// AuthenticateRequest carries the credentials for the authenticate intent.
// Token is the session token issued by the external auth service.
type AuthenticateRequest struct {
	Identity    string `json:"identity" validate:"required,max=64"`
	DisplayName string `json:"display_name" validate:"required,max=255"`
	Token       string `json:"token" validate:"required"`
}

// PrivateSendRequest targets a single recipient identity.
type PrivateSendRequest struct {
	RecipientID string `json:"recipient_id" validate:"required,max=64"`
	Content     string `json:"content" validate:"required,min=1,max=4000"`
}

// GroupSendRequest targets one group channel.
type GroupSendRequest struct {
	GroupID string `json:"group_id" validate:"required,max=36"`
	Content string `json:"content" validate:"required,min=1,max=4000"`
}

// GlobalSendRequest targets the broadcast channel.
type GlobalSendRequest struct {
	Content string `json:"content" validate:"required,min=1,max=4000"`
}

// GroupCreateRequest creates a group; the creator is auto-joined.
type GroupCreateRequest struct {
	Name      string   `json:"name" validate:"required,min=1,max=255"`
	MemberIDs []string `json:"member_ids" validate:"dive,max=64"`
	Avatar    string   `json:"avatar" validate:"omitempty,max=512"`
}

// GroupActionRequest identifies a group for join/leave/history/clear intents.
type GroupActionRequest struct {
	GroupID string `json:"group_id" validate:"required,max=36"`
}

// ConversationRequest opens the private conversation with one peer.
type ConversationRequest struct {
	PeerID string `json:"peer_id" validate:"required,max=64"`
}

// MessageUpdateRequest edits a previously sent message.
type MessageUpdateRequest struct {
	MessageID string `json:"message_id" validate:"required,max=36"`
	Content   string `json:"content" validate:"required,min=1,max=4000"`
}

// MessageActionRequest identifies a message for delete.
type MessageActionRequest struct {
	MessageID string `json:"message_id" validate:"required,max=36"`
}

// MessageResponse is the serialized representation of a chat message.
type MessageResponse struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id,omitempty"`
	GroupID    string    `json:"group_id,omitempty"`
	Content    string    `json:"content"`
	Edited     bool      `json:"edited"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewMessageResponse converts a model into a DTO.
func NewMessageResponse(message models.Message) MessageResponse {
	return MessageResponse{
		ID:         message.ID,
		SenderID:   message.SenderID,
		ReceiverID: message.ReceiverID,
		GroupID:    message.GroupID,
		Content:    message.Content,
		Edited:     message.Edited,
		CreatedAt:  message.CreatedAt,
		UpdatedAt:  message.UpdatedAt,
	}
}

// NewMessageResponseSlice converts a slice of models into DTOs.
func NewMessageResponseSlice(messages []models.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewMessageResponse(message))
	}
	return out
}

// MessageDeletedPayload announces a tombstoned message to recipients.
type MessageDeletedPayload struct {
	MessageID string `json:"message_id"`
	GroupID   string `json:"group_id,omitempty"`
}

// PresenceEntry describes one online identity.
type PresenceEntry struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name"`
	Online      bool   `json:"online"`
}

// LoginSuccessPayload seeds a freshly authenticated client.
type LoginSuccessPayload struct {
	Identity     string                     `json:"identity"`
	OnlineUsers  []PresenceEntry            `json:"online_users"`
	Groups       []GroupResponse            `json:"groups"`
	Unread       map[string]int64           `json:"unread"`
	LastMessages map[string]MessageResponse `json:"last_messages,omitempty"`
}

// LoginFailurePayload explains a rejected authenticate intent.
type LoginFailurePayload struct {
	Reason string `json:"reason"`
}

// ForceDisconnectPayload carries the reason for a server-initiated close.
type ForceDisconnectPayload struct {
	Reason string `json:"reason"`
}

// ErrorPayload is pushed to the initiating connection only.
type ErrorPayload struct {
	Intent string `json:"intent,omitempty"`
	Reason string `json:"reason"`
}

// GroupResponse is the serialized representation of a group.
type GroupResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatorID string    `json:"creator_id"`
	MemberIDs []string  `json:"member_ids"`
	CreatedAt time.Time `json:"created_at"`
}

// NewGroupResponse converts a group model and its membership into a DTO.
func NewGroupResponse(group models.Group) GroupResponse {
	memberIDs := make([]string, 0, len(group.Members))
	for _, member := range group.Members {
		memberIDs = append(memberIDs, member.UserID)
	}
	return GroupResponse{
		ID:        group.ID,
		Name:      group.Name,
		Avatar:    group.Avatar,
		CreatorID: group.CreatorID,
		MemberIDs: memberIDs,
		CreatedAt: group.CreatedAt,
	}
}

// NewGroupResponseSlice converts groups to DTOs.
func NewGroupResponseSlice(groups []models.Group) []GroupResponse {
	out := make([]GroupResponse, 0, len(groups))
	for _, group := range groups {
		out = append(out, NewGroupResponse(group))
	}
	return out
}

// GroupMembershipPayload announces a join or leave inside a group channel.
type GroupMembershipPayload struct {
	GroupID     string `json:"group_id"`
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name,omitempty"`
}

// GroupHistoryClearedPayload confirms the shared history wipe to members.
type GroupHistoryClearedPayload struct {
	GroupID   string `json:"group_id"`
	ClearedBy string `json:"cleared_by"`
}

// ConversationHistoryPayload pairs a history fetch with the zeroed unread
// counter so clients never render a stale badge next to fresh history.
type ConversationHistoryPayload struct {
	Key      string            `json:"key"`
	Messages []MessageResponse `json:"messages"`
	Unread   int64             `json:"unread"`
}
