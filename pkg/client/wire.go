package client

import "github.com/Eddie2111/trip-otter-dev-sub001/internal/dto"

// The gateway's wire types live in an internal package that importers of this
// module cannot name. Everything the client surface returns or accepts is
// aliased here so external consumers work purely in terms of this package.
type (
	// MessageResponse is a chat message as the gateway renders it.
	MessageResponse = dto.MessageResponse
	// GroupResponse describes a group and its member set.
	GroupResponse = dto.GroupResponse
	// PresenceEntry is one identity's online state.
	PresenceEntry = dto.PresenceEntry
	// LoginSuccessPayload seeds the session after authenticate.
	LoginSuccessPayload = dto.LoginSuccessPayload
	// LoginFailurePayload explains a rejected authenticate intent.
	LoginFailurePayload = dto.LoginFailurePayload
	// ForceDisconnectPayload announces that a newer session took over.
	ForceDisconnectPayload = dto.ForceDisconnectPayload
	// ErrorPayload reports a rejected intent.
	ErrorPayload = dto.ErrorPayload
	// ConversationHistoryPayload pairs a history fetch with its unread reset.
	ConversationHistoryPayload = dto.ConversationHistoryPayload
	// MessageDeletedPayload announces a tombstoned message.
	MessageDeletedPayload = dto.MessageDeletedPayload
	// GroupMembershipPayload announces a join or leave.
	GroupMembershipPayload = dto.GroupMembershipPayload
	// GroupHistoryClearedPayload announces a wiped group history.
	GroupHistoryClearedPayload = dto.GroupHistoryClearedPayload
	// NotificationResponse is a notification as the gateway renders it.
	NotificationResponse = dto.NotificationResponse
	// NotificationRemovedPayload announces a removed notification.
	NotificationRemovedPayload = dto.NotificationRemovedPayload
	// NotificationCreateRequest is the createNotification intent payload.
	NotificationCreateRequest = dto.NotificationCreateRequest
)

// Server push event names, for use with Subscribe.
const (
	EventLoginSuccess            = dto.EventLoginSuccess
	EventLoginFailure            = dto.EventLoginFailure
	EventPrivateMessage          = dto.EventPrivateMessage
	EventPrivateMessageSent      = dto.EventPrivateMessageSent
	EventGroupMessage            = dto.EventGroupMessage
	EventGlobalMessage           = dto.EventGlobalMessage
	EventGlobalMessagesHistory   = dto.EventGlobalMessagesHistory
	EventUserOnline              = dto.EventUserOnline
	EventUserOffline             = dto.EventUserOffline
	EventOnlineUsers             = dto.EventOnlineUsers
	EventGroupCreated            = dto.EventGroupCreated
	EventUserJoinedGroup         = dto.EventUserJoinedGroup
	EventUserLeftGroup           = dto.EventUserLeftGroup
	EventUserGroups              = dto.EventUserGroups
	EventConversationHistory     = dto.EventConversationHistory
	EventGroupHistory            = dto.EventGroupHistory
	EventMessageUpdated          = dto.EventMessageUpdated
	EventMessageDeleted          = dto.EventMessageDeleted
	EventGroupChatHistoryCleared = dto.EventGroupChatHistoryCleared
	EventForceDisconnect         = dto.EventForceDisconnect
	EventNewNotification         = dto.EventNewNotification
	EventNotificationUpdated     = dto.EventNotificationUpdated
	EventNotificationRemoved     = dto.EventNotificationRemoved
	EventError                   = dto.EventError
)
