package dto

// Client→server intent names carried in the websocket envelope.
const (
	IntentAuthenticate           = "authenticate"
	IntentSendPrivateMessage     = "sendPrivateMessage"
	IntentSendGroupMessage       = "sendGroupMessage"
	IntentSendGlobalMessage      = "sendGlobalMessage"
	IntentCreateGroup            = "createGroup"
	IntentJoinGroup              = "joinGroup"
	IntentLeaveGroup             = "leaveGroup"
	IntentGetConversation        = "getConversation"
	IntentGetGroupHistory        = "getGroupHistory"
	IntentGetGlobalMessages      = "getGlobalMessages"
	IntentUpdateMessage          = "updateMessage"
	IntentDeleteMessage          = "deleteMessage"
	IntentDeleteGroupChatHistory = "deleteGroupChatHistory"
	IntentCreateNotification     = "createNotification"
	IntentIsNotificationRead     = "isNotificationRead"
	IntentRemoveNotification     = "removeNotification"
)

// Server→client push event names.
const (
	EventLoginSuccess            = "loginSuccess"
	EventLoginFailure            = "loginFailure"
	EventPrivateMessage          = "privateMessage"
	EventPrivateMessageSent      = "privateMessageSent"
	EventGroupMessage            = "groupMessage"
	EventGlobalMessage           = "globalMessage"
	EventGlobalMessagesHistory   = "globalMessagesHistory"
	EventUserOnline              = "userOnline"
	EventUserOffline             = "userOffline"
	EventOnlineUsers             = "onlineUsers"
	EventGroupCreated            = "groupCreated"
	EventUserJoinedGroup         = "userJoinedGroup"
	EventUserLeftGroup           = "userLeftGroup"
	EventUserGroups              = "userGroups"
	EventConversationHistory     = "conversationHistory"
	EventGroupHistory            = "groupHistory"
	EventMessageUpdated          = "messageUpdated"
	EventMessageDeleted          = "messageDeleted"
	EventGroupChatHistoryCleared = "groupChatHistoryCleared"
	EventForceDisconnect         = "forceDisconnect"
	EventNewNotification         = "newNotification"
	EventNotificationUpdated     = "notificationUpdated"
	EventNotificationRemoved     = "notificationRemoved"
	EventError                   = "errorEvent"
)
