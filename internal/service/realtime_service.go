package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/Eddie2111/trip-otter-dev-sub001/internal/dto"
	"github.com/Eddie2111/trip-otter-dev-sub001/internal/models"
	"github.com/Eddie2111/trip-otter-dev-sub001/internal/observability"
	"github.com/Eddie2111/trip-otter-dev-sub001/internal/repository"
)

const lastMessageTTL = 30 * time.Minute

var (
	// ErrNotReady rejects chat traffic from connections outside the ready state.
	ErrNotReady = errors.New("connection is not ready")
	// ErrNotMessageSender rejects edits and deletes by anyone but the sender.
	ErrNotMessageSender = errors.New("caller is not the message sender")
)

// ConnectionOptions wraps metadata extracted during the HTTP upgrade.
type ConnectionOptions struct {
	CorrelationID string
	Context       context.Context
}

// RealtimeService is the channel router: it classifies every inbound intent,
// persists through the message repository and fans events out to the correct
// connection set. Sends within one channel are serialized so all live
// recipients observe the same order.
type RealtimeService struct {
	messages      repository.MessageRepository
	presence      *PresenceService
	groups        *GroupService
	unread        *UnreadService
	notifications *NotificationService

	redis       *redis.Client
	redisStream string
	redisCache  string
	nats        *nats.Conn
	natsSubject string

	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer

	jwtSecret    string
	channelLocks *keyedMutex
	nodeID       string
}

// realtimeEvent is the cross-node bridge payload for chat traffic.
type realtimeEvent struct {
	Source  string                          `json:"source"`
	Event   string                          `json:"event"`
	Message *dto.MessageResponse            `json:"message,omitempty"`
	Deleted *dto.MessageDeletedPayload      `json:"deleted,omitempty"`
	Cleared *dto.GroupHistoryClearedPayload `json:"cleared,omitempty"`
	SentAt  time.Time                       `json:"sent_at"`
}

// NewRealtimeService constructs the channel router.
func NewRealtimeService(
	messages repository.MessageRepository,
	presence *PresenceService,
	groups *GroupService,
	unread *UnreadService,
	notifications *NotificationService,
	redisClient *redis.Client,
	channelBase string,
	natsConn *nats.Conn,
	validate *validator.Validate,
	jwtSecret string,
	logger zerolog.Logger,
) *RealtimeService {
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")

	stream := ""
	cachePrefix := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":chat"
		cachePrefix = channelBase + ":chat:last"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".chat"
	}

	return &RealtimeService{
		messages:      messages,
		presence:      presence,
		groups:        groups,
		unread:        unread,
		notifications: notifications,
		redis:         redisClient,
		redisStream:   stream,
		redisCache:    cachePrefix,
		nats:          natsConn,
		natsSubject:   subject,
		validator:     validate,
		sanitizer:     sanitizer,
		logger:        logger.With().Str("component", "realtime_service").Logger(),
		tracer:        otel.Tracer("github.com/Eddie2111/trip-otter-dev-sub001/internal/service/realtime"),
		jwtSecret:     jwtSecret,
		channelLocks:  newKeyedMutex(),
		nodeID:        uuid.NewString(),
	}
}

// Start launches the cross-node event consumers.
func (s *RealtimeService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

// ServeConnection owns the websocket connection until it drops. The
// connection starts unauthenticated; only the authenticate intent is honoured
// before loginSuccess.
func (s *RealtimeService) ServeConnection(conn *websocket.Conn, opts ConnectionOptions) {
	logger := s.logger
	if opts.CorrelationID != "" {
		logger = logger.With().Str("correlation_id", opts.CorrelationID).Logger()
	}

	client := newClient(conn, s, opts.Context, logger)

	go client.writer()
	client.reader()
}

func (s *RealtimeService) onDisconnect(client *Client) {
	// Deregistration is the authoritative cleanup: presence, active
	// conversation and live group routes all die with the handle.
	s.presence.Deregister(client.baseCtx, client)
}

// dispatch routes one inbound envelope. Errors are surfaced only to the
// initiating connection.
func (s *RealtimeService) dispatch(ctx context.Context, client *Client, envelope dto.Envelope) {
	if envelope.Event != dto.IntentAuthenticate && !client.Ready() {
		client.Push(dto.EventError, dto.ErrorPayload{Intent: envelope.Event, Reason: ErrNotReady.Error()})
		return
	}

	var err error
	switch envelope.Event {
	case dto.IntentAuthenticate:
		err = s.handleAuthenticate(ctx, client, envelope.Data)
	case dto.IntentSendPrivateMessage:
		err = s.handleSendPrivate(ctx, client, envelope.Data)
	case dto.IntentSendGroupMessage:
		err = s.handleSendGroup(ctx, client, envelope.Data)
	case dto.IntentSendGlobalMessage:
		err = s.handleSendGlobal(ctx, client, envelope.Data)
	case dto.IntentCreateGroup:
		err = s.handleCreateGroup(ctx, client, envelope.Data)
	case dto.IntentJoinGroup:
		err = s.handleGroupAction(ctx, client, envelope.Data, s.groups.Join)
	case dto.IntentLeaveGroup:
		err = s.handleGroupAction(ctx, client, envelope.Data, s.groups.Leave)
	case dto.IntentGetConversation:
		err = s.handleGetConversation(ctx, client, envelope.Data)
	case dto.IntentGetGroupHistory:
		err = s.handleGetGroupHistory(ctx, client, envelope.Data)
	case dto.IntentGetGlobalMessages:
		err = s.handleGetGlobalMessages(ctx, client)
	case dto.IntentUpdateMessage:
		err = s.handleUpdateMessage(ctx, client, envelope.Data)
	case dto.IntentDeleteMessage:
		err = s.handleDeleteMessage(ctx, client, envelope.Data)
	case dto.IntentDeleteGroupChatHistory:
		err = s.handleClearGroupHistory(ctx, client, envelope.Data)
	case dto.IntentCreateNotification:
		err = s.handleCreateNotification(ctx, client, envelope.Data)
	case dto.IntentIsNotificationRead:
		err = s.handleNotificationRead(ctx, client, envelope.Data)
	case dto.IntentRemoveNotification:
		err = s.handleNotificationRemove(ctx, client, envelope.Data)
	default:
		err = fmt.Errorf("unknown intent %q", envelope.Event)
	}

	if err != nil {
		s.logger.Warn().Err(err).Str("intent", envelope.Event).Str("identity", client.Identity()).Msg("intent rejected")
		client.Push(dto.EventError, dto.ErrorPayload{Intent: envelope.Event, Reason: err.Error()})
	}
}

func (s *RealtimeService) handleAuthenticate(ctx context.Context, client *Client, data json.RawMessage) error {
	if client.Ready() {
		return errors.New("already authenticated")
	}
	client.state.Store(stateAuthenticating)

	var req dto.AuthenticateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		client.Push(dto.EventLoginFailure, dto.LoginFailurePayload{Reason: "malformed authenticate payload"})
		return nil
	}
	if err := s.validator.Struct(req); err != nil {
		client.Push(dto.EventLoginFailure, dto.LoginFailurePayload{Reason: err.Error()})
		return nil
	}

	if err := s.verifyToken(req.Token, req.Identity); err != nil {
		client.state.Store(stateConnecting)
		client.Push(dto.EventLoginFailure, dto.LoginFailurePayload{Reason: err.Error()})
		return nil
	}

	client.identity.Store(req.Identity)
	client.displayName.Store(req.DisplayName)
	client.state.Store(stateReady)

	online, err := s.presence.Register(ctx, client)
	if err != nil {
		client.state.Store(stateConnecting)
		client.identity.Store("")
		client.Push(dto.EventLoginFailure, dto.LoginFailurePayload{Reason: err.Error()})
		return nil
	}

	groups, err := s.groups.GroupsOf(ctx, req.Identity)
	if err != nil {
		s.logger.Warn().Err(err).Str("identity", req.Identity).Msg("failed to hydrate groups at login")
		groups = nil
	}
	for _, group := range groups {
		client.armGroupRoute(group.ID)
	}

	unread, err := s.unread.Counts(ctx, req.Identity)
	if err != nil {
		s.logger.Warn().Err(err).Str("identity", req.Identity).Msg("failed to hydrate unread counters at login")
		unread = nil
	}

	client.Push(dto.EventLoginSuccess, dto.LoginSuccessPayload{
		Identity:     req.Identity,
		OnlineUsers:  online,
		Groups:       groups,
		Unread:       unread,
		LastMessages: s.lastMessages(ctx, req.Identity, groups, unread),
	})
	client.Push(dto.EventOnlineUsers, online)
	client.Push(dto.EventUserGroups, groups)

	s.logger.Info().Str("identity", req.Identity).Msg("connection authenticated")
	return nil
}

func (s *RealtimeService) verifyToken(tokenString, identity string) error {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return errors.New("invalid session token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return errors.New("invalid token claims")
	}

	subject, _ := claims.GetSubject()
	if subject == "" {
		if raw, ok := claims["identity"].(string); ok {
			subject = raw
		}
	}
	if subject != identity {
		return errors.New("token subject does not match identity")
	}

	return nil
}

// privateChannelKey is order-independent so both directions of a pair share
// one ordering domain.
func privateChannelKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return "private:" + pair[0] + ":" + pair[1]
}

func (s *RealtimeService) handleSendPrivate(ctx context.Context, client *Client, data json.RawMessage) error {
	var req dto.PrivateSendRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	if err := s.validator.Struct(req); err != nil {
		return err
	}

	content, err := s.cleanContent(req.Content)
	if err != nil {
		return err
	}

	sender := client.Identity()

	spanCtx, span := s.tracer.Start(ctx, "realtime.send_private", trace.WithAttributes(
		attribute.String("chat.sender_id", sender),
		attribute.String("chat.receiver_id", req.RecipientID),
	))
	defer span.End()

	lock := s.channelLocks.lock(privateChannelKey(sender, req.RecipientID))
	defer lock.Unlock()

	model := models.Message{
		ID:         uuid.NewString(),
		SenderID:   sender,
		ReceiverID: req.RecipientID,
		Content:    content,
	}
	if err := s.messages.Save(spanCtx, &model); err != nil {
		span.RecordError(err)
		return err
	}

	response := dto.NewMessageResponse(model)

	// The sender and the receiver get distinct events carrying the same
	// message id, so the sender never mistakes its own echo for an
	// incoming message.
	if receiver, ok := s.presence.Get(req.RecipientID); ok {
		receiver.Push(dto.EventPrivateMessage, response)
	}
	client.Push(dto.EventPrivateMessageSent, response)

	s.unread.OnDeliver(spanCtx, req.RecipientID, ConvKeyPrivate(sender))
	s.cacheLastMessage(spanCtx, ConvKeyPrivate(sender), response)
	s.cacheLastMessage(spanCtx, ConvKeyPrivate(req.RecipientID), response)
	s.publishEvent(spanCtx, realtimeEvent{Event: dto.EventPrivateMessage, Message: &response})

	observability.MessagesSent().WithLabelValues(models.ChannelPrivate).Inc()
	return nil
}

func (s *RealtimeService) handleSendGroup(ctx context.Context, client *Client, data json.RawMessage) error {
	var req dto.GroupSendRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	if err := s.validator.Struct(req); err != nil {
		return err
	}

	sender := client.Identity()
	if !s.groups.IsMember(req.GroupID, sender) {
		return ErrNotGroupMember
	}

	content, err := s.cleanContent(req.Content)
	if err != nil {
		return err
	}

	spanCtx, span := s.tracer.Start(ctx, "realtime.send_group", trace.WithAttributes(
		attribute.String("chat.sender_id", sender),
		attribute.String("chat.group_id", req.GroupID),
	))
	defer span.End()

	lock := s.channelLocks.lock("group:" + req.GroupID)
	defer lock.Unlock()

	model := models.Message{
		ID:       uuid.NewString(),
		SenderID: sender,
		GroupID:  req.GroupID,
		Content:  content,
	}
	if err := s.messages.Save(spanCtx, &model); err != nil {
		span.RecordError(err)
		return err
	}

	response := dto.NewMessageResponse(model)

	// Every member including the sender relies on this broadcast to display
	// the message; there is no local echo path.
	s.groups.BroadcastToGroup(req.GroupID, dto.EventGroupMessage, response)

	for _, member := range s.groups.Members(req.GroupID) {
		if member == sender {
			continue
		}
		s.unread.OnDeliver(spanCtx, member, ConvKeyGroup(req.GroupID))
	}

	s.cacheLastMessage(spanCtx, ConvKeyGroup(req.GroupID), response)
	s.publishEvent(spanCtx, realtimeEvent{Event: dto.EventGroupMessage, Message: &response})

	observability.MessagesSent().WithLabelValues(models.ChannelGroup).Inc()
	return nil
}

func (s *RealtimeService) handleSendGlobal(ctx context.Context, client *Client, data json.RawMessage) error {
	var req dto.GlobalSendRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	if err := s.validator.Struct(req); err != nil {
		return err
	}

	content, err := s.cleanContent(req.Content)
	if err != nil {
		return err
	}

	sender := client.Identity()

	spanCtx, span := s.tracer.Start(ctx, "realtime.send_global",
		trace.WithAttributes(attribute.String("chat.sender_id", sender)))
	defer span.End()

	lock := s.channelLocks.lock(ConvKeyGlobal)
	defer lock.Unlock()

	model := models.Message{
		ID:       uuid.NewString(),
		SenderID: sender,
		Content:  content,
	}
	if err := s.messages.Save(spanCtx, &model); err != nil {
		span.RecordError(err)
		return err
	}

	response := dto.NewMessageResponse(model)

	client.Push(dto.EventGlobalMessage, response)
	s.presence.Broadcast(dto.EventGlobalMessage, response, sender)

	for _, entry := range s.presence.Snapshot() {
		if entry.Identity == sender {
			continue
		}
		s.unread.OnDeliver(spanCtx, entry.Identity, ConvKeyGlobal)
	}

	s.cacheLastMessage(spanCtx, ConvKeyGlobal, response)
	s.publishEvent(spanCtx, realtimeEvent{Event: dto.EventGlobalMessage, Message: &response})

	observability.MessagesSent().WithLabelValues(models.ChannelGlobal).Inc()
	return nil
}

func (s *RealtimeService) handleCreateGroup(ctx context.Context, client *Client, data json.RawMessage) error {
	var req dto.GroupCreateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	if err := s.validator.Struct(req); err != nil {
		return err
	}

	_, err := s.groups.Create(ctx, client, req)
	return err
}

func (s *RealtimeService) handleGroupAction(ctx context.Context, client *Client, data json.RawMessage, action func(context.Context, *Client, string) error) error {
	var req dto.GroupActionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	if err := s.validator.Struct(req); err != nil {
		return err
	}
	return action(ctx, client, req.GroupID)
}

func (s *RealtimeService) handleGetConversation(ctx context.Context, client *Client, data json.RawMessage) error {
	var req dto.ConversationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	if err := s.validator.Struct(req); err != nil {
		return err
	}

	identity := client.Identity()
	payload, err := s.unread.OnOpen(ctx, client, ConvKeyPrivate(req.PeerID), func(ctx context.Context) ([]models.Message, error) {
		return s.messages.ListPrivate(ctx, identity, req.PeerID, time.Time{}, 0)
	})
	if err != nil {
		return err
	}

	client.Push(dto.EventConversationHistory, payload)
	return nil
}

func (s *RealtimeService) handleGetGroupHistory(ctx context.Context, client *Client, data json.RawMessage) error {
	var req dto.GroupActionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	if err := s.validator.Struct(req); err != nil {
		return err
	}

	if !s.groups.IsMember(req.GroupID, client.Identity()) {
		return ErrNotGroupMember
	}

	payload, err := s.unread.OnOpen(ctx, client, ConvKeyGroup(req.GroupID), func(ctx context.Context) ([]models.Message, error) {
		return s.messages.ListGroup(ctx, req.GroupID, time.Time{}, 0)
	})
	if err != nil {
		return err
	}

	client.Push(dto.EventGroupHistory, payload)
	return nil
}

func (s *RealtimeService) handleGetGlobalMessages(ctx context.Context, client *Client) error {
	payload, err := s.unread.OnOpen(ctx, client, ConvKeyGlobal, func(ctx context.Context) ([]models.Message, error) {
		return s.messages.ListGlobal(ctx, time.Time{}, 0)
	})
	if err != nil {
		return err
	}

	client.Push(dto.EventGlobalMessagesHistory, payload)
	return nil
}

func (s *RealtimeService) handleUpdateMessage(ctx context.Context, client *Client, data json.RawMessage) error {
	var req dto.MessageUpdateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	if err := s.validator.Struct(req); err != nil {
		return err
	}

	content, err := s.cleanContent(req.Content)
	if err != nil {
		return err
	}

	updated, err := s.messages.Update(ctx, req.MessageID, client.Identity(), content)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotMessageSender
	}
	if err != nil {
		return err
	}

	response := dto.NewMessageResponse(updated)

	lock := s.channelLocks.lock(s.channelKeyOf(updated))
	s.deliverToChannel(updated, dto.EventMessageUpdated, response)
	lock.Unlock()

	s.publishEvent(ctx, realtimeEvent{Event: dto.EventMessageUpdated, Message: &response})
	return nil
}

func (s *RealtimeService) handleDeleteMessage(ctx context.Context, client *Client, data json.RawMessage) error {
	var req dto.MessageActionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	if err := s.validator.Struct(req); err != nil {
		return err
	}

	deleted, err := s.messages.Delete(ctx, req.MessageID, client.Identity())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotMessageSender
	}
	if err != nil {
		return err
	}

	payload := dto.MessageDeletedPayload{MessageID: deleted.ID, GroupID: deleted.GroupID}

	lock := s.channelLocks.lock(s.channelKeyOf(deleted))
	s.deliverToChannel(deleted, dto.EventMessageDeleted, payload)
	lock.Unlock()

	s.publishEvent(ctx, realtimeEvent{Event: dto.EventMessageDeleted, Deleted: &payload})
	return nil
}

func (s *RealtimeService) handleClearGroupHistory(ctx context.Context, client *Client, data json.RawMessage) error {
	var req dto.GroupActionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	if err := s.validator.Struct(req); err != nil {
		return err
	}

	identity := client.Identity()
	if !s.groups.IsMember(req.GroupID, identity) {
		return ErrNotGroupMember
	}

	lock := s.channelLocks.lock("group:" + req.GroupID)
	defer lock.Unlock()

	if err := s.messages.ClearGroup(ctx, req.GroupID); err != nil {
		return err
	}

	payload := dto.GroupHistoryClearedPayload{GroupID: req.GroupID, ClearedBy: identity}
	s.groups.BroadcastToGroup(req.GroupID, dto.EventGroupChatHistoryCleared, payload)
	s.publishEvent(ctx, realtimeEvent{Event: dto.EventGroupChatHistoryCleared, Cleared: &payload})

	s.logger.Info().Str("group_id", req.GroupID).Str("cleared_by", identity).Msg("group chat history cleared")
	return nil
}

func (s *RealtimeService) handleCreateNotification(ctx context.Context, client *Client, data json.RawMessage) error {
	var req dto.NotificationCreateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}

	// The connection's own identity is the actor, whatever the payload claims.
	req.CreatedByID = client.Identity()
	if req.CreatedByName == "" {
		req.CreatedByName = client.DisplayName()
	}

	_, _, err := s.notifications.Notify(ctx, req)
	return err
}

func (s *RealtimeService) handleNotificationRead(ctx context.Context, client *Client, data json.RawMessage) error {
	var req dto.NotificationActionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	if err := s.validator.Struct(req); err != nil {
		return err
	}

	_, err := s.notifications.MarkRead(ctx, req.NotificationID, client.Identity())
	return err
}

func (s *RealtimeService) handleNotificationRemove(ctx context.Context, client *Client, data json.RawMessage) error {
	var req dto.NotificationActionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	if err := s.validator.Struct(req); err != nil {
		return err
	}

	return s.notifications.Remove(ctx, req.NotificationID, client.Identity())
}

// HistoryPrivate is the REST replay path for a private conversation. Unlike
// the getConversation intent it does not touch the unread ledger.
func (s *RealtimeService) HistoryPrivate(ctx context.Context, identity, peer string, before time.Time, limit int) ([]dto.MessageResponse, error) {
	messages, err := s.messages.ListPrivate(ctx, identity, peer, before, limit)
	if err != nil {
		return nil, err
	}
	return dto.NewMessageResponseSlice(messages), nil
}

// HistoryGroup is the REST replay path for a group channel.
func (s *RealtimeService) HistoryGroup(ctx context.Context, identity, groupID string, before time.Time, limit int) ([]dto.MessageResponse, error) {
	if !s.groups.IsMember(groupID, identity) {
		return nil, ErrNotGroupMember
	}
	messages, err := s.messages.ListGroup(ctx, groupID, before, limit)
	if err != nil {
		return nil, err
	}
	return dto.NewMessageResponseSlice(messages), nil
}

// HistoryGlobal is the REST replay path for the broadcast channel.
func (s *RealtimeService) HistoryGlobal(ctx context.Context, before time.Time, limit int) ([]dto.MessageResponse, error) {
	messages, err := s.messages.ListGlobal(ctx, before, limit)
	if err != nil {
		return nil, err
	}
	return dto.NewMessageResponseSlice(messages), nil
}

func (s *RealtimeService) cleanContent(content string) (string, error) {
	clean := strings.TrimSpace(s.sanitizer.Sanitize(content))
	if clean == "" {
		return "", errors.New("message content empty after sanitization")
	}
	return clean, nil
}

func (s *RealtimeService) channelKeyOf(message models.Message) string {
	switch message.Channel() {
	case models.ChannelPrivate:
		return privateChannelKey(message.SenderID, message.ReceiverID)
	case models.ChannelGroup:
		return "group:" + message.GroupID
	default:
		return ConvKeyGlobal
	}
}

// deliverToChannel re-broadcasts an update or delete to the same recipient
// set the original send used.
func (s *RealtimeService) deliverToChannel(message models.Message, event string, payload interface{}) {
	switch message.Channel() {
	case models.ChannelPrivate:
		if receiver, ok := s.presence.Get(message.ReceiverID); ok {
			receiver.Push(event, payload)
		}
		if sender, ok := s.presence.Get(message.SenderID); ok {
			sender.Push(event, payload)
		}
	case models.ChannelGroup:
		s.groups.BroadcastToGroup(message.GroupID, event, payload)
	default:
		s.presence.Broadcast(event, payload, "")
	}
}

func (s *RealtimeService) cacheLastMessage(ctx context.Context, key string, message dto.MessageResponse) {
	if s.redis == nil || s.redisCache == "" {
		return
	}

	payload, err := json.Marshal(message)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal message for cache")
		return
	}

	cacheKey := fmt.Sprintf("%s:%s", s.redisCache, key)
	if err := s.redis.Set(ctx, cacheKey, payload, lastMessageTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache last message")
	}
}

// lastMessages seeds the conversation-list summaries at login from the
// last-message cache.
func (s *RealtimeService) lastMessages(ctx context.Context, identity string, groups []dto.GroupResponse, unread map[string]int64) map[string]dto.MessageResponse {
	if s.redis == nil || s.redisCache == "" {
		return nil
	}

	keys := map[string]struct{}{ConvKeyGlobal: {}}
	for _, group := range groups {
		keys[ConvKeyGroup(group.ID)] = struct{}{}
	}
	for key := range unread {
		keys[key] = struct{}{}
	}
	keys[ConvKeyPrivate(identity)] = struct{}{}

	out := make(map[string]dto.MessageResponse)
	for key := range keys {
		cacheKey := fmt.Sprintf("%s:%s", s.redisCache, key)
		raw, err := s.redis.Get(ctx, cacheKey).Result()
		if err != nil {
			continue
		}
		var message dto.MessageResponse
		if err := json.Unmarshal([]byte(raw), &message); err != nil {
			continue
		}
		out[key] = message
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *RealtimeService) publishEvent(ctx context.Context, event realtimeEvent) {
	event.Source = s.nodeID
	event.SentAt = time.Now().UTC()

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal realtime event")
		return
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(ctx, s.redisStream, payload).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish realtime event to redis")
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish realtime event to nats")
		}
	}
}

func (s *RealtimeService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("realtime redis subscription closed")
			return
		}
		s.handleEvent([]byte(msg.Payload))
	}
}

func (s *RealtimeService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "tripotter-chat", func(msg *nats.Msg) {
		s.handleEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats chat subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain chat nats subscription")
		}
	}()
}

// handleEvent applies chat traffic that originated on another node to the
// connections attached to this one.
func (s *RealtimeService) handleEvent(data []byte) {
	var event realtimeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid realtime event")
		return
	}

	if event.Source == s.nodeID {
		return
	}

	switch event.Event {
	case dto.EventPrivateMessage:
		if event.Message == nil {
			return
		}
		if receiver, ok := s.presence.Get(event.Message.ReceiverID); ok {
			receiver.Push(dto.EventPrivateMessage, *event.Message)
		}
	case dto.EventGroupMessage:
		if event.Message == nil {
			return
		}
		s.groups.BroadcastToGroup(event.Message.GroupID, dto.EventGroupMessage, *event.Message)
	case dto.EventGlobalMessage:
		if event.Message == nil {
			return
		}
		s.presence.Broadcast(dto.EventGlobalMessage, *event.Message, event.Message.SenderID)
	case dto.EventMessageUpdated:
		if event.Message == nil {
			return
		}
		s.deliverToChannel(models.Message{
			ID:         event.Message.ID,
			SenderID:   event.Message.SenderID,
			ReceiverID: event.Message.ReceiverID,
			GroupID:    event.Message.GroupID,
		}, dto.EventMessageUpdated, *event.Message)
	case dto.EventMessageDeleted:
		if event.Deleted == nil {
			return
		}
		if event.Deleted.GroupID != "" {
			s.groups.BroadcastToGroup(event.Deleted.GroupID, dto.EventMessageDeleted, *event.Deleted)
			return
		}
		s.presence.Broadcast(dto.EventMessageDeleted, *event.Deleted, "")
	case dto.EventGroupChatHistoryCleared:
		if event.Cleared == nil {
			return
		}
		s.groups.BroadcastToGroup(event.Cleared.GroupID, dto.EventGroupChatHistoryCleared, *event.Cleared)
	}
}
