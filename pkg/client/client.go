// Package client is the Go client for the realtime gateway. It maintains the
// websocket session, reconciles server pushes into per-conversation message
// lists, and exposes typed intent senders mirroring the server protocol.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Eddie2111/trip-otter-dev-sub001/internal/dto"
)

var (
	// ErrClosed is returned by senders after Close or a connection drop.
	ErrClosed = errors.New("client: connection closed")
	// ErrLoginRejected wraps the server's loginFailure reason.
	ErrLoginRejected = errors.New("client: login rejected")
)

const (
	dialHandshakeTimeout = 10 * time.Second
	loginTimeout         = 10 * time.Second
	writeTimeout         = 5 * time.Second
)

// Options configures a Dial.
type Options struct {
	// URL is the websocket endpoint, e.g. ws://host/api/v1/realtime/ws.
	URL         string
	Identity    string
	DisplayName string
	Token       string
	Logger      zerolog.Logger
}

// Handler receives a raw event payload from a subscription.
type Handler func(event string, data json.RawMessage)

// Subscription is a registered event handler. Release detaches it; all
// subscriptions are cancelled when the connection drops.
type Subscription struct {
	id     uint64
	client *Client
	once   sync.Once
}

// Release detaches the subscription's handler.
func (s *Subscription) Release() {
	s.once.Do(func() {
		s.client.mu.Lock()
		delete(s.client.subs, s.id)
		s.client.mu.Unlock()
	})
}

type subscription struct {
	event   string
	handler Handler
}

// Client is a connected realtime session. All exported methods are safe for
// concurrent use.
type Client struct {
	conn       *websocket.Conn
	identity   string
	reconciler *Reconciler
	pending    *PendingActions
	logger     zerolog.Logger

	mu      sync.Mutex
	writeMu sync.Mutex
	subs    map[uint64]subscription
	nextSub uint64
	login   LoginSuccessPayload
	closed  chan struct{}
	closeFn sync.Once
}

// Dial connects, authenticates in-band, and seeds the reconciler from the
// loginSuccess payload. It blocks until the server accepts or rejects the
// credentials.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", opts.URL, err)
	}

	c := &Client{
		conn:       conn,
		identity:   opts.Identity,
		reconciler: NewReconciler(opts.Identity),
		pending:    NewPendingActions(),
		logger:     opts.Logger.With().Str("component", "realtime-client").Logger(),
		subs:       make(map[uint64]subscription),
		closed:     make(chan struct{}),
	}

	auth := dto.AuthenticateRequest{
		Identity:    opts.Identity,
		DisplayName: opts.DisplayName,
		Token:       opts.Token,
	}
	if err := c.sendIntent(dto.IntentAuthenticate, auth); err != nil {
		conn.Close()
		return nil, err
	}

	if err := c.awaitLogin(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	go c.readLoop()
	return c, nil
}

// awaitLogin consumes frames until loginSuccess or loginFailure arrives.
func (c *Client) awaitLogin(ctx context.Context) error {
	deadline := time.Now().Add(loginTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("client: set login deadline: %w", err)
	}

	for {
		var envelope dto.Envelope
		if err := c.conn.ReadJSON(&envelope); err != nil {
			return fmt.Errorf("client: awaiting login: %w", err)
		}

		switch envelope.Event {
		case dto.EventLoginSuccess:
			var payload LoginSuccessPayload
			if err := json.Unmarshal(envelope.Data, &payload); err != nil {
				return fmt.Errorf("client: decode loginSuccess: %w", err)
			}
			c.seedLogin(payload)
			return c.conn.SetReadDeadline(time.Time{})
		case dto.EventLoginFailure:
			var payload dto.LoginFailurePayload
			if err := json.Unmarshal(envelope.Data, &payload); err != nil {
				return fmt.Errorf("client: decode loginFailure: %w", err)
			}
			return fmt.Errorf("%w: %s", ErrLoginRejected, payload.Reason)
		default:
			// Presence churn can land before the login ack; skip it.
		}
	}
}

func (c *Client) seedLogin(payload LoginSuccessPayload) {
	c.mu.Lock()
	c.login = payload
	c.mu.Unlock()
	c.reconciler.SeedUnread(payload.Unread)
	c.reconciler.SeedLastMessages(payload.LastMessages)
}

// Login returns the payload received at authentication time.
func (c *Client) Login() LoginSuccessPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.login
}

// Reconciler exposes the local conversation state.
func (c *Client) Reconciler() *Reconciler {
	return c.reconciler
}

// Pending exposes the optimistic action registry.
func (c *Client) Pending() *PendingActions {
	return c.pending
}

// Subscribe registers a handler for one event name, or for every event when
// event is empty. Handlers run on the read loop goroutine.
func (c *Client) Subscribe(event string, handler Handler) *Subscription {
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.subs[id] = subscription{event: event, handler: handler}
	c.mu.Unlock()
	return &Subscription{id: id, client: c}
}

func (c *Client) readLoop() {
	defer c.shutdown()

	for {
		var envelope dto.Envelope
		if err := c.conn.ReadJSON(&envelope); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug().Err(err).Msg("read loop terminated")
			}
			return
		}
		c.reconcile(envelope)
		c.dispatch(envelope)
	}
}

// reconcile applies message-bearing events to the local conversation state
// before user handlers observe them.
func (c *Client) reconcile(envelope dto.Envelope) {
	switch envelope.Event {
	case dto.EventPrivateMessage, dto.EventPrivateMessageSent,
		dto.EventGroupMessage, dto.EventGlobalMessage:
		var message MessageResponse
		if json.Unmarshal(envelope.Data, &message) == nil {
			c.reconciler.ApplyLive(message)
		}
	case dto.EventMessageUpdated:
		var message MessageResponse
		if json.Unmarshal(envelope.Data, &message) == nil {
			c.reconciler.ApplyUpdated(message)
		}
	case dto.EventMessageDeleted:
		var payload MessageDeletedPayload
		if json.Unmarshal(envelope.Data, &payload) == nil {
			c.reconciler.ApplyDeleted(payload.MessageID)
		}
	case dto.EventConversationHistory, dto.EventGroupHistory, dto.EventGlobalMessagesHistory:
		var payload ConversationHistoryPayload
		if json.Unmarshal(envelope.Data, &payload) == nil {
			c.reconciler.ApplyHistory(payload)
		}
	case dto.EventForceDisconnect:
		// Server will close the socket; the read loop exits on its own.
	}
}

func (c *Client) dispatch(envelope dto.Envelope) {
	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.subs))
	for _, sub := range c.subs {
		if sub.event == "" || sub.event == envelope.Event {
			handlers = append(handlers, sub.handler)
		}
	}
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(envelope.Event, envelope.Data)
	}
}

func (c *Client) sendIntent(intent string, payload interface{}) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("client: encode %s: %w", intent, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("client: set write deadline: %w", err)
	}
	if err := c.conn.WriteJSON(dto.Envelope{Event: intent, Data: data}); err != nil {
		return fmt.Errorf("client: send %s: %w", intent, err)
	}
	return nil
}

// SendPrivate sends a direct message. The message is not inserted locally;
// the privateMessageSent echo is the append path, so the list stays in
// server-confirmed order.
func (c *Client) SendPrivate(recipientID, content string) error {
	return c.sendIntent(dto.IntentSendPrivateMessage, dto.PrivateSendRequest{
		RecipientID: recipientID,
		Content:     content,
	})
}

// SendGroup sends to a group channel the client is a member of.
func (c *Client) SendGroup(groupID, content string) error {
	return c.sendIntent(dto.IntentSendGroupMessage, dto.GroupSendRequest{
		GroupID: groupID,
		Content: content,
	})
}

// SendGlobal sends to the broadcast channel.
func (c *Client) SendGlobal(content string) error {
	return c.sendIntent(dto.IntentSendGlobalMessage, dto.GlobalSendRequest{Content: content})
}

// OpenConversation fetches private history with the peer and resets the
// unread counter server-side. The conversationHistory push lands in the
// reconciler.
func (c *Client) OpenConversation(peerID string) error {
	return c.sendIntent(dto.IntentGetConversation, dto.ConversationRequest{PeerID: peerID})
}

// OpenGroup fetches group history and resets its unread counter.
func (c *Client) OpenGroup(groupID string) error {
	return c.sendIntent(dto.IntentGetGroupHistory, dto.GroupActionRequest{GroupID: groupID})
}

// OpenGlobal fetches broadcast history and resets its unread counter.
func (c *Client) OpenGlobal() error {
	return c.sendIntent(dto.IntentGetGlobalMessages, struct{}{})
}

// CreateGroup creates a group with the given members; the caller is
// auto-joined.
func (c *Client) CreateGroup(name string, memberIDs []string) error {
	return c.sendIntent(dto.IntentCreateGroup, dto.GroupCreateRequest{
		Name:      name,
		MemberIDs: memberIDs,
	})
}

// JoinGroup joins an existing group.
func (c *Client) JoinGroup(groupID string) error {
	return c.sendIntent(dto.IntentJoinGroup, dto.GroupActionRequest{GroupID: groupID})
}

// LeaveGroup leaves a group.
func (c *Client) LeaveGroup(groupID string) error {
	return c.sendIntent(dto.IntentLeaveGroup, dto.GroupActionRequest{GroupID: groupID})
}

// UpdateMessage edits a message this identity sent.
func (c *Client) UpdateMessage(messageID, content string) error {
	return c.sendIntent(dto.IntentUpdateMessage, dto.MessageUpdateRequest{
		MessageID: messageID,
		Content:   content,
	})
}

// DeleteMessage tombstones a message this identity sent.
func (c *Client) DeleteMessage(messageID string) error {
	return c.sendIntent(dto.IntentDeleteMessage, dto.MessageActionRequest{MessageID: messageID})
}

// ClearGroupHistory wipes the shared history of a group.
func (c *Client) ClearGroupHistory(groupID string) error {
	return c.sendIntent(dto.IntentDeleteGroupChatHistory, dto.GroupActionRequest{GroupID: groupID})
}

// CreateNotification publishes a notification to another identity.
func (c *Client) CreateNotification(req NotificationCreateRequest) error {
	return c.sendIntent(dto.IntentCreateNotification, req)
}

// MarkNotificationRead flags a notification as read.
func (c *Client) MarkNotificationRead(notificationID uint) error {
	return c.sendIntent(dto.IntentIsNotificationRead, dto.NotificationActionRequest{
		NotificationID: notificationID,
	})
}

// RemoveNotification deletes an owned notification.
func (c *Client) RemoveNotification(notificationID uint) error {
	return c.sendIntent(dto.IntentRemoveNotification, dto.NotificationActionRequest{
		NotificationID: notificationID,
	})
}

// shutdown cancels subscriptions and reverts unacknowledged optimistic
// actions. Runs exactly once, whether Close was called or the read loop hit
// an error.
func (c *Client) shutdown() {
	c.closeFn.Do(func() {
		close(c.closed)
		c.conn.Close()

		c.mu.Lock()
		c.subs = make(map[uint64]subscription)
		c.mu.Unlock()

		if reverted := c.pending.RevertAll(); reverted > 0 {
			c.logger.Debug().Int("reverted", reverted).Msg("rolled back in-flight actions")
		}
	})
}

// Close sends a close frame and tears the session down.
func (c *Client) Close() error {
	c.writeMu.Lock()
	deadline := time.Now().Add(writeTimeout)
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	c.writeMu.Unlock()

	c.shutdown()
	return nil
}

// Done is closed when the session ends.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}
