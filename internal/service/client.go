package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/Eddie2111/trip-otter-dev-sub001/internal/dto"
)

// Connection lifecycle states. Chat traffic is accepted only in stateReady.
const (
	stateConnecting int32 = iota
	stateAuthenticating
	stateReady
	stateClosed
)

const (
	clientSendBufferSize = 64

	// Time allowed to write a message to the peer.
	writeWait = 3 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = 20 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 25 * time.Second

	// Websocket max message size to read.
	readLimit = 8192
)

// Client is one live websocket connection. Delivery to it is always
// non-blocking: a full send buffer drops the push rather than stalling the
// sender.
type Client struct {
	conn    *websocket.Conn
	service *RealtimeService
	logger  zerolog.Logger

	send   chan dto.Push
	closed chan struct{}
	once   sync.Once

	state       atomic.Int32
	identity    atomic.Value // string
	displayName atomic.Value // string
	active      atomic.Value // string, current open conversation key

	mu     sync.RWMutex
	groups map[string]struct{} // live group routes armed on this connection

	baseCtx context.Context
}

func newClient(conn *websocket.Conn, service *RealtimeService, baseCtx context.Context, logger zerolog.Logger) *Client {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	c := &Client{
		conn:    conn,
		service: service,
		logger:  logger,
		send:    make(chan dto.Push, clientSendBufferSize),
		closed:  make(chan struct{}),
		groups:  make(map[string]struct{}),
		baseCtx: baseCtx,
	}
	c.state.Store(stateConnecting)
	c.identity.Store("")
	c.displayName.Store("")
	c.active.Store("")
	return c
}

// Identity returns the authenticated identity, empty before loginSuccess.
func (c *Client) Identity() string {
	v, _ := c.identity.Load().(string)
	return v
}

// DisplayName returns the display name supplied at authentication.
func (c *Client) DisplayName() string {
	v, _ := c.displayName.Load().(string)
	return v
}

// Ready reports whether the connection may send or receive chat traffic.
func (c *Client) Ready() bool {
	return c.state.Load() == stateReady
}

// ActiveConversation returns the conversation key the client currently has
// open, used to suppress unread increments for the visible conversation.
func (c *Client) ActiveConversation() string {
	v, _ := c.active.Load().(string)
	return v
}

func (c *Client) setActiveConversation(key string) {
	c.active.Store(key)
}

// Push queues an event for delivery. It never blocks; it reports whether the
// event was accepted.
func (c *Client) Push(event string, data interface{}) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- dto.Push{Event: event, Data: data}:
		return true
	default:
		c.logger.Warn().Str("event", event).Str("identity", c.Identity()).Msg("dropping push for slow client")
		return false
	}
}

// ForceDisconnect pushes a forceDisconnect event with a reason and closes the
// connection. Used when a newer connection supersedes this one.
func (c *Client) ForceDisconnect(reason string) {
	c.Push(dto.EventForceDisconnect, dto.ForceDisconnectPayload{Reason: reason})
	// Give the write pump a moment to flush the reason before closing.
	time.AfterFunc(writeWait, c.close)
}

func (c *Client) armGroupRoute(groupID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups[groupID] = struct{}{}
}

func (c *Client) disarmGroupRoute(groupID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.groups, groupID)
}

// hasGroupRoute reports whether this connection subscribed to the group's
// live traffic. Routes are per connection handle: a reconnect starts empty.
func (c *Client) hasGroupRoute(groupID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.groups[groupID]
	return ok
}

func (c *Client) reader() {
	defer c.close()

	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var envelope dto.Envelope
		if err := c.conn.ReadJSON(&envelope); err != nil {
			c.logger.Debug().Err(err).Msg("read loop ended")
			return
		}

		c.service.dispatch(c.baseCtx, c, envelope)

		select {
		case <-c.closed:
			return
		default:
		}
	}
}

func (c *Client) writer() {
	defer c.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case push, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(push); err != nil {
				c.logger.Debug().Err(err).Msg("write loop terminated")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.logger.Debug().Err(err).Msg("ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		c.state.Store(stateClosed)
		close(c.closed)
		if c.service != nil {
			c.service.onDisconnect(c)
		}
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
