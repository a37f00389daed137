package service

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Eddie2111/trip-otter-dev-sub001/internal/dto"
	"github.com/Eddie2111/trip-otter-dev-sub001/internal/observability"
)

const presenceOnlineKey = "presence:online"

// ErrNotAuthenticated indicates a register attempt for a connection that
// never completed authentication. Registration fails closed.
var ErrNotAuthenticated = errors.New("connection is not authenticated")

// PresenceService tracks which identities currently hold an open connection.
// At most one connection handle per identity is authoritative for delivery; a
// new connection supersedes the prior handle.
type PresenceService struct {
	mu      sync.RWMutex
	clients map[string]*Client

	redis  *redis.Client
	logger zerolog.Logger
}

// NewPresenceService constructs the presence registry. The Redis mirror is
// optional; without it snapshots are local to this node.
func NewPresenceService(redisClient *redis.Client, logger zerolog.Logger) *PresenceService {
	return &PresenceService{
		clients: make(map[string]*Client),
		redis:   redisClient,
		logger:  logger.With().Str("component", "presence_service").Logger(),
	}
}

// Register records the client's identity as online, supersedes any prior
// handle for that identity and returns the current online set. It broadcasts
// userOnline to every other connected identity.
func (s *PresenceService) Register(ctx context.Context, client *Client) ([]dto.PresenceEntry, error) {
	identity := client.Identity()
	if identity == "" || !client.Ready() {
		return nil, ErrNotAuthenticated
	}

	s.mu.Lock()
	if prior, ok := s.clients[identity]; ok && prior != client {
		s.logger.Info().Str("identity", identity).Msg("superseding prior connection")
		prior.ForceDisconnect("signed in from another connection")
		// The evicted handle's Deregister no-ops once the map points at the
		// new connection, so its gauge slot is released here.
		observability.ConnectionsActive().Dec()
	}
	s.clients[identity] = client
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if s.redis != nil {
		if err := s.redis.SAdd(ctx, presenceOnlineKey, identity).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to mirror presence to redis")
		}
	}

	observability.ConnectionsActive().Inc()

	s.Broadcast(dto.EventUserOnline, dto.PresenceEntry{
		Identity:    identity,
		DisplayName: client.DisplayName(),
		Online:      true,
	}, identity)

	return snapshot, nil
}

// Deregister marks the client's identity offline if this client is still the
// authoritative handle, and broadcasts userOffline.
func (s *PresenceService) Deregister(ctx context.Context, client *Client) {
	identity := client.Identity()
	if identity == "" {
		return
	}

	s.mu.Lock()
	current, ok := s.clients[identity]
	if !ok || current != client {
		// A newer connection superseded this handle; nothing to clean up.
		s.mu.Unlock()
		return
	}
	delete(s.clients, identity)
	s.mu.Unlock()

	if s.redis != nil {
		if err := s.redis.SRem(ctx, presenceOnlineKey, identity).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to clear presence mirror")
		}
	}

	observability.ConnectionsActive().Dec()

	s.Broadcast(dto.EventUserOffline, dto.PresenceEntry{
		Identity:    identity,
		DisplayName: client.DisplayName(),
		Online:      false,
	}, identity)
}

// Get returns the authoritative connection handle for an identity.
func (s *PresenceService) Get(identity string) (*Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, ok := s.clients[identity]
	return client, ok
}

// Snapshot returns the currently online identities, used to seed a client's
// conversation list after login.
func (s *PresenceService) Snapshot() []dto.PresenceEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *PresenceService) snapshotLocked() []dto.PresenceEntry {
	entries := make([]dto.PresenceEntry, 0, len(s.clients))
	for identity, client := range s.clients {
		entries = append(entries, dto.PresenceEntry{
			Identity:    identity,
			DisplayName: client.DisplayName(),
			Online:      true,
		})
	}
	return entries
}

// ActiveConversation reports the conversation key the identity currently has
// open, or empty when offline.
func (s *PresenceService) ActiveConversation(identity string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if client, ok := s.clients[identity]; ok {
		return client.ActiveConversation()
	}
	return ""
}

// Broadcast pushes an event to every ready connection except the one owned by
// the excluded identity. Delivery is fire-and-forget.
func (s *PresenceService) Broadcast(event string, data interface{}, except string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for identity, client := range s.clients {
		if identity == except {
			continue
		}
		client.Push(event, data)
	}
}
