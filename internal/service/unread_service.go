package service

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Eddie2111/trip-otter-dev-sub001/internal/dto"
	"github.com/Eddie2111/trip-otter-dev-sub001/internal/models"
	"github.com/Eddie2111/trip-otter-dev-sub001/internal/observability"
)

// Conversation keys used by the unread ledger and the client reconciler.
const ConvKeyGlobal = "global"

// ConvKeyPrivate keys the private conversation with one peer identity.
func ConvKeyPrivate(peer string) string { return "user:" + peer }

// ConvKeyGroup keys a group conversation.
func ConvKeyGroup(groupID string) string { return "group:" + groupID }

func unreadHashKey(viewer string) string { return "unread:" + viewer }

// UnreadService is the per-viewer, per-conversation unread ledger, kept in a
// Redis hash so counters survive reconnects and are shared across nodes.
type UnreadService struct {
	redis    *redis.Client
	presence *PresenceService
	logger   zerolog.Logger
}

// NewUnreadService constructs the unread ledger.
func NewUnreadService(redisClient *redis.Client, presence *PresenceService, logger zerolog.Logger) *UnreadService {
	return &UnreadService{
		redis:    redisClient,
		presence: presence,
		logger:   logger.With().Str("component", "unread_service").Logger(),
	}
}

// OnDeliver increments the viewer's counter for the conversation unless that
// conversation is the viewer's currently open one.
func (s *UnreadService) OnDeliver(ctx context.Context, viewer, key string) {
	if s.presence.ActiveConversation(viewer) == key {
		return
	}
	if err := s.redis.HIncrBy(ctx, unreadHashKey(viewer), key, 1).Err(); err != nil {
		s.logger.Warn().Err(err).Str("viewer", viewer).Str("key", key).Msg("failed to increment unread counter")
	}
}

// OnOpen runs the history fetch for the conversation, resets the counter to
// zero and returns both in one payload, so a client never observes history
// without the matching counter reset. It also marks the conversation as the
// viewer's active one.
func (s *UnreadService) OnOpen(ctx context.Context, client *Client, key string, fetch func(context.Context) ([]models.Message, error)) (dto.ConversationHistoryPayload, error) {
	messages, err := fetch(ctx)
	if err != nil {
		return dto.ConversationHistoryPayload{}, err
	}

	client.setActiveConversation(key)

	if err := s.redis.HDel(ctx, unreadHashKey(client.Identity()), key).Err(); err != nil {
		s.logger.Warn().Err(err).Str("viewer", client.Identity()).Str("key", key).Msg("failed to reset unread counter")
	}
	observability.UnreadResets().Inc()

	return dto.ConversationHistoryPayload{
		Key:      key,
		Messages: dto.NewMessageResponseSlice(messages),
		Unread:   0,
	}, nil
}

// Counts returns the viewer's full unread map, used to seed the conversation
// list after login.
func (s *UnreadService) Counts(ctx context.Context, viewer string) (map[string]int64, error) {
	raw, err := s.redis.HGetAll(ctx, unreadHashKey(viewer)).Result()
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(raw))
	for key, value := range raw {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		counts[key] = parsed
	}
	return counts, nil
}
