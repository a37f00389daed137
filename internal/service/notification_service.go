package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Eddie2111/trip-otter-dev-sub001/internal/dto"
	"github.com/Eddie2111/trip-otter-dev-sub001/internal/models"
	"github.com/Eddie2111/trip-otter-dev-sub001/internal/observability"
	"github.com/Eddie2111/trip-otter-dev-sub001/internal/repository"
)

const (
	notificationBufferSize = 16
	markReadBatchSize      = 25
	markReadWorkers        = 4
)

// NotificationService creates notification records on domain events and
// pushes them to the receiver when connected. Persistence always happens, so
// offline receivers pick them up on their next query.
type NotificationService struct {
	repo        repository.NotificationRepository
	presence    *PresenceService
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	sanitizer   *bluemonday.Policy
	broker      *notificationBroker
	nodeID      string
}

type notificationEvent struct {
	Source       string                   `json:"source"`
	Notification dto.NotificationResponse `json:"notification"`
	SentAt       time.Time                `json:"sent_at"`
}

// notificationBroker fans notifications out to SSE subscribers per user.
type notificationBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan dto.NotificationResponse]struct{}
}

// NewNotificationService constructs the notification fan-out.
func NewNotificationService(repo repository.NotificationRepository, presence *PresenceService, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, validate *validator.Validate, logger zerolog.Logger) *NotificationService {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":notifications"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".notifications"
	}

	return &NotificationService{
		repo:        repo,
		presence:    presence,
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		validator:   validate,
		logger:      logger.With().Str("component", "notification_service").Logger(),
		tracer:      otel.Tracer("github.com/Eddie2111/trip-otter-dev-sub001/internal/service/notification"),
		sanitizer:   bluemonday.StrictPolicy(),
		broker: &notificationBroker{
			subscribers: make(map[string]map[chan dto.NotificationResponse]struct{}),
		},
		nodeID: uuid.NewString(),
	}
}

// Start launches the cross-node event consumers.
func (s *NotificationService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

// Notify creates a notification unless the actor and the receiver are the
// same identity. It reports whether a record was created.
func (s *NotificationService) Notify(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, bool, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, false, err
	}

	// A user never notifies themself.
	if payload.CreatedByID == payload.ReceiverID {
		return dto.NotificationResponse{}, false, nil
	}

	cleanContent := strings.TrimSpace(s.sanitizer.Sanitize(payload.Content))
	if cleanContent == "" {
		return dto.NotificationResponse{}, false, errors.New("notification content empty after sanitization")
	}

	attrs := []attribute.KeyValue{
		attribute.String("notification.receiver_id", payload.ReceiverID),
		attribute.String("notification.type", payload.Type),
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.notify", trace.WithAttributes(attrs...))
	defer span.End()

	model := models.Notification{
		CreatedByID:     payload.CreatedByID,
		CreatedByName:   payload.CreatedByName,
		CreatedByAvatar: payload.CreatedByAvatar,
		ReceiverID:      payload.ReceiverID,
		Type:            payload.Type,
		Content:         cleanContent,
		PostURL:         payload.PostURL,
	}

	if err := s.repo.Create(spanCtx, &model); err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, false, err
	}

	response := dto.NewNotificationResponse(model)
	s.deliver(response)
	if err := s.publish(spanCtx, response); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish notification event")
	}

	observability.NotificationsPublished().WithLabelValues(response.Type).Inc()

	return response, true, nil
}

// List returns the receiver's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, receiverID string, limit, offset int) ([]dto.NotificationResponse, error) {
	if strings.TrimSpace(receiverID) == "" {
		return nil, errors.New("receiver id is required")
	}

	notifications, err := s.repo.ListByReceiver(ctx, receiverID, limit, offset)
	if err != nil {
		return nil, err
	}

	return dto.NewNotificationResponseSlice(notifications), nil
}

// MarkRead marks the notification read. Idempotent: marking an already-read
// notification returns the unmodified record without error.
func (s *NotificationService) MarkRead(ctx context.Context, id uint, receiverID string) (dto.NotificationResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "notifications.mark_read",
		trace.WithAttributes(attribute.String("notification.receiver_id", receiverID)))
	defer span.End()

	notification, err := s.repo.MarkRead(spanCtx, id, receiverID)
	if err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	response := dto.NewNotificationResponse(notification)
	if client, ok := s.presence.Get(receiverID); ok {
		client.Push(dto.EventNotificationUpdated, response)
	}

	return response, nil
}

// MarkAllRead processes the receiver's unread notifications in bounded
// batches. A failed batch is retried item by item; items that still fail are
// reported, successes are never rolled back.
func (s *NotificationService) MarkAllRead(ctx context.Context, receiverID string) (dto.MarkAllReadResult, error) {
	ids, err := s.repo.UnreadIDs(ctx, receiverID)
	if err != nil {
		return dto.MarkAllReadResult{}, err
	}
	if len(ids) == 0 {
		return dto.MarkAllReadResult{}, nil
	}

	batches := make(chan []uint, (len(ids)+markReadBatchSize-1)/markReadBatchSize)
	for start := 0; start < len(ids); start += markReadBatchSize {
		end := start + markReadBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batches <- ids[start:end]
	}
	close(batches)

	var (
		mu      sync.Mutex
		updated int
		failed  []uint
		wg      sync.WaitGroup
	)

	workers := markReadWorkers
	if workers > len(ids) {
		workers = len(ids)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range batches {
				if err := s.repo.MarkReadBatch(ctx, batch, receiverID); err == nil {
					mu.Lock()
					updated += len(batch)
					mu.Unlock()
					continue
				}

				// Retry only the failed subset, one item at a time.
				for _, id := range batch {
					if err := s.repo.MarkReadBatch(ctx, []uint{id}, receiverID); err != nil {
						mu.Lock()
						failed = append(failed, id)
						mu.Unlock()
						continue
					}
					mu.Lock()
					updated++
					mu.Unlock()
				}
			}
		}()
	}

	wg.Wait()

	result := dto.MarkAllReadResult{Updated: updated, Failed: failed}
	s.logger.Info().Str("receiver_id", receiverID).Int("updated", updated).Int("failed", len(failed)).Msg("mark all read completed")
	return result, nil
}

// Remove deletes the notification and announces the removal only to the
// owner's own active connection.
func (s *NotificationService) Remove(ctx context.Context, id uint, receiverID string) error {
	if _, err := s.repo.Delete(ctx, id, receiverID); err != nil {
		return err
	}

	if client, ok := s.presence.Get(receiverID); ok {
		client.Push(dto.EventNotificationRemoved, dto.NotificationRemovedPayload{NotificationID: id})
	}

	return nil
}

// Subscribe registers an SSE stream for the user. The returned cleanup must
// be called when the stream ends.
func (s *NotificationService) Subscribe(userID string) (<-chan dto.NotificationResponse, func()) {
	channel := make(chan dto.NotificationResponse, notificationBufferSize)

	s.broker.subscribe(userID, channel)
	observability.SSEClientsActive().Inc()

	cleanup := func() {
		s.broker.unsubscribe(userID, channel)
		observability.SSEClientsActive().Dec()
	}

	return channel, cleanup
}

// deliver pushes the notification to the receiver's live connection and SSE
// subscribers on this node.
func (s *NotificationService) deliver(notification dto.NotificationResponse) {
	if client, ok := s.presence.Get(notification.ReceiverID); ok {
		client.Push(dto.EventNewNotification, notification)
	}
	s.broker.broadcast(notification.ReceiverID, notification)
}

func (s *NotificationService) publish(ctx context.Context, notification dto.NotificationResponse) error {
	event := notificationEvent{
		Source:       s.nodeID,
		Notification: notification,
		SentAt:       time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(ctx, s.redisStream, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (s *NotificationService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("notification redis subscription closed")
			return
		}
		s.handleEvent([]byte(msg.Payload))
	}
}

func (s *NotificationService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "tripotter-notifications", func(msg *nats.Msg) {
		s.handleEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats notifications subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain notification nats subscription")
		}
	}()
}

func (s *NotificationService) handleEvent(payload []byte) {
	var event notificationEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid notification event payload")
		return
	}

	if event.Source == s.nodeID {
		return
	}

	s.deliver(event.Notification)
}

func (b *notificationBroker) subscribe(userID string, ch chan dto.NotificationResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[userID]; !exists {
		b.subscribers[userID] = make(map[chan dto.NotificationResponse]struct{})
	}
	b.subscribers[userID][ch] = struct{}{}
}

func (b *notificationBroker) unsubscribe(userID string, ch chan dto.NotificationResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[userID]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, userID)
		}
	}
}

func (b *notificationBroker) broadcast(userID string, notification dto.NotificationResponse) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscribers := b.subscribers[userID]
	for ch := range subscribers {
		select {
		case ch <- notification:
		default:
		}
	}
}
