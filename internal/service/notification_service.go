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
	"gorm.io/gorm"

	"github.com/noah-isme/edunexa-api/internal/dto"
	"github.com/noah-isme/edunexa-api/internal/models"
	"github.com/noah-isme/edunexa-api/internal/observability"
	"github.com/noah-isme/edunexa-api/internal/repository"
)

var (
	// ErrNotificationNotFound is returned when a notification does not belong to the caller.
	ErrNotificationNotFound = errors.New("notification not found")

	errEmptyNotification   = errors.New("notification message empty after sanitization")
	errExternalNotifyLink  = errors.New("notification link must be an application path")
	errNotificationNoOwner = errors.New("user id is required")
)

// Notifier delivers a notification to a single user.
type Notifier interface {
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
}

// NotificationService stores notifications and streams them to connected users.
type NotificationService interface {
	Notifier
	List(ctx context.Context, userID string, query dto.NotificationListQuery) ([]dto.NotificationResponse, error)
	MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error)
	Subscribe(userID string) (<-chan dto.NotificationResponse, func())
	Start(ctx context.Context)
}

type notificationService struct {
	repo      repository.NotificationRepository
	relays    []relay
	hub       *userHub
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	nodeID    string
}

// relayEnvelope is what travels between nodes. Origin lets a node skip its own echo.
type relayEnvelope struct {
	Origin       string                   `json:"origin"`
	Notification dto.NotificationResponse `json:"notification"`
	SentAt       time.Time                `json:"sent_at"`
}

// NewNotificationService constructs a notification service. Cross-node delivery
// is enabled for each of redisClient and natsConn that is non-nil, provided a
// channel base is set.
func NewNotificationService(repo repository.NotificationRepository, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	return &notificationService{
		repo:      repo,
		relays:    relaysFor(channelBase, redisClient, natsConn),
		hub:       newUserHub(),
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "notification_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/edunexa-api/internal/service/notification"),
		nodeID:    uuid.NewString(),
	}
}

func (s *notificationService) Start(ctx context.Context) {
	for _, r := range s.relays {
		go func(r relay) {
			if err := r.listen(ctx, s.receive); err != nil {
				s.logger.Error().Err(err).Str("relay", r.kind()).Msg("notification relay stopped")
			}
		}(r)
	}
}

func (s *notificationService) Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, err
	}

	model := models.Notification{
		UserID:  payload.UserID,
		Type:    payload.Type,
		Title:   plainText(s.sanitizer, payload.Title),
		Message: plainText(s.sanitizer, payload.Message),
		Link:    strings.TrimSpace(payload.Link),
	}
	if model.Message == "" {
		return dto.NotificationResponse{}, errEmptyNotification
	}
	if model.Link != "" && !strings.HasPrefix(model.Link, "/") {
		return dto.NotificationResponse{}, errExternalNotifyLink
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.publish", trace.WithAttributes(
		attribute.String("notification.user_id", model.UserID),
		attribute.String("notification.type", model.Type),
	))
	defer span.End()

	if err := s.repo.Create(spanCtx, &model); err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	response := dto.NewNotificationResponse(model)
	s.deliverLocal(response)
	s.forward(spanCtx, response)

	observability.NotificationsPublishedTotal().WithLabelValues(response.Type).Inc()
	return response, nil
}

func (s *notificationService) List(ctx context.Context, userID string, query dto.NotificationListQuery) ([]dto.NotificationResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errNotificationNoOwner
	}
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}

	notifications, err := s.repo.ListByUser(ctx, userID, query.UnreadOnly, query.Limit, query.Offset)
	if err != nil {
		return nil, err
	}
	return dto.NewNotificationResponseSlice(notifications), nil
}

func (s *notificationService) MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(
		attribute.String("notification.user_id", userID),
		attribute.Int64("notification.id", int64(id)),
	))
	defer span.End()

	notification, err := s.repo.MarkRead(spanCtx, id, userID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return dto.NotificationResponse{}, ErrNotificationNotFound
	case err != nil:
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}
	return dto.NewNotificationResponse(notification), nil
}

// Subscribe attaches a live stream for userID. Callers must invoke the returned
// func once the client disconnects.
func (s *notificationService) Subscribe(userID string) (<-chan dto.NotificationResponse, func()) {
	stream, detach := s.hub.attach(userID)
	observability.SSEClientsActive().Inc()

	var once sync.Once
	return stream, func() {
		once.Do(func() {
			detach()
			observability.SSEClientsActive().Dec()
		})
	}
}

func (s *notificationService) deliverLocal(notification dto.NotificationResponse) {
	if _, dropped := s.hub.deliver(notification); dropped > 0 {
		s.logger.Debug().
			Str("user_id", notification.UserID).
			Int("dropped", dropped).
			Msg("notification skipped for slow stream")
	}
}

// forward hands the notification to every relay. Failures are logged: the
// notification is already stored and the recipient can still list it.
func (s *notificationService) forward(ctx context.Context, notification dto.NotificationResponse) {
	if len(s.relays) == 0 {
		return
	}

	payload, err := json.Marshal(relayEnvelope{
		Origin:       s.nodeID,
		Notification: notification,
		SentAt:       time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode notification envelope")
		return
	}

	for _, r := range s.relays {
		if err := r.send(ctx, payload); err != nil {
			s.logger.Warn().Err(err).Str("relay", r.kind()).Msg("failed to forward notification")
		}
	}
}

// receive delivers an envelope published by another node.
func (s *notificationService) receive(payload []byte) {
	var envelope relayEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("invalid notification envelope")
		return
	}
	if envelope.Origin == s.nodeID {
		return
	}

	notification := envelope.Notification
	if notification.Type == "" {
		notification.Type = models.NotificationTypeInfo
	}
	s.deliverLocal(notification)
}
