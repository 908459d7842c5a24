package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/edunexa-api/internal/dto"
	"github.com/noah-isme/edunexa-api/internal/middleware"
	"github.com/noah-isme/edunexa-api/internal/models"
	"github.com/noah-isme/edunexa-api/internal/repository"
)

const (
	systemActor = "system"
	maskedValue = "***"
)

// Metadata keys containing any of these fragments are masked before storage.
var sensitiveKeyFragments = []string{"email", "token", "password", "secret"}

var (
	errActivityAction = errors.New("action is required")
	errActivityEntity = errors.New("entity type is required")
)

// ActivityEntry is an audit event before it is stored.
type ActivityEntry struct {
	Actor      Actor
	Action     string
	EntityType string
	EntityID   string
	Metadata   map[string]interface{}
}

// ActivityRecorder appends entries to the audit trail.
type ActivityRecorder interface {
	Record(ctx context.Context, entry ActivityEntry) error
}

// ActivityService records and lists audit trail entries.
type ActivityService interface {
	ActivityRecorder
	List(ctx context.Context, query dto.ActivityListQuery) ([]dto.ActivityResponse, error)
}

type activityService struct {
	repo      repository.ActivityLogRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewActivityService constructs the activity log service.
func NewActivityService(repo repository.ActivityLogRepository, validate *validator.Validate, logger zerolog.Logger) ActivityService {
	return &activityService{
		repo:      repo,
		validator: validate,
		logger:    logger.With().Str("component", "activity_service").Logger(),
	}
}

// Record stores entry with lower-cased action and entity type. The request
// correlation id, when present on ctx, is kept alongside the entry.
func (s *activityService) Record(ctx context.Context, entry ActivityEntry) error {
	action := strings.ToLower(strings.TrimSpace(entry.Action))
	entity := strings.ToLower(strings.TrimSpace(entry.EntityType))
	switch {
	case action == "":
		return errActivityAction
	case entity == "":
		return errActivityEntity
	}

	log := models.ActivityLog{
		ActorID:       orSystem(strings.TrimSpace(entry.Actor.ID)),
		ActorRole:     orSystem(strings.ToLower(strings.TrimSpace(entry.Actor.Role))),
		Action:        action,
		EntityType:    entity,
		EntityID:      strings.TrimSpace(entry.EntityID),
		CorrelationID: middleware.CorrelationIDFromContext(ctx),
		Metadata:      maskMetadata(entry.Metadata),
	}

	if err := s.repo.Create(ctx, &log); err != nil {
		s.logger.Error().Err(err).
			Str("action", log.Action).
			Str("entity_id", log.EntityID).
			Msg("failed to persist activity log")
		return err
	}
	return nil
}

func (s *activityService) List(ctx context.Context, query dto.ActivityListQuery) ([]dto.ActivityResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}

	entries, err := s.repo.List(ctx, repository.ActivityLogFilter{
		ActorID:    strings.TrimSpace(query.ActorID),
		EntityType: query.EntityType,
		EntityID:   strings.TrimSpace(query.EntityID),
		Limit:      query.Limit,
	})
	if err != nil {
		return nil, err
	}
	return dto.NewActivityResponseSlice(entries), nil
}

// record is the fire-and-forget form used by the use cases: a missing
// recorder is skipped and failures only reach the log.
func record(ctx context.Context, recorder ActivityRecorder, logger zerolog.Logger, entry ActivityEntry) {
	if recorder == nil {
		return
	}
	if err := recorder.Record(ctx, entry); err != nil {
		logger.Warn().Err(err).Str("action", entry.Action).Msg("failed to record activity")
	}
}

func maskMetadata(metadata map[string]interface{}) datatypes.JSONMap {
	masked := make(datatypes.JSONMap, len(metadata))
	for key, value := range metadata {
		if isSensitiveKey(key) {
			value = maskedValue
		}
		masked[key] = value
	}
	return masked
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

func orSystem(value string) string {
	if value == "" {
		return systemActor
	}
	return value
}
