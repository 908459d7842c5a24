package dto

import (
	"time"

	"github.com/noah-isme/edunexa-api/internal/models"
)

// ActivityListQuery defines filters for retrieving activity logs.
type ActivityListQuery struct {
	ActorID    string `query:"actor_id" validate:"omitempty,max=64"`
	EntityType string `query:"entity_type" validate:"omitempty,oneof=assignment submission"`
	EntityID   string `query:"entity_id" validate:"omitempty,max=64"`
	Limit      int    `query:"limit" validate:"gte=0,lte=200"`
}

// ActivityResponse serializes activity log entries.
type ActivityResponse struct {
	ID         uint   `json:"id"`
	ActorID    string `json:"actor_id"`
	ActorRole  string `json:"actor_role"`
	Action     string `json:"action"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id,omitempty"`
	// CorrelationID links the entry to the request log lines that produced it.
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// NewActivityResponse converts a model into an activity DTO.
func NewActivityResponse(entry models.ActivityLog) ActivityResponse {
	response := ActivityResponse{
		ID:            entry.ID,
		ActorID:       entry.ActorID,
		ActorRole:     entry.ActorRole,
		Action:        entry.Action,
		EntityType:    entry.EntityType,
		EntityID:      entry.EntityID,
		CorrelationID: entry.CorrelationID,
		CreatedAt:     entry.CreatedAt,
	}
	if len(entry.Metadata) > 0 {
		response.Metadata = entry.Metadata
	}
	return response
}

// NewActivityResponseSlice converts activity models into DTOs.
func NewActivityResponseSlice(entries []models.ActivityLog) []ActivityResponse {
	out := make([]ActivityResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, NewActivityResponse(entry))
	}
	return out
}
