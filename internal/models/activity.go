package models

import (
	"time"

	"gorm.io/datatypes"
)

// Audited entity kinds.
const (
	EntityAssignment = "assignment"
	EntitySubmission = "submission"
)

// Audited actions, named "<entity>.<verb>".
const (
	ActionAssignmentCreated     = "assignment.created"
	ActionAssignmentUpdated     = "assignment.updated"
	ActionAssignmentDeactivated = "assignment.deactivated"
	ActionAssignmentExported    = "assignment.exported"
	ActionSubmissionCreated     = "submission.created"
	ActionSubmissionGraded      = "submission.graded"
)

// ActivityLog is one entry of the assignment and submission audit trail.
// ActorID is "system" for entries recorded without an authenticated actor.
type ActivityLog struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	ActorID       string            `gorm:"size:64;not null;index:idx_activity_actor" json:"actor_id"`
	ActorRole     string            `gorm:"size:32;not null" json:"actor_role"`
	Action        string            `gorm:"size:64;not null" json:"action"`
	EntityType    string            `gorm:"size:32;not null;index:idx_activity_entity,priority:1" json:"entity_type"`
	EntityID      string            `gorm:"size:64;index:idx_activity_entity,priority:2" json:"entity_id"`
	CorrelationID string            `gorm:"size:64" json:"correlation_id,omitempty"`
	Metadata      datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt     time.Time         `gorm:"index" json:"created_at"`
}
