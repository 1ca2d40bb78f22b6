package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	ActorID    uuid.UUID       `json:"actor_id" db:"actor_id"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id" db:"entity_id"`
	Reason     *string         `json:"reason,omitempty" db:"reason"`
	Metadata   json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	IPAddress  *string         `json:"ip_address,omitempty" db:"ip_address"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

const (
	// Action types
	AuditActionConfirm    = "confirm"
	AuditActionReject     = "reject"
	AuditActionComplete   = "complete"
	AuditActionReassign   = "reassign"
	AuditActionDelete     = "delete"
	AuditActionBan        = "ban"
	AuditActionRoleChange = "role_change"

	// Entity types
	AuditEntityUser        = "user"
	AuditEntityAppointment = "appointment"
	AuditEntityComment     = "comment"
	AuditEntityReply       = "reply"
	AuditEntityDocument    = "document"
)

type AuditFilters struct {
	ActorID    *uuid.UUID `form:"-"`
	EntityType string     `form:"entity_type"`
	Action     string     `form:"action"`
	Pagination
}
