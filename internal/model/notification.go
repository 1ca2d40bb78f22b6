package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationAppointmentConfirmed NotificationType = "appointment_confirmed"
	NotificationAppointmentRejected  NotificationType = "appointment_rejected"
	NotificationAppointmentCompleted NotificationType = "appointment_completed"
	NotificationLike                 NotificationType = "like"
	NotificationReply                NotificationType = "reply"
	NotificationCommentDeletion      NotificationType = "comment_deletion"
	NotificationDocumentUploaded     NotificationType = "document_uploaded"
	NotificationSystem               NotificationType = "system"
)

type Notification struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	UserID    uuid.UUID        `json:"user_id" db:"user_id"`
	ActorID   *uuid.UUID       `json:"actor_id,omitempty" db:"actor_id"`
	Type      NotificationType `json:"type" db:"type"`
	Message   string           `json:"message" db:"message"`
	Link      *string          `json:"link,omitempty" db:"link"`
	IsRead    bool             `json:"is_read" db:"is_read"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// NotificationEvent is the outbox payload published when a notification is stored.
type NotificationEvent struct {
	NotificationID uuid.UUID        `json:"notification_id"`
	UserID         uuid.UUID        `json:"user_id"`
	Type           NotificationType `json:"type"`
	Message        string           `json:"message"`
	CreatedAt      time.Time        `json:"created_at"`
}
