package model

import "github.com/google/uuid"

// Actor is the authenticated caller of an operation. It is resolved once per
// request by the auth middleware and passed explicitly to services.
type Actor struct {
	UserID uuid.UUID `json:"user_id"`
	Role   Role      `json:"role"`
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a Actor) IsDoctor() bool {
	return a.Role == RoleDoctor
}

// Capabilities are role-derived flags for the presentation layer.
type Capabilities struct {
	CanManageAppointments     bool `json:"can_manage_appointments"`
	CanManageUsers            bool `json:"can_manage_users"`
	CanModerateCommunity      bool `json:"can_moderate_community"`
	CanViewCalendar           bool `json:"can_view_calendar"`
	CanUploadPatientDocuments bool `json:"can_upload_patient_documents"`
}
