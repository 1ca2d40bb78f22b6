// Package policy holds the role and ownership rules evaluated per request.
// Every check is a pure function of the actor and the target; none of them
// touch storage.
package policy

import (
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/pkg/errors"
)

// CanReadAppointment allows the owner, an admin, or the assigned doctor.
func CanReadAppointment(actor model.Actor, apt *model.Appointment) error {
	if actor.UserID == apt.UserID || actor.IsAdmin() {
		return nil
	}
	if actor.IsDoctor() && apt.DoctorID != nil && *apt.DoctorID == actor.UserID {
		return nil
	}
	return errors.Forbidden("not allowed to view this appointment")
}

// CanModifyAppointment covers update and delete. The assigned doctor has
// read access only.
func CanModifyAppointment(actor model.Actor, apt *model.Appointment) error {
	if actor.UserID == apt.UserID || actor.IsAdmin() {
		return nil
	}
	return errors.Forbidden("not allowed to modify this appointment")
}

// CanDecideAppointment covers confirm, reject and complete.
func CanDecideAppointment(actor model.Actor) error {
	if actor.IsAdmin() {
		return nil
	}
	return errors.Forbidden("only administrators can decide appointments")
}

// CanManageUser covers role toggles and bans. Admins cannot act on other
// admins, or on themselves.
func CanManageUser(actor model.Actor, target *model.User) error {
	if !actor.IsAdmin() {
		return errors.Forbidden("only administrators can manage users")
	}
	if target.Role == model.RoleAdmin {
		return errors.Forbidden("administrator accounts cannot be modified")
	}
	return nil
}

// CanListUsers gates the admin directory endpoints.
func CanListUsers(actor model.Actor) error {
	if actor.IsAdmin() {
		return nil
	}
	return errors.Forbidden("only administrators can list users")
}

// CanDeleteContent allows the author or an admin. An admin removing someone
// else's comment or reply must give a reason, which ends up in the audit log.
func CanDeleteContent(actor model.Actor, authorID uuid.UUID, reason string) error {
	if actor.UserID == authorID {
		return nil
	}
	if !actor.IsAdmin() {
		return errors.Forbidden("not allowed to delete this content")
	}
	if strings.TrimSpace(reason) == "" {
		return errors.Validation("a reason is required when deleting another user's content", nil)
	}
	return nil
}

// CanUploadDocument allows the patient themself or any doctor. The document
// service separately requires a confirmed appointment for doctors.
func CanUploadDocument(actor model.Actor, patientID uuid.UUID) error {
	if actor.UserID == patientID || actor.IsDoctor() {
		return nil
	}
	return errors.Forbidden("not allowed to upload to this record")
}

// CanReadDocument allows the owner, an admin, or a doctor who has a confirmed
// appointment with the owner.
func CanReadDocument(actor model.Actor, doc *model.Document, hasConfirmedAppointment bool) error {
	if actor.UserID == doc.UserID || actor.IsAdmin() {
		return nil
	}
	if actor.IsDoctor() && hasConfirmedAppointment {
		return nil
	}
	return errors.Forbidden("not allowed to view this document")
}

// CanDeleteDocument allows the owner, the uploader, or an admin.
func CanDeleteDocument(actor model.Actor, doc *model.Document) error {
	if actor.UserID == doc.UserID || actor.UserID == doc.UploadedBy || actor.IsAdmin() {
		return nil
	}
	return errors.Forbidden("not allowed to delete this document")
}

func Capabilities(actor model.Actor) model.Capabilities {
	admin := actor.IsAdmin()
	doctor := actor.IsDoctor()
	return model.Capabilities{
		CanManageAppointments:     admin,
		CanManageUsers:            admin,
		CanModerateCommunity:      admin,
		CanViewCalendar:           doctor,
		CanUploadPatientDocuments: doctor,
	}
}
