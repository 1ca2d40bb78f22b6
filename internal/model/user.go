package model

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser   Role = "user"
	RoleDoctor Role = "doctor"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// User represents a registered account
type User struct {
	Base
	CIN               string     `json:"cin" db:"cin"`
	Email             string     `json:"email" db:"email"`
	PasswordHash      string     `json:"-" db:"password_hash"`
	FirstName         string     `json:"first_name" db:"first_name"`
	LastName          string     `json:"last_name" db:"last_name"`
	Role              Role       `json:"role" db:"role"`
	Gender            *string    `json:"gender,omitempty" db:"gender"`
	Phone             *string    `json:"phone,omitempty" db:"phone"`
	Address           *string    `json:"address,omitempty" db:"address"`
	DateOfBirth       *time.Time `json:"date_of_birth,omitempty" db:"date_of_birth"`
	InsuranceProvider *string    `json:"insurance_provider,omitempty" db:"insurance_provider"`
	InsuranceID       *string    `json:"insurance_id,omitempty" db:"insurance_id"`
	ProfilePicture    *string    `json:"profile_picture,omitempty" db:"profile_picture"`
	Language          string     `json:"language" db:"language"`
	Theme             string     `json:"theme" db:"theme"`
}

func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

func (u *User) Actor() Actor {
	return Actor{UserID: u.ID, Role: u.Role}
}

// UserSummary is the public projection of a user shown next to community content.
type UserSummary struct {
	ID             uuid.UUID `json:"id" db:"id"`
	FirstName      string    `json:"first_name" db:"first_name"`
	LastName       string    `json:"last_name" db:"last_name"`
	Role           Role      `json:"role" db:"role"`
	ProfilePicture *string   `json:"profile_picture,omitempty" db:"profile_picture"`
}

// UserFilters narrows admin user listings
type UserFilters struct {
	Role   Role   `form:"role"`
	Search string `form:"search"`
	Pagination
}

type RegisterRequest struct {
	CIN       string  `json:"cin" binding:"required,notblank,max=20"`
	Email     string  `json:"email" binding:"required,email"`
	Password  string  `json:"password" binding:"required,min=8"`
	FirstName string  `json:"first_name" binding:"required,notblank,max=100"`
	LastName  string  `json:"last_name" binding:"required,notblank,max=100"`
	Gender    *string `json:"gender" binding:"omitempty,oneof=male female other"`
	Phone     *string `json:"phone" binding:"omitempty,max=30"`
}

type UpdateProfileRequest struct {
	FirstName         *string    `json:"first_name" binding:"omitempty,notblank,max=100"`
	LastName          *string    `json:"last_name" binding:"omitempty,notblank,max=100"`
	Gender            *string    `json:"gender" binding:"omitempty,oneof=male female other"`
	Phone             *string    `json:"phone" binding:"omitempty,max=30"`
	Address           *string    `json:"address" binding:"omitempty,max=255"`
	DateOfBirth       *time.Time `json:"date_of_birth"`
	InsuranceProvider *string    `json:"insurance_provider" binding:"omitempty,max=100"`
	InsuranceID       *string    `json:"insurance_id" binding:"omitempty,max=100"`
}

type UpdateSettingsRequest struct {
	Language *string `json:"language" binding:"omitempty,oneof=en fr ar"`
	Theme    *string `json:"theme" binding:"omitempty,oneof=light dark"`
}
