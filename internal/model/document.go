package model

import (
	"io"
	"time"

	"github.com/google/uuid"
)

type Document struct {
	ID          uuid.UUID `json:"id" db:"id"`
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	UploadedBy  uuid.UUID `json:"uploaded_by" db:"uploaded_by"`
	Name        string    `json:"name" db:"name"`
	StorageKey  string    `json:"storage_key" db:"storage_key"`
	ContentType string    `json:"content_type" db:"content_type"`
	SizeBytes   int64     `json:"size_bytes" db:"size_bytes"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// FileUpload carries an uploaded file from the transport layer to services.
type FileUpload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}
