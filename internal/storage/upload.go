package storage

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/pkg/errors"
)

const MiB = 1 << 20

// UploadPolicy restricts what a single upload may contain.
type UploadPolicy struct {
	MaxSize int64
	// Types maps allowed lower-case extensions to their content type.
	Types map[string]string
}

var (
	DocumentPolicy = UploadPolicy{
		MaxSize: 10 * MiB,
		Types: map[string]string{
			".pdf":  "application/pdf",
			".doc":  "application/msword",
			".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			".jpg":  "image/jpeg",
			".jpeg": "image/jpeg",
			".png":  "image/png",
		},
	}

	PicturePolicy = UploadPolicy{
		MaxSize: 5 * MiB,
		Types: map[string]string{
			".jpg":  "image/jpeg",
			".jpeg": "image/jpeg",
			".png":  "image/png",
			".gif":  "image/gif",
		},
	}
)

// Check validates f and returns the normalized extension and content type.
// The declared content type from the client is not trusted.
func (p UploadPolicy) Check(f *model.FileUpload) (ext, contentType string, err error) {
	if f == nil || f.Body == nil {
		return "", "", errors.Validation("file is required", nil)
	}
	name := strings.TrimSpace(filepath.Base(f.Name))
	if name == "" || name == "." {
		return "", "", errors.Validation("file name is required", nil)
	}
	if f.Size <= 0 {
		return "", "", errors.Validation("file is empty", nil)
	}
	if f.Size > p.MaxSize {
		return "", "", errors.Validation(fmt.Sprintf("file exceeds the %d MB limit", p.MaxSize/MiB), nil)
	}

	ext = strings.ToLower(filepath.Ext(name))
	contentType, ok := p.Types[ext]
	if !ok {
		return "", "", errors.Validation(fmt.Sprintf("file type %q is not allowed", ext), nil)
	}
	return ext, contentType, nil
}

// Key builds a collision-free object key under prefix.
func Key(prefix string, owner uuid.UUID, ext string) string {
	return fmt.Sprintf("%s/%s/%s%s", prefix, owner, uuid.NewString(), ext)
}
