// Package handler holds the helpers shared by the resource handlers in its
// subpackages.
package handler

import (
	stderrors "errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/carebook/internal/middleware"
	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/pkg/errors"
	"github.com/jwalitptl/carebook/pkg/httputil"
	"github.com/jwalitptl/carebook/pkg/validator"
)

// Actor returns the authenticated actor. Routes using it sit behind
// middleware.Authenticate; a missing actor is answered with 401.
func Actor(c *gin.Context) (model.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		httputil.RespondWithError(c, errors.Unauthenticated(nil))
	}
	return actor, ok
}

// ParamUUID parses a path parameter, answering 400 when it is malformed.
func ParamUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httputil.RespondWithError(c, errors.Validation("invalid "+name, err))
		return uuid.Nil, false
	}
	return id, true
}

// BindJSON binds and validates a JSON body, answering 400 on failure.
func BindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httputil.RespondWithError(c, validator.FromBinding(err))
		return false
	}
	return true
}

// BindOptionalJSON is BindJSON for bodies that may be omitted.
func BindOptionalJSON(c *gin.Context, req interface{}) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil && !stderrors.Is(err, io.EOF) {
		httputil.RespondWithError(c, validator.FromBinding(err))
		return false
	}
	return true
}

// Page reads page and page_size query parameters.
func Page(c *gin.Context) model.Pagination {
	var p model.Pagination
	_ = c.ShouldBindQuery(&p)
	p.Normalize()
	return p
}

// FormFile reads the named multipart file. The caller closes the returned
// file.
func FormFile(c *gin.Context, field string) (*model.FileUpload, multipart.File, bool) {
	header, err := c.FormFile(field)
	if err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			httputil.RespondWithMessage(c, http.StatusRequestEntityTooLarge, "file too large")
			return nil, nil, false
		}
		httputil.RespondWithError(c, errors.Validation("No file provided", err))
		return nil, nil, false
	}
	f, err := header.Open()
	if err != nil {
		httputil.RespondWithError(c, errors.Validation("could not read upload", err))
		return nil, nil, false
	}
	return &model.FileUpload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        f,
	}, f, true
}
