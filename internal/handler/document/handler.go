package document

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/carebook/internal/handler"
	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/internal/service/document"
	"github.com/jwalitptl/carebook/pkg/httputil"
)

type Handler struct {
	svc *document.Service
}

func NewHandler(svc *document.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	documents := r.Group("/documents")
	{
		documents.GET("", h.ListMine)
		documents.POST("", h.UploadOwn)
		documents.GET("/:id", h.Download)
		documents.DELETE("/:id", h.Delete)
	}

	patients := r.Group("/doctor/patients/:id/documents")
	{
		patients.GET("", h.ListForPatient)
		patients.POST("", h.UploadForPatient)
	}
}

func (h *Handler) ListMine(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}

	docs, err := h.svc.ListMine(c.Request.Context(), actor)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, docs)
}

func (h *Handler) ListForPatient(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	patientID, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	docs, err := h.svc.ListForPatient(c.Request.Context(), actor, patientID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, docs)
}

func (h *Handler) UploadOwn(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	h.upload(c, actor, actor.UserID)
}

func (h *Handler) UploadForPatient(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	patientID, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	h.upload(c, actor, patientID)
}

func (h *Handler) upload(c *gin.Context, actor model.Actor, patientID uuid.UUID) {
	upload, file, ok := handler.FormFile(c, "file")
	if !ok {
		return
	}
	defer file.Close()

	doc, err := h.svc.Upload(c.Request.Context(), actor, patientID, upload)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithStatus(c, http.StatusCreated, doc)
}

// Download streams the stored file with its original name.
func (h *Handler) Download(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	doc, body, err := h.svc.Open(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	defer body.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Name))
	c.Header("Content-Type", doc.ContentType)
	c.Header("Content-Length", strconv.FormatInt(doc.SizeBytes, 10))
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, body); err != nil {
		log.Warn().Err(err).Str("document_id", doc.ID.String()).Msg("Document download interrupted")
	}
}

func (h *Handler) Delete(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), actor, id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, gin.H{"message": "Document deleted successfully"})
}
