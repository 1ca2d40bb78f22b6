package audit

import (
	"encoding/csv"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/carebook/internal/handler"
	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/internal/service/audit"
	"github.com/jwalitptl/carebook/pkg/errors"
	"github.com/jwalitptl/carebook/pkg/httputil"
)

const exportLimit = 100

type Handler struct {
	service *audit.Service
}

func NewHandler(service *audit.Service) *Handler {
	return &Handler{
		service: service,
	}
}

func (h *Handler) RegisterAdminRoutes(admin *gin.RouterGroup) {
	audit := admin.Group("/audit")
	{
		audit.GET("", h.ListLogs)
		audit.GET("/export", h.ExportLogs)
	}
}

func (h *Handler) filters(c *gin.Context) (*model.AuditFilters, bool) {
	var filters model.AuditFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		httputil.RespondWithError(c, errors.Validation("invalid query", err))
		return nil, false
	}
	if raw := c.Query("actor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httputil.RespondWithError(c, errors.Validation("invalid actor_id", err))
			return nil, false
		}
		filters.ActorID = &id
	}
	filters.Normalize()
	return &filters, true
}

func (h *Handler) ListLogs(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	filters, ok := h.filters(c)
	if !ok {
		return
	}

	logs, total, err := h.service.List(c.Request.Context(), actor, filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithPagination(c, logs, filters.Page, filters.PageSize, total)
}

// ExportLogs streams every matching entry as CSV, newest first.
func (h *Handler) ExportLogs(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	filters, ok := h.filters(c)
	if !ok {
		return
	}
	filters.Page, filters.PageSize = 1, exportLimit

	logs, total, err := h.service.List(c.Request.Context(), actor, filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=audit_logs_%s.csv", time.Now().Format("20060102")))

	writer := csv.NewWriter(c.Writer)
	_ = writer.Write([]string{"ID", "Actor ID", "Action", "Entity Type", "Entity ID", "Reason", "IP Address", "Created At"})

	for {
		for _, log := range logs {
			_ = writer.Write([]string{
				log.ID.String(),
				log.ActorID.String(),
				log.Action,
				log.EntityType,
				log.EntityID.String(),
				deref(log.Reason),
				deref(log.IPAddress),
				log.CreatedAt.Format(time.RFC3339),
			})
		}
		if filters.Page*filters.PageSize >= total || len(logs) == 0 {
			break
		}
		filters.Page++
		if logs, _, err = h.service.List(c.Request.Context(), actor, filters); err != nil {
			// Headers are out; the truncated file is all we can give.
			break
		}
	}
	writer.Flush()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
