package user

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/carebook/internal/handler"
	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/internal/service/user"
	"github.com/jwalitptl/carebook/pkg/errors"
	"github.com/jwalitptl/carebook/pkg/httputil"
)

// Handler serves the authenticated user's own account under /me and the
// admin user directory.
type Handler struct {
	svc *user.Service
}

func NewHandler(svc *user.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	me := r.Group("/me")
	{
		me.GET("", h.GetProfile)
		me.PUT("", h.UpdateProfile)
		me.PUT("/settings", h.UpdateSettings)
		me.GET("/capabilities", h.Capabilities)
		me.POST("/picture", h.UploadPicture)
	}
}

func (h *Handler) RegisterAdminRoutes(admin *gin.RouterGroup) {
	admin.GET("/users", h.ListUsers)
	admin.GET("/doctors", h.ListDoctors)
	admin.PUT("/users/:id/role", h.ToggleRole)
	admin.DELETE("/users/:id/ban", h.BanUser)
}

func (h *Handler) GetProfile(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}

	profile, err := h.svc.GetProfile(c.Request.Context(), actor)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, profile)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req model.UpdateProfileRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	profile, err := h.svc.UpdateProfile(c.Request.Context(), actor, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, profile)
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req model.UpdateSettingsRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	profile, err := h.svc.UpdateSettings(c.Request.Context(), actor, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, profile)
}

func (h *Handler) Capabilities(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	httputil.RespondWithSuccess(c, h.svc.Capabilities(actor))
}

func (h *Handler) UploadPicture(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	upload, file, ok := handler.FormFile(c, "file")
	if !ok {
		return
	}
	defer file.Close()

	profile, err := h.svc.UploadPicture(c.Request.Context(), actor, upload)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithStatus(c, http.StatusCreated, profile)
}

func (h *Handler) ListUsers(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var filters model.UserFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		httputil.RespondWithError(c, errors.Validation("invalid query", err))
		return
	}
	filters.Normalize()

	users, total, err := h.svc.ListUsers(c.Request.Context(), actor, &filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithPagination(c, users, filters.Page, filters.PageSize, total)
}

func (h *Handler) ListDoctors(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	page := handler.Page(c)

	doctors, total, err := h.svc.ListDoctors(c.Request.Context(), actor, page)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithPagination(c, doctors, page.Page, page.PageSize, total)
}

func (h *Handler) ToggleRole(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	updated, err := h.svc.ToggleRole(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, updated)
}

func (h *Handler) BanUser(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req model.DeleteContentRequest
	if !handler.BindOptionalJSON(c, &req) {
		return
	}
	if req.Reason == "" {
		req.Reason = c.Query("reason")
	}

	if err := h.svc.Ban(c.Request.Context(), actor, id, req.Reason); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, gin.H{"message": "User banned successfully"})
}
