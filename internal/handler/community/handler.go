package community

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/carebook/internal/handler"
	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/internal/service/community"
	"github.com/jwalitptl/carebook/pkg/httputil"
)

type Handler struct {
	svc *community.Service
}

func NewHandler(svc *community.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	comments := r.Group("/community/comments")
	{
		comments.GET("", h.ListComments)
		comments.POST("", h.CreateComment)
		comments.DELETE("/:id", h.DeleteComment)
		comments.POST("/:id/like", h.ToggleLike)
		comments.POST("/:id/replies", h.CreateReply)
		comments.DELETE("/:id/replies/:reply_id", h.DeleteReply)
	}
}

func (h *Handler) ListComments(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}

	comments, err := h.svc.ListComments(c.Request.Context(), actor, handler.Page(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, comments)
}

func (h *Handler) CreateComment(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req model.CreateContentRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	comment, err := h.svc.CreateComment(c.Request.Context(), actor, req.Content)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithStatus(c, http.StatusCreated, comment)
}

func (h *Handler) CreateReply(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	commentID, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req model.CreateContentRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	reply, err := h.svc.CreateReply(c.Request.Context(), actor, commentID, req.Content)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithStatus(c, http.StatusCreated, reply)
}

func (h *Handler) ToggleLike(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	commentID, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	result, err := h.svc.ToggleLike(c.Request.Context(), actor, commentID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, result)
}

// deletionReason reads the moderation reason from the body or ?reason=.
func deletionReason(c *gin.Context) (string, bool) {
	var req model.DeleteContentRequest
	if !handler.BindOptionalJSON(c, &req) {
		return "", false
	}
	if req.Reason == "" {
		req.Reason = c.Query("reason")
	}
	return req.Reason, true
}

func (h *Handler) DeleteComment(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	commentID, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	reason, ok := deletionReason(c)
	if !ok {
		return
	}

	if err := h.svc.DeleteComment(c.Request.Context(), actor, commentID, reason); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, gin.H{"message": "Comment deleted successfully"})
}

func (h *Handler) DeleteReply(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	commentID, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	replyID, ok := handler.ParamUUID(c, "reply_id")
	if !ok {
		return
	}
	reason, ok := deletionReason(c)
	if !ok {
		return
	}

	if err := h.svc.DeleteReply(c.Request.Context(), actor, commentID, replyID, reason); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, gin.H{"message": "Reply deleted successfully"})
}
