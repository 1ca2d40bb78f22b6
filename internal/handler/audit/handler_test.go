package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/carebook/internal/middleware"
	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/internal/repository/memory"
	"github.com/jwalitptl/carebook/internal/service/audit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setup(t *testing.T, role model.Role, entries int) *gin.Engine {
	t.Helper()
	store := memory.NewStore()
	adminID := uuid.New()
	for i := 0; i < entries; i++ {
		action := model.AuditActionConfirm
		if i%2 == 1 {
			action = model.AuditActionBan
		}
		require.NoError(t, store.Audit().Create(context.Background(), &model.AuditLog{
			ActorID:    adminID,
			Action:     action,
			EntityType: model.AuditEntityAppointment,
			EntityID:   uuid.New(),
		}))
	}

	r := gin.New()
	admin := r.Group("/admin")
	admin.Use(func(c *gin.Context) {
		c.Set(middleware.ContextActor, model.Actor{UserID: adminID, Role: role})
		c.Next()
	})
	NewHandler(audit.NewService(store.Audit())).RegisterAdminRoutes(admin)
	return r
}

func TestListLogsPaginates(t *testing.T) {
	r := setup(t, model.RoleAdmin, 30)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/audit?page=2&page_size=20&action=confirm", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			Items      []model.AuditLog `json:"items"`
			Pagination struct {
				Page  int `json:"page"`
				Total int `json:"total"`
			} `json:"pagination"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.Pagination.Page)
	assert.Equal(t, 15, resp.Data.Pagination.Total)
	assert.Len(t, resp.Data.Items, 0)
}

func TestListLogsRejectsBadActorID(t *testing.T) {
	r := setup(t, model.RoleAdmin, 0)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/audit?actor_id=nope", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListLogsAdminOnly(t *testing.T) {
	r := setup(t, model.RoleDoctor, 1)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/audit", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestExportLogsWritesEveryPage(t *testing.T) {
	r := setup(t, model.RoleAdmin, 150)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/audit/export", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))

	rows, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 151)
	assert.Equal(t, "Action", rows[0][2])
}
