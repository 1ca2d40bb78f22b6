package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/internal/service/audit"
	"github.com/jwalitptl/carebook/pkg/errors"
	"github.com/jwalitptl/carebook/pkg/httputil"
)

const ContextActor = "actor"

// Authenticator resolves a bearer token to the acting user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (model.Actor, error)
}

type AuthMiddleware struct {
	authenticator Authenticator
	identities    *cache.Cache
}

// NewAuthMiddleware caches resolved identities for ttl, so a role change or
// ban reaches live tokens within ttl.
func NewAuthMiddleware(authenticator Authenticator, ttl time.Duration) *AuthMiddleware {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &AuthMiddleware{
		authenticator: authenticator,
		identities:    cache.New(ttl, 2*ttl),
	}
}

// Authenticate verifies the bearer token and sets the actor in context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.RespondWithError(c, &errors.AppError{Code: errors.ErrUnauthenticated, Message: "missing authorization header"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			httputil.RespondWithError(c, &errors.AppError{Code: errors.ErrUnauthenticated, Message: "invalid authorization format"})
			return
		}
		token := parts[1]

		var actor model.Actor
		if cached, ok := m.identities.Get(token); ok {
			actor = cached.(model.Actor)
		} else {
			var err error
			actor, err = m.authenticator.Authenticate(c.Request.Context(), token)
			if err != nil {
				httputil.RespondWithError(c, err)
				return
			}
			m.identities.SetDefault(token, actor)
		}

		c.Set(ContextActor, actor)
		c.Request = c.Request.WithContext(audit.WithClientIP(c.Request.Context(), c.ClientIP()))
		c.Next()
	}
}

// RequireRole rejects actors whose role is not listed. Services still apply
// their own checks; this keeps whole route groups closed.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			httputil.RespondWithError(c, errors.Unauthenticated(nil))
			return
		}
		for _, role := range roles {
			if actor.Role == role {
				c.Next()
				return
			}
		}
		httputil.RespondWithError(c, errors.Forbidden("insufficient role"))
	}
}

// ActorFrom returns the actor set by Authenticate.
func ActorFrom(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(ContextActor)
	if !ok {
		return model.Actor{}, false
	}
	actor, ok := v.(model.Actor)
	return actor, ok
}
