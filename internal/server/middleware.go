package server

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/allotment/internal/identity"
	obscontext "github.com/smallbiznis/allotment/internal/observability/context"
	"github.com/smallbiznis/allotment/pkg/apperr"
)

const contextActorKey = "actor"

// Authenticated resolves the bearer token into an actor. Requests without a
// valid token stop here with 401.
func (s *Server) Authenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := identity.FromAuthorizationHeader(c.GetHeader("Authorization"))
		actor, err := s.tokens.Parse(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := identity.WithActor(c.Request.Context(), actor)
		ctx = obscontext.WithActor(ctx, string(actor.Kind), actor.UserID)
		if actor.OrganizationID != "" {
			ctx = obscontext.WithOrgID(ctx, actor.OrganizationID)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextActorKey, actor)
		c.Next()
	}
}

// Authorize rejects the request unless the actor may perform action on
// object.
func (s *Server) Authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			AbortWithError(c, apperr.NotAuthorized("Not authorized"))
			return
		}
		if err := s.authz.Authorize(c.Request.Context(), actor, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) (identity.Actor, bool) {
	if v, ok := c.Get(contextActorKey); ok {
		if actor, ok := v.(identity.Actor); ok {
			return actor, true
		}
	}
	return identity.ActorFromContext(c.Request.Context())
}
