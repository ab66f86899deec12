package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/allotment/internal/authorization"
	billingdomain "github.com/smallbiznis/allotment/internal/billing/domain"
	"github.com/smallbiznis/allotment/internal/identity"
	subscriptiondomain "github.com/smallbiznis/allotment/internal/subscription/domain"
	"github.com/smallbiznis/allotment/pkg/apperr"
)

func (s *Server) SubscriptionInfo(c *gin.Context) {
	actor, _ := actorFrom(c)
	service := strings.TrimSpace(c.Query("service"))
	if service == "" {
		AbortWithError(c, newValidationError("service", "required", "service is required"))
		return
	}

	details, err := s.billing.SubscriptionInfo(c.Request.Context(), actor, service)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (s *Server) UpdateSubscription(c *gin.Context) {
	actor, _ := actorFrom(c)
	var req billingdomain.SubscriptionUpdatePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	if err := s.billing.UpdateSubscription(c.Request.Context(), actor, c.Param("serviceId"), req); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) AddSeats(c *gin.Context) {
	actor, _ := actorFrom(c)
	var req billingdomain.SubscriptionAddUsers
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	if err := s.billing.UpdateSeatsCount(c.Request.Context(), actor, req); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) CreateSubscription(c *gin.Context) {
	actor, _ := actorFrom(c)
	var req subscriptiondomain.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	// Only sysadmins create subscriptions for someone else.
	if !actor.HasRole(authorization.RoleSysadmin) {
		req.EntityReference = ""
		req.Status = ""
	}

	created, err := s.subscriptions.Create(c.Request.Context(), subscriptiondomain.CreateSubscriptionRequest{
		Service:         strings.TrimSpace(req.Service),
		Entity:          req.Entity,
		EntityReference: strings.TrimSpace(req.EntityReference),
		Status:          req.Status,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, created)
}

func (s *Server) ListSubscriptions(c *gin.Context) {
	actor, _ := actorFrom(c)
	entity, reference := ownerOf(actor)

	items, err := s.subscriptions.List(c.Request.Context(), entity, reference)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) DeleteSubscription(c *gin.Context) {
	actor, _ := actorFrom(c)
	ctx := c.Request.Context()

	subscription, err := s.subscriptions.Get(ctx, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := ensureOwner(actor, subscription); err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.subscriptions.Delete(ctx, subscription.ID.String()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) TransitionSubscriptionStatus(c *gin.Context) {
	var req subscriptiondomain.TransitionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	updated, err := s.subscriptions.TransitionStatus(c.Request.Context(), c.Param("id"), subscriptiondomain.SubscriptionStatus(strings.ToUpper(strings.TrimSpace(string(req.Status)))))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// ownerOf is the subscription owner an actor acts for: its organization when
// it has one, otherwise itself.
func ownerOf(actor identity.Actor) (subscriptiondomain.Entity, string) {
	if actor.OrganizationID != "" {
		return subscriptiondomain.EntityOrganization, actor.OrganizationID
	}
	return subscriptiondomain.EntityUser, actor.UserID
}

func ensureOwner(actor identity.Actor, subscription subscriptiondomain.Subscription) error {
	if actor.HasRole(authorization.RoleSysadmin) {
		return nil
	}
	entity, reference := ownerOf(actor)
	if subscription.Entity != entity || subscription.EntityReference != reference {
		return apperr.Forbidden("Subscription belongs to another owner")
	}
	return nil
}
