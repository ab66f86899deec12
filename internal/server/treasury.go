package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListAccounts(c *gin.Context) {
	actor, _ := actorFrom(c)
	accounts, err := s.treasury.ListAccounts(c.Request.Context(), actor.OrganizationID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, accounts)
}

func (s *Server) CurrentExchangeRate(c *gin.Context) {
	rate, err := s.treasury.CurrentExchangeRate(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rate)
}
