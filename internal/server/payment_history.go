package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	paymenthistorydomain "github.com/smallbiznis/allotment/internal/paymenthistory/domain"
	"github.com/smallbiznis/allotment/pkg/db/pagination"
)

func (s *Server) ListPaymentHistory(c *gin.Context) {
	actor, _ := actorFrom(c)
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	entity, reference := ownerOf(actor)

	resp, err := s.paymentHistory.List(c.Request.Context(), paymenthistorydomain.ListRequest{
		Entity:          entity,
		EntityReference: reference,
		PageToken:       query.PageToken,
		PageSize:        query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.Entries, "page_info": resp.PageInfo})
}
