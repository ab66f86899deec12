package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	pricedomain "github.com/smallbiznis/allotment/internal/price/domain"
	pricemodifierdomain "github.com/smallbiznis/allotment/internal/pricemodifier/domain"
)

// ListPrices returns every price of a service, or only the one in effect
// when active=true.
func (s *Server) ListPrices(c *gin.Context) {
	var query struct {
		Service string `form:"service"`
		Active  bool   `form:"active"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	service := strings.TrimSpace(query.Service)

	var (
		items []pricedomain.Price
		err   error
	)
	if query.Active {
		if service == "" {
			AbortWithError(c, newValidationError("service", "required", "service is required"))
			return
		}
		items, err = s.prices.GetApplicablePrices(c.Request.Context(), []string{service}, s.clock.Now())
	} else {
		items, err = s.prices.List(c.Request.Context(), service)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) GetPrice(c *gin.Context) {
	item, err := s.prices.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) CreatePrice(c *gin.Context) {
	var req pricedomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	created, err := s.prices.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, created)
}

func (s *Server) UpdatePrice(c *gin.Context) {
	var req pricedomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	updated, err := s.prices.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) DeletePrice(c *gin.Context) {
	if err := s.prices.Delete(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) ListModifiers(c *gin.Context) {
	items, err := s.modifiers.List(c.Request.Context(), strings.TrimSpace(c.Query("service")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) GetModifier(c *gin.Context) {
	item, err := s.modifiers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) CreateModifier(c *gin.Context) {
	var req pricemodifierdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	created, err := s.modifiers.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, created)
}

func (s *Server) UpdateModifier(c *gin.Context) {
	var req pricemodifierdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	updated, err := s.modifiers.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) DeleteModifier(c *gin.Context) {
	if err := s.modifiers.Delete(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
