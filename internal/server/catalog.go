package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/supportchat/internal/errs"
	"github.com/zulandar/supportchat/internal/models"
)

func (s *Server) catalogReady(c *gin.Context) bool {
	if s.opts.Catalog == nil {
		abortError(c, fmt.Errorf("server: %w: catalogue is not configured", errs.ErrNotFound))
		return false
	}
	return true
}

func (s *Server) handleServices(c *gin.Context) {
	if !s.catalogReady(c) {
		return
	}
	svcs, err := s.opts.Catalog.Services(c.Request.Context())
	if err != nil {
		abortError(c, err)
		return
	}
	if svcs == nil {
		svcs = []models.Service{}
	}
	c.JSON(http.StatusOK, gin.H{"data": svcs})
}

func (s *Server) handleService(c *gin.Context) {
	if !s.catalogReady(c) {
		return
	}
	svc, err := s.opts.Catalog.Service(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": svc})
}

func (s *Server) handleFAQs(c *gin.Context) {
	if !s.catalogReady(c) {
		return
	}
	faqs, err := s.opts.Catalog.FAQs(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortError(c, err)
		return
	}
	if faqs == nil {
		faqs = []models.FAQ{}
	}
	c.JSON(http.StatusOK, gin.H{"data": faqs})
}
