package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/supportchat/internal/errs"
)

func (s *Server) registerRoutes(r *gin.Engine) {
	r.GET("/health", s.handleHealth)

	api := r.Group("/api")
	api.POST("/webhook", s.handleWebhookQuery)
	api.PUT("/webhook", s.handleWebhookResponse)

	api.POST("/messages", s.handleCreateMessage)
	api.GET("/conversations/:id/messages", s.handleListMessages)
	api.GET("/conversations/:id/reply", s.handleReply)
	api.GET("/conversations/:id/events", s.handleEvents)

	api.POST("/chat", s.handleChat)

	api.GET("/services", s.handleServices)
	api.GET("/services/:id", s.handleService)
	api.GET("/services/:id/faqs", s.handleFAQs)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	if p, ok := s.opts.Store.(Pinger); ok {
		if err := p.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrTimeoutExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, errs.ErrStoreUnavailable), errors.Is(err, errs.ErrWebhookUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abortError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}
	if status == http.StatusGatewayTimeout {
		body["timeout"] = true
	}
	if status >= http.StatusInternalServerError {
		l := loggerFrom(c)
		l.Warn().Err(err).Int("status", status).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, body)
}
