package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/supportchat/internal/errs"
	"github.com/zulandar/supportchat/internal/logging"
	"github.com/zulandar/supportchat/internal/models"
	"github.com/zulandar/supportchat/internal/webhook"
)

type queryRequest struct {
	Query          string       `json:"query" binding:"required"`
	ServiceID      flexString   `json:"serviceId" binding:"required"`
	Language       string       `json:"language" binding:"required"`
	ConversationID string       `json:"conversationId"`
	Service        *serviceBody `json:"service"`
	User           *models.User `json:"user"`
}

type serviceBody struct {
	ID          flexString      `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Prompt      string          `json:"prompt"`
	Links       json.RawMessage `json:"links"`
	Documents   json.RawMessage `json:"documents"`
}

type responseRequest struct {
	Response       string `json:"response" binding:"required"`
	ConversationID string `json:"conversationId" binding:"required"`
	UserID         string `json:"userId"`
}

// handleWebhookQuery forwards a user question to the workflow engine.
func (s *Server) handleWebhookQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: query, serviceId, language"})
		return
	}
	if s.opts.Dispatcher == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "details": "workflow engine is not configured"})
		return
	}

	now := time.Now().UTC()
	convID := req.ConversationID
	if convID == "" {
		id, err := newConversationID(now)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "details": err.Error()})
			return
		}
		convID = id
	}

	payload := webhook.QueryPayload{
		ConversationID: convID,
		Query:          req.Query,
		Language:       req.Language,
		Service:        s.servicePayload(c, req),
		Timestamp:      now,
	}
	if req.User != nil {
		payload.User = webhook.UserFromModel(*req.User)
	}

	resp, err := s.opts.Dispatcher.SendQuery(c.Request.Context(), payload)
	if err != nil {
		l := loggerFrom(c)
		l.Error().Err(err).Str(logging.FieldConversationID, convID).Msg("forward to workflow engine failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "details": err.Error()})
		return
	}

	out := gin.H{}
	for k, v := range resp {
		out[k] = v
	}
	out["conversationId"] = convID
	c.JSON(http.StatusOK, out)
}

// servicePayload uses the service block of the request when present and
// falls back to the catalogue.
func (s *Server) servicePayload(c *gin.Context, req queryRequest) webhook.ServicePayload {
	if b := req.Service; b != nil {
		id := b.ID.String()
		if id == "" {
			id = req.ServiceID.String()
		}
		return webhook.ServicePayload{
			ID:          id,
			Title:       b.Title,
			Description: b.Description,
			Prompt:      b.Prompt,
			Links:       b.Links,
			Documents:   b.Documents,
		}
	}
	if s.opts.Catalog != nil {
		svc, err := s.opts.Catalog.Service(c.Request.Context(), req.ServiceID.String())
		if err == nil {
			return webhook.ServiceFromModel(*svc)
		}
		if !errors.Is(err, errs.ErrNotFound) {
			l := loggerFrom(c)
			l.Warn().Err(err).Str(logging.FieldService, req.ServiceID.String()).Msg("catalogue lookup failed")
		}
	}
	return webhook.ServicePayload{ID: req.ServiceID.String()}
}

// handleWebhookResponse stores the engine's answer as an agent message.
func (s *Server) handleWebhookResponse(c *gin.Context) {
	var req responseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: response, conversationId"})
		return
	}

	msg, err := s.opts.Store.CreateMessage(c.Request.Context(), req.Response, req.UserID, req.ConversationID, models.MessageTypeAgent)
	if err != nil {
		l := loggerFrom(c)
		l.Error().Err(err).Str(logging.FieldConversationID, req.ConversationID).Msg("store agent response failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        "Response processed successfully",
		"conversationId": msg.ConversationID,
		"messageId":      msg.ID,
	})
}
