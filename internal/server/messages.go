package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/supportchat/internal/errs"
	"github.com/zulandar/supportchat/internal/models"
)

type createMessageRequest struct {
	Content        string `json:"content" binding:"required"`
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	Type           string `json:"type"`
}

func (s *Server) handleCreateMessage(c *gin.Context) {
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, fmt.Errorf("%w: %v", errs.ErrValidation, err))
		return
	}
	typ := models.MessageTypeUser
	if req.Type != "" {
		t, err := models.ParseMessageType(req.Type)
		if err != nil {
			abortError(c, fmt.Errorf("%w: %v", errs.ErrValidation, err))
			return
		}
		typ = t
	}

	msg, err := s.opts.Store.CreateMessage(c.Request.Context(), req.Content, req.UserID, req.ConversationID, typ)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": msg})
}

func (s *Server) handleListMessages(c *gin.Context) {
	msgs, err := s.opts.Store.GetMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortError(c, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"data": msgs})
}

// handleReply blocks until the agent answers after the given message.
func (s *Server) handleReply(c *gin.Context) {
	timeout, err := parseTimeout(c.Query("timeout"))
	if err != nil {
		abortError(c, fmt.Errorf("%w: %v", errs.ErrValidation, err))
		return
	}
	if timeout > s.opts.MaxReplyWait {
		timeout = s.opts.MaxReplyWait
	}

	msg, err := s.opts.Waiter.WaitFor(c.Request.Context(), c.Param("id"), c.Query("after"), timeout)
	if err != nil {
		if c.Request.Context().Err() != nil {
			// Client went away.
			c.Abort()
			return
		}
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": msg})
}
