package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/supportchat/internal/chat"
	"github.com/zulandar/supportchat/internal/errs"
	"github.com/zulandar/supportchat/internal/models"
)

type chatRequest struct {
	Message        string       `json:"message" binding:"required"`
	ServiceID      flexString   `json:"serviceId"`
	ConversationID string       `json:"conversationId"`
	Language       string       `json:"language"`
	User           *models.User `json:"user"`
}

type chatResponse struct {
	ConversationID string          `json:"conversationId"`
	Text           string          `json:"text"`
	Message        *models.Message `json:"message,omitempty"`
	Fallback       bool            `json:"fallback"`
	TimedOut       bool            `json:"timedOut,omitempty"`
}

// handleChat runs one full exchange: store, forward, wait. Engine and store
// failures still answer 200 with the fallback text.
func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, fmt.Errorf("%w: message is required", errs.ErrValidation))
		return
	}

	svc := models.Service{ID: req.ServiceID.String()}
	if svc.ID != "" && s.opts.Catalog != nil {
		found, err := s.opts.Catalog.Service(c.Request.Context(), svc.ID)
		switch {
		case err == nil:
			svc = *found
		case errors.Is(err, errs.ErrNotFound):
			abortError(c, err)
			return
		default:
			l := loggerFrom(c)
			l.Warn().Err(err).Msg("catalogue lookup failed")
		}
	}

	opts := chat.Opts{
		Store:           s.opts.Store,
		Waiter:          s.opts.Waiter,
		Notifier:        s.opts.Notifier,
		Service:         svc,
		Language:        req.Language,
		ConversationID:  req.ConversationID,
		FallbackTimeout: s.opts.FallbackTimeout,
		FallbackGeneric: s.opts.FallbackGeneric,
	}
	if s.opts.Dispatcher != nil {
		opts.Dispatcher = s.opts.Dispatcher
	}
	if opts.Language == "" {
		opts.Language = s.opts.Language
	}
	if req.User != nil {
		opts.User = *req.User
	}
	sess, err := chat.New(opts)
	if err != nil {
		abortError(c, err)
		return
	}

	reply := sess.Send(c.Request.Context(), req.Message)
	if errors.Is(reply.Err, errs.ErrValidation) {
		abortError(c, reply.Err)
		return
	}
	c.JSON(http.StatusOK, chatResponse{
		ConversationID: sess.ConversationID(),
		Text:           reply.Text(),
		Message:        reply.Message,
		Fallback:       reply.Message == nil,
		TimedOut:       reply.TimedOut(),
	})
}
