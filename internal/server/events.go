package server

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/supportchat/internal/logging"
	"github.com/zulandar/supportchat/internal/models"
)

// handleEvents streams new messages of a conversation as Server-Sent Events.
// The subscription ends when the client disconnects.
func (s *Server) handleEvents(c *gin.Context) {
	convID := c.Param("id")

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	writeSSE(c.Writer, "connected", gin.H{"conversationId": convID})
	c.Writer.Flush()

	ctx := c.Request.Context()
	msgs := make(chan models.Message, 16)
	errc := make(chan error, 1)

	sub := s.opts.Subscriber.Subscribe(ctx, convID,
		func(m models.Message) {
			select {
			case msgs <- m:
			case <-ctx.Done():
			}
		},
		func(err error) {
			select {
			case errc <- err:
			default:
			}
		},
	)
	defer sub.Cancel()

	log := logging.Ctx(ctx).With().Str(logging.FieldConversationID, convID).Logger()
	log.Debug().Msg("event stream opened")

	heartbeat := time.NewTicker(s.opts.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("event stream closed")
			return
		case <-sub.Done():
			return
		case m := <-msgs:
			writeSSE(c.Writer, "message", m)
			c.Writer.Flush()
		case err := <-errc:
			writeSSE(c.Writer, "error", gin.H{"error": err.Error()})
			c.Writer.Flush()
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", gin.H{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
