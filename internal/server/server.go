// Package server is the boundary HTTP API of the chat backend: the workflow
// engine webhook, message reads and writes, reply waits, live message
// streams and the services catalogue.
package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/zulandar/supportchat/internal/chat"
	"github.com/zulandar/supportchat/internal/logging"
	"github.com/zulandar/supportchat/internal/models"
	"github.com/zulandar/supportchat/internal/notify"
	"github.com/zulandar/supportchat/internal/poll"
	"github.com/zulandar/supportchat/internal/webhook"
)

// DefaultPort is where `supportchat serve` listens.
const DefaultPort = 4321

// Store is the message store.
type Store interface {
	CreateMessage(ctx context.Context, content, userID, conversationID string, typ models.MessageType) (*models.Message, error)
	GetMessages(ctx context.Context, conversationID string) ([]models.Message, error)
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Catalog serves support services.
type Catalog interface {
	Services(ctx context.Context) ([]models.Service, error)
	Service(ctx context.Context, id string) (*models.Service, error)
	FAQs(ctx context.Context, serviceID string) ([]models.FAQ, error)
}

// Dispatcher forwards questions to the workflow engine.
type Dispatcher interface {
	SendQuery(ctx context.Context, payload webhook.QueryPayload) (webhook.Response, error)
}

// Waiter waits for agent replies.
type Waiter interface {
	Wait(ctx context.Context, conversationID, lastKnownID string) (*models.Message, error)
	WaitFor(ctx context.Context, conversationID, lastKnownID string, maxWait time.Duration) (*models.Message, error)
}

// Subscriber streams new messages of a conversation.
type Subscriber interface {
	Subscribe(ctx context.Context, conversationID string, onMessage func(models.Message), onError func(error)) *poll.Subscription
}

// Opts holds the server's collaborators.
type Opts struct {
	Store      Store
	Catalog    Catalog
	Dispatcher Dispatcher
	Waiter     Waiter
	Subscriber Subscriber
	Notifier   notify.Notifier

	Language        string // default chat language
	FallbackTimeout string
	FallbackGeneric string

	// MaxReplyWait caps the timeout a client may ask for on reply waits.
	MaxReplyWait time.Duration
	// Heartbeat is the SSE keep-alive interval.
	Heartbeat time.Duration

	Logger *zerolog.Logger // default logging.L()
}

// Server holds the API routes.
type Server struct {
	opts   Opts
	router *gin.Engine
}

// New creates a Server.
func New(opts Opts) (*Server, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("server: store is required")
	}
	if opts.Waiter == nil {
		return nil, fmt.Errorf("server: waiter is required")
	}
	if opts.Subscriber == nil {
		return nil, fmt.Errorf("server: subscriber is required")
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Language == "" {
		opts.Language = chat.DefaultLanguage
	}
	if opts.MaxReplyWait <= 0 {
		opts.MaxReplyWait = 5 * time.Minute
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}
	logger := logging.L()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.GinMiddleware(logger))

	s := &Server{opts: opts, router: router}
	s.registerRoutes(router)
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Opts
	Host string
	Port int
	Out  io.Writer
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = DefaultPort
	}
	s, err := New(opts.Opts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	// Graceful shutdown on context cancellation. Open event streams end
	// with ctx.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		host := opts.Host
		if host == "" {
			host = "localhost"
		}
		fmt.Fprintf(opts.Out, "Chat API running at http://%s:%d\n", host, opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
