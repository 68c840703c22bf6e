// Package devstore is a small Directus-compatible item store for local
// development and tests. It serves the subset of the REST items API the chat
// backend uses, backed by GORM.
package devstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zulandar/supportchat/internal/logging"
)

// DefaultPort is where `supportchat devstore` listens.
const DefaultPort = 8055

type kind int

const (
	kindConversations kind = iota + 1
	kindMessages
	kindServices
)

// Opts holds parameters for creating a Server.
type Opts struct {
	DB *gorm.DB
	// Token, when set, must be presented as a bearer token on /items routes.
	Token string

	// Collection names; default to conversations/messages/poc_service.
	Conversations  string
	Messages       string
	Services       string
	DocumentsField string // default poc_docus
}

// Server is the dev store HTTP handler.
type Server struct {
	db          *gorm.DB
	token       string
	collections map[string]kind
	docsField   string
	router      *gin.Engine
}

// New creates a Server.
func New(opts Opts) (*Server, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("devstore: db is required")
	}
	if opts.Conversations == "" {
		opts.Conversations = "conversations"
	}
	if opts.Messages == "" {
		opts.Messages = "messages"
	}
	if opts.Services == "" {
		opts.Services = "poc_service"
	}
	if opts.DocumentsField == "" {
		opts.DocumentsField = "poc_docus"
	}

	s := &Server{
		db:    opts.DB,
		token: opts.Token,
		collections: map[string]kind{
			opts.Conversations: kindConversations,
			opts.Messages:      kindMessages,
			opts.Services:      kindServices,
		},
		docsField: opts.DocumentsField,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.GinMiddleware(logging.L().With().Str(logging.FieldComponent, "devstore").Logger()))
	s.registerRoutes(router)
	s.router = router
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/server/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	items := router.Group("/items", s.requireToken())
	items.POST("/:collection", s.handleCreate)
	items.GET("/:collection", s.handleList)
	items.GET("/:collection/:id", s.handleGet)

	router.NoRoute(func(c *gin.Context) {
		abortError(c, http.StatusNotFound, "Route doesn't exist.")
	})
}

func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.token == "" {
			c.Next()
			return
		}
		got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if got != s.token {
			abortError(c, http.StatusUnauthorized, "Invalid user credentials.")
			return
		}
		c.Next()
	}
}

// abortError writes a Directus-style error body.
func abortError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"errors": []gin.H{{"message": msg}},
	})
}

// StartOpts holds configuration for the dev store server.
type StartOpts struct {
	Opts
	Port int
	Out  io.Writer
}

// Start launches the dev store. It blocks until ctx is cancelled, then shuts
// down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = DefaultPort
	}
	s, err := New(opts.Opts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dev store running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("devstore: %w", err)
	}
	return nil
}
