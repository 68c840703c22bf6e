// Package chat runs the user side of a support conversation: store the
// question, hand it to the workflow engine, wait for the agent's answer.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/supportchat/internal/errs"
	"github.com/zulandar/supportchat/internal/logging"
	"github.com/zulandar/supportchat/internal/models"
	"github.com/zulandar/supportchat/internal/notify"
	"github.com/zulandar/supportchat/internal/webhook"
)

// Default fallback wording shown when no agent answer can be produced.
const (
	DefaultFallbackTimeout = "Todavía no tenemos una respuesta. Un agente revisará tu consulta en breve."
	DefaultFallbackGeneric = "Lo sentimos, ocurrió un error al procesar tu consulta. Inténtalo de nuevo."
	DefaultLanguage        = "es"
)

// Store writes chat messages.
type Store interface {
	CreateMessage(ctx context.Context, content, userID, conversationID string, typ models.MessageType) (*models.Message, error)
}

// Dispatcher forwards a question to the workflow engine.
type Dispatcher interface {
	SendQuery(ctx context.Context, payload webhook.QueryPayload) (webhook.Response, error)
}

// Waiter blocks until an agent reply newer than lastKnownID arrives.
type Waiter interface {
	Wait(ctx context.Context, conversationID, lastKnownID string) (*models.Message, error)
}

// Opts holds parameters for creating a Session.
type Opts struct {
	Store      Store
	Waiter     Waiter
	Dispatcher Dispatcher      // nil when something else triggers the engine
	Notifier   notify.Notifier // escalations on timeout; default notify.Nop

	Service  models.Service
	User     models.User
	Language string // default DefaultLanguage

	// ConversationID resumes an existing conversation.
	ConversationID string

	FallbackTimeout string
	FallbackGeneric string
}

// Reply is the outcome of one exchange. Exactly one of Message and Fallback
// is set; Err records why the fallback was used.
type Reply struct {
	Message  *models.Message
	Fallback string
	Err      error
}

// Text is what to show the user.
func (r Reply) Text() string {
	if r.Message != nil {
		return r.Message.Content
	}
	return r.Fallback
}

// TimedOut reports whether the agent did not answer in time.
func (r Reply) TimedOut() bool { return errs.IsTimeout(r.Err) }

// Session is one user's conversation. Send calls are serialised.
type Session struct {
	mu             sync.Mutex
	store          Store
	waiter         Waiter
	dispatcher     Dispatcher
	notifier       notify.Notifier
	service        models.Service
	user           models.User
	language       string
	conversationID string
	fbTimeout      string
	fbGeneric      string
}

// New creates a Session.
func New(opts Opts) (*Session, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("chat: store is required")
	}
	if opts.Waiter == nil {
		return nil, fmt.Errorf("chat: waiter is required")
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Language == "" {
		opts.Language = DefaultLanguage
	}
	if opts.FallbackTimeout == "" {
		opts.FallbackTimeout = DefaultFallbackTimeout
	}
	if opts.FallbackGeneric == "" {
		opts.FallbackGeneric = DefaultFallbackGeneric
	}
	return &Session{
		store:          opts.Store,
		waiter:         opts.Waiter,
		dispatcher:     opts.Dispatcher,
		notifier:       opts.Notifier,
		service:        opts.Service,
		user:           opts.User,
		language:       opts.Language,
		conversationID: opts.ConversationID,
		fbTimeout:      opts.FallbackTimeout,
		fbGeneric:      opts.FallbackGeneric,
	}, nil
}

// ConversationID returns the current conversation, empty before the first Send.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Send stores text as a user message, forwards it to the engine and waits
// for the answer. The conversation is created on the first Send and reused
// afterwards. Failures come back as a Reply with fallback text.
func (s *Session) Send(ctx context.Context, text string) Reply {
	s.mu.Lock()
	defer s.mu.Unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return s.fail(fmt.Errorf("chat: send: %w: message is empty", errs.ErrValidation))
	}

	asked := time.Now()
	msg, err := s.store.CreateMessage(ctx, text, s.user.ID, s.conversationID, models.MessageTypeUser)
	if err != nil {
		return s.fail(fmt.Errorf("chat: send: %w", err))
	}
	s.conversationID = msg.ConversationID

	log := logging.Ctx(ctx).With().
		Str(logging.FieldConversationID, s.conversationID).
		Str(logging.FieldMessageID, msg.ID).
		Logger()

	if s.dispatcher != nil {
		payload := webhook.QueryPayload{
			ConversationID: s.conversationID,
			Query:          text,
			Language:       s.language,
			Service:        webhook.ServiceFromModel(s.service),
			User:           webhook.UserFromModel(s.user),
			Timestamp:      asked.UTC(),
		}
		if _, err := s.dispatcher.SendQuery(ctx, payload); err != nil {
			log.Warn().Err(err).Msg("forward to workflow engine failed")
			return s.fail(fmt.Errorf("chat: send: %w", err))
		}
	}

	reply, err := s.waiter.Wait(ctx, s.conversationID, msg.ID)
	if err != nil {
		if errs.IsTimeout(err) {
			s.escalate(ctx, text, time.Since(asked), asked)
		}
		log.Info().Err(err).Msg("no agent reply")
		return s.fail(fmt.Errorf("chat: send: %w", err))
	}
	return Reply{Message: reply}
}

// Join attaches the session to an existing conversation and waits for its
// next agent message. Any agent message already latest counts.
func (s *Session) Join(ctx context.Context, conversationID string) Reply {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conversationID == "" {
		return s.fail(fmt.Errorf("chat: join: %w: conversation id is required", errs.ErrValidation))
	}
	s.conversationID = conversationID

	reply, err := s.waiter.Wait(ctx, conversationID, "")
	if err != nil {
		return s.fail(fmt.Errorf("chat: join: %w", err))
	}
	return Reply{Message: reply}
}

// FallbackText picks the user-visible wording for err.
func (s *Session) FallbackText(err error) string {
	if errs.IsTimeout(err) {
		return s.fbTimeout
	}
	return s.fbGeneric
}

func (s *Session) fail(err error) Reply {
	return Reply{Fallback: s.FallbackText(err), Err: err}
}

func (s *Session) escalate(ctx context.Context, question string, waited time.Duration, at time.Time) {
	e := notify.Escalation{
		ConversationID: s.conversationID,
		ServiceID:      s.service.ID,
		ServiceTitle:   s.service.Title,
		Question:       question,
		UserID:         s.user.ID,
		UserName:       s.user.Name,
		Waited:         waited,
		At:             at,
	}
	// The chat request may already be finishing; the alert still goes out.
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.notifier.Notify(nctx, e); err != nil && !errors.Is(err, context.Canceled) {
		l := logging.Ctx(ctx)
		l.Warn().Err(err).Str(logging.FieldConversationID, s.conversationID).Msg("escalation failed")
	}
}
