package poll

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/zulandar/supportchat/internal/logging"
	"github.com/zulandar/supportchat/internal/models"
)

// SubscriberOpts holds parameters for creating a Subscriber.
type SubscriberOpts struct {
	Store    MessageLister
	Interval time.Duration // default DefaultInterval
}

// Subscriber starts background watchers on conversations.
type Subscriber struct {
	store    MessageLister
	interval time.Duration
}

// NewSubscriber creates a Subscriber.
func NewSubscriber(opts SubscriberOpts) (*Subscriber, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("poll: store is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Subscriber{store: opts.Store, interval: opts.Interval}, nil
}

// Subscription is a running watcher. Cancel stops it.
type Subscription struct {
	cancel  context.CancelFunc
	stopped atomic.Bool
	done    chan struct{}
}

// Cancel stops the subscription. It does not block; once it returns no new
// callback is started. Safe to call more than once and from inside a callback.
func (s *Subscription) Cancel() {
	s.stopped.Store(true)
	s.cancel()
}

// Done is closed when the watcher goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Subscribe watches conversationID. It checks immediately and then once per
// interval; whenever the latest message's id differs from the last one
// delivered, onMessage receives it. Fetch errors go to onError (which may be
// nil) and polling continues. The subscription also ends when ctx is done,
// and the fetch that ctx interrupts is not reported.
func (s *Subscriber) Subscribe(ctx context.Context, conversationID string, onMessage func(models.Message), onError func(error)) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}

	log := logging.Ctx(ctx).With().
		Str(logging.FieldComponent, "subscriber").
		Str(logging.FieldConversationID, conversationID).
		Logger()

	// Messages are append-only, so the latest id only moves forward.
	var lastID string

	go func() {
		defer close(sub.done)
		defer cancel()

		_ = until(ctx, s.interval, func(ctx context.Context) (bool, error) {
			msgs, err := s.store.GetMessages(ctx, conversationID)
			if sub.stopped.Load() {
				return true, nil
			}
			if err != nil {
				if ctx.Err() != nil {
					return false, ctx.Err()
				}
				log.Warn().Err(err).Msg("poll failed")
				if onError != nil {
					onError(err)
				}
				return false, nil
			}

			latest := models.Latest(msgs)
			if latest == nil {
				return false, nil
			}
			if latest.ID == lastID {
				return false, nil
			}
			lastID = latest.ID
			log.Debug().Str(logging.FieldMessageID, latest.ID).Msg("new message")
			if onMessage != nil {
				onMessage(*latest)
			}
			return false, nil
		})
	}()

	return sub
}
