package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/supportchat/internal/errs"
	"github.com/zulandar/supportchat/internal/logging"
	"github.com/zulandar/supportchat/internal/models"
)

// WaiterOpts holds parameters for creating a Waiter.
type WaiterOpts struct {
	Store    MessageLister
	Interval time.Duration // default DefaultInterval
	MaxWait  time.Duration // default DefaultMaxWait
}

// Waiter waits for the agent's answer to a message.
type Waiter struct {
	store    MessageLister
	interval time.Duration
	maxWait  time.Duration
	now      func() time.Time
}

// NewWaiter creates a Waiter.
func NewWaiter(opts WaiterOpts) (*Waiter, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("poll: store is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = DefaultMaxWait
	}
	return &Waiter{
		store:    opts.Store,
		interval: opts.Interval,
		maxWait:  opts.MaxWait,
		now:      time.Now,
	}, nil
}

// MaxWait returns the configured deadline.
func (w *Waiter) MaxWait() time.Duration { return w.maxWait }

// Wait polls the conversation until its latest message is an agent message
// whose id differs from lastKnownID. An empty lastKnownID accepts any agent
// message.
//
// The deadline is measured from the call. A poll that finds nothing after the
// deadline fails with errs.ErrTimeoutExceeded and nothing further is fetched.
// A store error fails the wait at once.
func (w *Waiter) Wait(ctx context.Context, conversationID, lastKnownID string) (*models.Message, error) {
	return w.WaitFor(ctx, conversationID, lastKnownID, w.maxWait)
}

// WaitFor is Wait with a per-call deadline. maxWait <= 0 uses the default.
func (w *Waiter) WaitFor(ctx context.Context, conversationID, lastKnownID string, maxWait time.Duration) (*models.Message, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("poll: wait: %w: conversation id is required", errs.ErrValidation)
	}
	if maxWait <= 0 {
		maxWait = w.maxWait
	}

	log := logging.Ctx(ctx).With().
		Str(logging.FieldComponent, "waiter").
		Str(logging.FieldConversationID, conversationID).
		Logger()

	start := w.now()
	polls := 0
	var reply *models.Message

	err := until(ctx, w.interval, func(ctx context.Context) (bool, error) {
		polls++
		msgs, err := w.store.GetMessages(ctx, conversationID)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			if !errors.Is(err, errs.ErrStoreUnavailable) {
				err = fmt.Errorf("%w: %w", errs.ErrStoreUnavailable, err)
			}
			return false, err
		}

		latest := models.Latest(msgs)
		if latest != nil && latest.ID != lastKnownID && latest.IsAgent() {
			reply = latest
			return true, nil
		}

		if elapsed := w.now().Sub(start); elapsed >= maxWait {
			return false, fmt.Errorf("%w after %s", errs.ErrTimeoutExceeded, elapsed.Round(time.Millisecond))
		}
		log.Debug().Int("poll", polls).Msg("no reply yet")
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("poll: wait: %w", err)
	}

	log.Debug().Int("poll", polls).Str(logging.FieldMessageID, reply.ID).Msg("reply received")
	return reply, nil
}
