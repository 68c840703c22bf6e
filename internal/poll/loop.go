// Package poll watches a conversation in the message store by re-reading it
// on a fixed interval. Waiter blocks until an agent reply arrives or a
// deadline passes; Subscriber delivers every new latest message until
// cancelled. Both run on the same poll-until loop.
package poll

import (
	"context"
	"time"

	"github.com/zulandar/supportchat/internal/models"
)

// Default poll settings.
const (
	DefaultInterval = 5 * time.Second
	DefaultMaxWait  = 60 * time.Second
)

// MessageLister is the slice of the store client the pollers need.
type MessageLister interface {
	GetMessages(ctx context.Context, conversationID string) ([]models.Message, error)
}

// checkFunc runs one poll cycle. It returns done=true to stop the loop
// successfully, or a non-nil error to stop it with that error.
type checkFunc func(ctx context.Context) (done bool, err error)

// until runs check immediately and then once per interval until check stops
// the loop or ctx is cancelled. Cycles never overlap: the next timer is armed
// only after the previous check returned.
func until(ctx context.Context, interval time.Duration, check checkFunc) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		timer.Reset(interval)
	}
}
