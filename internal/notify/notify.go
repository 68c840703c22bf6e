// Package notify alerts human agents when a chat question goes unanswered.
package notify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Notifier delivers escalations to a human channel.
type Notifier interface {
	Notify(ctx context.Context, e Escalation) error
}

// Escalation describes a question the workflow engine did not answer in time.
type Escalation struct {
	ConversationID string
	ServiceID      string
	ServiceTitle   string
	Question       string
	UserID         string
	UserName       string
	Waited         time.Duration
	At             time.Time
}

// escalationColor is the sidebar color used on both platforms.
const escalationColor = "#e01e5a"

func (e Escalation) title() string {
	if e.ServiceTitle != "" {
		return "Unanswered question: " + e.ServiceTitle
	}
	return "Unanswered question"
}

type field struct {
	name  string
	value string
	short bool
}

func (e Escalation) fields() []field {
	var fs []field
	if e.ConversationID != "" {
		fs = append(fs, field{"Conversation", e.ConversationID, true})
	}
	user := e.UserName
	if user == "" {
		user = e.UserID
	}
	if user != "" {
		fs = append(fs, field{"User", user, true})
	}
	if e.Waited > 0 {
		fs = append(fs, field{"Waited", e.Waited.Round(time.Second).String(), true})
	}
	if !e.At.IsZero() {
		fs = append(fs, field{"Asked at", e.At.UTC().Format(time.RFC3339), true})
	}
	return fs
}

// Multi fans an escalation out to every notifier. All are attempted; the
// errors are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e Escalation) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards escalations.
type Nop struct{}

func (Nop) Notify(context.Context, Escalation) error { return nil }

const maxRetries = 3

// retryOnRateLimit calls fn and retries with exponential backoff while
// rateLimited reports a rate limit. A non-zero wait from rateLimited
// overrides the backoff. It respects context cancellation.
func retryOnRateLimit(ctx context.Context, base time.Duration, rateLimited func(error) (time.Duration, bool), fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		wait, limited := rateLimited(err)
		if !limited || attempt == maxRetries {
			return err
		}
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * base
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-time.After(wait):
		}
	}
}
