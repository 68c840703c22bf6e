package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	slackapi "github.com/slack-go/slack"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// SlackOpts holds parameters for creating a Slack notifier.
type SlackOpts struct {
	BotToken  string // xoxb-... bot token
	ChannelID string
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// Slack posts escalations to a Slack channel.
type Slack struct {
	client    slackClient
	channelID string
	backoff   time.Duration
}

// NewSlack creates a Slack notifier.
func NewSlack(opts SlackOpts) (*Slack, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("slack: channel is required")
	}
	client := opts.Client
	if client == nil {
		client = slackapi.New(opts.BotToken)
	}
	return &Slack{client: client, channelID: opts.ChannelID, backoff: time.Second}, nil
}

// Notify posts e as a message with one attachment.
func (s *Slack) Notify(ctx context.Context, e Escalation) error {
	att := escalationAttachment(e)
	opts := []slackapi.MsgOption{
		slackapi.MsgOptionText(att.Fallback, false),
		slackapi.MsgOptionAttachments(att),
	}
	err := retryOnRateLimit(ctx, s.backoff, slackRateLimited, func() error {
		_, _, err := s.client.PostMessage(s.channelID, opts...)
		return err
	})
	if err != nil {
		return fmt.Errorf("slack: post escalation: %w", err)
	}
	return nil
}

func slackRateLimited(err error) (time.Duration, bool) {
	var rle *slackapi.RateLimitedError
	if errors.As(err, &rle) {
		return rle.RetryAfter, true
	}
	return 0, false
}

func escalationAttachment(e Escalation) slackapi.Attachment {
	att := slackapi.Attachment{
		Title:    e.title(),
		Text:     e.Question,
		Color:    escalationColor,
		Fallback: e.title(),
	}
	for _, f := range e.fields() {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.name,
			Value: f.value,
			Short: f.short,
		})
	}
	return att
}
