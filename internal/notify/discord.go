package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordOpts holds parameters for creating a Discord notifier.
type DiscordOpts struct {
	BotToken  string
	ChannelID string
	// For testing: inject a mock session instead of the real Discord API.
	Session session
}

// Discord posts escalations to a Discord channel over the REST API. No
// gateway connection is opened.
type Discord struct {
	sess      session
	channelID string
	backoff   time.Duration
}

// NewDiscord creates a Discord notifier.
func NewDiscord(opts DiscordOpts) (*Discord, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("discord: channel is required")
	}
	sess := opts.Session
	if sess == nil {
		dg, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("discord: create session: %w", err)
		}
		sess = dg
	}
	return &Discord{sess: sess, channelID: opts.ChannelID, backoff: 2 * time.Second}, nil
}

// Notify posts e as an embed.
func (d *Discord) Notify(ctx context.Context, e Escalation) error {
	embed := escalationEmbed(e)
	err := retryOnRateLimit(ctx, d.backoff, discordRateLimited, func() error {
		_, err := d.sess.ChannelMessageSendEmbed(d.channelID, embed, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return fmt.Errorf("discord: send escalation: %w", err)
	}
	return nil
}

func discordRateLimited(err error) (time.Duration, bool) {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusTooManyRequests {
		return 0, true
	}
	return 0, false
}

func escalationEmbed(e Escalation) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       e.title(),
		Description: e.Question,
		Color:       parseHexColor(escalationColor),
	}
	if !e.At.IsZero() {
		embed.Timestamp = e.At.UTC().Format(time.RFC3339)
	}
	for _, f := range e.fields() {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.name,
			Value:  f.value,
			Inline: f.short,
		})
	}
	return embed
}

// parseHexColor converts a hex color string (e.g. "#36a64f") to an int.
func parseHexColor(hex string) int {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	var color int
	for _, c := range hex {
		color <<= 4
		switch {
		case c >= '0' && c <= '9':
			color |= int(c - '0')
		case c >= 'a' && c <= 'f':
			color |= int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			color |= int(c-'A') + 10
		}
	}
	return color
}
