package notify

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// discordClient abstracts the Discord API methods we use, enabling test
// mocks.
type discordClient interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts completion notices to a Discord channel.
type Discord struct {
	client    discordClient
	channelID string
}

// DiscordOpts holds parameters for creating a Discord notifier.
type DiscordOpts struct {
	BotToken  string
	ChannelID string
	// For testing: inject a mock client instead of the real Discord API.
	Client discordClient
}

// NewDiscord creates a Discord notifier.
func NewDiscord(opts DiscordOpts) (*Discord, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("notify: discord bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("notify: discord channel ID is required")
	}

	d := &Discord{client: opts.Client, channelID: opts.ChannelID}
	if d.client == nil {
		session, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("notify: create discord session: %w", err)
		}
		d.client = session
	}
	return d, nil
}

// Notify implements Notifier.
func (d *Discord) Notify(event Event) error {
	if _, err := d.client.ChannelMessageSend(d.channelID, formatEvent(event)); err != nil {
		return fmt.Errorf("notify: discord send to %s: %w", d.channelID, err)
	}
	return nil
}

// Name implements Notifier.
func (d *Discord) Name() string { return "discord" }
