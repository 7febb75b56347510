package notify

import (
	"fmt"

	slackapi "github.com/slack-go/slack"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Slack posts completion notices to a Slack channel.
type Slack struct {
	client    slackClient
	channelID string
}

// SlackOpts holds parameters for creating a Slack notifier.
type SlackOpts struct {
	BotToken  string // xoxb-... Slack bot token
	ChannelID string
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// NewSlack creates a Slack notifier.
func NewSlack(opts SlackOpts) (*Slack, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("notify: slack bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("notify: slack channel ID is required")
	}

	s := &Slack{client: opts.Client, channelID: opts.ChannelID}
	if s.client == nil {
		s.client = slackapi.New(opts.BotToken)
	}
	return s, nil
}

// Notify implements Notifier.
func (s *Slack) Notify(event Event) error {
	_, _, err := s.client.PostMessage(s.channelID,
		slackapi.MsgOptionText(formatEvent(event), false))
	if err != nil {
		return fmt.Errorf("notify: slack post to %s: %w", s.channelID, err)
	}
	return nil
}

// Name implements Notifier.
func (s *Slack) Name() string { return "slack" }
