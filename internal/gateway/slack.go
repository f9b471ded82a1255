package gateway

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/nidhogg/clippy/internal/activity"
)

// SlackSink mirrors admitted suggestions into a Slack channel.
type SlackSink struct {
	client  *slack.Client
	channel string
	logger  *zap.Logger
}

// NewSlackSink creates a Slack sink. botToken is the Bot User OAuth Token
// (xoxb-...); opts are passed to slack.New.
func NewSlackSink(botToken, channel string, logger *zap.Logger, opts ...slack.Option) *SlackSink {
	return &SlackSink{
		client:  slack.New(botToken, opts...),
		channel: channel,
		logger:  logger,
	}
}

func (s *SlackSink) Name() string { return "slack" }

// Present posts the suggestion as a message.
func (s *SlackSink) Present(ctx context.Context, sg activity.Suggestion) error {
	_, _, err := s.client.PostMessageContext(ctx, s.channel,
		slack.MsgOptionText(FormatText(sg, "*"), false),
		slack.MsgOptionUsername("Clippy"),
	)
	if err != nil {
		s.logger.Error("slack send failed", zap.String("channel", s.channel), zap.Error(err))
		return fmt.Errorf("slack send: %w", err)
	}
	return nil
}

// SetState is a no-op; Slack only receives suggestions.
func (s *SlackSink) SetState(context.Context, State) error { return nil }

func (s *SlackSink) Close() error { return nil }
