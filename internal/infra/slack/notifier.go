package slack

import (
	"context"
	"errors"
	"log/slog"

	"order_monitor/internal/domain"

	"github.com/slack-go/slack"
)

// Notifier posts monitor messages through the Slack Web API.
type Notifier struct {
	api    *slack.Client
	logger *slog.Logger
}

var _ domain.ChatNotifier = (*Notifier)(nil)

// NewNotifier creates a notifier for a bot token. apiURL overrides the Web API
// base (must end in "/"); leave empty for the public endpoint.
func NewNotifier(token, apiURL string) *Notifier {
	opts := []slack.Option{}
	if apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	return &Notifier{
		api:    slack.New(token, opts...),
		logger: slog.Default().With("module", "slack"),
	}
}

// PostMessage sends text (mrkdwn) to channelID.
func (n *Notifier) PostMessage(ctx context.Context, channelID, text string) error {
	_, ts, err := n.api.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		var rl *slack.RateLimitedError
		if errors.As(err, &rl) {
			n.logger.Warn("Slack rate limited", slog.String("channel", channelID), slog.Duration("retry_after", rl.RetryAfter))
		}
		return domain.NewError(domain.KindDelivery, "post message", err)
	}
	n.logger.Debug("Message posted", slog.String("channel", channelID), slog.String("ts", ts))
	return nil
}
