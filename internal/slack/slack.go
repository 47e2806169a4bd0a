// Package slack posts announcer messages to a Slack channel via the Web
// API.
package slack

import (
	"context"
	"errors"
	"fmt"
	"strings"

	slackapi "github.com/slack-go/slack"
	"golang.org/x/time/rate"

	logx "repowatch/pkg/logx"
)

// Attachment delivery modes. Two observed behaviors are supported and the
// choice is configuration, not code:
//   - ModeAttachment: the attachment text goes out as one structured Slack
//     attachment (link previews usually off).
//   - ModeUnfurl: no structured attachment; the text is appended to the
//     message body and link unfurling is left on.
const (
	ModeAttachment = "attachment"
	ModeUnfurl     = "unfurl"
)

type Config struct {
	Token          string
	AsUser         bool
	UnfurlLinks    bool
	AttachmentMode string // ModeAttachment (default) or ModeUnfurl
	RatePerSec     int    // outbound message rate limit
}

// Notifier sends one chat message per Post call. No retry, no queueing: a
// failed dispatch is reported to the caller and lost for that cycle.
type Notifier struct {
	api *slackapi.Client
	cfg Config
	lim *rate.Limiter
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Notifier, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("slack: token is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	switch cfg.AttachmentMode {
	case "", ModeAttachment:
		cfg.AttachmentMode = ModeAttachment
	case ModeUnfurl:
	default:
		return nil, fmt.Errorf("slack: unknown attachment_mode %q", cfg.AttachmentMode)
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}

	return &Notifier{
		api: slackapi.New(cfg.Token),
		cfg: cfg,
		lim: rate.NewLimiter(rate.Limit(rps), rps),
		log: log,
	}, nil
}

// Post sends message (and attachment, if non-empty) to the channel. The
// rate limiter bounds outbound call frequency; it honors ctx cancellation.
func (n *Notifier) Post(ctx context.Context, channel, message, attachment string) error {
	if message == "" {
		return errors.New("slack: refusing to post empty message")
	}
	if err := n.lim.Wait(ctx); err != nil {
		return err
	}

	text := message
	opts := []slackapi.MsgOption{slackapi.MsgOptionAsUser(n.cfg.AsUser)}

	if n.cfg.UnfurlLinks {
		opts = append(opts, slackapi.MsgOptionEnableLinkUnfurl())
	} else {
		opts = append(opts, slackapi.MsgOptionDisableLinkUnfurl())
	}

	if attachment != "" {
		switch n.cfg.AttachmentMode {
		case ModeAttachment:
			opts = append(opts, slackapi.MsgOptionAttachments(slackapi.Attachment{Text: attachment}))
		case ModeUnfurl:
			text = message + "\n" + attachment
		}
	}
	opts = append(opts, slackapi.MsgOptionText(text, false))

	_, _, err := n.api.PostMessageContext(ctx, channel, opts...)
	if err != nil {
		return fmt.Errorf("slack: post to %s: %w", channel, err)
	}
	n.log.Debug("message posted", logx.String("channel", channel), logx.Int("len", len(text)))
	return nil
}
