package app

import (
	"fmt"
	"log/slog"

	"github.com/Seunghyun-Min/nextjs-recoru/internal/config"
	"github.com/Seunghyun-Min/nextjs-recoru/internal/notify"
)

// BuildNotifier assembles every channel enabled in cfg.
func BuildNotifier(cfg *config.Config, logger *slog.Logger) (notify.Notifier, error) {
	var channels []notify.Notifier
	if cfg.Mail.Enabled {
		m, err := notify.NewMailNotifier(cfg.MailNotifierConfig())
		if err != nil {
			return nil, fmt.Errorf("mail notifier: %w", err)
		}
		channels = append(channels, m)
	}
	if cfg.Slack.Webhook != "" {
		channels = append(channels, notify.NewSlackNotifier(cfg.Slack.Webhook))
	}

	if len(channels) == 0 {
		logger.Warn("no notification channel configured; results are only written to disk")
		return notify.NoopNotifier{}, nil
	}
	return notify.NewMultiNotifier(channels...), nil
}
