package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"

	"github.com/teschmitt/kickir/internal/domain"
	"github.com/teschmitt/kickir/internal/ports"
)

// TelegramConfig holds bot token and chat ID for goal announcements.
type TelegramConfig struct {
	Token         string `yaml:"token"`
	ChatID        int64  `yaml:"chat_id"`
	RatePerSecond int    `yaml:"rate_per_second"`
	ServerURL     string `yaml:"server_url"`
}

// TelegramSink posts each goal to a chat, throttled to the bot API limits.
type TelegramSink struct {
	bot     *bot.Bot
	chatID  int64
	limiter *rate.Limiter
}

func NewTelegramSink(cfg TelegramConfig) (*TelegramSink, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram: missing token")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram: missing chat_id")
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 1
	}

	opts := []bot.Option{bot.WithSkipGetMe()}
	if cfg.ServerURL != "" {
		opts = append(opts, bot.WithServerURL(cfg.ServerURL))
	}
	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("telegram: init bot: %w", err)
	}

	return &TelegramSink{
		bot:     b,
		chatID:  cfg.ChatID,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RatePerSecond)), cfg.RatePerSecond),
	}, nil
}

func (t *TelegramSink) Name() string { return "telegram" }

func (t *TelegramSink) Send(ctx context.Context, n domain.Notification) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit: %w", err)
	}
	params := &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   fmt.Sprintf("Goal! %s", n.Text),
	}
	if _, err := t.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send telegram message to chat_id %d: %w", t.chatID, err)
	}
	return nil
}

func (t *TelegramSink) Close() error { return nil }

var _ ports.Sink = (*TelegramSink)(nil)
