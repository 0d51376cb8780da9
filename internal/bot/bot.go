package bot

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"homework_bot/internal/config"
	"homework_bot/internal/homework"
)

// sender is the part of tgbotapi.BotAPI the bot needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot отправляет уведомления в единственный чат.
type Bot struct {
	api     sender
	chatID  int64
	channel string // @username канала, если CHAT_ID не числовой
	limiter *rate.Limiter
	log     zerolog.Logger
}

const defaultTimeout = 30 * time.Second

type Option func(*options)

type options struct {
	apiEndpoint string
}

// WithAPIEndpoint points the bot at a different Bot API server.
// The endpoint is a format string like tgbotapi.APIEndpoint.
func WithAPIEndpoint(endpoint string) Option {
	return func(o *options) { o.apiEndpoint = endpoint }
}

// New builds the bot without failing on network errors: getMe is only a
// logged check, so a Telegram outage at startup does not stop polling.
func New(cfg *config.Config, log zerolog.Logger, opts ...Option) (*Bot, error) {
	o := options{apiEndpoint: tgbotapi.APIEndpoint}
	for _, opt := range opts {
		opt(&o)
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	api := &tgbotapi.BotAPI{
		Token:  cfg.TelegramToken,
		Client: &http.Client{Timeout: timeout},
		Buffer: 100,
	}
	api.SetAPIEndpoint(o.apiEndpoint)
	api.Debug = cfg.Debug

	if self, err := api.GetMe(); err != nil {
		log.Warn().Err(err).Msg("Не удалось проверить токен бота, продолжаем без авторизации")
	} else {
		api.Self = self
		log.Info().Str("account", self.UserName).Msg("Authorized on account")
	}

	return newBot(api, cfg.ChatID, cfg.TelegramRate, log)
}

func newBot(api sender, chat string, perSec float64, log zerolog.Logger) (*Bot, error) {
	b := &Bot{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(perSec), max(1, int(perSec))),
		log:     log.With().Str("component", "bot").Logger(),
	}

	chat = strings.TrimSpace(chat)
	if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
		b.chatID = id
	} else if strings.HasPrefix(chat, "@") && len(chat) > 1 {
		b.channel = chat
	} else {
		return nil, homework.ConfigError(fmt.Sprintf("CHAT_ID: ожидается число или @username, получено %q", chat))
	}
	return b, nil
}

// SendMessage отправляет сообщение в Telegram чат.
// Ошибки отправки только логируются, вызывающий их не видит.
func (b *Bot) SendMessage(ctx context.Context, text string) {
	if err := b.limiter.Wait(ctx); err != nil {
		b.log.Error().Err(err).Msg("Ошибка при отправке сообщения хозяину")
		return
	}

	if _, err := b.api.Send(b.message(text)); err != nil {
		b.log.Error().Err(err).Msg("Ошибка при отправке сообщения хозяину")
		return
	}
	b.log.Info().Msgf(`Бот отправил сообщение "%s"`, text)
}

func (b *Bot) message(text string) tgbotapi.MessageConfig {
	if b.channel != "" {
		return tgbotapi.NewMessageToChannel(b.channel, text)
	}
	return tgbotapi.NewMessage(b.chatID, text)
}
