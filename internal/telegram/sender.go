package telegram

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// botAPI is the slice of tgbotapi.BotAPI we use; tests substitute a fake.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Sender delivers user notifications and admin alerts over Telegram. User
// ids are telegram chat ids stored as strings in the booking records.
type Sender struct {
	bot         botAPI
	adminChatID int64
	logger      zerolog.Logger
}

func NewSender(token string, debug bool, adminChatID int64, logger *zerolog.Logger) (*Sender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	bot.Debug = debug

	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "telegram").Logger()
	}
	base.Info().Str("account", bot.Self.UserName).Msg("telegram sender authorized")

	return &Sender{bot: bot, adminChatID: adminChatID, logger: base}, nil
}

// NewSenderWithBot wires a pre-built bot, used by tests.
func NewSenderWithBot(bot botAPI, adminChatID int64, logger *zerolog.Logger) *Sender {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "telegram").Logger()
	}
	return &Sender{bot: bot, adminChatID: adminChatID, logger: base}
}

// Send delivers a notification message to the user's chat.
func (s *Sender) Send(ctx context.Context, userID, message string) error {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", userID, err)
	}

	msg := tgbotapi.NewMessage(chatID, message)
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// SendAlert delivers an already-redacted operational alert to the admin chat.
func (s *Sender) SendAlert(ctx context.Context, severity, text string) error {
	if s.adminChatID == 0 {
		s.logger.Warn().Str("severity", severity).Msg("admin chat not configured, alert dropped")
		return nil
	}

	msg := tgbotapi.NewMessage(s.adminChatID, text)
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram alert: %w", err)
	}
	return nil
}
