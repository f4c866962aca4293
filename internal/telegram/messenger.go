package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/sakif/rpg-bot/internal/bot"
	"github.com/sakif/rpg-bot/internal/keyboard"
)

// notModified is the API's complaint about an edit that changes nothing,
// e.g. re-selecting the current option.
const notModified = "message is not modified"

// API is the subset of *tgbotapi.BotAPI the messenger uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Messenger implements bot.Messenger. Every outbound call first waits on a
// token bucket so bursts such as /broadcast stay under Telegram's flood
// limits.
type Messenger struct {
	api     API
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ bot.Messenger = (*Messenger)(nil)

// NewMessenger allows rps calls per second with bursts of up to burst.
func NewMessenger(api API, rps float64, burst int, logger *slog.Logger) *Messenger {
	return &Messenger{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(rps), max(burst, 1)),
		logger:  logger,
	}
}

func (m *Messenger) Send(ctx context.Context, out bot.Outgoing) (bot.MessageRef, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return bot.MessageRef{}, fmt.Errorf("telegram: waiting to send: %w", err)
	}

	cfg := tgbotapi.NewMessage(out.ChatID, out.Text)
	cfg.ReplyToMessageID = out.ReplyTo
	cfg.DisableWebPagePreview = true
	if len(out.Keyboard) > 0 {
		cfg.ReplyMarkup = markupOf(out.Keyboard)
	}

	sent, err := m.api.Send(cfg)
	if err != nil {
		return bot.MessageRef{}, fmt.Errorf("telegram: sending message: %w", err)
	}
	return bot.MessageRef{ChatID: out.ChatID, MessageID: sent.MessageID}, nil
}

func (m *Messenger) EditText(ctx context.Context, ref bot.MessageRef, text string, kb keyboard.Keyboard) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram: waiting to edit: %w", err)
	}

	cfg := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text)
	cfg.DisableWebPagePreview = true
	if len(kb) > 0 {
		markup := markupOf(kb)
		cfg.ReplyMarkup = &markup
	}
	return m.request(cfg, "editing message text")
}

func (m *Messenger) EditKeyboard(ctx context.Context, ref bot.MessageRef, kb keyboard.Keyboard) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram: waiting to edit: %w", err)
	}

	cfg := tgbotapi.NewEditMessageReplyMarkup(ref.ChatID, ref.MessageID, markupOf(kb))
	return m.request(cfg, "editing keyboard")
}

// Answer is not rate limited: Telegram shows a spinner on the button until
// the callback is answered.
func (m *Messenger) Answer(_ context.Context, callbackID, text string) error {
	return m.request(tgbotapi.NewCallback(callbackID, text), "answering callback")
}

func (m *Messenger) request(c tgbotapi.Chattable, doing string) error {
	if _, err := m.api.Request(c); err != nil {
		if strings.Contains(err.Error(), notModified) {
			m.logger.Debug("edit changed nothing", slog.String("operation", doing))
			return nil
		}
		return fmt.Errorf("telegram: %s: %w", doing, err)
	}
	return nil
}
