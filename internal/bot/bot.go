// Package bot is the chat layer: it turns inbound updates into service calls
// and renders the replies.
//
// Every update runs as one event:
//
//	claim user → load settings → sync user → admission → stamp → handler
//
// A user has at most one event in flight. Two quick taps therefore cannot
// both pass the rate limiter before either stamps its record, and an event
// arriving while another is running is turned away at once instead of
// waiting for it.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/rpg-bot/internal/apperror"
	"github.com/sakif/rpg-bot/internal/i18n"
	"github.com/sakif/rpg-bot/internal/keyboard"
	"github.com/sakif/rpg-bot/internal/metrics"
	"github.com/sakif/rpg-bot/internal/model"
	"github.com/sakif/rpg-bot/internal/ratelimit"
	"github.com/sakif/rpg-bot/internal/service"
	"github.com/sakif/rpg-bot/internal/syncutil"
)

// Deps are the collaborators of a Bot.
type Deps struct {
	Messenger Messenger
	Settings  *service.SettingsService
	Users     *service.UserService
	Sources   *service.SourceService
	Execution *service.ExecutionService
	Catalog   *i18n.Catalog
	Logger    *slog.Logger
	// Username is the bot's own username, used to ignore commands addressed
	// to other bots in group chats. Empty accepts every command.
	Username string
}

// Bot handles updates. It is safe for concurrent use.
type Bot struct {
	Deps
	commands map[string]command
	locks    syncutil.KeyedMutex
	now      func() time.Time
}

// New wires a Bot.
func New(deps Deps) *Bot {
	b := &Bot{
		Deps: deps,
		now:  time.Now,
	}
	b.commands = b.commandTable()
	return b
}

// event is the state of one update while it is being handled.
type event struct {
	*Bot
	log      *slog.Logger
	user     *model.User
	settings model.Settings
	l        i18n.Localizer
	now      time.Time
}

// Handle processes one update. Panics are recovered and logged so one bad
// event never stops the bot.
func (b *Bot) Handle(ctx context.Context, u Update) {
	log := b.Logger.With(slog.String("event_id", xid.New().String()))

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while handling update",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	switch {
	case u.Message != nil:
		b.handleMessage(ctx, log, u.Message)
	case u.Callback != nil:
		b.handleCallback(ctx, log, u.Callback)
	default:
		metrics.Updates.WithLabelValues("other").Inc()
	}
}

// errBusy reports that the sender already has an event in flight.
var errBusy = errors.New("bot: user has an event in flight")

// begin claims the sender and resolves settings and the user row. The
// returned function releases the claim. It fails with errBusy without
// waiting when the sender is already claimed.
func (b *Bot) begin(ctx context.Context, log *slog.Logger, from model.Profile) (*event, func(), error) {
	unlock, ok := b.locks.TryLock(from.TelegramID)
	if !ok {
		return nil, nil, errBusy
	}

	settings, err := b.Settings.Load(ctx)
	if err != nil {
		unlock()
		return nil, nil, fmt.Errorf("loading settings: %w", err)
	}

	user, err := b.Users.Sync(ctx, from, settings)
	if err != nil {
		unlock()
		return nil, nil, err
	}

	e := &event{
		Bot:      b,
		log:      log.With(slog.String("telegram_id", user.TelegramID)),
		user:     user,
		settings: settings,
		l:        b.Catalog.For(user.Language),
		now:      b.now(),
	}
	return e, unlock, nil
}

// busyText is the reply to an event turned away by begin. The stored
// language wins over the client's when the user is known.
func (b *Bot) busyText(ctx context.Context, kind model.RecordKind, from model.Profile) string {
	metrics.Denials.WithLabelValues(string(kind), "busy").Inc()

	lang, _ := b.Catalog.Match(from.LanguageCode)
	if u, err := b.Users.Get(ctx, from.TelegramID); err == nil {
		lang = u.Language
	}
	return b.Catalog.For(lang).T("limit.busy")
}

// admit runs the rate limiter and stamps the record on success. On denial
// it returns the reply to show.
func (e *event) admit(ctx context.Context, kind model.RecordKind) (string, bool) {
	d := ratelimit.Check(e.user, kind, e.settings, e.now)
	if !d.Allowed() {
		metrics.Denials.WithLabelValues(string(kind), d.Reason.String()).Inc()
		e.log.Debug("action denied",
			slog.String("kind", string(kind)),
			slog.String("reason", d.Reason.String()),
		)
		return e.denial(d), false
	}

	if err := e.Users.Stamp(ctx, e.user, kind, e.now); err != nil {
		// Admission already happened; a lost stamp only shortens the cooldown.
		e.log.Error("failed to stamp record", slog.String("error", err.Error()))
	}
	return "", true
}

func (e *event) denial(d ratelimit.Decision) string {
	switch d.Reason {
	case ratelimit.Banned:
		return e.l.T("limit.banned")
	case ratelimit.AttemptsExhausted:
		return e.l.Tf("limit.attempts", map[string]string{
			"maximum": strconv.Itoa(e.user.AttemptsMaximum),
		})
	}
	return e.l.Tf("limit.cooldown", map[string]string{
		"seconds": strconv.Itoa(int(d.Remaining / time.Second)),
	})
}

// errorText maps a handler error to the reply the user sees, logging the
// ones that indicate a fault rather than a user mistake.
func (e *event) errorText(err error) string {
	if key, vars, ok := apperror.KeyOf(err); ok {
		return e.l.Tf(key, vars)
	}

	switch {
	case errors.Is(err, apperror.ErrProtocol):
		metrics.ProtocolErrors.Inc()
		e.log.Error("malformed callback payload", slog.String("error", err.Error()))
		return e.l.T("error.bad_button")
	case errors.Is(err, apperror.ErrNotFound):
		return e.l.T("error.expired")
	case errors.Is(err, apperror.ErrValidation), errors.Is(err, apperror.ErrForbidden):
		return err.Error()
	}

	e.log.Error("failed to handle update", slog.String("error", err.Error()))
	return e.l.T("error.generic")
}

// send posts a new message, truncating the text to Telegram's limit.
func (e *event) send(ctx context.Context, msg Outgoing) (MessageRef, error) {
	msg.Text = Truncate(msg.Text, MaxTextLen)
	ref, err := e.Messenger.Send(ctx, msg)
	if err != nil {
		return MessageRef{}, fmt.Errorf("sending message: %w", err)
	}
	return ref, nil
}

// reply answers msg in its chat.
func (e *event) reply(ctx context.Context, msg *Message, text string, kb keyboard.Keyboard) error {
	_, err := e.send(ctx, Outgoing{ChatID: msg.ChatID, Text: text, ReplyTo: msg.ID, Keyboard: kb})
	return err
}

func (e *event) editText(ctx context.Context, ref MessageRef, text string, kb keyboard.Keyboard) error {
	if strings.TrimSpace(text) == "" {
		text = e.l.T("run.no_output")
	}
	if err := e.Messenger.EditText(ctx, ref, Truncate(text, MaxTextLen), kb); err != nil {
		return fmt.Errorf("editing message: %w", err)
	}
	return nil
}

func (e *event) editKeyboard(ctx context.Context, ref MessageRef, kb keyboard.Keyboard) error {
	if err := e.Messenger.EditKeyboard(ctx, ref, kb); err != nil {
		return fmt.Errorf("editing keyboard: %w", err)
	}
	return nil
}

// answer acknowledges a callback. Failures are only logged: the toast is
// cosmetic and the action it reports already happened.
func (e *event) answer(ctx context.Context, cb *Callback, text string) {
	if err := e.Messenger.Answer(ctx, cb.ID, Truncate(text, 200)); err != nil {
		e.log.Warn("failed to answer callback", slog.String("error", err.Error()))
	}
}
