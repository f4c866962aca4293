package bot

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sakif/rpg-bot/internal/apperror"
	"github.com/sakif/rpg-bot/internal/callback"
	"github.com/sakif/rpg-bot/internal/keyboard"
	"github.com/sakif/rpg-bot/internal/metrics"
	"github.com/sakif/rpg-bot/internal/model"
	"github.com/sakif/rpg-bot/internal/service"
)

func (b *Bot) handleCallback(ctx context.Context, log *slog.Logger, cb *Callback) {
	metrics.Updates.WithLabelValues("button").Inc()

	e, unlock, err := b.begin(ctx, log.With(slog.String("callback", cb.Data)), cb.From)
	if err != nil {
		text := ""
		if errors.Is(err, errBusy) {
			text = b.busyText(ctx, model.RecordButton, cb.From)
		} else {
			log.Error("failed to start event", slog.String("error", err.Error()))
		}
		if err := b.Messenger.Answer(ctx, cb.ID, text); err != nil {
			log.Warn("failed to answer callback", slog.String("error", err.Error()))
		}
		return
	}
	defer unlock()

	// Malformed payloads never reach admission.
	action, err := callback.Parse(cb.Data)
	if err != nil {
		e.answer(ctx, cb, e.errorText(err))
		return
	}

	if text, ok := e.admit(ctx, model.RecordButton); !ok {
		e.answer(ctx, cb, text)
		return
	}

	if cb.Message == nil {
		e.answer(ctx, cb, e.l.T("error.expired"))
		return
	}

	if err := e.dispatch(ctx, cb, action); err != nil {
		e.answer(ctx, cb, e.errorText(err))
	}
}

// dispatch runs the handler of one decoded action. Handlers answer the
// callback themselves on success.
func (e *event) dispatch(ctx context.Context, cb *Callback, action callback.Action) error {
	switch a := action.(type) {
	case callback.Print:
		e.answer(ctx, cb, a.Message)
		return nil
	case callback.View:
		return e.view(ctx, cb, a)
	case callback.Option:
		return e.option(ctx, cb, a)
	case callback.Execute:
		return e.executeAgain(ctx, cb, a)
	case callback.ChangeLang:
		return e.changeLang(ctx, cb, a)
	case callback.AdminToggle:
		return e.adminToggle(ctx, cb, a)
	case callback.Goto:
		return e.navigate(ctx, cb, a)
	}
	return apperror.Protocol(cb.Data, "unhandled action")
}

// view swaps the one-button result keyboard for the option keyboard.
// A button already used only shows a notice. The flag travels in the
// payload, so two clients tapping the same old message can both get through.
func (e *event) view(ctx context.Context, cb *Callback, a callback.View) error {
	if a.AlreadyUsed {
		e.answer(ctx, cb, e.l.T("error.already_used"))
		return nil
	}

	src, err := e.Sources.Get(ctx, a.Code)
	if err != nil {
		return err
	}
	if err := e.editKeyboard(ctx, cb.Message.Ref(), keyboard.Options(e.l, src, a.Target)); err != nil {
		return err
	}
	e.answer(ctx, cb, "")
	return nil
}

// option changes one option and redraws the keyboard, keeping the action
// button it ended with.
func (e *event) option(ctx context.Context, cb *Callback, a callback.Option) error {
	target, ok := keyboard.OptionsTarget(cb.Message.Keyboard)
	if !ok {
		return apperror.Protocol(cb.Data, "option tapped outside an options keyboard")
	}

	src, err := e.Sources.UpdateOption(ctx, a.Code, a.Field, a.Value)
	if err != nil {
		return err
	}
	if err := e.editKeyboard(ctx, cb.Message.Ref(), keyboard.Options(e.l, src, target)); err != nil {
		return err
	}
	e.answer(ctx, cb, e.l.Tf("option.set", map[string]string{
		"field": string(a.Field),
		"value": a.Value,
	}))
	return nil
}

// executeAgain runs or shares a stored snippet from its option keyboard.
// The result goes to a new message offering the other action, already
// marked as used; the tapped message collapses back to its view button,
// marked as used too.
func (e *event) executeAgain(ctx context.Context, cb *Callback, a callback.Execute) error {
	if _, err := e.Sources.SweepExpired(ctx, e.settings.SourceExpiry, e.now); err != nil {
		e.log.Error("failed to sweep expired sources", slog.String("error", err.Error()))
	}

	src, err := e.Sources.Get(ctx, a.Code)
	if err != nil {
		return err
	}
	e.answer(ctx, cb, "")

	opts := service.Options{Version: src.Version, Mode: src.Mode, Edition: src.Edition}
	wait, err := e.send(ctx, Outgoing{ChatID: cb.Message.ChatID, Text: e.waitText(a.Target, opts)})
	if err != nil {
		return err
	}

	if err := e.editKeyboard(ctx, cb.Message.Ref(), keyboard.View(e.l, a.Target, src.Code, true)); err != nil {
		e.log.Warn("failed to mark keyboard as used", slog.String("error", err.Error()))
	}

	var outcome *service.Outcome
	if a.Target == callback.TargetShare {
		outcome, err = e.Execution.Share(ctx, e.user, src.Source, opts)
	} else {
		outcome, err = e.Execution.Run(ctx, e.user, src.Source, opts)
	}
	if err != nil {
		return e.editText(ctx, wait, err.Error(), nil)
	}
	if outcome.CompileFailed {
		return e.editText(ctx, wait, outcome.Text, nil)
	}
	return e.editText(ctx, wait, outcome.Text, keyboard.View(e.l, a.Target.Opposite(), src.Code, true))
}

func (e *event) changeLang(ctx context.Context, cb *Callback, a callback.ChangeLang) error {
	if err := e.Users.SetLanguage(ctx, e.user, a.Language); err != nil {
		return err
	}
	e.l = e.Catalog.For(e.user.Language)

	name := e.Catalog.Text(e.user.Language, "language.name", nil)
	text := e.l.Tf("lang.changed", map[string]string{"language": name})
	if err := e.editText(ctx, cb.Message.Ref(), text, keyboard.Languages(e.languages(), e.user.Language)); err != nil {
		return err
	}
	e.answer(ctx, cb, text)
	return nil
}

// adminToggle flips ban or admin on a listed user and redraws the list page
// the button was on.
func (e *event) adminToggle(ctx context.Context, cb *Callback, a callback.AdminToggle) error {
	var (
		target *model.User
		key    string
		err    error
	)
	switch a.Toggle {
	case callback.ToggleBan:
		target, err = e.Users.ToggleBan(ctx, e.user, a.TelegramID, e.now)
		key = "admin.unbanned"
		if err == nil && target.IsBan {
			key = "admin.banned"
		}
	case callback.ToggleAdmin:
		target, err = e.Users.ToggleAdmin(ctx, e.user, a.TelegramID)
		key = "admin.demoted"
		if err == nil && target.IsAdmin {
			key = "admin.promoted"
		}
	default:
		return apperror.Protocol(cb.Data, "unknown toggle")
	}
	if err != nil {
		return err
	}

	_, kb, err := e.usersScreen(ctx, a.Page)
	if err != nil {
		return err
	}
	if err := e.editKeyboard(ctx, cb.Message.Ref(), kb); err != nil {
		return err
	}
	e.answer(ctx, cb, e.l.Tf(key, map[string]string{"name": target.DisplayName()}))
	return nil
}

// navigate moves between admin screens. Every screen rechecks the admin flag
// since buttons outlive a demotion.
func (e *event) navigate(ctx context.Context, cb *Callback, g callback.Goto) error {
	if !e.user.IsAdmin {
		e.answer(ctx, cb, e.l.T("admin.only"))
		return nil
	}

	text, kb, err := e.screen(ctx, g)
	if err != nil {
		return err
	}
	if g.KeyboardOnly {
		err = e.editKeyboard(ctx, cb.Message.Ref(), kb)
	} else {
		err = e.editText(ctx, cb.Message.Ref(), text, kb)
	}
	if err != nil {
		return err
	}
	e.answer(ctx, cb, "")
	return nil
}
