package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sakif/rpg-bot/internal/callback"
	"github.com/sakif/rpg-bot/internal/keyboard"
	"github.com/sakif/rpg-bot/internal/metrics"
	"github.com/sakif/rpg-bot/internal/model"
	"github.com/sakif/rpg-bot/internal/service"
)

type command struct {
	adminOnly bool
	run       func(e *event, ctx context.Context, msg *Message, args []string) error
}

func (b *Bot) commandTable() map[string]command {
	return map[string]command{
		"start": {run: (*event).start},
		"help":  {run: (*event).help},
		"lang":  {run: (*event).lang},
		"run": {run: func(e *event, ctx context.Context, msg *Message, args []string) error {
			return e.execute(ctx, msg, args, callback.TargetRun)
		}},
		"share": {run: func(e *event, ctx context.Context, msg *Message, args []string) error {
			return e.execute(ctx, msg, args, callback.TargetShare)
		}},
		"admin":     {adminOnly: true, run: (*event).admin},
		"broadcast": {adminOnly: true, run: (*event).broadcast},
		"set":       {adminOnly: true, run: (*event).set},
		"limit":     {adminOnly: true, run: (*event).limit},
	}
}

// parseCommand splits "/name@bot arg1 arg2". Commands addressed to another
// bot are not ours.
func parseCommand(text, username string) (string, []string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text)
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))

	if base, target, found := strings.Cut(name, "@"); found {
		if username != "" && !strings.EqualFold(target, username) {
			return "", nil, false
		}
		name = base
	}
	if name == "" {
		return "", nil, false
	}
	return name, fields[1:], true
}

func (b *Bot) handleMessage(ctx context.Context, log *slog.Logger, msg *Message) {
	name, args, ok := parseCommand(msg.Text, b.Username)
	if !ok {
		metrics.Updates.WithLabelValues("other").Inc()
		return
	}
	cmd, ok := b.commands[name]
	if !ok {
		metrics.Updates.WithLabelValues("other").Inc()
		return
	}
	metrics.Updates.WithLabelValues("command").Inc()

	e, unlock, err := b.begin(ctx, log.With(slog.String("command", name)), msg.From)
	if errors.Is(err, errBusy) {
		log.Debug("command while busy", slog.String("command", name))
		text := b.busyText(ctx, model.RecordCommand, msg.From)
		if _, err := b.Messenger.Send(ctx, Outgoing{ChatID: msg.ChatID, Text: text, ReplyTo: msg.ID}); err != nil {
			log.Warn("failed to send reply", slog.String("error", err.Error()))
		}
		return
	}
	if err != nil {
		log.Error("failed to start event", slog.String("error", err.Error()))
		return
	}
	defer unlock()

	if text, ok := e.admit(ctx, model.RecordCommand); !ok {
		e.replyOrLog(ctx, msg, text)
		return
	}
	if cmd.adminOnly && !e.user.IsAdmin {
		e.replyOrLog(ctx, msg, e.l.T("admin.only"))
		return
	}

	if err := cmd.run(e, ctx, msg, args); err != nil {
		e.replyOrLog(ctx, msg, e.errorText(err))
	}
}

func (e *event) replyOrLog(ctx context.Context, msg *Message, text string) {
	if err := e.reply(ctx, msg, text, nil); err != nil {
		e.log.Error("failed to reply", slog.String("error", err.Error()))
	}
}

func (e *event) start(ctx context.Context, msg *Message, _ []string) error {
	return e.reply(ctx, msg, e.l.T("start.welcome"), keyboard.Repository(e.l))
}

func (e *event) help(ctx context.Context, msg *Message, args []string) error {
	key := "help.all"
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "run":
			key = "help.run"
		case "share":
			key = "help.share"
		}
	}
	return e.reply(ctx, msg, e.l.T(key), nil)
}

func (e *event) lang(ctx context.Context, msg *Message, _ []string) error {
	return e.reply(ctx, msg, e.l.T("lang.choose"), keyboard.Languages(e.languages(), e.user.Language))
}

func (e *event) languages() []keyboard.Language {
	codes := e.Catalog.Codes()
	out := make([]keyboard.Language, 0, len(codes))
	for _, code := range codes {
		out = append(out, keyboard.Language{Code: code, Name: e.Catalog.Text(code, "language.name", nil)})
	}
	return out
}

// execute handles /run and /share: the command must reply to the message
// holding the source code.
func (e *event) execute(ctx context.Context, msg *Message, args []string, target callback.Target) error {
	if msg.ReplyTo == nil {
		return e.reply(ctx, msg, e.l.T("error.reply_required"), nil)
	}
	source := msg.ReplyTo.Text
	if strings.TrimSpace(source) == "" {
		return e.reply(ctx, msg, e.l.T("error.must_be_text"), nil)
	}

	opts := service.ParseOptions(args)
	if err := opts.Validate(); err != nil {
		return err
	}

	wait, err := e.send(ctx, Outgoing{
		ChatID:  msg.ChatID,
		Text:    e.waitText(target, opts),
		ReplyTo: msg.ID,
	})
	if err != nil {
		return err
	}

	outcome, err := e.submit(ctx, source, opts, target)
	if err != nil {
		// The executor's own message is what the user gets to see.
		return e.editText(ctx, wait, err.Error(), nil)
	}
	if outcome.CompileFailed {
		return e.editText(ctx, wait, outcome.Text, nil)
	}

	src, err := e.Sources.Create(ctx, e.user, source, opts, e.settings, e.now)
	if err != nil {
		e.log.Error("failed to store source code", slog.String("error", err.Error()))
		return e.editText(ctx, wait, outcome.Text, nil)
	}

	return e.editText(ctx, wait, outcome.Text, keyboard.View(e.l, target.Opposite(), src.Code, false))
}

// submit sweeps expired snippets and makes the remote call.
func (e *event) submit(ctx context.Context, source string, opts service.Options, target callback.Target) (*service.Outcome, error) {
	if _, err := e.Sources.SweepExpired(ctx, e.settings.SourceExpiry, e.now); err != nil {
		e.log.Error("failed to sweep expired sources", slog.String("error", err.Error()))
	}

	if target == callback.TargetShare {
		return e.Execution.Share(ctx, e.user, source, opts)
	}
	return e.Execution.Run(ctx, e.user, source, opts)
}

func (e *event) waitText(target callback.Target, opts service.Options) string {
	return e.l.Tf(target.String()+".wait", map[string]string{
		"version": opts.Version,
		"mode":    opts.Mode,
		"edition": opts.Edition,
	})
}
