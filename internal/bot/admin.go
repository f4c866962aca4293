package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/rpg-bot/internal/apperror"
	"github.com/sakif/rpg-bot/internal/callback"
	"github.com/sakif/rpg-bot/internal/keyboard"
	"github.com/sakif/rpg-bot/internal/metrics"
	"github.com/sakif/rpg-bot/internal/pagination"
	"github.com/sakif/rpg-bot/internal/service"
)

const timeLayout = "2006-01-02 15:04:05 UTC"

func (e *event) admin(ctx context.Context, msg *Message, _ []string) error {
	return e.reply(ctx, msg, e.l.T("admin.root"), keyboard.AdminRoot(e.l))
}

// broadcast copies the text of the replied message to every user who is not
// banned. Delivery failures (blocked bot, deleted account) are counted and
// skipped.
func (e *event) broadcast(ctx context.Context, msg *Message, _ []string) error {
	if msg.ReplyTo == nil {
		return e.reply(ctx, msg, e.l.T("admin.broadcast_usage"), nil)
	}
	text := msg.ReplyTo.Text
	if strings.TrimSpace(text) == "" {
		return e.reply(ctx, msg, e.l.T("error.must_be_text"), nil)
	}

	users, err := e.Users.List(ctx)
	if err != nil {
		return err
	}

	var sent, total int
	for _, u := range users {
		if u.IsBan {
			continue
		}
		total++

		chatID, err := strconv.ParseInt(u.TelegramID, 10, 64)
		if err != nil {
			metrics.Broadcasts.WithLabelValues("failed").Inc()
			continue
		}
		if _, err := e.send(ctx, Outgoing{ChatID: chatID, Text: text}); err != nil {
			metrics.Broadcasts.WithLabelValues("failed").Inc()
			e.log.Warn("broadcast delivery failed",
				slog.String("target", u.TelegramID),
				slog.String("error", err.Error()),
			)
			continue
		}
		metrics.Broadcasts.WithLabelValues("sent").Inc()
		sent++
	}

	e.log.Info("broadcast finished", slog.Int("sent", sent), slog.Int("total", total))
	return e.reply(ctx, msg, e.l.Tf("admin.broadcast_done", map[string]string{
		"sent":  strconv.Itoa(sent),
		"total": strconv.Itoa(total),
	}), nil)
}

func (e *event) set(ctx context.Context, msg *Message, args []string) error {
	if len(args) != 2 {
		return e.reply(ctx, msg, e.l.T("admin.set_usage"), nil)
	}

	value, err := e.Settings.Set(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	return e.reply(ctx, msg, e.l.Tf("admin.set_done", map[string]string{
		"name":  strings.ToLower(args[0]),
		"value": strconv.Itoa(value),
	}), nil)
}

func (e *event) limit(ctx context.Context, msg *Message, args []string) error {
	if len(args) != 2 {
		return e.reply(ctx, msg, e.l.T("admin.limit_usage"), nil)
	}

	id, err := service.ParseTelegramID(args[0])
	if err != nil {
		return err
	}
	maximum, err := strconv.Atoi(args[1])
	if err != nil {
		return apperror.ValidationFailed("maximum", fmt.Sprintf("invalid maximum %q", args[1])).
			Localized("admin.limit_usage", nil)
	}
	if err := e.Users.SetAttemptsMaximum(ctx, id, maximum); err != nil {
		return err
	}

	return e.reply(ctx, msg, e.l.Tf("admin.limit_done", map[string]string{
		"id":      id,
		"maximum": strconv.Itoa(maximum),
	}), nil)
}

// screen renders one admin screen.
func (e *event) screen(ctx context.Context, g callback.Goto) (string, keyboard.Keyboard, error) {
	switch g.Screen {
	case callback.ScreenAdmin:
		return e.l.T("admin.root"), keyboard.AdminRoot(e.l), nil
	case callback.ScreenUsers:
		return e.usersScreen(ctx, g.Page)
	case callback.ScreenUserInfo:
		return e.userInfoScreen(ctx, g.TelegramID, g.Page)
	case callback.ScreenSettings:
		return e.settingsScreen(ctx)
	case callback.ScreenBroadcast:
		return e.l.T("admin.broadcast_usage"), keyboard.BackToAdmin(e.l), nil
	}
	return "", nil, apperror.Protocol(g.Encode(), "unknown screen")
}

func (e *event) usersScreen(ctx context.Context, page int) (string, keyboard.Keyboard, error) {
	users, err := e.Users.List(ctx)
	if err != nil {
		return "", nil, err
	}

	window := pagination.Page(users, page, e.settings.PageSize)
	actor := keyboard.Actor{
		TelegramID: e.user.TelegramID,
		SuperUser:  e.Users.IsSuperUser(e.user),
	}
	text := e.l.Tf("admin.users_title", map[string]string{"total": strconv.Itoa(len(users))})
	return text, keyboard.Users(e.l, window, actor), nil
}

func (e *event) userInfoScreen(ctx context.Context, telegramID string, page int) (string, keyboard.Keyboard, error) {
	u, err := e.Users.Get(ctx, telegramID)
	if err != nil {
		return "", nil, err
	}

	username := "-"
	if u.Username != "" {
		username = "@" + u.Username
	}
	text := e.l.Tf("admin.user_info", map[string]string{
		"name":         u.DisplayName(),
		"username":     username,
		"id":           u.TelegramID,
		"language":     u.Language,
		"attempts":     strconv.Itoa(u.Attempts),
		"maximum":      strconv.Itoa(u.AttemptsMaximum),
		"admin":        e.yesNo(u.IsAdmin),
		"banned":       e.yesNo(u.IsBan),
		"ban_date":     e.timeOrNever(u.BanDate),
		"last_command": e.timeOrNever(u.LastCommandRecord),
		"last_button":  e.timeOrNever(u.LastButtonRecord),
	})
	return text, keyboard.UserInfo(e.l, page), nil
}

func (e *event) settingsScreen(ctx context.Context) (string, keyboard.Keyboard, error) {
	values, err := e.Settings.List(ctx)
	if err != nil {
		return "", nil, err
	}

	lines := make([]string, 0, len(values))
	for _, v := range values {
		lines = append(lines, fmt.Sprintf("%s = %d", v.Name, v.Value))
	}
	text := e.l.Tf("admin.settings_title", map[string]string{"settings": strings.Join(lines, "\n")})
	return text, keyboard.BackToAdmin(e.l), nil
}

func (e *event) yesNo(v bool) string {
	if v {
		return e.l.T("common.yes")
	}
	return e.l.T("common.no")
}

func (e *event) timeOrNever(t *time.Time) string {
	if t == nil {
		return e.l.T("common.never")
	}
	return t.UTC().Format(timeLayout)
}
