package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sakif/rpg-bot/internal/apperror"
	"github.com/sakif/rpg-bot/internal/model"
	"github.com/sakif/rpg-bot/internal/repository"
)

// Languages is the part of the message catalog the directory needs.
// *i18n.Catalog implements it.
type Languages interface {
	Supports(lang string) bool
	Match(tag string) (string, bool)
}

// UserService is the user directory: lazy creation, profile sync, record
// stamping, attempt accounting and the admin toggles.
type UserService struct {
	repo        repository.UserRepository
	languages   Languages
	superUserID string
	logger      *slog.Logger
}

// NewUserService creates the directory. superUserID may be empty, in which
// case nobody is super-user.
func NewUserService(repo repository.UserRepository, languages Languages, superUserID string, logger *slog.Logger) *UserService {
	return &UserService{
		repo:        repo,
		languages:   languages,
		superUserID: superUserID,
		logger:      logger,
	}
}

// IsSuperUser reports whether u is the configured super-user.
func (s *UserService) IsSuperUser(u *model.User) bool {
	return s.superUserID != "" && u.TelegramID == s.superUserID
}

// Sync creates the user on first contact and refreshes username and full
// name on every later one. New users get the language their client reports
// when it is supported, and the current default attempts quota.
func (s *UserService) Sync(ctx context.Context, p model.Profile, settings model.Settings) (*model.User, error) {
	lang, ok := s.languages.Match(p.LanguageCode)
	if !ok {
		lang = "en"
	}

	user, err := s.repo.Upsert(ctx, &model.User{
		TelegramID:      p.TelegramID,
		Username:        p.Username,
		FullName:        p.FullName,
		Language:        lang,
		AttemptsMaximum: settings.AttemptsMaximum,
		IsAdmin:         s.superUserID != "" && p.TelegramID == s.superUserID,
	})
	if err != nil {
		return nil, fmt.Errorf("syncing user %s: %w", p.TelegramID, err)
	}
	return user, nil
}

// Get returns a user by Telegram id.
func (s *UserService) Get(ctx context.Context, telegramID string) (*model.User, error) {
	user, err := s.repo.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, withUserNotFound(err, telegramID)
	}
	return user, nil
}

// List returns every user in insertion order.
func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("failed to list users", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// Stamp records that u performed an action of the given kind at now. It is
// called right after the rate limiter admitted the action.
func (s *UserService) Stamp(ctx context.Context, u *model.User, kind model.RecordKind, now time.Time) error {
	now = now.Truncate(time.Second)
	if err := s.repo.StampRecord(ctx, u.TelegramID, kind, now); err != nil {
		return fmt.Errorf("stamping %s record: %w", kind, err)
	}
	if kind == model.RecordButton {
		u.LastButtonRecord = &now
	} else {
		u.LastCommandRecord = &now
	}
	return nil
}

// ChargeAttempt consumes one attempt of u's quota.
func (s *UserService) ChargeAttempt(ctx context.Context, u *model.User) error {
	if err := s.repo.IncrementAttempts(ctx, u.TelegramID); err != nil {
		return fmt.Errorf("charging attempt: %w", err)
	}
	u.Attempts++
	return nil
}

// SetLanguage switches u to lang, which must have a catalog.
func (s *UserService) SetLanguage(ctx context.Context, u *model.User, lang string) error {
	if !s.languages.Supports(lang) {
		return apperror.ValidationFailed("language", fmt.Sprintf("unsupported language %q", lang)).
			Localized("error.unknown_language", nil)
	}
	if err := s.repo.SetLanguage(ctx, u.TelegramID, lang); err != nil {
		return fmt.Errorf("setting language: %w", err)
	}
	u.Language = lang
	return nil
}

// SetAttemptsMaximum changes the quota of one user.
func (s *UserService) SetAttemptsMaximum(ctx context.Context, telegramID string, maximum int) error {
	if maximum < 0 {
		return apperror.ValidationFailed("maximum", "attempts maximum must not be negative").
			Localized("admin.limit_usage", nil)
	}
	if err := s.repo.SetAttemptsMaximum(ctx, telegramID, maximum); err != nil {
		return withUserNotFound(err, telegramID)
	}
	s.logger.Info("attempts maximum updated",
		slog.String("telegram_id", telegramID),
		slog.Int("maximum", maximum),
	)
	return nil
}

// ToggleBan bans or unbans target on behalf of actor. Nobody can ban
// themselves, and only the super-user can ban another admin.
func (s *UserService) ToggleBan(ctx context.Context, actor *model.User, targetID string, now time.Time) (*model.User, error) {
	target, err := s.adminTarget(ctx, actor, targetID)
	if err != nil {
		return nil, err
	}
	if target.IsAdmin && !s.IsSuperUser(actor) {
		return nil, apperror.Forbidden("only the super-user can ban an admin").
			Localized("admin.peer_ban", nil)
	}

	banned := !target.IsBan
	if err := s.repo.SetBan(ctx, target.TelegramID, banned, now); err != nil {
		return nil, fmt.Errorf("toggling ban: %w", err)
	}
	target.IsBan = banned
	target.BanDate = nil
	if banned {
		at := now.Truncate(time.Second)
		target.BanDate = &at
	}

	s.logger.Info("user ban toggled",
		slog.String("actor", actor.TelegramID),
		slog.String("target", target.TelegramID),
		slog.Bool("banned", banned),
	)
	return target, nil
}

// ToggleAdmin promotes or demotes target on behalf of actor. Nobody can
// change their own flag, and only the super-user can demote an admin.
func (s *UserService) ToggleAdmin(ctx context.Context, actor *model.User, targetID string) (*model.User, error) {
	target, err := s.adminTarget(ctx, actor, targetID)
	if err != nil {
		return nil, err
	}
	if target.IsAdmin && !s.IsSuperUser(actor) {
		return nil, apperror.Forbidden("only the super-user can demote an admin").
			Localized("admin.peer", nil)
	}

	admin := !target.IsAdmin
	if err := s.repo.SetAdmin(ctx, target.TelegramID, admin); err != nil {
		return nil, fmt.Errorf("toggling admin: %w", err)
	}
	target.IsAdmin = admin

	s.logger.Info("user admin toggled",
		slog.String("actor", actor.TelegramID),
		slog.String("target", target.TelegramID),
		slog.Bool("admin", admin),
	)
	return target, nil
}

// adminTarget checks the rules shared by both toggles and loads the target.
func (s *UserService) adminTarget(ctx context.Context, actor *model.User, targetID string) (*model.User, error) {
	if !actor.IsAdmin {
		return nil, apperror.Forbidden("admin action by a non-admin").Localized("admin.only", nil)
	}
	if actor.TelegramID == targetID {
		return nil, apperror.Forbidden("admins cannot change their own account").Localized("admin.self", nil)
	}

	target, err := s.repo.GetByTelegramID(ctx, targetID)
	if err != nil {
		return nil, withUserNotFound(err, targetID)
	}
	return target, nil
}

// withUserNotFound attaches the "user not found" reply to a NotFound error.
func withUserNotFound(err error, telegramID string) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && errors.Is(appErr.Err, apperror.ErrNotFound) {
		return appErr.Localized("admin.user_not_found", map[string]string{"id": telegramID})
	}
	return err
}

// ParseTelegramID validates an id typed by an admin.
func ParseTelegramID(s string) (string, error) {
	if _, err := strconv.ParseInt(s, 10, 64); err != nil {
		return "", apperror.ValidationFailed("telegram_id", fmt.Sprintf("invalid telegram id %q", s)).
			Localized("admin.limit_usage", nil)
	}
	return s, nil
}
