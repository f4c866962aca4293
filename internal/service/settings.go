// Package service contains the business rules of the bot.
//
// The chat layer (internal/bot) parses updates and renders replies; the
// repositories read and write rows. Everything in between lives here:
//
//	bot handler → service → repository → SQLite
//
// Services take repository interfaces, not *sqlite.DB, so tests can inject
// in-memory SQLite or hand-written mocks.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sakif/rpg-bot/internal/apperror"
	"github.com/sakif/rpg-bot/internal/metrics"
	"github.com/sakif/rpg-bot/internal/model"
	"github.com/sakif/rpg-bot/internal/repository"
)

// settingsTTL bounds how long a value changed outside /set (by hand, or by
// another process sharing the database) can go unnoticed.
const settingsTTL = 30 * time.Second

// SettingsService resolves the tunables stored in the config table. Values
// are cached for settingsTTL since every event reads all of them.
type SettingsService struct {
	repo   repository.ConfigRepository
	cache  *expirable.LRU[string, int]
	logger *slog.Logger
}

func NewSettingsService(repo repository.ConfigRepository, logger *slog.Logger) *SettingsService {
	return &SettingsService{
		repo:   repo,
		cache:  expirable.NewLRU[string, int](len(model.SettingDefaults), nil, settingsTTL),
		logger: logger,
	}
}

// SettingValue is one row of the admin settings screen.
type SettingValue struct {
	Name  string
	Value int
}

// Load reads every tunable once, writing defaults for the ones never set.
// Handlers call it at the start of an event and pass the result down, so an
// event sees one consistent snapshot even if an admin changes a value
// meanwhile.
func (s *SettingsService) Load(ctx context.Context) (model.Settings, error) {
	values, err := s.values(ctx)
	if err != nil {
		return model.Settings{}, err
	}

	seconds := func(name string) time.Duration {
		return time.Duration(values[name]) * time.Second
	}
	return model.Settings{
		CommandDelay:    seconds(model.SettingCommandDelay),
		ButtonDelay:     seconds(model.SettingButtonDelay),
		AttemptsMaximum: values[model.SettingAttemptsMaximum],
		CodeLength:      values[model.SettingCodeLength],
		PageSize:        values[model.SettingPageSize],
		SourceExpiry:    seconds(model.SettingSourceExpiry),
	}, nil
}

// List returns every tunable in display order.
func (s *SettingsService) List(ctx context.Context) ([]SettingValue, error) {
	values, err := s.values(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]SettingValue, 0, len(model.SettingDefaults))
	for _, d := range model.SettingDefaults {
		out = append(out, SettingValue{Name: d.Name, Value: values[d.Name]})
	}
	return out, nil
}

// Set changes a tunable. Only known names and integers within the setting's
// range are accepted.
func (s *SettingsService) Set(ctx context.Context, name, value string) (int, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	def, ok := model.LookupSetting(name)
	if !ok {
		return 0, apperror.ValidationFailed("name", fmt.Sprintf("unknown setting %q", name)).
			Localized("admin.set_unknown", map[string]string{"name": name})
	}

	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || !def.Accepts(n) {
		return 0, apperror.ValidationFailed("value", fmt.Sprintf("invalid value %q for %s", value, name)).
			Localized("admin.set_invalid", map[string]string{
				"min": strconv.Itoa(def.Min),
				"max": strconv.Itoa(def.Max),
			})
	}

	if err := s.repo.Set(ctx, name, strconv.Itoa(n)); err != nil {
		s.logger.Error("failed to update setting",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("setting %s: %w", name, err)
	}

	s.cache.Add(name, n)
	s.logger.Info("setting updated", slog.String("name", name), slog.Int("value", n))
	return n, nil
}

// values serves from the cache. On a miss every stored row is read in one
// query and only unset names go through GetOrAdd.
func (s *SettingsService) values(ctx context.Context) (map[string]int, error) {
	values := make(map[string]int, len(model.SettingDefaults))
	var stored map[string]string
	for _, d := range model.SettingDefaults {
		if n, ok := s.cache.Get(d.Name); ok {
			metrics.SettingsCache.WithLabelValues("hit").Inc()
			values[d.Name] = n
			continue
		}
		metrics.SettingsCache.WithLabelValues("miss").Inc()

		if stored == nil {
			all, err := s.repo.All(ctx)
			if err != nil {
				return nil, fmt.Errorf("loading settings: %w", err)
			}
			stored = all
		}

		raw, ok := stored[d.Name]
		if !ok {
			var err error
			raw, err = s.repo.GetOrAdd(ctx, d.Name, strconv.Itoa(d.Default))
			if err != nil {
				return nil, fmt.Errorf("loading setting %s: %w", d.Name, err)
			}
		}

		n, err := strconv.Atoi(raw)
		if err != nil || !d.Accepts(n) {
			// A hand-edited row must not take the bot down.
			s.logger.Warn("ignoring invalid stored setting",
				slog.String("name", d.Name),
				slog.String("value", raw),
			)
			n = d.Default
		}
		s.cache.Add(d.Name, n)
		values[d.Name] = n
	}
	return values, nil
}
