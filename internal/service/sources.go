package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/sakif/rpg-bot/internal/apperror"
	"github.com/sakif/rpg-bot/internal/metrics"
	"github.com/sakif/rpg-bot/internal/model"
	"github.com/sakif/rpg-bot/internal/repository"
)

const codeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxCodeAttempts bounds the draws for a free code. With 62^4 codes even a
// busy table rarely needs a second one.
const maxCodeAttempts = 10

// SourceService is the snippet registry. Keyboards only carry a snippet's
// short code; the source and its options stay here.
type SourceService struct {
	repo   repository.SourceCodeRepository
	logger *slog.Logger
	// newCode draws a candidate code; tests replace it to force collisions.
	newCode func(length int) string
}

func NewSourceService(repo repository.SourceCodeRepository, logger *slog.Logger) *SourceService {
	return &SourceService{
		repo:    repo,
		logger:  logger,
		newCode: randomCode,
	}
}

func randomCode(length int) string {
	var b strings.Builder
	b.Grow(length)
	for range length {
		b.WriteByte(codeAlphabet[rand.IntN(len(codeAlphabet))])
	}
	return b.String()
}

// Options is the version, mode and edition a snippet runs with.
type Options struct {
	Version string
	Mode    string
	Edition string
}

// DefaultOptions is what /run and /share use for omitted arguments.
var DefaultOptions = Options{
	Version: model.VersionStable,
	Mode:    model.ModeDebug,
	Edition: model.Edition2021,
}

// ParseOptions fills Options from command arguments, lower-casing them and
// defaulting the missing ones. Extra arguments are ignored.
func ParseOptions(args []string) Options {
	opts := DefaultOptions
	fields := []*string{&opts.Version, &opts.Mode, &opts.Edition}
	for i, arg := range args {
		if i == len(fields) {
			break
		}
		*fields[i] = strings.ToLower(arg)
	}
	return opts
}

// Validate checks every option and reports the first invalid one with the
// reply the user should see.
func (o Options) Validate() error {
	for _, f := range model.OptionFields {
		v := o.get(f)
		if !f.Accepts(v) {
			return apperror.ValidationFailed(string(f), fmt.Sprintf("invalid %s %q", f, v)).
				Localized("error.invalid_"+string(f), map[string]string{"value": v})
		}
	}
	return nil
}

func (o Options) get(f model.OptionField) string {
	switch f {
	case model.FieldVersion:
		return o.Version
	case model.FieldMode:
		return o.Mode
	}
	return o.Edition
}

// Create stores a snippet created at now under a fresh random code of
// settings.CodeLength characters. A taken code is redrawn; the store's unique
// index decides. now must come from the clock SweepExpired is given.
func (s *SourceService) Create(ctx context.Context, user *model.User, source string, opts Options, settings model.Settings, now time.Time) (*model.SourceCode, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		src := &model.SourceCode{
			Code:      s.newCode(settings.CodeLength),
			UserID:    user.ID,
			Source:    source,
			Version:   opts.Version,
			Mode:      opts.Mode,
			Edition:   opts.Edition,
			CreatedAt: now.UTC().Truncate(time.Second),
		}

		err := s.repo.Create(ctx, src)
		if err == nil {
			s.logger.Debug("source code stored",
				slog.String("code", src.Code),
				slog.String("telegram_id", user.TelegramID),
				slog.Int("attempt", attempt),
			)
			return src, nil
		}
		if !errors.Is(err, apperror.ErrConflict) {
			return nil, fmt.Errorf("storing source code: %w", err)
		}
	}

	s.logger.Error("no free source code",
		slog.Int("length", settings.CodeLength),
		slog.Int("attempts", maxCodeAttempts),
	)
	return nil, apperror.Conflict("source code", fmt.Sprintf("length %d", settings.CodeLength))
}

// Get returns a stored snippet. ErrNotFound means it expired or never
// existed; the reply for it is attached.
func (s *SourceService) Get(ctx context.Context, code string) (*model.SourceCode, error) {
	src, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && errors.Is(appErr.Err, apperror.ErrNotFound) {
			return nil, appErr.Localized("error.expired", nil)
		}
		return nil, err
	}
	return src, nil
}

// UpdateOption changes one option of a stored snippet and returns the
// updated row.
func (s *SourceService) UpdateOption(ctx context.Context, code string, field model.OptionField, value string) (*model.SourceCode, error) {
	if !field.Accepts(value) {
		return nil, apperror.ValidationFailed(string(field), fmt.Sprintf("invalid %s %q", field, value))
	}

	src, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateOption(ctx, code, field, value); err != nil {
		return nil, fmt.Errorf("updating %s: %w", field, err)
	}
	src.SetOption(field, value)
	return src, nil
}

// SweepExpired deletes snippets created expiry or longer before now. It is
// idempotent; run and share call it before each submission.
func (s *SourceService) SweepExpired(ctx context.Context, expiry time.Duration, now time.Time) (int64, error) {
	n, err := s.repo.DeleteCreatedBefore(ctx, now.Add(-expiry))
	if err != nil {
		return 0, fmt.Errorf("sweeping expired sources: %w", err)
	}
	if n > 0 {
		metrics.SweptSources.Add(float64(n))
		s.logger.Info("expired source codes swept", slog.Int64("count", n))
	}
	return n, nil
}
