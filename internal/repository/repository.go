// Package repository declares the storage contracts the services depend on.
// internal/repository/sqlite is the production implementation; tests use
// in-memory SQLite or hand-written mocks.
package repository

import (
	"context"
	"time"

	"github.com/sakif/rpg-bot/internal/model"
)

// ConfigRepository is the flat name/value tunables table.
type ConfigRepository interface {
	// GetOrAdd returns the stored value for name, first inserting def when
	// the name is unset. Concurrent first reads agree on a single value.
	GetOrAdd(ctx context.Context, name, def string) (string, error)
	Set(ctx context.Context, name, value string) error
	// All returns every stored name/value pair.
	All(ctx context.Context) (map[string]string, error)
}

type UserRepository interface {
	// Upsert creates the user on first sight (with the given defaults) and
	// otherwise only refreshes username and full name. The stored row is
	// returned either way.
	Upsert(ctx context.Context, user *model.User) (*model.User, error)
	GetByTelegramID(ctx context.Context, telegramID string) (*model.User, error)
	// List returns every user in insertion order.
	List(ctx context.Context) ([]model.User, error)

	StampRecord(ctx context.Context, telegramID string, kind model.RecordKind, at time.Time) error
	IncrementAttempts(ctx context.Context, telegramID string) error
	SetAttemptsMaximum(ctx context.Context, telegramID string, max int) error
	SetBan(ctx context.Context, telegramID string, banned bool, at time.Time) error
	SetAdmin(ctx context.Context, telegramID string, admin bool) error
	SetLanguage(ctx context.Context, telegramID, language string) error
}

type SourceCodeRepository interface {
	// Create inserts the snippet as of source.CreatedAt. It returns an
	// apperror.ErrConflict error when source.Code is already taken, leaving
	// retry to the caller.
	Create(ctx context.Context, source *model.SourceCode) error
	GetByCode(ctx context.Context, code string) (*model.SourceCode, error)
	UpdateOption(ctx context.Context, code string, field model.OptionField, value string) error
	// DeleteCreatedBefore removes every snippet created at or before cutoff
	// and reports how many rows went away.
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
