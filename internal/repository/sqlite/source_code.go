package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/rpg-bot/internal/apperror"
	"github.com/sakif/rpg-bot/internal/model"
	"github.com/sakif/rpg-bot/internal/repository"
)

var _ repository.SourceCodeRepository = (*SourceCodeDB)(nil)

// SourceCodeDB is the source_codes table view of DB.
type SourceCodeDB struct {
	db *DB
}

// SourceCodes returns the snippet repository.
func (db *DB) SourceCodes() *SourceCodeDB {
	return &SourceCodeDB{db: db}
}

// optionColumns whitelists the columns UpdateOption may touch. The field is
// interpolated into SQL, so it must never come from anywhere else.
var optionColumns = map[model.OptionField]string{
	model.FieldVersion: "version",
	model.FieldMode:    "mode",
	model.FieldEdition: "edition",
}

// Create inserts the snippet. A taken code is reported as ErrConflict so the
// service can draw a new one; the UNIQUE index is the only collision check
// that holds under concurrent creations.
func (s *SourceCodeDB) Create(ctx context.Context, source *model.SourceCode) error {
	result, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO source_codes (code, user_id, source_text, version, mode, edition, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		source.Code,
		source.UserID,
		source.Source,
		source.Version,
		source.Mode,
		source.Edition,
		source.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("source code", source.Code)
		}
		return fmt.Errorf("sqlite: creating source code %s: %w", source.Code, err)
	}

	if source.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("sqlite: reading source code id: %w", err)
	}
	return nil
}

// GetByCode returns apperror.ErrNotFound for unknown or swept codes.
func (s *SourceCodeDB) GetByCode(ctx context.Context, code string) (*model.SourceCode, error) {
	var (
		src     model.SourceCode
		created int64
	)
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT id, code, user_id, source_text, version, mode, edition, created_at
		 FROM source_codes WHERE code = ?`,
		code,
	).Scan(
		&src.ID, &src.Code, &src.UserID, &src.Source,
		&src.Version, &src.Mode, &src.Edition, &created,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("source code", code)
		}
		return nil, fmt.Errorf("sqlite: getting source code %s: %w", code, err)
	}
	src.CreatedAt = time.Unix(created, 0).UTC()
	return &src, nil
}

// UpdateOption changes one of version, mode or edition in place.
func (s *SourceCodeDB) UpdateOption(ctx context.Context, code string, field model.OptionField, value string) error {
	column, ok := optionColumns[field]
	if !ok {
		return apperror.ValidationFailed("field", fmt.Sprintf("unknown option field %q", field))
	}

	result, err := s.db.conn.ExecContext(ctx,
		`UPDATE source_codes SET `+column+` = ? WHERE code = ?`, value, code)
	if err != nil {
		return fmt.Errorf("sqlite: updating %s of source code %s: %w", field, code, err)
	}
	return checkAffected(result, apperror.NotFound("source code", code))
}

// DeleteCreatedBefore removes snippets created at or before cutoff.
func (s *SourceCodeDB) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.conn.ExecContext(ctx,
		`DELETE FROM source_codes WHERE created_at <= ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlite: sweeping source codes: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *moderncsqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
