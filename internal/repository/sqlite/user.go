package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/rpg-bot/internal/apperror"
	"github.com/sakif/rpg-bot/internal/model"
	"github.com/sakif/rpg-bot/internal/repository"
)

var _ repository.UserRepository = (*UserDB)(nil)

// UserDB is the users table view of DB.
type UserDB struct {
	db *DB
}

// Users returns the users table repository.
func (db *DB) Users() *UserDB {
	return &UserDB{db: db}
}

const userColumns = `id, telegram_id, username, fullname, language, attempts,
	attempts_maximum, is_admin, is_ban, ban_date, last_command_record, last_button_record`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u        model.User
		username sql.NullString
		banDate  sql.NullInt64
		lastCmd  sql.NullInt64
		lastBtn  sql.NullInt64
	)
	err := row.Scan(
		&u.ID, &u.TelegramID, &username, &u.FullName, &u.Language, &u.Attempts,
		&u.AttemptsMaximum, &u.IsAdmin, &u.IsBan, &banDate, &lastCmd, &lastBtn,
	)
	if err != nil {
		return nil, err
	}
	u.Username = username.String
	u.BanDate = timeOrNil(banDate)
	u.LastCommandRecord = timeOrNil(lastCmd)
	u.LastButtonRecord = timeOrNil(lastBtn)
	return &u, nil
}

// Upsert inserts the user on first sight and otherwise refreshes the
// profile columns only. Counters, flags and language of an existing row are
// left alone; is_admin can be raised (super-user promotion) but never lowered
// here.
func (u *UserDB) Upsert(ctx context.Context, user *model.User) (*model.User, error) {
	var username any
	if user.Username != "" {
		username = user.Username
	}

	_, err := u.db.conn.ExecContext(ctx,
		`INSERT INTO users (telegram_id, username, fullname, language, attempts_maximum, is_admin)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(telegram_id) DO UPDATE SET
		     username = excluded.username,
		     fullname = excluded.fullname,
		     is_admin = MAX(users.is_admin, excluded.is_admin)`,
		user.TelegramID,
		username,
		user.FullName,
		user.Language,
		user.AttemptsMaximum,
		user.IsAdmin,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: upserting user %s: %w", user.TelegramID, err)
	}

	return u.GetByTelegramID(ctx, user.TelegramID)
}

// GetByTelegramID returns apperror.ErrNotFound when the user never wrote to
// the bot.
func (u *UserDB) GetByTelegramID(ctx context.Context, telegramID string) (*model.User, error) {
	row := u.db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_id = ?`, telegramID)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", telegramID)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", telegramID, err)
	}
	return user, nil
}

// List returns all users ordered by insertion.
func (u *UserDB) List(ctx context.Context) ([]model.User, error) {
	rows, err := u.db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}

// StampRecord stores at as the last command or button record.
func (u *UserDB) StampRecord(ctx context.Context, telegramID string, kind model.RecordKind, at time.Time) error {
	column := "last_command_record"
	if kind == model.RecordButton {
		column = "last_button_record"
	}
	return u.exec(ctx, telegramID, "stamping "+string(kind)+" record",
		`UPDATE users SET `+column+` = ? WHERE telegram_id = ?`, at.Unix(), telegramID)
}

// IncrementAttempts adds one consumed attempt. There is deliberately no
// counterpart that lowers the counter.
func (u *UserDB) IncrementAttempts(ctx context.Context, telegramID string) error {
	return u.exec(ctx, telegramID, "incrementing attempts",
		`UPDATE users SET attempts = attempts + 1 WHERE telegram_id = ?`, telegramID)
}

func (u *UserDB) SetAttemptsMaximum(ctx context.Context, telegramID string, max int) error {
	return u.exec(ctx, telegramID, "setting attempts maximum",
		`UPDATE users SET attempts_maximum = ? WHERE telegram_id = ?`, max, telegramID)
}

// SetBan flips the ban flag; ban_date is set to at when banning and cleared
// when lifting the ban.
func (u *UserDB) SetBan(ctx context.Context, telegramID string, banned bool, at time.Time) error {
	var banDate *time.Time
	if banned {
		banDate = &at
	}
	return u.exec(ctx, telegramID, "setting ban",
		`UPDATE users SET is_ban = ?, ban_date = ? WHERE telegram_id = ?`, banned, unixOrNil(banDate), telegramID)
}

func (u *UserDB) SetAdmin(ctx context.Context, telegramID string, admin bool) error {
	return u.exec(ctx, telegramID, "setting admin",
		`UPDATE users SET is_admin = ? WHERE telegram_id = ?`, admin, telegramID)
}

func (u *UserDB) SetLanguage(ctx context.Context, telegramID, language string) error {
	return u.exec(ctx, telegramID, "setting language",
		`UPDATE users SET language = ? WHERE telegram_id = ?`, language, telegramID)
}

// exec runs a single-row UPDATE and maps "no row touched" to NotFound.
func (u *UserDB) exec(ctx context.Context, telegramID, what, query string, args ...any) error {
	result, err := u.db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: %s for user %s: %w", what, telegramID, err)
	}
	return checkAffected(result, apperror.NotFound("user", telegramID))
}
