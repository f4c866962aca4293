// Package model defines the data structures shared by the store, the services
// and the chat layer.
package model

import (
	"strings"
	"time"
)

// RecordKind names a rate-limited action class. Commands (text messages
// starting with "/") and buttons (inline keyboard taps) have independent
// cooldowns and independent last-record timestamps.
type RecordKind string

const (
	RecordCommand RecordKind = "command"
	RecordButton  RecordKind = "button"
)

// User is one Telegram account that has talked to the bot.
//
// Rows are created lazily on the first interaction and never deleted.
// Attempts only ever grows: nothing in the store decrements it, the rate
// limiter compares it against AttemptsMaximum before a remote execution.
type User struct {
	ID         int64  `json:"id"         db:"id"`
	TelegramID string `json:"telegramId" db:"telegram_id"` // stable platform identity
	Username   string `json:"username"   db:"username"`    // empty when the account has none
	FullName   string `json:"fullName"   db:"fullname"`
	Language   string `json:"language"   db:"language"`

	Attempts        int `json:"attempts"        db:"attempts"`
	AttemptsMaximum int `json:"attemptsMaximum" db:"attempts_maximum"`

	IsAdmin bool       `json:"isAdmin" db:"is_admin"`
	IsBan   bool       `json:"isBan"   db:"is_ban"`
	BanDate *time.Time `json:"banDate" db:"ban_date"`

	LastCommandRecord *time.Time `json:"lastCommandRecord" db:"last_command_record"`
	LastButtonRecord  *time.Time `json:"lastButtonRecord"  db:"last_button_record"`
}

// LastRecord returns the last stamped timestamp for the given action class,
// or nil if the user never performed one.
func (u *User) LastRecord(kind RecordKind) *time.Time {
	if kind == RecordButton {
		return u.LastButtonRecord
	}
	return u.LastCommandRecord
}

// DisplayName is the label used in admin listings.
func (u *User) DisplayName() string {
	if name := strings.TrimSpace(u.FullName); name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return u.TelegramID
}

// Profile is the identity data carried by every inbound Telegram update.
// The directory syncs it into the User row on each interaction.
type Profile struct {
	TelegramID   string
	Username     string
	FullName     string
	LanguageCode string // IETF tag reported by the client, e.g. "ru" or "en-US"
}
