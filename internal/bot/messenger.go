package bot

import (
	"context"

	"github.com/sakif/rpg-bot/internal/keyboard"
	"github.com/sakif/rpg-bot/internal/model"
)

// MaxTextLen is Telegram's limit on message text, in characters.
const MaxTextLen = 4096

// Update is one inbound event. Exactly one field is set.
type Update struct {
	Message  *Message
	Callback *Callback
}

// Message is an inbound chat message.
type Message struct {
	ID     int
	ChatID int64
	From   model.Profile
	// Text is empty for non-text messages (photos, stickers, ...).
	Text     string
	ReplyTo  *Message
	Keyboard keyboard.Keyboard
}

// Ref addresses the message for edits.
func (m *Message) Ref() MessageRef {
	return MessageRef{ChatID: m.ChatID, MessageID: m.ID}
}

// Callback is an inline button tap.
type Callback struct {
	ID   string
	Data string
	From model.Profile
	// Message is the message carrying the tapped keyboard. Telegram omits
	// it for messages older than 48 hours.
	Message *Message
}

// MessageRef identifies a sent message.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Outgoing is a new message.
type Outgoing struct {
	ChatID   int64
	Text     string
	ReplyTo  int // 0 for none
	Keyboard keyboard.Keyboard
}

// Messenger is the outbound side of the chat transport. internal/telegram
// implements it on top of the Bot API.
type Messenger interface {
	Send(ctx context.Context, msg Outgoing) (MessageRef, error)
	// EditText replaces text and keyboard; a nil keyboard removes it.
	EditText(ctx context.Context, ref MessageRef, text string, kb keyboard.Keyboard) error
	EditKeyboard(ctx context.Context, ref MessageRef, kb keyboard.Keyboard) error
	// Answer acknowledges a callback, showing text as a toast when non-empty.
	Answer(ctx context.Context, callbackID, text string) error
}

// Truncate cuts s to at most n characters.
func Truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
