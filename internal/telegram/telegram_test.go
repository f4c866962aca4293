package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/rpg-bot/internal/bot"
	"github.com/sakif/rpg-bot/internal/keyboard"
	"github.com/sakif/rpg-bot/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =========================================================================
// CONVERSION
// =========================================================================

func TestConvert_Message(t *testing.T) {
	data := "viewS abcd false"
	u := tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 5,
		Chat:      &tgbotapi.Chat{ID: -100},
		From:      &tgbotapi.User{ID: 42, FirstName: "Ada", LastName: "Lovelace", UserName: "ada", LanguageCode: "ru-RU"},
		Text:      "/run beta",
		ReplyToMessage: &tgbotapi.Message{
			MessageID: 4,
			Chat:      &tgbotapi.Chat{ID: -100},
			From:      &tgbotapi.User{ID: 43, FirstName: "Bob"},
			Text:      "fn main() {}",
			ReplyMarkup: &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{
				{{Text: "Share", CallbackData: &data}},
			}},
		},
	}}

	got, ok := Convert(u)
	require.True(t, ok)

	want := bot.Update{Message: &bot.Message{
		ID:     5,
		ChatID: -100,
		From:   model.Profile{TelegramID: "42", Username: "ada", FullName: "Ada Lovelace", LanguageCode: "ru-RU"},
		Text:   "/run beta",
		ReplyTo: &bot.Message{
			ID:       4,
			ChatID:   -100,
			From:     model.Profile{TelegramID: "43", FullName: "Bob"},
			Text:     "fn main() {}",
			Keyboard: keyboard.Keyboard{{{Label: "Share", Data: data}}},
		},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Convert() mismatch (-want +got):\n%s", diff)
	}
}

func TestConvert_Callback(t *testing.T) {
	u := tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb1",
		Data: "print hi",
		From: &tgbotapi.User{ID: 42, FirstName: "Ada"},
	}}

	got, ok := Convert(u)
	require.True(t, ok)
	require.NotNil(t, got.Callback)
	assert.Equal(t, "cb1", got.Callback.ID)
	assert.Equal(t, "print hi", got.Callback.Data)
	assert.Equal(t, "42", got.Callback.From.TelegramID)
	assert.Nil(t, got.Callback.Message, "inaccessible messages stay nil")
}

func TestConvert_Ignored(t *testing.T) {
	tests := map[string]tgbotapi.Update{
		"empty":          {},
		"edited message": {EditedMessage: &tgbotapi.Message{Text: "x"}},
		"no sender":      {Message: &tgbotapi.Message{Text: "/start", Chat: &tgbotapi.Chat{ID: 1}}},
	}
	for name, u := range tests {
		t.Run(name, func(t *testing.T) {
			_, ok := Convert(u)
			assert.False(t, ok)
		})
	}
}

func TestMarkupRoundTrip(t *testing.T) {
	kb := keyboard.Keyboard{
		{{Label: "Repository", URL: "https://example.com"}},
		{{Label: "Run", Data: "run abcd"}, {Label: "-", Data: "print x"}},
	}

	markup := markupOf(kb)
	assert.Len(t, markup.InlineKeyboard, 2)
	if diff := cmp.Diff(kb, keyboardOf(&markup)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	assert.Nil(t, keyboardOf(nil))
	assert.Empty(t, markupOf(nil).InlineKeyboard)
}

// =========================================================================
// MESSENGER
// =========================================================================

type fakeAPI struct {
	mu         sync.Mutex
	sent       []tgbotapi.Chattable
	requests   []tgbotapi.Chattable
	requestErr error
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func TestMessenger_Send(t *testing.T) {
	api := &fakeAPI{}
	m := NewMessenger(api, 100, 10, discardLogger())

	ref, err := m.Send(context.Background(), bot.Outgoing{
		ChatID:   9,
		Text:     "hello",
		ReplyTo:  3,
		Keyboard: keyboard.Keyboard{{{Label: "Run", Data: "run abcd"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, bot.MessageRef{ChatID: 9, MessageID: 1}, ref)

	require.Len(t, api.sent, 1)
	cfg, ok := api.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, "hello", cfg.Text)
	assert.Equal(t, 3, cfg.ReplyToMessageID)
	assert.IsType(t, tgbotapi.InlineKeyboardMarkup{}, cfg.ReplyMarkup)
}

func TestMessenger_EditText_RemovesKeyboard(t *testing.T) {
	api := &fakeAPI{}
	m := NewMessenger(api, 100, 10, discardLogger())

	require.NoError(t, m.EditText(context.Background(), bot.MessageRef{ChatID: 9, MessageID: 2}, "done", nil))

	cfg, ok := api.requests[0].(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	assert.Equal(t, "done", cfg.Text)
	assert.Nil(t, cfg.ReplyMarkup)
}

func TestMessenger_NotModifiedIsNotAnError(t *testing.T) {
	api := &fakeAPI{requestErr: errors.New("Bad Request: message is not modified: specified new message content and reply markup are exactly the same")}
	m := NewMessenger(api, 100, 10, discardLogger())

	err := m.EditKeyboard(context.Background(), bot.MessageRef{ChatID: 9, MessageID: 2}, keyboard.Keyboard{{{Label: "x", Data: "print x"}}})
	assert.NoError(t, err)

	api.requestErr = errors.New("Bad Request: chat not found")
	err = m.EditKeyboard(context.Background(), bot.MessageRef{ChatID: 9, MessageID: 2}, nil)
	assert.ErrorContains(t, err, "chat not found")
}

func TestMessenger_RateLimited(t *testing.T) {
	api := &fakeAPI{}
	m := NewMessenger(api, 1, 1, discardLogger())

	_, err := m.Send(context.Background(), bot.Outgoing{ChatID: 1, Text: "first"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = m.Send(ctx, bot.Outgoing{ChatID: 1, Text: "second"})
	assert.Error(t, err, "the bucket is empty for a full second")
	assert.Len(t, api.sent, 1)
}

// =========================================================================
// RECEIVER
// =========================================================================

type recordingHandler struct {
	mu      sync.Mutex
	updates []bot.Update
}

func (h *recordingHandler) Handle(_ context.Context, u bot.Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, u)
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.updates)
}

const startUpdate = `{"update_id":1,"message":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"},"from":{"id":42,"is_bot":false,"first_name":"Ada"},"text":"/start"}}`

func TestWebhook(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		secret     string
		body       string
		wantStatus int
		wantCount  int
	}{
		{"accepted", http.MethodPost, "s3cret", startUpdate, http.StatusOK, 1},
		{"bad secret", http.MethodPost, "nope", startUpdate, http.StatusUnauthorized, 0},
		{"wrong method", http.MethodGet, "s3cret", "", http.StatusBadRequest, 0},
		{"bad json", http.MethodPost, "s3cret", "{", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &recordingHandler{}
			r := NewReceiver(h, 2, discardLogger())

			req := httptest.NewRequest(tt.method, "/telegram/webhook", strings.NewReader(tt.body))
			req.Header.Set(SecretHeader, tt.secret)
			rec := httptest.NewRecorder()

			r.Webhook(&tgbotapi.BotAPI{}, "s3cret").ServeHTTP(rec, req)
			r.Wait()

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCount, h.count())
		})
	}
}

type fakePoller struct {
	updates chan tgbotapi.Update
	stopped bool
}

func (p *fakePoller) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return p.updates
}

func (p *fakePoller) StopReceivingUpdates() { p.stopped = true }

func TestPoll(t *testing.T) {
	h := &recordingHandler{}
	r := NewReceiver(h, 4, discardLogger())
	p := &fakePoller{updates: make(chan tgbotapi.Update, 3)}

	p.updates <- tgbotapi.Update{Message: &tgbotapi.Message{MessageID: 1, Chat: &tgbotapi.Chat{ID: 1}, From: &tgbotapi.User{ID: 1}, Text: "/start"}}
	p.updates <- tgbotapi.Update{EditedMessage: &tgbotapi.Message{Text: "ignored"}}
	p.updates <- tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "c", From: &tgbotapi.User{ID: 1}, Data: "print x"}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Poll(ctx, p, 30) }()

	require.Eventually(t, func() bool { return h.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	require.NoError(t, <-done)
	assert.True(t, p.stopped)
}

func TestPoll_ChannelClosed(t *testing.T) {
	r := NewReceiver(&recordingHandler{}, 1, discardLogger())
	p := &fakePoller{updates: make(chan tgbotapi.Update)}
	close(p.updates)

	assert.Error(t, r.Poll(context.Background(), p, 30))
}
