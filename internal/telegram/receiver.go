package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sakif/rpg-bot/internal/bot"
	"github.com/sakif/rpg-bot/internal/syncutil"
)

// SecretHeader carries the webhook secret Telegram echoes on every delivery.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Handler consumes converted updates. *bot.Bot implements it.
type Handler interface {
	Handle(ctx context.Context, u bot.Update)
}

// Receiver feeds updates to a Handler, each in its own goroutine, with at
// most limit handled concurrently.
type Receiver struct {
	handler Handler
	workers *syncutil.WorkerGroup
	logger  *slog.Logger
}

func NewReceiver(handler Handler, limit int, logger *slog.Logger) *Receiver {
	return &Receiver{
		handler: handler,
		workers: syncutil.NewWorkerGroup(limit),
		logger:  logger,
	}
}

// Dispatch converts u and schedules it. It blocks while every worker is busy
// and gives up when ctx ends.
func (r *Receiver) Dispatch(ctx context.Context, u tgbotapi.Update) error {
	update, ok := Convert(u)
	if !ok {
		r.logger.Debug("update ignored", slog.Int("update_id", u.UpdateID))
		return nil
	}
	return r.workers.Go(ctx, func() {
		// Handlers outlive the delivery: a webhook request returns as soon
		// as the update is scheduled.
		r.handler.Handle(context.WithoutCancel(ctx), update)
	})
}

// Wait blocks until every scheduled update has been handled.
func (r *Receiver) Wait() {
	r.workers.Wait()
}

// Poller is the long-polling side of *tgbotapi.BotAPI.
type Poller interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Poll reads updates until ctx ends, then waits for in-flight handlers.
func (r *Receiver) Poll(ctx context.Context, api Poller, timeout int) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = timeout
	cfg.AllowedUpdates = []string{tgbotapi.UpdateTypeMessage, tgbotapi.UpdateTypeCallbackQuery}

	updates := api.GetUpdatesChan(cfg)
	defer r.Wait()
	defer api.StopReceivingUpdates()

	r.logger.Info("polling for updates", slog.Int("timeout", timeout))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("polling stopped")
			return nil
		case u, ok := <-updates:
			if !ok {
				return fmt.Errorf("telegram: update channel closed")
			}
			if err := r.Dispatch(ctx, u); err != nil {
				return nil
			}
		}
	}
}

// UpdateDecoder reads one webhook delivery. *tgbotapi.BotAPI implements it.
type UpdateDecoder interface {
	HandleUpdate(r *http.Request) (*tgbotapi.Update, error)
}

// Webhook returns the handler for Telegram's webhook deliveries. A non-empty
// secret must match the SecretHeader of every request.
func (r *Receiver) Webhook(decoder UpdateDecoder, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if secret != "" && req.Header.Get(SecretHeader) != secret {
			r.logger.Warn("webhook delivery with a bad secret", slog.String("remote", req.RemoteAddr))
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		u, err := decoder.HandleUpdate(req)
		if err != nil {
			r.logger.Warn("invalid webhook delivery", slog.String("error", err.Error()))
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}

		if err := r.Dispatch(req.Context(), *u); err != nil {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// SetWebhook registers url with Telegram. The secret is echoed back in
// SecretHeader on every delivery.
func SetWebhook(api *tgbotapi.BotAPI, url, secret string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	if err := params.AddInterface("allowed_updates", []string{
		tgbotapi.UpdateTypeMessage,
		tgbotapi.UpdateTypeCallbackQuery,
	}); err != nil {
		return fmt.Errorf("telegram: encoding webhook params: %w", err)
	}

	if _, err := api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("telegram: setting webhook: %w", err)
	}
	return nil
}

// DeleteWebhook switches the bot back to long polling.
func DeleteWebhook(api *tgbotapi.BotAPI) error {
	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("telegram: deleting webhook: %w", err)
	}
	return nil
}
