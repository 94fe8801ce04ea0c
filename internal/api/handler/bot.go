package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iconidentify/reelrelay/internal/domain"
	"github.com/iconidentify/reelrelay/internal/telegram"
)

// MessageHandler consumes inbound chat messages.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg domain.InboundMessage)
}

// WebhookManager registers and inspects the bot webhook.
type WebhookManager interface {
	SetWebhook() (string, error)
	DeleteWebhook() error
	WebhookInfo() (telegram.WebhookStatus, error)
}

// BotHandler serves the webhook and its admin endpoints.
type BotHandler struct {
	messages MessageHandler
	webhook  WebhookManager
	logger   *slog.Logger
}

// NewBotHandler creates a new bot handler.
func NewBotHandler(messages MessageHandler, webhook WebhookManager, logger *slog.Logger) *BotHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BotHandler{
		messages: messages,
		webhook:  webhook,
		logger:   logger,
	}
}

// Webhook handles POST /{token}. Updates without a text message are
// acknowledged and dropped so Telegram does not redeliver them.
func (h *BotHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	msg, ok, err := telegram.ParseUpdate(r)
	if err != nil {
		h.logger.Warn("bad webhook update", "error", err)
		http.Error(w, "error", http.StatusBadRequest)
		return
	}

	if ok {
		// Downloads outlive the request; the relay only queues them.
		h.messages.HandleMessage(context.WithoutCancel(r.Context()), msg)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// WebhookResponse is returned by the webhook admin endpoints.
type WebhookResponse struct {
	Status      string                  `json:"status"`
	WebhookURL  string                  `json:"webhook_url,omitempty"`
	WebhookInfo *telegram.WebhookStatus `json:"webhook_info,omitempty"`
	Message     string                  `json:"message,omitempty"`
}

// SetWebhook handles GET /set_webhook.
func (h *BotHandler) SetWebhook(w http.ResponseWriter, r *http.Request) {
	target, err := h.webhook.SetWebhook()
	if errors.Is(err, telegram.ErrNoWebhookURL) {
		writeJSON(w, http.StatusBadRequest, WebhookResponse{Status: "error", Message: "WEBHOOK_URL is not set"})
		return
	}
	if err != nil {
		h.logger.Error("failed to set webhook", "error", err)
		writeJSON(w, http.StatusInternalServerError, WebhookResponse{Status: "error", Message: err.Error()})
		return
	}

	resp := WebhookResponse{Status: "success", WebhookURL: redactToken(target)}
	if info, err := h.webhook.WebhookInfo(); err == nil {
		info.URL = redactToken(info.URL)
		resp.WebhookInfo = &info
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteWebhook handles GET /delete_webhook.
func (h *BotHandler) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.webhook.DeleteWebhook(); err != nil {
		h.logger.Error("failed to delete webhook", "error", err)
		writeJSON(w, http.StatusInternalServerError, WebhookResponse{Status: "error", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, WebhookResponse{Status: "webhook deleted"})
}

// WebhookInfo handles GET /webhook_info.
func (h *BotHandler) WebhookInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.webhook.WebhookInfo()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, WebhookResponse{Status: "error", Message: err.Error()})
		return
	}
	info.URL = redactToken(info.URL)
	writeJSON(w, http.StatusOK, info)
}

// redactToken hides the bot token that forms the last path segment.
func redactToken(webhookURL string) string {
	for i := len(webhookURL) - 1; i >= 0; i-- {
		if webhookURL[i] == '/' {
			if i == len(webhookURL)-1 {
				return webhookURL
			}
			return webhookURL[:i+1] + "<token>"
		}
	}
	return webhookURL
}
