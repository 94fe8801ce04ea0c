// Package telegram adapts the Bot API library to the relay's chat needs.
package telegram

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/reelrelay/internal/domain"
)

// ErrNoWebhookURL is returned by SetWebhook when no public URL is configured.
var ErrNoWebhookURL = errors.New("webhook URL is not configured")

// Config holds bot connection settings.
type Config struct {
	Token string
	// WebhookURL is the public base URL; the token is appended as the path.
	WebhookURL string
	// APIEndpoint overrides the Bot API endpoint format, e.g. for a local server.
	APIEndpoint string
}

// Client sends and deletes chat messages through the Bot API.
type Client struct {
	api        *tgbotapi.BotAPI
	webhookURL string
	logger     *slog.Logger
}

// New connects to the Bot API and verifies the token.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("bot token is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("connect bot api: %w", err)
	}

	logger.Info("telegram bot authorized", "username", api.Self.UserName)

	return &Client{
		api:        api,
		webhookURL: cfg.WebhookURL,
		logger:     logger,
	}, nil
}

// Username returns the bot's own username.
func (c *Client) Username() string {
	return c.api.Self.UserName
}

// SendMedia uploads a local file as a video or a photo.
func (c *Client) SendMedia(chatID int64, path string, kind domain.MediaKind, caption string) error {
	var msg tgbotapi.Chattable
	switch kind {
	case domain.MediaPhoto:
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(path))
		photo.Caption = caption
		msg = photo
	default:
		video := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(path))
		video.Caption = caption
		video.SupportsStreaming = true
		msg = video
	}

	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("send %s: %w", kind, err)
	}
	return nil
}

// SendText posts text, optionally as a reply, and returns the new message id.
func (c *Client) SendText(chatID int64, text string, replyTo int) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if replyTo != 0 {
		msg.ReplyToMessageID = replyTo
		msg.AllowSendingWithoutReply = true
	}

	sent, err := c.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send text: %w", err)
	}
	return sent.MessageID, nil
}

// Delete removes a message.
func (c *Client) Delete(chatID int64, messageID int) error {
	if _, err := c.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// SendAction shows the "sending video" status in the chat.
func (c *Client) SendAction(chatID int64) error {
	if _, err := c.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatUploadVideo)); err != nil {
		return fmt.Errorf("send chat action: %w", err)
	}
	return nil
}

// WebhookTarget returns the URL Telegram should post updates to.
func (c *Client) WebhookTarget() string {
	if c.webhookURL == "" {
		return ""
	}
	return c.webhookURL + "/" + c.api.Token
}

// SetWebhook registers the webhook for message updates only.
func (c *Client) SetWebhook() (string, error) {
	target := c.WebhookTarget()
	if target == "" {
		return "", ErrNoWebhookURL
	}

	wh, err := tgbotapi.NewWebhook(target)
	if err != nil {
		return "", fmt.Errorf("build webhook: %w", err)
	}
	wh.AllowedUpdates = []string{"message"}

	if _, err := c.api.Request(wh); err != nil {
		return "", fmt.Errorf("set webhook: %w", err)
	}
	c.logger.Info("webhook registered")
	return target, nil
}

// DeleteWebhook removes the webhook registration.
func (c *Client) DeleteWebhook() error {
	if _, err := c.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	c.logger.Info("webhook deleted")
	return nil
}

// WebhookStatus is the subset of webhook info exposed over HTTP.
type WebhookStatus struct {
	URL                  string   `json:"url"`
	HasCustomCertificate bool     `json:"has_custom_certificate"`
	PendingUpdateCount   int      `json:"pending_update_count"`
	LastErrorDate        int      `json:"last_error_date,omitempty"`
	LastErrorMessage     string   `json:"last_error_message,omitempty"`
	MaxConnections       int      `json:"max_connections,omitempty"`
	AllowedUpdates       []string `json:"allowed_updates,omitempty"`
}

// WebhookInfo fetches the current webhook registration.
func (c *Client) WebhookInfo() (WebhookStatus, error) {
	info, err := c.api.GetWebhookInfo()
	if err != nil {
		return WebhookStatus{}, fmt.Errorf("get webhook info: %w", err)
	}
	return WebhookStatus{
		URL:                  info.URL,
		HasCustomCertificate: info.HasCustomCertificate,
		PendingUpdateCount:   info.PendingUpdateCount,
		LastErrorDate:        info.LastErrorDate,
		LastErrorMessage:     info.LastErrorMessage,
		MaxConnections:       info.MaxConnections,
		AllowedUpdates:       info.AllowedUpdates,
	}, nil
}

// ParseUpdate decodes a webhook request body into an inbound message.
// It returns false for updates that carry no text message.
func ParseUpdate(r *http.Request) (domain.InboundMessage, bool, error) {
	var update tgbotapi.Update
	if err := decodeJSON(r, &update); err != nil {
		return domain.InboundMessage{}, false, err
	}
	msg, ok := Inbound(update)
	return msg, ok, nil
}

// Inbound converts an update to the relay's message type.
func Inbound(update tgbotapi.Update) (domain.InboundMessage, bool) {
	m := update.Message
	if m == nil || m.Text == "" || m.Chat == nil || m.IsCommand() {
		return domain.InboundMessage{}, false
	}

	msg := domain.InboundMessage{
		ChatID:    m.Chat.ID,
		MessageID: m.MessageID,
		Text:      m.Text,
		Group:     m.Chat.IsGroup() || m.Chat.IsSuperGroup(),
	}
	if m.From != nil {
		msg.SenderID = m.From.ID
		msg.Username = m.From.UserName
		msg.FirstName = m.From.FirstName
	} else {
		// Anonymous group admins post on behalf of the chat.
		msg.SenderID = m.Chat.ID
	}
	return msg, true
}
