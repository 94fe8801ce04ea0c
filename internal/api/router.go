package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/reelrelay/internal/api/handler"
	mw "github.com/iconidentify/reelrelay/internal/api/middleware"
)

// RouterConfig holds routing settings.
type RouterConfig struct {
	// BotToken names the webhook route.
	BotToken string
	// AdminKey guards webhook management; empty leaves it open.
	AdminKey string
}

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	cfg RouterConfig,
	healthHandler *handler.HealthHandler,
	botHandler *handler.BotHandler,
	metricsHandler http.Handler,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(cfg.BotToken))
	r.Use(mw.Recovery)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/", healthHandler.Home)
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)

	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Post("/"+cfg.BotToken, botHandler.Webhook)

	r.Group(func(r chi.Router) {
		r.Use(mw.APIKeyAuth(cfg.AdminKey))

		r.Get("/set_webhook", botHandler.SetWebhook)
		r.Get("/delete_webhook", botHandler.DeleteWebhook)
		r.Get("/webhook_info", botHandler.WebhookInfo)
	})

	return r
}
