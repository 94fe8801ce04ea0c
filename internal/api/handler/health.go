package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/reelrelay/internal/ratelimit"
	"github.com/iconidentify/reelrelay/internal/session"
)

var startTime = time.Now()

// LimiterStats reports rate limiter occupancy.
type LimiterStats interface {
	Stats() ratelimit.Stats
}

// SessionStatus reports the authenticated session state.
type SessionStatus interface {
	Status() session.Status
}

// QueueDepth reports queued downloads.
type QueueDepth interface {
	Pending() int
}

// HealthConfig configures readiness checks.
type HealthConfig struct {
	BotConfigured bool
	ScratchDir    string
	// MinFreeBytes fails readiness when the scratch volume has less free space.
	MinFreeBytes int64
}

// HealthHandler handles liveness and readiness endpoints.
type HealthHandler struct {
	cfg      HealthConfig
	limiter  LimiterStats
	sessions SessionStatus
	queue    QueueDepth
}

// NewHealthHandler creates a new health handler. Any dependency may be nil.
func NewHealthHandler(cfg HealthConfig, limiter LimiterStats, sessions SessionStatus, queue QueueDepth) *HealthHandler {
	return &HealthHandler{
		cfg:      cfg,
		limiter:  limiter,
		sessions: sessions,
		queue:    queue,
	}
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	BotConfigured bool   `json:"bot_configured"`
	Timestamp     string `json:"timestamp"`
}

// ReadyResponse is the JSON response for GET /ready.
type ReadyResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	RateLimit *ratelimit.Stats `json:"rate_limit,omitempty"`
	Session   *session.Status  `json:"session,omitempty"`
	Queue     *QueueStats      `json:"queue,omitempty"`
	Disk      DiskStats        `json:"disk"`
}

// QueueStats contains download queue statistics.
type QueueStats struct {
	Pending int `json:"pending"`
}

// DiskStats describes free space on the scratch volume.
type DiskStats struct {
	Path      string `json:"path"`
	FreeBytes int64  `json:"free_bytes"`
	FreeHuman string `json:"free_human"`
}

// Home handles GET / with a plain alive message.
func (h *HealthHandler) Home(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("✅ reelrelay is alive!"))
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		BotConfigured: h.cfg.BotConfigured,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	free := getFreeDiskSpace(h.cfg.ScratchDir)

	resp := ReadyResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    formatUptime(time.Since(startTime)),
		Disk: DiskStats{
			Path:      h.cfg.ScratchDir,
			FreeBytes: free,
			FreeHuman: humanize.IBytes(uint64(max(free, 0))),
		},
	}
	if h.limiter != nil {
		stats := h.limiter.Stats()
		resp.RateLimit = &stats
	}
	if h.sessions != nil {
		status := h.sessions.Status()
		resp.Session = &status
	}
	if h.queue != nil {
		resp.Queue = &QueueStats{Pending: h.queue.Pending()}
	}

	code := http.StatusOK
	if h.cfg.MinFreeBytes > 0 && free < h.cfg.MinFreeBytes {
		resp.Status = "low_disk"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
