// Package relay turns chat messages carrying post links into re-uploaded media.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/iconidentify/reelrelay/internal/domain"
	"github.com/iconidentify/reelrelay/internal/metrics"
	"github.com/iconidentify/reelrelay/internal/ratelimit"
	"github.com/iconidentify/reelrelay/internal/worker"
)

// Chat is the outbound side of the chat transport.
type Chat interface {
	ActionSender
	SendMedia(chatID int64, path string, kind domain.MediaKind, caption string) error
	SendText(chatID int64, text string, replyTo int) (int, error)
	Delete(chatID int64, messageID int) error
}

// Classifier finds a supported link in text.
type Classifier interface {
	Classify(text string) (domain.PlatformURL, bool)
}

// Downloader fetches a classified link to a caller-owned file.
type Downloader interface {
	Download(ctx context.Context, src domain.PlatformURL) domain.Result
}

// Submitter queues background work.
type Submitter interface {
	Submit(job worker.Job) error
}

// Config holds relay behaviour settings.
type Config struct {
	// NoticeTTL is how long error notices stay in the chat.
	NoticeTTL time.Duration
	// MaxFileSize is quoted in the too-large notice.
	MaxFileSize int64
}

// Relay handles inbound messages.
type Relay struct {
	cfg        Config
	chat       Chat
	classifier Classifier
	limiter    *ratelimit.Limiter
	downloader Downloader
	jobs       Submitter
	indicator  *Indicator
	clock      clockwork.Clock
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// Deps groups the relay's collaborators.
type Deps struct {
	Chat       Chat
	Classifier Classifier
	Limiter    *ratelimit.Limiter
	Downloader Downloader
	Jobs       Submitter
	Indicator  *Indicator
	Clock      clockwork.Clock
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// New creates a relay.
func New(cfg Config, deps Deps) *Relay {
	if cfg.NoticeTTL <= 0 {
		cfg.NoticeTTL = 10 * time.Second
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Indicator == nil {
		deps.Indicator = NewIndicator(deps.Chat, deps.Clock, 0, deps.Logger)
	}
	return &Relay{
		cfg:        cfg,
		chat:       deps.Chat,
		classifier: deps.Classifier,
		limiter:    deps.Limiter,
		downloader: deps.Downloader,
		jobs:       deps.Jobs,
		indicator:  deps.Indicator,
		clock:      deps.Clock,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
}

// HandleMessage classifies msg and, when it carries a supported link within
// the sender's quota, queues the download. It never blocks on the download.
func (r *Relay) HandleMessage(ctx context.Context, msg domain.InboundMessage) {
	if msg.Text == "" {
		return
	}

	src, ok := r.classifier.Classify(msg.Text)
	if !ok {
		return
	}

	logger := r.logger.With("chat_id", msg.ChatID, "user_id", msg.SenderID, "platform", src.Platform)

	if d := r.limiter.Check(msg.SenderID); !d.Allowed {
		r.metrics.RateLimited()
		logger.Info("rate limited", "minutes", d.Minutes())
		r.notice(msg, msgRateLimited(d.Minutes()))
		return
	}

	job := worker.Job{
		ID: uuid.NewString(),
		Run: func(ctx context.Context) {
			r.process(ctx, msg, src)
		},
	}

	if err := r.jobs.Submit(job); err != nil {
		// Nothing was downloaded, so the request does not count against the quota.
		r.limiter.Refund(msg.SenderID)
		if errors.Is(err, worker.ErrQueueFull) || errors.Is(err, worker.ErrStopped) {
			logger.Warn("download rejected", "error", err)
		} else {
			logger.Error("failed to queue download", "error", err)
		}
		r.notice(msg, msgBusy)
		return
	}

	logger.Info("download queued", "job_id", job.ID, "url", src.URL)
}

// process runs on a worker.
func (r *Relay) process(ctx context.Context, msg domain.InboundMessage, src domain.PlatformURL) {
	logger := r.logger.With("chat_id", msg.ChatID, "platform", src.Platform, "url", src.URL)

	stop := r.indicator.Start(ctx, msg.ChatID)
	defer stop()

	result := r.downloader.Download(ctx, src)
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Warn("failed to remove delivered file", "error", err)
		}
	}()

	if !result.OK() {
		if ctx.Err() != nil {
			logger.Info("download abandoned on shutdown")
			return
		}
		switch result.Reason {
		case domain.ReasonTooLarge:
			r.notice(msg, msgTooLarge(r.cfg.MaxFileSize))
		default:
			r.notice(msg, msgDownloadFailed)
		}
		return
	}

	var text string
	if msg.Group {
		text = caption(msg.SenderHandle())
	}

	if err := r.chat.SendMedia(msg.ChatID, result.Path, result.Kind, text); err != nil {
		r.metrics.Delivery(string(result.Kind), "failed")
		logger.Error("failed to send media", "kind", result.Kind, "error", err)
		r.notice(msg, msgSendFailed)
		return
	}
	r.metrics.Delivery(string(result.Kind), "sent")
	logger.Info("media relayed", "kind", result.Kind, "size", result.Size)

	if err := r.chat.Delete(msg.ChatID, msg.MessageID); err != nil {
		// Usually missing admin rights in a group.
		logger.Warn("could not delete original message", "error", err)
	}
}

// notice replies to msg and removes the reply after NoticeTTL.
func (r *Relay) notice(msg domain.InboundMessage, text string) {
	id, err := r.chat.SendText(msg.ChatID, text, msg.MessageID)
	if err != nil {
		r.logger.Warn("failed to send notice", "chat_id", msg.ChatID, "error", err)
		return
	}

	r.clock.AfterFunc(r.cfg.NoticeTTL, func() {
		if err := r.chat.Delete(msg.ChatID, id); err != nil {
			r.logger.Debug("failed to delete notice", "chat_id", msg.ChatID, "error", err)
		}
	})
}
