package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iconidentify/reelrelay/internal/api"
	"github.com/iconidentify/reelrelay/internal/api/handler"
	"github.com/iconidentify/reelrelay/internal/classifier"
	"github.com/iconidentify/reelrelay/internal/config"
	"github.com/iconidentify/reelrelay/internal/domain"
	"github.com/iconidentify/reelrelay/internal/downloader"
	"github.com/iconidentify/reelrelay/internal/extractor"
	"github.com/iconidentify/reelrelay/internal/media"
	"github.com/iconidentify/reelrelay/internal/metrics"
	"github.com/iconidentify/reelrelay/internal/ratelimit"
	"github.com/iconidentify/reelrelay/internal/relay"
	"github.com/iconidentify/reelrelay/internal/session"
	"github.com/iconidentify/reelrelay/internal/telegram"
	"github.com/iconidentify/reelrelay/internal/worker"
	"github.com/iconidentify/reelrelay/pkg/ffmpeg"
	"github.com/iconidentify/reelrelay/pkg/instagram"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("reelrelay %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Setup logger; the level is adjusted once config is loaded.
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting reelrelay",
		"version", Version,
		"build_time", BuildTime,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.SlogLevel())

	if cfg.Telegram.WebhookURL == "" {
		logger.Warn("WEBHOOK_URL not set, /set_webhook will fail until it is")
	}

	scratchRoot := cfg.Download.ScratchDir
	if scratchRoot == "" {
		scratchRoot = filepath.Join(os.TempDir(), "reelrelay")
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Authenticated Instagram session
	store, closeStore, err := openSessionStore(cfg.Session)
	if err != nil {
		logger.Error("failed to open session store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	sessions := session.NewManager(
		session.Credentials{
			Username: cfg.Instagram.Username,
			Password: cfg.Instagram.Password,
		},
		store,
		func() *instagram.Client {
			return instagram.NewClient(instagram.Config{
				BaseURL:  cfg.Instagram.APIBaseURL,
				MinDelay: cfg.Instagram.MinDelay,
			}, logger)
		},
		logger,
	)
	if !sessions.Enabled() {
		logger.Info("instagram credentials not set, authenticated fallback disabled")
	}

	// Extraction
	fetcher := downloader.NewHTTPDownloader(downloader.Config{
		Timeout:       cfg.Download.Timeout,
		Retries:       cfg.Download.Retries,
		RetryDelay:    cfg.Download.RetryDelay,
		MaxRetryDelay: cfg.Download.MaxRetryDelay,
		MaxBytes:      cfg.Download.MaxFileSize,
	}, logger)

	profile := extractor.DefaultProfile()
	profile.MaxHeight = cfg.Download.MaxHeight
	profile.MaxFileSize = cfg.Download.MaxFileSize
	profile.Retries = cfg.Download.Retries
	profile.SocketTimeout = cfg.Download.SocketTimeout
	if cfg.Instagram.CookiesFile != "" {
		profile.Cookies = map[domain.Platform]string{domain.PlatformInstagram: cfg.Instagram.CookiesFile}
	}
	profile.JitterMin = cfg.Download.JitterMin
	profile.JitterMax = cfg.Download.JitterMax

	strategies := extractor.Chains(extractor.Options{
		Profile:        profile,
		YtDLPPath:      cfg.Download.YtDLPPath,
		ScrapeAPIURL:   cfg.Download.ScrapeAPIURL,
		TikTokAPIURL:   cfg.Download.TikTokAPIURL,
		SyndicationURL: cfg.Download.SyndicationURL,
		Fetcher:        fetcher,
		Sessions:       sessions,
		Logger:         logger,
	})

	chains := make(map[domain.Platform]*media.Chain, len(strategies))
	for platform, list := range strategies {
		logger.Info("strategy chain", "platform", platform, "strategies", extractor.Names(list))
		chains[platform] = media.NewChain(list, profile.Jitter, m, logger.With("platform", platform))
	}

	var prober media.Prober
	if p, err := ffmpeg.NewProber(); err == nil {
		prober = p
	} else {
		logger.Warn("ffprobe not available, generic files default to video", "error", err)
	}

	mediaSvc, err := media.NewService(
		media.ServiceConfig{
			ScratchRoot: scratchRoot,
			Timeout:     cfg.Download.Timeout,
		},
		chains,
		media.NewResolver(cfg.Download.MaxFileSize, prober, logger),
		m,
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize media service", "error", err)
		os.Exit(1)
	}

	// Chat transport
	bot, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.BotToken,
		WebhookURL:  cfg.Telegram.WebhookURL,
		APIEndpoint: cfg.Telegram.APIEndpoint,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to telegram", "error", err)
		os.Exit(1)
	}

	pool := worker.NewPool(worker.Config{
		Workers:   cfg.Worker.Count,
		QueueSize: cfg.Worker.QueueSize,
	}, m, logger)

	limiter := ratelimit.New(ratelimit.Config{
		Limit:    cfg.RateLimit.Limit,
		Window:   cfg.RateLimit.Window,
		Cooldown: cfg.RateLimit.Cooldown,
	})

	links := classifier.New()
	logger.Info("link classifier ready", "platforms", links.Platforms())

	clock := clockwork.NewRealClock()
	rl := relay.New(
		relay.Config{
			NoticeTTL:   cfg.Telegram.NoticeTTL,
			MaxFileSize: cfg.Download.MaxFileSize,
		},
		relay.Deps{
			Chat:       bot,
			Classifier: links,
			Limiter:    limiter,
			Downloader: mediaSvc,
			Jobs:       pool,
			Indicator:  relay.NewIndicator(bot, clock, cfg.Telegram.ActionEvery, logger),
			Clock:      clock,
			Metrics:    m,
			Logger:     logger,
		},
	)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(
		handler.HealthConfig{
			BotConfigured: cfg.Telegram.BotToken != "" && cfg.Telegram.WebhookURL != "",
			ScratchDir:    scratchRoot,
			MinFreeBytes:  cfg.Download.MinFreeDisk,
		},
		limiter,
		sessions,
		pool,
	)
	botHandler := handler.NewBotHandler(rl, bot, logger)

	router := api.NewRouter(
		api.RouterConfig{
			BotToken: cfg.Telegram.BotToken,
			AdminKey: cfg.Server.AdminKey,
		},
		healthHandler,
		botHandler,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	)

	pool.Start()

	// Setup HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting new updates
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Cancel in-flight downloads; their scratch dirs are removed on the way out.
	if err := pool.Stop(25 * time.Second); err != nil {
		logger.Error("worker pool shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// openSessionStore builds the configured session backend, sealed when a
// passphrase is set.
func openSessionStore(cfg config.SessionConfig) (session.Store, func(), error) {
	var (
		store   session.Store
		closeFn = func() {}
	)

	switch cfg.Backend {
	case "sqlite":
		s, err := session.OpenSQLiteStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		store = s
		closeFn = func() { closeQuietly(s) }
	default:
		store = session.NewFileStore(cfg.Path)
	}

	if cfg.Passphrase != "" {
		store = session.NewSealedStore(store, cfg.Passphrase)
	}
	return store, closeFn, nil
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		slog.Warn("close failed", "error", err)
	}
}
