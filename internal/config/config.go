package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Worker    WorkerConfig    `yaml:"worker"`
	Download  DownloadConfig  `yaml:"download"`
	Instagram InstagramConfig `yaml:"instagram"`
	Session   SessionConfig   `yaml:"session"`
	LogLevel  string          `yaml:"log_level" envconfig:"LOG_LEVEL"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST"`
	Port         int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT"`
	// AdminKey guards the webhook management routes when set.
	AdminKey string `yaml:"admin_key" envconfig:"ADMIN_API_KEY"`
}

// TelegramConfig holds bot configuration.
type TelegramConfig struct {
	BotToken    string        `yaml:"bot_token" envconfig:"BOT_TOKEN"`
	WebhookURL  string        `yaml:"webhook_url" envconfig:"WEBHOOK_URL"`
	APIEndpoint string        `yaml:"api_endpoint" envconfig:"TELEGRAM_API_ENDPOINT"`
	NoticeTTL   time.Duration `yaml:"notice_ttl" envconfig:"NOTICE_TTL"`
	ActionEvery time.Duration `yaml:"action_every" envconfig:"CHAT_ACTION_INTERVAL"`
}

// RateLimitConfig holds per-user quota configuration.
type RateLimitConfig struct {
	Limit    int           `yaml:"limit" envconfig:"RATE_LIMIT"`
	Window   time.Duration `yaml:"window" envconfig:"RATE_WINDOW"`
	Cooldown time.Duration `yaml:"cooldown" envconfig:"RATE_COOLDOWN"`
}

// WorkerConfig holds worker pool configuration.
type WorkerConfig struct {
	Count     int `yaml:"count" envconfig:"WORKER_COUNT"`
	QueueSize int `yaml:"queue_size" envconfig:"WORKER_QUEUE"`
}

// DownloadConfig holds media download configuration.
type DownloadConfig struct {
	ScratchDir     string        `yaml:"scratch_dir" envconfig:"SCRATCH_DIR"`
	MinFreeDisk    int64         `yaml:"min_free_disk" envconfig:"MIN_FREE_DISK"`
	MaxFileSize    int64         `yaml:"max_file_size" envconfig:"MAX_FILE_SIZE"`
	Timeout        time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT"`
	SocketTimeout  time.Duration `yaml:"socket_timeout" envconfig:"DOWNLOAD_SOCKET_TIMEOUT"`
	Retries        int           `yaml:"retries" envconfig:"DOWNLOAD_RETRIES"`
	RetryDelay     time.Duration `yaml:"retry_delay" envconfig:"DOWNLOAD_RETRY_DELAY"`
	MaxRetryDelay  time.Duration `yaml:"max_retry_delay" envconfig:"DOWNLOAD_MAX_RETRY_DELAY"`
	JitterMin      time.Duration `yaml:"jitter_min" envconfig:"DOWNLOAD_JITTER_MIN"`
	JitterMax      time.Duration `yaml:"jitter_max" envconfig:"DOWNLOAD_JITTER_MAX"`
	YtDLPPath      string        `yaml:"ytdlp_path" envconfig:"YTDLP_PATH"`
	MaxHeight      int           `yaml:"max_height" envconfig:"DOWNLOAD_MAX_HEIGHT"`
	ScrapeAPIURL   string        `yaml:"scrape_api_url" envconfig:"SCRAPE_API_URL"`
	TikTokAPIURL   string        `yaml:"tiktok_api_url" envconfig:"TIKTOK_API_URL"`
	SyndicationURL string        `yaml:"syndication_url" envconfig:"SYNDICATION_URL"`
}

// InstagramConfig holds optional Instagram authentication material.
type InstagramConfig struct {
	Username    string        `yaml:"username" envconfig:"INSTAGRAM_USERNAME"`
	Password    string        `yaml:"password" envconfig:"INSTAGRAM_PASSWORD"`
	CookiesFile string        `yaml:"cookies_file" envconfig:"INSTAGRAM_COOKIES_FILE"`
	APIBaseURL  string        `yaml:"api_base_url" envconfig:"INSTAGRAM_API_URL"`
	MinDelay    time.Duration `yaml:"min_delay" envconfig:"INSTAGRAM_MIN_DELAY"`
}

// SessionConfig holds persistence settings for the authenticated session.
type SessionConfig struct {
	Backend    string `yaml:"backend" envconfig:"SESSION_BACKEND"`
	Path       string `yaml:"path" envconfig:"SESSION_PATH"`
	Passphrase string `yaml:"passphrase" envconfig:"SESSION_PASSPHRASE"`
}

// MaxUploadSize is the largest file the Bot API accepts from a bot.
const MaxUploadSize int64 = 50 << 20

// Defaults returns the configuration used before the file and environment
// are applied.
func Defaults() *Config {
	return &Config{
		LogLevel: "INFO",
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         10000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Telegram: TelegramConfig{
			NoticeTTL:   10 * time.Second,
			ActionEvery: 4 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Limit:    50,
			Window:   time.Hour,
			Cooldown: 30 * time.Minute,
		},
		Worker: WorkerConfig{
			Count:     4,
			QueueSize: 32,
		},
		Download: DownloadConfig{
			MinFreeDisk:    100 << 20,
			MaxFileSize:    MaxUploadSize,
			Timeout:        3 * time.Minute,
			SocketTimeout:  20 * time.Second,
			Retries:        3,
			RetryDelay:     2 * time.Second,
			MaxRetryDelay:  15 * time.Second,
			JitterMin:      500 * time.Millisecond,
			JitterMax:      1500 * time.Millisecond,
			YtDLPPath:      "yt-dlp",
			MaxHeight:      1080,
			TikTokAPIURL:   "https://www.tikwm.com/api/",
			SyndicationURL: "https://cdn.syndication.twimg.com/tweet-result",
		},
		Instagram: InstagramConfig{
			APIBaseURL: "https://i.instagram.com/api/v1",
			MinDelay:   time.Second,
		},
		Session: SessionConfig{
			Backend: "file",
			Path:    "/tmp/instagrapi_session.json",
		},
	}
}

// HasCredentials reports whether the authenticated fallback can be enabled.
func (c *InstagramConfig) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

// Load applies the config file and then the environment on top of Defaults.
// A variable that is set overrides the file; an unset one leaves it alone.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if c.RateLimit.Limit <= 0 {
		return fmt.Errorf("RATE_LIMIT must be positive")
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.Cooldown <= 0 {
		return fmt.Errorf("RATE_WINDOW and RATE_COOLDOWN must be positive")
	}
	if c.Download.MaxFileSize <= 0 || c.Download.MaxFileSize > MaxUploadSize {
		return fmt.Errorf("MAX_FILE_SIZE must be between 1 and %d bytes", MaxUploadSize)
	}
	switch c.Session.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("SESSION_BACKEND must be file or sqlite, got %q", c.Session.Backend)
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SlogLevel maps LOG_LEVEL to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
