package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iconidentify/reelrelay/internal/domain"
	"github.com/iconidentify/reelrelay/internal/metrics"
)

// ServiceConfig configures the download service.
type ServiceConfig struct {
	// ScratchRoot holds per-request scratch dirs and delivered files.
	// Empty means the OS temp dir.
	ScratchRoot string
	// Timeout bounds one whole download, all strategies included.
	Timeout time.Duration
}

// Service downloads a classified link to a caller-owned file.
type Service struct {
	cfg      ServiceConfig
	chains   map[domain.Platform]*Chain
	resolver *Resolver
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewService creates the service and its scratch root.
func NewService(cfg ServiceConfig, chains map[domain.Platform]*Chain, resolver *Resolver, m *metrics.Metrics, logger *slog.Logger) (*Service, error) {
	if cfg.ScratchRoot == "" {
		cfg.ScratchRoot = os.TempDir()
	}
	if err := os.MkdirAll(cfg.ScratchRoot, 0755); err != nil {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		chains:   chains,
		resolver: resolver,
		metrics:  m,
		logger:   logger,
	}, nil
}

// Download fetches src. On success the returned file lives outside any
// scratch dir and the caller must call Result.Cleanup once done with it.
// The scratch dir is removed before Download returns on every path.
func (s *Service) Download(ctx context.Context, src domain.PlatformURL) domain.Result {
	start := time.Now()
	logger := s.logger.With("platform", src.Platform, "url", src.URL)

	result := s.download(ctx, src, logger)

	outcome := "success"
	if !result.OK() {
		outcome = string(result.Reason)
	}
	s.metrics.Download(src.Platform.String(), outcome, time.Since(start))

	if result.OK() {
		logger.Info("media ready", "kind", result.Kind, "size", result.Size, "duration", time.Since(start))
	} else {
		logger.Warn("media download failed", "reason", result.Reason, "duration", time.Since(start))
	}
	return result
}

func (s *Service) download(ctx context.Context, src domain.PlatformURL, logger *slog.Logger) domain.Result {
	chain, ok := s.chains[src.Platform]
	if !ok || chain.Len() == 0 {
		return domain.Failure(domain.ReasonUnsupported)
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	dir, err := os.MkdirTemp(s.cfg.ScratchRoot, "dl-*")
	if err != nil {
		logger.Error("failed to create scratch dir", "error", err)
		return domain.Failure(domain.ReasonDownloadFailed)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("failed to remove scratch dir", "dir", dir, "error", err)
		}
	}()

	req := &domain.DownloadRequest{
		Source:   src,
		Dir:      dir,
		BaseName: strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
	}

	report, strategy, err := chain.Run(ctx, req)
	if err != nil {
		logger.Debug("all strategies failed", "error", err)
		if errors.Is(err, domain.ErrTooLarge) {
			return domain.Failure(domain.ReasonTooLarge)
		}
		return domain.Failure(domain.ReasonDownloadFailed)
	}
	logger.Debug("strategy produced media", "strategy", strategy)

	result := s.resolver.Resolve(ctx, dir, req.BaseName, src.Platform, report)
	if !result.OK() {
		return result
	}

	path, err := s.moveOut(result.Path)
	if err != nil {
		logger.Error("failed to move media out of scratch dir", "error", err)
		return domain.Failure(domain.ReasonDownloadFailed)
	}
	return domain.Success(path, result.Kind, result.Size)
}

// moveOut relocates path next to the scratch dirs so it survives their removal.
func (s *Service) moveOut(path string) (string, error) {
	f, err := os.CreateTemp(s.cfg.ScratchRoot, "media-*"+strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return "", err
	}
	dest := f.Name()
	f.Close()

	if err := os.Rename(path, dest); err != nil {
		os.Remove(dest)
		return "", err
	}
	return dest, nil
}
