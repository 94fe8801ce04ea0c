// Package media turns a classified link into a local file: it runs the
// platform's strategy chain in a scratch directory and resolves what the
// winning strategy left behind.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/iconidentify/reelrelay/internal/domain"
	"github.com/iconidentify/reelrelay/internal/extractor"
	"github.com/iconidentify/reelrelay/internal/metrics"
)

// Chain runs strategies in order until one leaves media in the scratch dir.
type Chain struct {
	strategies []extractor.Strategy
	jitter     func(ctx context.Context) error
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewChain creates a chain. jitter runs before every attempt and may be nil.
func NewChain(strategies []extractor.Strategy, jitter func(ctx context.Context) error, m *metrics.Metrics, logger *slog.Logger) *Chain {
	if jitter == nil {
		jitter = func(ctx context.Context) error { return ctx.Err() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		strategies: strategies,
		jitter:     jitter,
		metrics:    m,
		logger:     logger,
	}
}

// Len returns the number of strategies.
func (c *Chain) Len() int { return len(c.strategies) }

// Run attempts each strategy at most once. A no-video signal skips ahead to
// the next photo-capable strategy; any other failure moves to the next one.
// It returns the winning strategy's report and name.
func (c *Chain) Run(ctx context.Context, req *domain.DownloadRequest) (extractor.Report, string, error) {
	var errs []error

	for i := 0; i < len(c.strategies); {
		s := c.strategies[i]
		logger := c.logger.With("strategy", s.Name(), "url", req.Source.URL)

		if err := c.jitter(ctx); err != nil {
			errs = append(errs, err)
			break
		}

		start := time.Now()
		report, err := s.Attempt(ctx, req)
		if err == nil {
			if hasMedia(req.Dir) {
				c.metrics.StrategyAttempt(s.Name(), "ok")
				logger.Info("strategy succeeded", "duration", time.Since(start))
				return report, s.Name(), nil
			}
			err = domain.NewExtractionError(s.Name(), domain.KindDownloadFailed, errors.New("strategy reported success but left no files"))
		}

		kind := domain.KindOf(err)
		c.metrics.StrategyAttempt(s.Name(), kind.String())
		logger.Warn("strategy failed", "kind", kind.String(), "error", err, "duration", time.Since(start))
		errs = append(errs, err)

		// Leftovers from a failed attempt must not be mistaken for the next
		// strategy's output.
		if clearErr := clearDir(req.Dir); clearErr != nil {
			logger.Warn("failed to clear scratch dir", "error", clearErr)
		}

		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		if kind == domain.KindNoVideoInPost {
			next := c.nextPhotoCapable(i + 1)
			if next < 0 {
				logger.Info("post has no video and no photo-capable strategy remains")
				break
			}
			logger.Info("post has no video, switching to photo-capable strategy", "next", c.strategies[next].Name())
			i = next
			continue
		}
		i++
	}

	if len(errs) == 0 {
		return extractor.Report{}, "", fmt.Errorf("%w: no strategies configured", domain.ErrDownloadFailed)
	}
	return extractor.Report{}, "", fmt.Errorf("%w: %w", domain.ErrDownloadFailed, errors.Join(errs...))
}

func (c *Chain) nextPhotoCapable(from int) int {
	for j := from; j < len(c.strategies); j++ {
		if c.strategies[j].PhotoCapable() {
			return j
		}
	}
	return -1
}

// hasMedia reports whether dir holds at least one non-empty regular file.
func hasMedia(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if info, err := e.Info(); err == nil && info.Size() > 0 {
			return true
		}
	}
	return false
}

func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
