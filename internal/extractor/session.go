package extractor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iconidentify/reelrelay/internal/domain"
	"github.com/iconidentify/reelrelay/internal/downloader"
	"github.com/iconidentify/reelrelay/internal/session"
	"github.com/iconidentify/reelrelay/pkg/instagram"
)

// Session downloads Instagram posts through the authenticated account. It
// handles photos, videos and albums, so it is the last resort for Instagram.
type Session struct {
	sessions *session.Manager
	fetcher  downloader.Fetcher
	logger   *slog.Logger
}

// NewSession creates the strategy.
func NewSession(sessions *session.Manager, fetcher downloader.Fetcher, logger *slog.Logger) *Session {
	return &Session{sessions: sessions, fetcher: fetcher, logger: logger}
}

func (s *Session) Name() string       { return NameSession }
func (s *Session) PhotoCapable() bool { return true }

func (s *Session) Attempt(ctx context.Context, req *domain.DownloadRequest) (Report, error) {
	if !s.sessions.Enabled() {
		return Report{}, failed(NameSession, domain.ErrMissingCredentials)
	}

	pk, err := instagram.MediaPKFromURL(req.Source.URL)
	if err != nil {
		return Report{}, failed(NameSession, err)
	}

	var report Report
	err = s.sessions.Do(ctx, func(ctx context.Context, c *instagram.Client) error {
		media, err := c.MediaInfo(ctx, pk)
		if err != nil {
			return err
		}
		s.logger.Info("media info fetched", "media_pk", pk, "media_type", media.MediaType, "product_type", media.ProductType)

		report.VideoAbsent = !media.HasVideo()
		files, err := c.Download(ctx, media, req.Dir, req.BaseName, s.fetcher)
		if err != nil {
			return err
		}
		s.logger.Debug("session download complete", "files", len(files))
		return nil
	})
	if err != nil {
		return Report{}, failed(NameSession, fmt.Errorf("media %s: %w", pk, err))
	}
	return report, nil
}
