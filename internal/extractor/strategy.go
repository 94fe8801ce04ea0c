// Package extractor holds the per-platform download strategies. Each strategy
// writes media files into a request's scratch directory and reports failures
// as *domain.ExtractionError so the chain can route the fallback.
package extractor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/iconidentify/reelrelay/internal/domain"
)

// Strategy is one way of fetching a post.
type Strategy interface {
	Name() string
	// PhotoCapable reports whether the strategy can fetch still images.
	PhotoCapable() bool
	Attempt(ctx context.Context, req *domain.DownloadRequest) (Report, error)
}

// Report carries what a strategy learned about the media it wrote.
type Report struct {
	// VideoAbsent is set when the strategy knows the post has no video
	// stream, which lets the resolver classify generic files as photos.
	VideoAbsent bool
}

// Strategy names.
const (
	NameYtDLP       = "ytdlp"
	NameScrapeAPI   = "scrapeapi"
	NameTikTokAPI   = "tiktokapi"
	NameSyndication = "syndication"
	NamePageMeta    = "pagemeta"
	NameSession     = "session"
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:122.0) Gecko/20100101 Firefox/122.0",
}

var referers = map[domain.Platform]string{
	domain.PlatformInstagram: "https://www.instagram.com/",
	domain.PlatformTikTok:    "https://www.tiktok.com/",
	domain.PlatformTwitter:   "https://x.com/",
	domain.PlatformYouTube:   "https://www.youtube.com/",
}

// Profile shapes outgoing requests so they look like an ordinary browser.
type Profile struct {
	UserAgents    []string
	MaxHeight     int
	MaxFileSize   int64
	Retries       int
	SocketTimeout time.Duration
	// Cookies maps a platform to the yt-dlp cookie jar used for it.
	Cookies   map[domain.Platform]string
	JitterMin time.Duration
	JitterMax time.Duration
}

// DefaultProfile returns the profile used when nothing is configured.
func DefaultProfile() Profile {
	return Profile{
		UserAgents:    defaultUserAgents,
		MaxHeight:     1080,
		MaxFileSize:   50 * 1024 * 1024,
		Retries:       3,
		SocketTimeout: 20 * time.Second,
		JitterMin:     500 * time.Millisecond,
		JitterMax:     1500 * time.Millisecond,
	}
}

// UserAgent picks a user agent at random.
func (p Profile) UserAgent() string {
	if len(p.UserAgents) == 0 {
		return defaultUserAgents[0]
	}
	return p.UserAgents[rand.IntN(len(p.UserAgents))]
}

// Headers returns browser-like request headers for the platform.
func (p Profile) Headers(platform domain.Platform) http.Header {
	h := http.Header{}
	h.Set("User-Agent", p.UserAgent())
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	if ref, ok := referers[platform]; ok {
		h.Set("Referer", ref)
	}
	return h
}

// Formats is the yt-dlp format preference: combined audio+video capped at
// MaxHeight, degrading to whatever is available.
func (p Profile) Formats() []string {
	h := p.MaxHeight
	if h <= 0 {
		h = 1080
	}
	return []string{
		fmt.Sprintf("best[ext=mp4][height<=%d]", h),
		fmt.Sprintf("bestvideo[ext=mp4][height<=%d]+bestaudio[ext=m4a]", h),
		fmt.Sprintf("bestvideo[height<=%d]+bestaudio", h),
		"best[ext=mp4]",
		"best",
	}
}

// Jitter sleeps for a random duration in [JitterMin, JitterMax].
func (p Profile) Jitter(ctx context.Context) error {
	d := p.JitterMin
	if span := p.JitterMax - p.JitterMin; span > 0 {
		d += rand.N(span)
	}
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func failed(strategy string, err error) error {
	return domain.NewExtractionError(strategy, domain.KindDownloadFailed, err)
}

func noVideo(strategy string, err error) error {
	if err == nil {
		err = domain.ErrNoVideoInPost
	}
	return domain.NewExtractionError(strategy, domain.KindNoVideoInPost, err)
}
