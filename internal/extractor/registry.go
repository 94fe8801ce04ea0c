package extractor

import (
	"log/slog"

	"github.com/iconidentify/reelrelay/internal/domain"
	"github.com/iconidentify/reelrelay/internal/downloader"
	"github.com/iconidentify/reelrelay/internal/session"
)

// Options configures the strategy set.
type Options struct {
	Profile        Profile
	YtDLPPath      string
	ScrapeAPIURL   string
	TikTokAPIURL   string
	SyndicationURL string
	Fetcher        downloader.Fetcher
	// Sessions may be nil when no Instagram account is configured.
	Sessions *session.Manager
	Logger   *slog.Logger
}

// Chains builds the ordered strategy list for every supported platform.
// Strategies missing their configuration are left out.
func Chains(opts Options) map[domain.Platform][]Strategy {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := opts.Profile
	f := opts.Fetcher
	log := func(platform domain.Platform, name string) *slog.Logger {
		return logger.With("platform", platform, "strategy", name)
	}

	instagram := []Strategy{
		NewYtDLP(opts.YtDLPPath, domain.PlatformInstagram, p, log(domain.PlatformInstagram, NameYtDLP)),
	}
	if opts.ScrapeAPIURL != "" {
		instagram = append(instagram, NewScrapeAPI(opts.ScrapeAPIURL, domain.PlatformInstagram, p, f, log(domain.PlatformInstagram, NameScrapeAPI)))
	}
	if opts.Sessions != nil && opts.Sessions.Enabled() {
		instagram = append(instagram, NewSession(opts.Sessions, f, log(domain.PlatformInstagram, NameSession)))
	}
	instagram = append(instagram, NewPageMeta(domain.PlatformInstagram, p, f, log(domain.PlatformInstagram, NamePageMeta)))

	var tiktok []Strategy
	if opts.TikTokAPIURL != "" {
		tiktok = append(tiktok, NewTikTokAPI(opts.TikTokAPIURL, p, f, log(domain.PlatformTikTok, NameTikTokAPI)))
	}
	tiktok = append(tiktok, NewYtDLP(opts.YtDLPPath, domain.PlatformTikTok, p, log(domain.PlatformTikTok, NameYtDLP)))

	twitter := []Strategy{
		NewSyndication(opts.SyndicationURL, p, f, log(domain.PlatformTwitter, NameSyndication)),
		NewYtDLP(opts.YtDLPPath, domain.PlatformTwitter, p, log(domain.PlatformTwitter, NameYtDLP)),
	}

	youtube := []Strategy{
		NewYtDLP(opts.YtDLPPath, domain.PlatformYouTube, p, log(domain.PlatformYouTube, NameYtDLP)),
	}

	return map[domain.Platform][]Strategy{
		domain.PlatformInstagram: instagram,
		domain.PlatformTikTok:    tiktok,
		domain.PlatformTwitter:   twitter,
		domain.PlatformYouTube:   youtube,
	}
}

// Names lists strategy names in order.
func Names(chain []Strategy) []string {
	names := make([]string, len(chain))
	for i, s := range chain {
		names[i] = s.Name()
	}
	return names
}
