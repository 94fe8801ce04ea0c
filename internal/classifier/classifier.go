// Package classifier finds the first supported post link in free-form chat text.
package classifier

import (
	"regexp"
	"strings"

	"github.com/iconidentify/reelrelay/internal/domain"
)

// Pattern binds a URL shape to the platform that serves it.
type Pattern struct {
	Platform domain.Platform
	Regexp   *regexp.Regexp
}

// DefaultPatterns are evaluated in this order on every call. A platform earlier
// in the list wins when two patterns would match overlapping text.
var DefaultPatterns = []Pattern{
	{
		Platform: domain.PlatformInstagram,
		Regexp:   regexp.MustCompile(`(?i)https?://(?:www\.)?instagram\.com/(?:[A-Za-z0-9_.]+/)?(?:reels?|p|tv)/[A-Za-z0-9_\-]+(?:/[^\s]*)?`),
	},
	{
		Platform: domain.PlatformTikTok,
		Regexp:   regexp.MustCompile(`(?i)https?://(?:(?:www|m)\.)?tiktok\.com/@[A-Za-z0-9_.\-]+/(?:video|photo)/\d+(?:[/?][^\s]*)?|https?://(?:vm|vt)\.tiktok\.com/[A-Za-z0-9]+(?:/[^\s]*)?`),
	},
	{
		Platform: domain.PlatformTwitter,
		Regexp:   regexp.MustCompile(`(?i)https?://(?:(?:www|mobile)\.)?(?:twitter|x)\.com/[A-Za-z0-9_]+/status/\d+(?:[/?][^\s]*)?`),
	},
	{
		Platform: domain.PlatformYouTube,
		Regexp:   regexp.MustCompile(`(?i)https?://(?:(?:www|m)\.)?youtube\.com/shorts/[A-Za-z0-9_\-]+(?:[/?][^\s]*)?`),
	},
}

// Classifier matches text against an ordered pattern list.
type Classifier struct {
	patterns []Pattern
}

// New creates a classifier. With no patterns it uses DefaultPatterns.
func New(patterns ...Pattern) *Classifier {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	return &Classifier{patterns: patterns}
}

// Classify returns the first link in text that a pattern recognizes.
func (c *Classifier) Classify(text string) (domain.PlatformURL, bool) {
	for _, p := range c.patterns {
		match := p.Regexp.FindString(text)
		if match == "" {
			continue
		}
		return domain.PlatformURL{
			URL:      strings.TrimRight(match, ".,;:!?)"),
			Platform: p.Platform,
		}, true
	}
	return domain.PlatformURL{}, false
}

// Platforms lists the platforms this classifier recognizes, in priority order.
func (c *Classifier) Platforms() []domain.Platform {
	out := make([]domain.Platform, 0, len(c.patterns))
	for _, p := range c.patterns {
		out = append(out, p.Platform)
	}
	return out
}
