package domain

import "os"

// Platform identifies a supported source site.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformTwitter   Platform = "twitter"
	PlatformYouTube   Platform = "youtube"
)

// String returns the string representation of the Platform.
func (p Platform) String() string {
	return string(p)
}

// HostsStills reports whether the platform serves photo posts alongside video.
func (p Platform) HostsStills() bool {
	switch p {
	case PlatformInstagram, PlatformTikTok, PlatformTwitter:
		return true
	}
	return false
}

// PlatformURL is a classified link. It is never mutated after classification.
type PlatformURL struct {
	URL      string
	Platform Platform
}

// MediaKind is the classification of a resolved artifact.
type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaPhoto MediaKind = "photo"
)

// DownloadRequest is one attempt to fetch a post into a scratch directory.
// Dir is owned by the request and removed with all contents when it completes.
type DownloadRequest struct {
	Source   PlatformURL
	Dir      string
	BaseName string
}

// FailureReason explains a failed Result.
type FailureReason string

const (
	ReasonNoMediaFound   FailureReason = "no_media_found"
	ReasonTooLarge       FailureReason = "too_large"
	ReasonDownloadFailed FailureReason = "download_failed"
	ReasonUnsupported    FailureReason = "unsupported"
)

// Result is the terminal outcome of a media download: either a file of a
// known kind, or a failure reason. Only Result crosses into the chat layer.
type Result struct {
	Path   string
	Kind   MediaKind
	Size   int64
	Reason FailureReason

	cleanup func() error
}

// Success creates a successful Result.
func Success(path string, kind MediaKind, size int64) Result {
	return Result{Path: path, Kind: kind, Size: size}
}

// Failure creates a failed Result.
func Failure(reason FailureReason) Result {
	return Result{Reason: reason}
}

// OK reports whether the result holds a file.
func (r Result) OK() bool {
	return r.Reason == "" && r.Path != ""
}

// WithCleanup attaches the function that releases the result's file.
func (r Result) WithCleanup(fn func() error) Result {
	r.cleanup = fn
	return r
}

// Cleanup releases the file. The caller owns the file and must call this
// once it has finished sending it.
func (r Result) Cleanup() error {
	if r.cleanup != nil {
		return r.cleanup()
	}
	if r.Path == "" {
		return nil
	}
	if err := os.Remove(r.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
