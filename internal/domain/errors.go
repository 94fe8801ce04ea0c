package domain

import "errors"

// Domain errors.
var (
	// ErrNoVideoInPost is returned by an extractor when the post exists but carries no video stream.
	ErrNoVideoInPost = errors.New("no video in post")

	// ErrDownloadFailed is returned when a strategy could not fetch the media.
	ErrDownloadFailed = errors.New("media download failed")

	// ErrAuthRequired is returned when the authenticated session has expired or was rejected.
	ErrAuthRequired = errors.New("authentication required")

	// ErrTooLarge is returned when the resolved media exceeds the size ceiling.
	ErrTooLarge = errors.New("media exceeds size limit")

	// ErrNoMediaFound is returned when no usable media file was produced.
	ErrNoMediaFound = errors.New("no media found")

	// ErrURLExpired is returned when a media URL answers 401/403.
	ErrURLExpired = errors.New("media URL has expired")

	// ErrRateLimited is returned when rate limited by external services.
	ErrRateLimited = errors.New("rate limited")

	// ErrSessionNotFound is returned by a session store holding no session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrMissingCredentials is returned when the authenticated client has no credentials configured.
	ErrMissingCredentials = errors.New("credentials not configured")

	// ErrUnsupportedPlatform is returned when no strategy chain exists for a platform.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// ErrorKind tags an extraction failure for fallback routing.
type ErrorKind int

const (
	// KindDownloadFailed covers network, format-selection and size-limit failures.
	KindDownloadFailed ErrorKind = iota
	// KindNoVideoInPost signals that a photo-capable strategy should be tried next.
	KindNoVideoInPost
)

func (k ErrorKind) String() string {
	if k == KindNoVideoInPost {
		return "no_video_in_post"
	}
	return "download_failed"
}

// ExtractionError wraps a strategy failure with its routing kind.
type ExtractionError struct {
	Strategy string
	Kind     ErrorKind
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return e.Strategy + ": " + e.Kind.String()
	}
	return e.Strategy + ": " + e.Err.Error()
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the sentinel that corresponds to the kind.
func (e *ExtractionError) Is(target error) bool {
	switch e.Kind {
	case KindNoVideoInPost:
		return target == ErrNoVideoInPost
	default:
		return target == ErrDownloadFailed
	}
}

// NewExtractionError creates a new ExtractionError.
func NewExtractionError(strategy string, kind ErrorKind, err error) *ExtractionError {
	return &ExtractionError{
		Strategy: strategy,
		Kind:     kind,
		Err:      err,
	}
}

// KindOf classifies any error returned by a strategy. Anything that is not
// explicitly a no-video signal counts as a generic download failure.
func KindOf(err error) ErrorKind {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	if errors.Is(err, ErrNoVideoInPost) {
		return KindNoVideoInPost
	}
	return KindDownloadFailed
}
