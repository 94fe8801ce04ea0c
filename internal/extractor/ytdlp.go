package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/iconidentify/reelrelay/internal/domain"
)

// Runner executes a command and returns its stdout and stderr.
type Runner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Messages yt-dlp prints when a post exists but is image-only.
var noVideoMarkers = []string{
	"There is no video in this post",
	"No video formats found",
}

// YtDLP drives the yt-dlp binary. It only produces video.
type YtDLP struct {
	path     string
	platform domain.Platform
	profile  Profile
	run      Runner
	logger   *slog.Logger
}

// NewYtDLP creates a yt-dlp strategy for one platform.
func NewYtDLP(path string, platform domain.Platform, profile Profile, logger *slog.Logger) *YtDLP {
	if path == "" {
		path = "yt-dlp"
	}
	return &YtDLP{
		path:     path,
		platform: platform,
		profile:  profile,
		run:      execRunner,
		logger:   logger,
	}
}

// WithRunner replaces the command runner.
func (y *YtDLP) WithRunner(r Runner) *YtDLP {
	y.run = r
	return y
}

func (y *YtDLP) Name() string       { return NameYtDLP }
func (y *YtDLP) PhotoCapable() bool { return false }

// Args builds the yt-dlp command line for req.
func (y *YtDLP) Args(req *domain.DownloadRequest) []string {
	p := y.profile
	header := p.Headers(y.platform)

	args := []string{
		"--no-playlist",
		"--no-warnings",
		"--no-progress",
		"--no-part",
		"-f", strings.Join(p.Formats(), "/"),
		"--merge-output-format", "mp4",
		"-o", filepath.Join(req.Dir, req.BaseName+".%(ext)s"),
		"--user-agent", header.Get("User-Agent"),
		"--add-header", "Accept-Language:" + header.Get("Accept-Language"),
		"--print", "after_move:%(vcodec)s",
	}
	if ref := header.Get("Referer"); ref != "" {
		args = append(args, "--add-header", "Referer:"+ref)
	}
	if p.MaxFileSize > 0 {
		args = append(args, "--max-filesize", strconv.FormatInt(p.MaxFileSize, 10))
	}
	if p.Retries > 0 {
		args = append(args, "--retries", strconv.Itoa(p.Retries))
	}
	if p.SocketTimeout > 0 {
		args = append(args, "--socket-timeout", strconv.Itoa(int(p.SocketTimeout.Seconds())))
	}
	if jar := p.Cookies[y.platform]; jar != "" {
		args = append(args, "--cookies", jar)
	}
	return append(args, req.Source.URL)
}

func (y *YtDLP) Attempt(ctx context.Context, req *domain.DownloadRequest) (Report, error) {
	stdout, stderr, err := y.run(ctx, y.path, y.Args(req)...)
	if err != nil {
		msg := strings.TrimSpace(string(stderr))
		for _, marker := range noVideoMarkers {
			if strings.Contains(msg, marker) {
				return Report{}, noVideo(NameYtDLP, fmt.Errorf("%w: %s", domain.ErrNoVideoInPost, marker))
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Report{}, failed(NameYtDLP, ctxErr)
		}
		if strings.Contains(msg, "larger than max-filesize") {
			return Report{}, failed(NameYtDLP, domain.ErrTooLarge)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Report{}, failed(NameYtDLP, fmt.Errorf("yt-dlp exited %d: %s", exitErr.ExitCode(), truncate(msg, 300)))
		}
		return Report{}, failed(NameYtDLP, fmt.Errorf("run yt-dlp: %w", err))
	}

	// yt-dlp skips oversized files with exit 0 and only says so on stdout.
	if strings.Contains(string(stdout), "larger than max-filesize") {
		return Report{}, failed(NameYtDLP, domain.ErrTooLarge)
	}

	var report Report
	lines := strings.Fields(strings.TrimSpace(string(stdout)))
	if len(lines) > 0 && lines[len(lines)-1] == "none" {
		report.VideoAbsent = true
	}
	return report, nil
}
