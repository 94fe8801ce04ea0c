// Package ffmpeg inspects media containers with ffprobe.
package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Prober runs ffprobe against local files.
type Prober struct {
	ffprobePath string
}

// NewProber locates ffprobe in PATH.
func NewProber() (*Prober, error) {
	path, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	return &Prober{ffprobePath: path}, nil
}

// Info is the subset of stream metadata the relay cares about.
type Info struct {
	Duration   float64
	Width      int
	Height     int
	HasVideo   bool
	HasAudio   bool
	VideoCodec string
	FormatName string
}

type probeOutput struct {
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
	Streams []struct {
		CodecType   string `json:"codec_type"`
		CodecName   string `json:"codec_name"`
		Width       int    `json:"width"`
		Height      int    `json:"height"`
		Disposition struct {
			AttachedPic int `json:"attached_pic"`
		} `json:"disposition"`
	} `json:"streams"`
}

// Probe returns container and stream info for path.
func (p *Prober) Probe(ctx context.Context, path string) (*Info, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}
	return ParseProbe(output)
}

// ParseProbe decodes ffprobe's JSON output.
func ParseProbe(output []byte) (*Info, error) {
	var parsed probeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, fmt.Errorf("decode ffprobe output: %w", err)
	}

	info := &Info{FormatName: parsed.Format.FormatName}
	if parsed.Format.Duration != "" {
		if dur, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
			info.Duration = dur
		}
	}

	stillImage := isImageFormat(info.FormatName)
	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "audio":
			info.HasAudio = true
		case "video":
			// Cover art and single-frame image containers report a video
			// stream too.
			if s.Disposition.AttachedPic == 1 || stillImage {
				continue
			}
			info.HasVideo = true
			if info.VideoCodec == "" {
				info.VideoCodec = s.CodecName
				info.Width = s.Width
				info.Height = s.Height
			}
		}
	}

	return info, nil
}

func isImageFormat(name string) bool {
	for _, f := range strings.Split(name, ",") {
		switch f {
		case "image2", "png_pipe", "jpeg_pipe", "webp_pipe", "mjpeg":
			return true
		}
	}
	return false
}

// HasVideoStream reports whether path contains a real (moving) video stream.
func (p *Prober) HasVideoStream(ctx context.Context, path string) (bool, error) {
	info, err := p.Probe(ctx, path)
	if err != nil {
		return false, err
	}
	return info.HasVideo, nil
}

// IsAvailable checks if ffprobe is available in PATH.
func IsAvailable() bool {
	_, err := exec.LookPath("ffprobe")
	return err == nil
}
