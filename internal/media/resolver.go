package media

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/reelrelay/internal/domain"
	"github.com/iconidentify/reelrelay/internal/extractor"
)

// DefaultMaxSize is the chat transport's upload ceiling.
const DefaultMaxSize int64 = 50 * 1024 * 1024

var (
	videoExts   = map[string]bool{".mp4": true, ".mov": true, ".mkv": true, ".webm": true}
	photoExts   = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}
	genericExts = map[string]bool{".unknown_video": true, ".bin": true}
)

// Prober inspects a file's streams.
type Prober interface {
	HasVideoStream(ctx context.Context, path string) (bool, error)
}

// Resolver picks the file to deliver out of a scratch directory.
type Resolver struct {
	maxSize int64
	prober  Prober
	logger  *slog.Logger
}

// NewResolver creates a resolver. prober may be nil.
func NewResolver(maxSize int64, prober Prober, logger *slog.Logger) *Resolver {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{maxSize: maxSize, prober: prober, logger: logger}
}

type candidate struct {
	path string
	ext  string
	size int64
}

// Resolve chooses one file from dir. Files named after base (or its album
// items base_N) are preferred over anything else in the directory. Among the
// chosen pool a video beats a photo, and a photo beats a generic blob.
func (r *Resolver) Resolve(ctx context.Context, dir, base string, platform domain.Platform, report extractor.Report) domain.Result {
	exact, others := r.scan(dir, base)

	pool := exact
	if len(pool) == 0 {
		pool = others
	}
	if len(pool) == 0 {
		return domain.Failure(domain.ReasonNoMediaFound)
	}

	var picked *candidate
	var kind domain.MediaKind
	for _, set := range []struct {
		exts map[string]bool
		kind domain.MediaKind
	}{
		{videoExts, domain.MediaVideo},
		{photoExts, domain.MediaPhoto},
		{genericExts, ""},
	} {
		for i := range pool {
			if set.exts[pool[i].ext] {
				picked = &pool[i]
				kind = set.kind
				break
			}
		}
		if picked != nil {
			break
		}
	}

	if kind == "" {
		kind = r.classifyGeneric(ctx, picked.path, platform, report)
	}

	if picked.size > r.maxSize {
		r.logger.Warn("media exceeds size limit",
			"path", filepath.Base(picked.path),
			"size", humanize.IBytes(uint64(picked.size)),
			"limit", humanize.IBytes(uint64(r.maxSize)))
		return domain.Failure(domain.ReasonTooLarge)
	}

	return domain.Success(picked.path, kind, picked.size)
}

// classifyGeneric decides the kind of a file whose extension says nothing.
func (r *Resolver) classifyGeneric(ctx context.Context, path string, platform domain.Platform, report extractor.Report) domain.MediaKind {
	if report.VideoAbsent && platform.HostsStills() {
		return domain.MediaPhoto
	}
	if r.prober != nil {
		hasVideo, err := r.prober.HasVideoStream(ctx, path)
		if err == nil && !hasVideo {
			return domain.MediaPhoto
		}
		if err != nil {
			r.logger.Debug("probe failed, assuming video", "path", filepath.Base(path), "error", err)
		}
	}
	return domain.MediaVideo
}

// scan lists recognised non-empty files, split into exact stem matches and
// the rest, each sorted by name.
func (r *Resolver) scan(dir, base string) (exact, others []candidate) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		r.logger.Warn("failed to read scratch dir", "error", err)
		return nil, nil
	}

	album := regexp.MustCompile(`^` + regexp.QuoteMeta(base) + `_\d+$`)

	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !videoExts[ext] && !photoExts[ext] && !genericExts[ext] {
			continue
		}
		info, err := e.Info()
		if err != nil || info.Size() == 0 {
			continue
		}

		c := candidate{path: filepath.Join(dir, name), ext: ext, size: info.Size()}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if stem == base || album.MatchString(stem) {
			exact = append(exact, c)
		} else {
			others = append(others, c)
		}
	}

	// base sorts before base_1; album items sort numerically.
	sort.SliceStable(exact, func(i, j int) bool {
		return albumIndex(exact[i].path, base) < albumIndex(exact[j].path, base)
	})
	sort.SliceStable(others, func(i, j int) bool { return others[i].path < others[j].path })
	return exact, others
}

// albumIndex returns 0 for base itself and N for base_N.
func albumIndex(path, base string) int {
	name := filepath.Base(path)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if stem == base {
		return 0
	}
	n := 0
	for _, r := range strings.TrimPrefix(stem, base+"_") {
		n = n*10 + int(r-'0')
	}
	return n
}
