package instagram

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/iconidentify/reelrelay/internal/domain"
	"github.com/iconidentify/reelrelay/internal/downloader"
)

// Download saves the post's media into dir. Single posts are written as
// <base>.<ext>; album items as <base>_<n>.<ext> starting at 1.
func (c *Client) Download(ctx context.Context, m *Media, dir, base string, fetcher downloader.Fetcher) ([]string, error) {
	header := c.MediaHeaders()

	switch m.MediaType {
	case MediaTypePhoto, MediaTypeVideo:
		path, err := c.downloadItem(ctx, m, filepath.Join(dir, base), header, fetcher)
		if err != nil {
			return nil, err
		}
		return []string{path}, nil

	case MediaTypeAlbum:
		var paths []string
		for i := range m.CarouselMedia {
			dest := filepath.Join(dir, fmt.Sprintf("%s_%d", base, i+1))
			path, err := c.downloadItem(ctx, &m.CarouselMedia[i], dest, header, fetcher)
			if err != nil {
				c.logger.Warn("album item download failed", "index", i+1, "error", err)
				continue
			}
			paths = append(paths, path)
		}
		if len(paths) == 0 {
			return nil, fmt.Errorf("album %s: %w", m.Code, domain.ErrNoMediaFound)
		}
		c.logger.Info("album downloaded", "items", len(paths), "of", len(m.CarouselMedia))
		return paths, nil
	}

	return nil, fmt.Errorf("unknown media type %d", m.MediaType)
}

func (c *Client) downloadItem(ctx context.Context, m *Media, destBase string, header http.Header, fetcher downloader.Fetcher) (string, error) {
	if m.MediaType == MediaTypeVideo {
		if v, ok := m.BestVideo(); ok {
			file, err := fetcher.Fetch(ctx, v.URL, destBase, header)
			if err != nil {
				return "", err
			}
			return file.Path, nil
		}
	}

	img, ok := m.BestImage()
	if !ok {
		return "", fmt.Errorf("media %s: %w", m.Code, domain.ErrNoMediaFound)
	}
	file, err := fetcher.Fetch(ctx, img.URL, destBase, header)
	if err != nil {
		return "", err
	}
	return file.Path, nil
}
