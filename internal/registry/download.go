package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	merrors "github.com/five82/marlin/internal/errors"
	"github.com/five82/marlin/internal/logging"
)

// Progress receives the URL being fetched, the bytes written so far, and the
// expected total, which is -1 when the server sends no length.
type Progress func(url string, written, total int64)

// Downloader fetches checkpoints over HTTP.
type Downloader struct {
	Client   *http.Client
	Progress Progress
}

// Fetch downloads url to dest unless dest already exists. The body is written
// to dest+".part" and renamed into place only after a complete transfer.
func (d *Downloader) Fetch(ctx context.Context, url, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		logging.Debug("checkpoint already cached", "path", dest)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return merrors.NewIOError(fmt.Sprintf("failed to create %s", filepath.Dir(dest)), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return merrors.NewDownloadError(url, err)
	}

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	logging.Info("downloading checkpoint", "url", url, "dest", dest)
	resp, err := client.Do(req)
	if err != nil {
		return merrors.NewDownloadError(url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return merrors.NewDownloadError(url, fmt.Errorf("unexpected status %s", resp.Status))
	}

	part := dest + ".part"
	f, err := os.Create(part)
	if err != nil {
		return merrors.NewIOError(fmt.Sprintf("failed to create %s", part), err)
	}

	w := io.Writer(f)
	if d.Progress != nil {
		w = &progressWriter{w: f, url: url, total: resp.ContentLength, fn: d.Progress}
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		_ = f.Close()
		return merrors.NewDownloadError(url, err)
	}
	if err := f.Close(); err != nil {
		return merrors.NewIOError(fmt.Sprintf("failed to write %s", part), err)
	}

	if err := os.Rename(part, dest); err != nil {
		return merrors.NewIOError(fmt.Sprintf("failed to move %s into place", part), err)
	}
	return nil
}

type progressWriter struct {
	w       io.Writer
	url     string
	written int64
	total   int64
	fn      Progress
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	p.fn(p.url, p.written, p.total)
	return n, err
}
