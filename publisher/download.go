// Package publisher implements the content repositories the producer
// publishes into: a WordPress site over its REST API, or a directory of
// markdown files.
package publisher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"automagick_post_producer/failure"
)

// DefaultHTTPTimeout bounds every repository and download request.
const DefaultHTTPTimeout = 60 * time.Second

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true}

// Downloader fetches generated images into a scratch directory. The handle
// it returns is the local file path.
type Downloader struct {
	client *http.Client
	dir    string
	now    func() time.Time
}

// NewDownloader stores images under dir; an empty dir means the OS temp dir.
func NewDownloader(client *http.Client, dir string) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	if dir == "" {
		dir = os.TempDir()
	}
	return &Downloader{client: client, dir: dir, now: time.Now}
}

// Download fetches rawURL and returns the path of the stored copy.
func (d *Downloader) Download(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", failure.Media(failure.StepDownload, fmt.Sprintf("invalid image URL %q", rawURL), nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", failure.Media(failure.StepDownload, "", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", failure.Media(failure.StepDownload, "", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", failure.Media(failure.StepDownload, "unexpected status "+resp.Status, nil)
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", failure.Media(failure.StepDownload, "", err)
	}
	scratch, err := os.MkdirTemp(d.dir, "image-")
	if err != nil {
		return "", failure.Media(failure.StepDownload, "", err)
	}
	dst := filepath.Join(scratch, d.fileName(u))
	f, err := os.Create(dst)
	if err != nil {
		os.RemoveAll(scratch)
		return "", failure.Media(failure.StepDownload, "", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.RemoveAll(scratch)
		return "", failure.Media(failure.StepDownload, "", err)
	}
	if err := f.Close(); err != nil {
		os.RemoveAll(scratch)
		return "", failure.Media(failure.StepDownload, "", err)
	}
	return dst, nil
}

// Release removes a downloaded file and its scratch directory.
func (d *Downloader) Release(handle string) {
	if handle == "" {
		return
	}
	scratch := filepath.Dir(handle)
	if filepath.Dir(scratch) == filepath.Clean(d.dir) {
		os.RemoveAll(scratch)
	}
}

// fileName keeps the URL's file name when it looks like an image,
// otherwise it invents image_<unix>.png.
func (d *Downloader) fileName(u *url.URL) string {
	base := path.Base(u.Path)
	if imageExtensions[strings.ToLower(path.Ext(base))] {
		return base
	}
	return fmt.Sprintf("image_%d.png", d.now().Unix())
}
