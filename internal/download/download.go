// Package download fetches Forge installers and mod jars from the controller.
package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/loykin/forgekeeper/internal/metrics"
	"github.com/loykin/forgekeeper/internal/model"
)

// Resource kinds, used for URL building and metric labels.
const (
	KindForge = "forge"
	KindMod   = "mod"
)

// Config controls the downloader.
type Config struct {
	APIHost  string
	Timeout  time.Duration // per download, including retries
	RetryMax int
	// HTTPClient overrides the underlying transport client.
	HTTPClient *http.Client
}

// Downloader persists remote binaries to local paths.
type Downloader struct {
	apiHost string
	timeout time.Duration
	client  *retryablehttp.Client
	log     *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Downloader {
	if log == nil {
		log = slog.Default()
	}
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil
	client.CheckRetry = checkRetry
	if cfg.HTTPClient != nil {
		client.HTTPClient = cfg.HTTPClient
	}
	return &Downloader{
		apiHost: strings.TrimRight(cfg.APIHost, "/"),
		timeout: cfg.Timeout,
		client:  client,
		log:     log,
	}
}

// checkRetry never retries a 404; the resource will not appear by waiting.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err == nil && resp != nil && resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// URL returns the controller endpoint serving a resource of the given kind.
func (d *Downloader) URL(kind, id string) string {
	return fmt.Sprintf("%s/api/v1/minecraft/%s/%s", d.apiHost, resourcePath(kind), url.PathEscape(id))
}

func resourcePath(kind string) string {
	if kind == KindMod {
		return "mods"
	}
	return kind
}

// Forge downloads the installer for version to dest.
func (d *Downloader) Forge(ctx context.Context, version, dest string) error {
	_, err := d.Fetch(ctx, KindForge, d.URL(KindForge, version), dest)
	return err
}

// Mod downloads the jar of mod id to dest.
func (d *Downloader) Mod(ctx context.Context, id, dest string) error {
	_, err := d.Fetch(ctx, KindMod, d.URL(KindMod, id), dest)
	return err
}

// Fetch downloads rawURL to dest and returns the number of bytes written.
// A 404 fails with model.ErrNotFound; any other failure, including a
// partially written body, fails with model.ErrDownloadFailed. dest is only
// replaced once the body has been fully received.
func (d *Downloader) Fetch(ctx context.Context, kind, rawURL, dest string) (int64, error) {
	log := d.log.With("kind", kind, "url", rawURL)
	n, err := d.fetch(ctx, rawURL, dest)
	metrics.IncDownload(kind, err == nil)
	if err != nil {
		log.Warn("download failed", "error", err)
		return 0, err
	}
	metrics.AddDownloadBytes(kind, n)
	log.Debug("downloaded", "dest", dest, "bytes", n)
	return n, nil
}

func (d *Downloader) fetch(ctx context.Context, rawURL, dest string) (int64, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrDownloadFailed, err)
	}
	req.Header.Set("User-Agent", "forgekeeper")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, fmt.Errorf("%w: %s", model.ErrNotFound, rawURL)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return 0, fmt.Errorf("%w: %s", model.ErrDownloadFailed, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrDownloadFailed, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrDownloadFailed, err)
	}
	n, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("%w: %v", model.ErrDownloadFailed, copyErr)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("%w: %v", model.ErrDownloadFailed, err)
	}
	return n, nil
}
