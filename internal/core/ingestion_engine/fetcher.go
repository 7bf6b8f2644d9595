package ingestion_engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/askpdf/askpdf/internal/core"
	"github.com/askpdf/askpdf/internal/models"
)

// Fetcher resolves a job's source locator into a local file. Remote
// objects are presigned, downloaded over HTTP, and spooled into a scratch
// temp file owned by the job; the returned cleanup releases it.
type Fetcher struct {
	obj     core.ObjectClient
	httpc   *http.Client
	timeout time.Duration
}

func NewFetcher(obj core.ObjectClient, timeout time.Duration) *Fetcher {
	return &Fetcher{
		obj:     obj,
		httpc:   &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

func noopCleanup() {}

func (f *Fetcher) Fetch(ctx context.Context, src models.SourceLocator) (string, func(), error) {
	switch {
	case src.LocalPath != "" && src.StorageKey != "":
		return "", noopCleanup, core.Permanentf(core.StageFetch, "ambiguous source locator: both path and storage key set")
	case src.LocalPath != "":
		return f.fetchLocal(src.LocalPath)
	case src.StorageKey != "":
		return f.fetchRemote(ctx, src.StorageKey)
	default:
		return "", noopCleanup, core.Permanentf(core.StageFetch, "empty source locator")
	}
}

// fetchLocal validates the path; the caller owns the file, so cleanup is
// a no-op.
func (f *Fetcher) fetchLocal(path string) (string, func(), error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", noopCleanup, core.Permanentf(core.StageFetch, "local file %q: %v", path, err)
	}
	if info.IsDir() {
		return "", noopCleanup, core.Permanentf(core.StageFetch, "local path %q is a directory", path)
	}
	file, err := os.Open(path)
	if err != nil {
		return "", noopCleanup, core.Permanentf(core.StageFetch, "local file %q not readable: %v", path, err)
	}
	_ = file.Close()
	return path, noopCleanup, nil
}

// fetchRemote resolves the storage key to a download URL, GETs it, and
// materializes the body into a collision-free scratch file.
func (f *Fetcher) fetchRemote(ctx context.Context, key string) (string, func(), error) {
	url, err := f.obj.PresignGetURL(ctx, key, f.timeout+time.Minute)
	if err != nil {
		return "", noopCleanup, core.Permanentf(core.StageFetch, "resolve %q: %v", key, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", noopCleanup, core.Permanentf(core.StageFetch, "build request for %q: %v", key, err)
	}

	resp, err := f.httpc.Do(req)
	if err != nil {
		// Timeouts and transport failures are retry-eligible.
		return "", noopCleanup, core.Transientf(core.StageFetch, "download %q: %v", key, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", noopCleanup, core.Transientf(core.StageFetch, "download %q: status %d", key, resp.StatusCode)
	default:
		return "", noopCleanup, core.Permanentf(core.StageFetch, "download %q: status %d", key, resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "askpdf-fetch-*")
	if err != nil {
		return "", noopCleanup, core.Transientf(core.StageFetch, "create scratch file: %v", err)
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", noopCleanup, core.Transientf(core.StageFetch, "spool %q: %v", key, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", noopCleanup, core.Transient(core.StageFetch, fmt.Errorf("close scratch file: %w", err))
	}
	return tmp.Name(), cleanup, nil
}

var _ core.SourceFetcher = (*Fetcher)(nil)
