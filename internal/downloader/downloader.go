package downloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gocloud.dev/blob"

	"github.com/vfrank66/lucas-download/internal/camara"
	"github.com/vfrank66/lucas-download/internal/progress"
)

// Status is the outcome of one download attempt cycle.
type Status int

const (
	// Downloaded means the file was fetched and stored in this run.
	Downloaded Status = iota
	// Skipped means the file already existed; no fetch was issued.
	Skipped
	// Failed means all attempts were exhausted; a failure record was
	// written to the store.
	Failed
)

// Result reports what happened to one file.
type Result struct {
	Status Status
	Key    string
	Err    error
}

// Success reports whether the file is present after the call, whether
// it was fetched now or found already in place.
func (r Result) Success() bool {
	return r.Status == Downloaded || r.Status == Skipped
}

// Fetcher streams a file's body. Satisfied by internal/http.Client.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// Options configures the Downloader.
type Options struct {
	// RetryAttempts is the total number of fetch attempts per file.
	// Default: 3
	RetryAttempts int

	// RetryBackoff is the delay before the first retry; it doubles on
	// each further retry.
	// Default: 1s
	RetryBackoff time.Duration
}

// Downloader fetches resolved document URLs into the download bucket,
// skipping files that already exist and retrying transient failures
// with exponential backoff.
type Downloader struct {
	fetcher Fetcher
	bucket  *blob.Bucket
	store   *progress.Store
	opts    Options
	logger  *slog.Logger
}

// New creates a Downloader writing into bucket.
func New(fetcher Fetcher, bucket *blob.Bucket, store *progress.Store, opts Options, logger *slog.Logger) *Downloader {
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		fetcher: fetcher,
		bucket:  bucket,
		store:   store,
		opts:    opts,
		logger:  logger,
	}
}

// SaveKey derives the deterministic bucket key for a document:
// {year}/{NN_Month}/{basename}, with the .PDF extension forced when
// the URL's filename lacks it.
func SaveKey(year int, date string, pdfURL string) (string, error) {
	_, month, _, err := camara.SplitDate(date)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(pdfURL)
	if err != nil {
		return "", fmt.Errorf("parse document URL: %w", err)
	}
	filename := path.Base(u.Path)
	if filename == "." || filename == "/" || filename == "" {
		return "", fmt.Errorf("document URL %q has no filename", pdfURL)
	}
	if !strings.HasSuffix(strings.ToUpper(filename), ".PDF") {
		filename += ".PDF"
	}

	return fmt.Sprintf("%d/%s/%s", year, camara.MonthDir(month), filename), nil
}

// Download fetches pdfURL into the bucket under the key derived from
// the link's date. It never returns an error to the caller beyond the
// Result: exhausted retries become a failure record plus a diagnostic
// log entry, and the batch moves on.
func (d *Downloader) Download(ctx context.Context, pdfURL string, link camara.DateLink, year int) Result {
	key, err := SaveKey(year, link.Date, pdfURL)
	if err != nil {
		d.recordFailure(pdfURL, link, err)
		return Result{Status: Failed, Err: err}
	}

	// Idempotent resume: an existing file is never re-fetched or
	// re-verified.
	exists, err := d.bucket.Exists(ctx, key)
	if err == nil && exists {
		d.logger.Debug("file already exists", "key", key)
		return Result{Status: Skipped, Key: key}
	}

	attempt := 0
	operation := func() error {
		attempt++
		if err := d.fetchToBucket(ctx, pdfURL, key); err != nil {
			d.logger.Warn("download attempt failed",
				"url", pdfURL, "attempt", attempt, "of", d.opts.RetryAttempts, "err", err)
			return err
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.opts.RetryBackoff
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = 24 * time.Hour
	bo.MaxElapsedTime = 0

	err = backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(d.opts.RetryAttempts-1)), ctx))
	if err != nil {
		d.recordFailure(pdfURL, link, err)
		return Result{Status: Failed, Key: key, Err: err}
	}

	d.store.AddStat("downloads_completed", 1)
	d.logger.Info("downloaded", "key", key)
	return Result{Status: Downloaded, Key: key}
}

// fetchToBucket streams one fetch into the bucket. The blob writer
// only commits on a successful Close; on a mid-stream error the write
// context is canceled so no partial object lands under the final key.
func (d *Downloader) fetchToBucket(ctx context.Context, pdfURL, key string) error {
	body, err := d.fetcher.Fetch(ctx, pdfURL)
	if err != nil {
		return err
	}
	defer body.Close()

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := d.bucket.NewWriter(wctx, key, nil)
	if err != nil {
		return fmt.Errorf("open writer: %w", err)
	}

	if _, err := io.Copy(w, body); err != nil {
		cancel()
		w.Close()
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize write: %w", err)
	}
	return nil
}

// recordFailure persists the failure and emits the structured
// diagnostic entry used for manual follow-up.
func (d *Downloader) recordFailure(pdfURL string, link camara.DateLink, err error) {
	d.store.AddFailure(pdfURL, err.Error())
	d.store.AddStat("downloads_failed", 1)

	day, month, year, derr := camara.SplitDate(link.Date)
	if derr != nil {
		d.logger.Error("download failed, manual intervention required",
			"date", link.Date, "url", pdfURL, "err", err)
		return
	}
	d.logger.Error("download failed, manual intervention required",
		"date", link.Date,
		"day", day,
		"month", month,
		"month_name", camara.MonthName(month),
		"year", year,
		"url", pdfURL,
		"err", err)
}
