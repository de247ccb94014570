package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/vfrank66/lucas-download/internal/camara"
	"github.com/vfrank66/lucas-download/internal/downloader"
	"github.com/vfrank66/lucas-download/internal/progress"
)

// ErrNoYears is returned by Run when first-level discovery yields
// nothing. It is the run's only "total failure" signal; everything
// below it degrades instead of aborting.
var ErrNoYears = errors.New("scheduler: no years discovered")

// Resolver is the slice of the site contract the scheduler needs.
// Satisfied by camara.Resolver.
type Resolver interface {
	DiscoverYears(ctx context.Context) []int
	DiscoverDateLinks(ctx context.Context, year int) []camara.DateLink
	ResolvePDF(ctx context.Context, pageURL string) (string, bool, error)
}

// FileDownloader fetches one resolved document. Satisfied by
// downloader.Downloader.
type FileDownloader interface {
	Download(ctx context.Context, pdfURL string, link camara.DateLink, year int) downloader.Result
}

// Options configures the Scheduler.
type Options struct {
	// Workers bounds how many dates are processed concurrently.
	// Default: 40
	Workers int

	// BatchSize is how many dates one batch covers. Progress is
	// flushed after every batch, so this bounds the work lost to a
	// crash.
	// Default: 100
	BatchSize int

	// PacingDelay throttles how fast unit completions are consumed,
	// smoothing the aggregate request rate. Zero disables pacing.
	PacingDelay time.Duration
}

// Scheduler drives the whole acquisition: years in ascending order,
// each year's dates in sequential bounded batches, each batch through
// a bounded worker pool.
type Scheduler struct {
	resolver Resolver
	files    FileDownloader
	store    *progress.Store
	opts     Options
	pace     *rate.Limiter
	logger   *slog.Logger
}

// New creates a Scheduler.
func New(resolver Resolver, files FileDownloader, store *progress.Store, opts Options, logger *slog.Logger) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = 40
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}

	var pace *rate.Limiter
	if opts.PacingDelay > 0 {
		pace = rate.NewLimiter(rate.Every(opts.PacingDelay), 1)
	}

	return &Scheduler{
		resolver: resolver,
		files:    files,
		store:    store,
		opts:     opts,
		pace:     pace,
		logger:   logger,
	}
}

// unitOutcome is what one (resolve, download) unit reports back to the
// collector.
type unitOutcome struct {
	key   string
	link  camara.DateLink
	res   downloader.Result
	noDoc bool
	err   error
}

// RunBatch processes one batch of dates under the bounded worker pool
// and returns how many downloads succeeded. Dates already recorded as
// complete, or as having no document, are skipped up front.
//
// Workers send outcomes over a channel; the collector loop below is
// the only place completion state is written, so store ordering needs
// no locking discipline from the workers.
func (s *Scheduler) RunBatch(ctx context.Context, year int, links []camara.DateLink) int {
	var pending []camara.DateLink
	for _, link := range links {
		key := camara.DateKey(year, link.Date)
		if s.store.IsCompleted(key) {
			s.logger.Debug("skipping completed date", "date", link.Date)
			continue
		}
		if s.store.IsNoDocument(key) {
			s.logger.Debug("skipping date with no document", "date", link.Date)
			continue
		}
		pending = append(pending, link)
	}
	if len(pending) == 0 {
		return 0
	}

	results := make(chan unitOutcome, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	for _, link := range pending {
		link := link
		g.Go(func() error {
			out := unitOutcome{key: camara.DateKey(year, link.Date), link: link}

			pdfURL, found, err := s.resolver.ResolvePDF(gctx, link.PageURL)
			switch {
			case err != nil:
				out.err = err
			case !found:
				out.noDoc = true
			default:
				out.res = s.files.Download(gctx, pdfURL, link, year)
			}

			results <- out
			return nil
		})
	}

	go func() {
		g.Wait()
		close(results)
	}()

	// Collector: drains completions in whatever order units finish.
	successful := 0
	for out := range results {
		switch {
		case out.err != nil:
			s.logger.Warn("resolve failed", "date", out.link.Date, "url", out.link.PageURL, "err", out.err)
		case out.noDoc:
			s.logger.Warn("no document for date", "date", out.link.Date)
			s.store.MarkNoDocument(out.key)
		case out.res.Success():
			s.store.MarkCompleted(out.key)
			successful++
		}

		if s.pace != nil {
			_ = s.pace.Wait(ctx)
		}
	}

	return successful
}

// Run executes the whole pipeline: discover years, then for each year
// ascending, its dates in sequential batches with a progress flush
// after each. Progress is also flushed when Run returns, whatever the
// outcome. A canceled context is reported through the error so callers
// can tell an interrupted run from a finished one; everything completed
// before the interrupt stays flushed.
func (s *Scheduler) Run(ctx context.Context) (int, error) {
	defer s.store.Flush(context.WithoutCancel(ctx))

	years := s.resolver.DiscoverYears(ctx)
	if len(years) == 0 {
		return 0, ErrNoYears
	}

	total := 0
	for _, year := range years {
		if ctx.Err() != nil {
			break
		}

		s.logger.Info("processing year", "year", year)
		links := s.resolver.DiscoverDateLinks(ctx, year)
		if len(links) == 0 {
			s.logger.Warn("no dates found for year", "year", year)
			continue
		}

		for start := 0; start < len(links); start += s.opts.BatchSize {
			if ctx.Err() != nil {
				break
			}

			end := min(start+s.opts.BatchSize, len(links))
			batch := links[start:end]
			s.logger.Info("processing batch",
				"year", year, "batch", start/s.opts.BatchSize+1, "dates", len(batch))

			n := s.RunBatch(ctx, year, batch)
			total += n
			s.store.Flush(ctx)

			s.logger.Info("batch completed", "year", year, "downloaded", n)
		}
	}

	if err := ctx.Err(); err != nil {
		return total, err
	}
	return total, nil
}
