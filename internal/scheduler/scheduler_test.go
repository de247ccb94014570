package scheduler

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"

	"github.com/vfrank66/lucas-download/internal/camara"
	"github.com/vfrank66/lucas-download/internal/downloader"
	"github.com/vfrank66/lucas-download/internal/progress"
)

// fakeResolver serves fixture data and records which session pages
// were resolved.
type fakeResolver struct {
	years     []int
	dateLinks map[int][]camara.DateLink
	pdfs      map[string]string // pageURL -> pdfURL; absent means no document
	errs      map[string]error  // pageURL -> resolve error

	mu       sync.Mutex
	resolved map[string]int
}

func (r *fakeResolver) DiscoverYears(context.Context) []int { return r.years }

func (r *fakeResolver) DiscoverDateLinks(_ context.Context, year int) []camara.DateLink {
	return r.dateLinks[year]
}

func (r *fakeResolver) ResolvePDF(_ context.Context, pageURL string) (string, bool, error) {
	r.mu.Lock()
	if r.resolved == nil {
		r.resolved = make(map[string]int)
	}
	r.resolved[pageURL]++
	r.mu.Unlock()

	if err := r.errs[pageURL]; err != nil {
		return "", false, err
	}
	pdfURL, ok := r.pdfs[pageURL]
	return pdfURL, ok, nil
}

func (r *fakeResolver) resolveCount(pageURL string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved[pageURL]
}

// stubFetcher serves every fetch from one canned body.
type stubFetcher struct{}

func (stubFetcher) Fetch(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("pdf bytes")), nil
}

func link(date string) camara.DateLink {
	return camara.DateLink{Date: date, PageURL: "https://example.org/dc_20b.asp?Datain=" + date}
}

func pdfURLFor(date string) string {
	name := strings.ReplaceAll(date, "/", "")
	return "https://imagem.camara.gov.br/Imagem/d/pdf/DCD" + name + ".PDF"
}

func newTestEnv(t *testing.T) (*blob.Bucket, *progress.Store, *downloader.Downloader) {
	t.Helper()
	ctx := context.Background()
	bucket, err := blob.OpenBucket(ctx, "mem://")
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	t.Cleanup(func() { bucket.Close() })

	store := progress.Open(ctx, bucket, "progress.json", nil)
	dl := downloader.New(stubFetcher{}, bucket, store, downloader.Options{
		RetryAttempts: 2,
		RetryBackoff:  time.Millisecond,
	}, nil)
	return bucket, store, dl
}

func TestRunBatchScenario(t *testing.T) {
	// Three dates; documents exist for two, the third has none.
	dates := []string{"01/01/2023", "02/01/2023", "03/01/2023"}
	links := []camara.DateLink{link(dates[0]), link(dates[1]), link(dates[2])}

	resolver := &fakeResolver{
		pdfs: map[string]string{
			links[0].PageURL: pdfURLFor(dates[0]),
			links[1].PageURL: pdfURLFor(dates[1]),
		},
	}

	_, store, dl := newTestEnv(t)
	s := New(resolver, dl, store, Options{Workers: 4, BatchSize: 10}, nil)

	got := s.RunBatch(context.Background(), 2023, links)

	if got != 2 {
		t.Errorf("expected successCount 2, got %d", got)
	}
	if store.CompletedCount() != 2 {
		t.Errorf("expected 2 completed keys, got %d", store.CompletedCount())
	}
	if len(store.Failures()) != 0 {
		t.Errorf("expected 0 failure records, got %d", len(store.Failures()))
	}

	// The miss is neither completed nor failed; it is recorded as a
	// no-document date so later runs stop re-resolving it.
	missKey := camara.DateKey(2023, dates[2])
	if store.IsCompleted(missKey) {
		t.Error("no-document date must not be completed")
	}
	if !store.IsNoDocument(missKey) {
		t.Error("expected no-document mark for the miss")
	}
}

func TestRunBatchSkipsCompleted(t *testing.T) {
	dates := []string{"01/01/2023", "02/01/2023"}
	links := []camara.DateLink{link(dates[0]), link(dates[1])}

	resolver := &fakeResolver{
		pdfs: map[string]string{
			links[0].PageURL: pdfURLFor(dates[0]),
			links[1].PageURL: pdfURLFor(dates[1]),
		},
	}

	_, store, dl := newTestEnv(t)
	store.MarkCompleted(camara.DateKey(2023, dates[0]))

	s := New(resolver, dl, store, Options{Workers: 4, BatchSize: 10}, nil)
	got := s.RunBatch(context.Background(), 2023, links)

	if got != 1 {
		t.Errorf("expected 1 new success, got %d", got)
	}
	// The completed date is never re-resolved, let alone re-downloaded.
	if n := resolver.resolveCount(links[0].PageURL); n != 0 {
		t.Errorf("completed date was resolved %d times, want 0", n)
	}
	if n := resolver.resolveCount(links[1].PageURL); n != 1 {
		t.Errorf("pending date resolved %d times, want 1", n)
	}
}

func TestRunBatchSkipsNoDocumentDates(t *testing.T) {
	d := "04/01/2023"
	links := []camara.DateLink{link(d)}
	resolver := &fakeResolver{}

	_, store, dl := newTestEnv(t)
	store.MarkNoDocument(camara.DateKey(2023, d))

	s := New(resolver, dl, store, Options{Workers: 2, BatchSize: 10}, nil)
	if got := s.RunBatch(context.Background(), 2023, links); got != 0 {
		t.Errorf("expected no successes, got %d", got)
	}
	if n := resolver.resolveCount(links[0].PageURL); n != 0 {
		t.Errorf("no-document date was resolved %d times, want 0", n)
	}
}

func TestRunBatchResolveErrorIsNonFatal(t *testing.T) {
	dates := []string{"01/01/2023", "02/01/2023"}
	links := []camara.DateLink{link(dates[0]), link(dates[1])}

	resolver := &fakeResolver{
		pdfs: map[string]string{links[1].PageURL: pdfURLFor(dates[1])},
		errs: map[string]error{links[0].PageURL: errors.New("timeout")},
	}

	_, store, dl := newTestEnv(t)
	s := New(resolver, dl, store, Options{Workers: 4, BatchSize: 10}, nil)

	if got := s.RunBatch(context.Background(), 2023, links); got != 1 {
		t.Errorf("expected 1 success despite resolve error, got %d", got)
	}
	// A resolve error leaves the date untouched: retried next run.
	key := camara.DateKey(2023, dates[0])
	if store.IsCompleted(key) || store.IsNoDocument(key) {
		t.Error("errored date must stay pending")
	}
}

// boundedDownloader records the maximum number of concurrent Download
// calls it observes.
type boundedDownloader struct {
	active atomic.Int32
	peak   atomic.Int32
}

func (d *boundedDownloader) Download(context.Context, string, camara.DateLink, int) downloader.Result {
	n := d.active.Add(1)
	for {
		p := d.peak.Load()
		if n <= p || d.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	d.active.Add(-1)
	return downloader.Result{Status: downloader.Downloaded}
}

func TestRunBatchBoundsConcurrency(t *testing.T) {
	var links []camara.DateLink
	pdfs := make(map[string]string)
	for _, d := range []string{
		"01/02/2023", "02/02/2023", "03/02/2023", "04/02/2023",
		"05/02/2023", "06/02/2023", "07/02/2023", "08/02/2023",
	} {
		l := link(d)
		links = append(links, l)
		pdfs[l.PageURL] = pdfURLFor(d)
	}
	resolver := &fakeResolver{pdfs: pdfs}

	_, store, _ := newTestEnv(t)
	bounded := &boundedDownloader{}
	s := New(resolver, bounded, store, Options{Workers: 2, BatchSize: 10}, nil)

	if got := s.RunBatch(context.Background(), 2023, links); got != 8 {
		t.Errorf("expected 8 successes, got %d", got)
	}
	if peak := bounded.peak.Load(); peak > 2 {
		t.Errorf("observed %d concurrent downloads, want <= 2", peak)
	}
}

func TestRunPersistsAfterEveryBatch(t *testing.T) {
	dates := []string{"01/01/2023", "02/01/2023", "03/01/2023", "04/01/2023"}
	var links []camara.DateLink
	pdfs := make(map[string]string)
	for _, d := range dates {
		l := link(d)
		links = append(links, l)
		pdfs[l.PageURL] = pdfURLFor(d)
	}
	resolver := &fakeResolver{
		years:     []int{2023},
		dateLinks: map[int][]camara.DateLink{2023: links},
		pdfs:      pdfs,
	}

	bucket, store, dl := newTestEnv(t)
	s := New(resolver, dl, store, Options{Workers: 2, BatchSize: 2}, nil)

	total, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if total != 4 {
		t.Errorf("expected 4 downloads total, got %d", total)
	}

	// State survives a restart: a reopened store sees every completion.
	reopened := progress.Open(context.Background(), bucket, "progress.json", nil)
	if reopened.CompletedCount() != 4 {
		t.Errorf("expected 4 persisted completions, got %d", reopened.CompletedCount())
	}
	for _, d := range dates {
		if !reopened.IsCompleted(camara.DateKey(2023, d)) {
			t.Errorf("expected %s to be persisted as complete", d)
		}
	}
}

// flushCheckingDownloader, when handling a date from the later batch,
// reopens the progress object straight from the bucket and checks that
// the earlier batch's completions were already persisted. Run flushes
// after every batch, so this must hold before any later-batch download
// starts, not just once the run is over.
type flushCheckingDownloader struct {
	t           *testing.T
	bucket      *blob.Bucket
	laterDates  map[string]bool
	earlierKeys []string
}

func (d *flushCheckingDownloader) Download(ctx context.Context, _ string, link camara.DateLink, _ int) downloader.Result {
	if d.laterDates[link.Date] {
		persisted := progress.Open(ctx, d.bucket, "progress.json", nil)
		for _, key := range d.earlierKeys {
			if !persisted.IsCompleted(key) {
				d.t.Errorf("%s not persisted before the later batch started", key)
			}
		}
	}
	return downloader.Result{Status: downloader.Downloaded}
}

func TestRunFlushesBetweenBatches(t *testing.T) {
	dates := []string{"01/01/2023", "02/01/2023", "03/01/2023", "04/01/2023"}
	var links []camara.DateLink
	pdfs := make(map[string]string)
	for _, d := range dates {
		l := link(d)
		links = append(links, l)
		pdfs[l.PageURL] = pdfURLFor(d)
	}
	resolver := &fakeResolver{
		years:     []int{2023},
		dateLinks: map[int][]camara.DateLink{2023: links},
		pdfs:      pdfs,
	}

	bucket, store, _ := newTestEnv(t)
	checking := &flushCheckingDownloader{
		t:      t,
		bucket: bucket,
		laterDates: map[string]bool{
			dates[2]: true,
			dates[3]: true,
		},
		earlierKeys: []string{
			camara.DateKey(2023, dates[0]),
			camara.DateKey(2023, dates[1]),
		},
	}
	s := New(resolver, checking, store, Options{Workers: 2, BatchSize: 2}, nil)

	total, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if total != 4 {
		t.Errorf("expected 4 downloads total, got %d", total)
	}
}

func TestRunInterruptedReportsCancellation(t *testing.T) {
	d := "01/01/2023"
	l := link(d)
	resolver := &fakeResolver{
		years:     []int{2023},
		dateLinks: map[int][]camara.DateLink{2023: {l}},
		pdfs:      map[string]string{l.PageURL: pdfURLFor(d)},
	}

	_, store, dl := newTestEnv(t)
	s := New(resolver, dl, store, Options{Workers: 2, BatchSize: 10}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	total, err := s.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if total != 0 {
		t.Errorf("expected no downloads on a canceled run, got %d", total)
	}
	if n := resolver.resolveCount(l.PageURL); n != 0 {
		t.Errorf("canceled run resolved %d dates, want 0", n)
	}
}

func TestRunSecondRunDoesNothing(t *testing.T) {
	d := "01/01/2023"
	l := link(d)
	resolver := &fakeResolver{
		years:     []int{2023},
		dateLinks: map[int][]camara.DateLink{2023: {l}},
		pdfs:      map[string]string{l.PageURL: pdfURLFor(d)},
	}

	_, store, dl := newTestEnv(t)
	s := New(resolver, dl, store, Options{Workers: 2, BatchSize: 10}, nil)

	if total, err := s.Run(context.Background()); err != nil || total != 1 {
		t.Fatalf("first run: total=%d err=%v", total, err)
	}
	if total, err := s.Run(context.Background()); err != nil || total != 0 {
		t.Fatalf("second run: total=%d err=%v", total, err)
	}
	if n := resolver.resolveCount(l.PageURL); n != 1 {
		t.Errorf("date resolved %d times across two runs, want 1", n)
	}
}

func TestRunNoYears(t *testing.T) {
	resolver := &fakeResolver{}
	_, store, dl := newTestEnv(t)
	s := New(resolver, dl, store, Options{}, nil)

	if _, err := s.Run(context.Background()); !errors.Is(err, ErrNoYears) {
		t.Errorf("expected ErrNoYears, got %v", err)
	}
}

func TestRunSkipsEmptyYear(t *testing.T) {
	d := "01/01/2024"
	l := link(d)
	resolver := &fakeResolver{
		years: []int{2023, 2024},
		dateLinks: map[int][]camara.DateLink{
			2023: nil, // calendar unreachable or empty: warned, not fatal
			2024: {l},
		},
		pdfs: map[string]string{l.PageURL: pdfURLFor(d)},
	}

	_, store, dl := newTestEnv(t)
	s := New(resolver, dl, store, Options{Workers: 2, BatchSize: 10}, nil)

	total, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if total != 1 {
		t.Errorf("expected 1 download, got %d", total)
	}
	if !store.IsCompleted(camara.DateKey(2024, d)) {
		t.Error("expected 2024 date to complete despite empty 2023")
	}
}
