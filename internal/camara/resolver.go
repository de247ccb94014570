package camara

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// indexPage is the root search page; with ?ano=YYYY it serves the
	// year's calendar.
	indexPage = "pesquisa_diario_basica.asp"

	// dayPage marks anchors that lead to a single session's page.
	dayPage = "dc_20b.asp"

	// pdfHost hosts document files, which live on a different host
	// than the search pages.
	pdfHost = "https://imagem.camara.gov.br"

	// earliestYear is the first year the archive covers. Year tokens
	// below it are page furniture, not calendar years.
	earliestYear = 1881
)

var (
	yearPattern   = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	datainPattern = regexp.MustCompile(`Datain=(\d+/\d+/\d+)`)

	// Document reference patterns, checked in order. First match wins.
	pdfAbsPattern = regexp.MustCompile(`(?i)https://imagem\.camara\.gov\.br/Imagem/d/pdf/[^"]+\.PDF`)
	pdfRelPattern = regexp.MustCompile(`(?i)/Imagem/d/pdf/[^"]+\.PDF`)
)

// Fetcher fetches one page and returns its raw body.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Options configures a Resolver.
type Options struct {
	// BaseURL is the archive root, e.g. https://imagem.camara.leg.br/.
	BaseURL string

	// YearsBack limits discovery to the current year and the N years
	// before it.
	YearsBack int

	// Logger receives discovery warnings. Default: slog.Default().
	Logger *slog.Logger

	// Now supplies the current time; overridable for tests.
	// Default: time.Now.
	Now func() time.Time
}

// Resolver turns the archive's pages into years, date links, and
// document URLs. Its knowledge of the site's markup is confined to
// this package; everything above it sees only the extracted values.
type Resolver struct {
	fetcher   Fetcher
	base      *url.URL
	yearsBack int
	logger    *slog.Logger
	now       func() time.Time
}

// NewResolver creates a Resolver for the archive at opts.BaseURL.
func NewResolver(fetcher Fetcher, opts Options) (*Resolver, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("camara: parse base URL: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		fetcher:   fetcher,
		base:      base,
		yearsBack: opts.YearsBack,
		logger:    logger,
		now:       now,
	}, nil
}

// DiscoverYears fetches the root index page and returns the years it
// mentions that fall inside the lookback window, ascending.
//
// Fails soft: any error yields an empty list, which callers treat as
// "nothing to do".
func (r *Resolver) DiscoverYears(ctx context.Context) []int {
	indexURL := r.resolve(indexPage)
	body, err := r.fetcher.Get(ctx, indexURL)
	if err != nil {
		r.logger.Error("discover years failed", "url", indexURL, "err", err)
		return nil
	}

	currentYear := r.now().Year()
	startYear := currentYear - r.yearsBack

	seen := make(map[int]bool)
	for _, token := range yearPattern.FindAllString(string(body), -1) {
		year, err := strconv.Atoi(token)
		if err != nil {
			continue
		}
		if year < earliestYear || year > currentYear {
			continue
		}
		if year < startYear {
			continue
		}
		seen[year] = true
	}

	years := make([]int, 0, len(seen))
	for year := range seen {
		years = append(years, year)
	}
	sort.Ints(years)

	r.logger.Info("discovered years", "count", len(years), "years", years)
	return years
}

// DiscoverDateLinks fetches a year's calendar page and returns one
// DateLink per session day anchor, with page URLs resolved against the
// base URL.
//
// Fails soft: any error yields an empty list.
func (r *Resolver) DiscoverDateLinks(ctx context.Context, year int) []DateLink {
	calendarURL := r.resolve(fmt.Sprintf("%s?ano=%d", indexPage, year))
	body, err := r.fetcher.Get(ctx, calendarURL)
	if err != nil {
		r.logger.Error("discover calendar failed", "year", year, "url", calendarURL, "err", err)
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		r.logger.Error("parse calendar failed", "year", year, "err", err)
		return nil
	}

	var links []DateLink
	doc.Find("a.WeekDay").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		if !strings.Contains(href, dayPage) || !strings.Contains(href, "Datain=") {
			return
		}
		m := datainPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		links = append(links, DateLink{
			Date:    m[1],
			PageURL: r.resolve(href),
		})
	})

	r.logger.Info("discovered dates", "year", year, "count", len(links))
	return links
}

// ResolvePDF fetches a session's page and searches it for a document
// reference. The second return reports whether one was found; a miss
// is a normal outcome (no document published for that date), not an
// error.
func (r *Resolver) ResolvePDF(ctx context.Context, pageURL string) (string, bool, error) {
	body, err := r.fetcher.Get(ctx, pageURL)
	if err != nil {
		return "", false, fmt.Errorf("fetch session page: %w", err)
	}

	text := string(body)

	if m := pdfAbsPattern.FindString(text); m != "" {
		return m, true, nil
	}
	if m := pdfRelPattern.FindString(text); m != "" {
		return pdfHost + m, true, nil
	}

	// Pattern search found nothing; fall back to scanning anchors for
	// anything that looks like a document file.
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return "", false, fmt.Errorf("parse session page: %w", err)
	}

	var pdfURL string
	doc.Find("a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		if !strings.Contains(strings.ToUpper(href), ".PDF") {
			return true
		}
		if strings.HasPrefix(href, "http") {
			pdfURL = href
		} else {
			pdfURL = pdfHost + href
		}
		return false
	})

	if pdfURL == "" {
		return "", false, nil
	}
	return pdfURL, true, nil
}

// resolve resolves a possibly-relative href against the base URL.
func (r *Resolver) resolve(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return r.base.ResolveReference(ref).String()
}
