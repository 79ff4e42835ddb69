// Package scraper walks the catalog's listing pages and extracts item
// records from detail pages under bounded concurrency. A run is a counting
// pass over every requested letter followed by an extraction pass; records
// come out of a channel and a progress snapshot is readable throughout.
package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/seliux/vaultgrab/internal/apperr"
	"github.com/seliux/vaultgrab/internal/catalog"
	"github.com/seliux/vaultgrab/internal/logctx"
	"github.com/seliux/vaultgrab/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 3

// Getter is the transport used for page fetches.
type Getter interface {
	Get(ctx context.Context, url string, headers http.Header) (*http.Response, error)
}

// Config holds scrape tuning knobs.
type Config struct {
	Category        string
	Letters         []string
	Concurrency     int
	RequestDelay    time.Duration
	MinimumScore    float64 // 0 disables the filter
	SiteBaseURL     string
	DownloadBaseURL string
}

// Scraper produces catalog item records for one category.
type Scraper struct {
	client  Getter
	tel     *telemetry.Telemetry
	cfg     Config
	origin  string
	tracker tracker
}

func New(client Getter, tel *telemetry.Telemetry, cfg Config) *Scraper {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}

	s := &Scraper{
		client: client,
		tel:    tel,
		cfg:    cfg,
	}

	if u, err := url.Parse(cfg.SiteBaseURL); err == nil {
		s.origin = u.Scheme + "://" + u.Host
	}

	return s
}

// Progress returns a snapshot of the current run.
func (s *Scraper) Progress() Progress {
	return s.tracker.snapshot()
}

// Run starts a scrape and returns the record channel. The channel is closed
// when every letter has been processed or the context is cancelled; no
// partial record is ever emitted.
func (s *Scraper) Run(ctx context.Context) <-chan catalog.ItemRecord {
	out := make(chan catalog.ItemRecord)

	go func() {
		defer close(out)

		logger := logctx.LoggerFromContext(ctx)

		s.countItems(ctx)

		for _, letter := range s.cfg.Letters {
			if ctx.Err() != nil {
				logger.Info("scrape cancelled")

				return
			}

			if err := s.scrapeLetter(ctx, letter, out); err != nil {
				logger.Info("scrape cancelled", "letter", letter)

				return
			}
		}

		logger.Info("scrape finished",
			"processed", s.tracker.snapshot().ItemsProcessed,
			"skipped", s.tracker.snapshot().ItemsSkipped)
	}()

	return out
}

// countItems seeds the total-items counter by walking every listing page
// once. A letter whose listing cannot be fetched is logged and skipped; the
// count continues without it.
func (s *Scraper) countItems(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	for _, letter := range s.cfg.Letters {
		if ctx.Err() != nil {
			return
		}

		doc, err := s.fetchDoc(ctx, s.listingURL(letter), "listing")
		if err != nil {
			logger.Warn("failed to count listing page, skipping letter", "letter", letter, "err", err)

			continue
		}

		s.tracker.addTotal(len(listingLinks(doc, s.origin)))
	}

	logger.Info("counting pass complete", "total_items", s.tracker.snapshot().TotalItems)
}

// scrapeLetter fans detail-page fetches out under the concurrency gate. The
// returned error is non-nil only on cancellation; per-item failures land in
// the progress error list.
func (s *Scraper) scrapeLetter(ctx context.Context, letter string, out chan<- catalog.ItemRecord) error {
	s.tracker.setLetter(letter)

	doc, err := s.fetchDoc(ctx, s.listingURL(letter), "listing")
	if err != nil {
		s.tracker.addError(apperr.Scraping("letter "+letter+": failed to fetch listing", err, s.listingURL(letter)).Error())

		return nil
	}

	links := listingLinks(doc, s.origin)

	wg, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, s.cfg.Concurrency)

dispatch:
	for i := range links {
		detailURL := links[i]

		select {
		case <-gctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}

		wg.Go(func() error {
			defer func() { <-sem }() // release the slot

			if gctx.Err() != nil {
				return gctx.Err()
			}

			return s.scrapeItem(gctx, detailURL, out)
		})
	}

	if ctx.Err() != nil {
		_ = wg.Wait()

		return ctx.Err()
	}

	return wg.Wait()
}

// scrapeItem fetches one detail page, extracts its fields, and emits the
// record unless the score filter excludes it. Only cancellation is returned
// as an error.
func (s *Scraper) scrapeItem(ctx context.Context, detailURL string, out chan<- catalog.ItemRecord) error {
	logger := logctx.LoggerFromContext(ctx)

	if err := s.wait(ctx); err != nil {
		return err
	}

	doc, err := s.fetchDoc(ctx, detailURL, "detail")
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.tracker.addError(apperr.Scraping("failed to fetch "+detailURL, err, detailURL).Error())

		return nil
	}

	title, ok := extractTitle(doc)
	if !ok {
		s.tracker.addError(apperr.Scraping("no title found on "+detailURL, nil, detailURL).Error())

		return nil
	}

	s.tracker.setItem(title)

	rating, votes := extractRating(doc)
	base := downloadBase(doc, s.origin, s.cfg.DownloadBaseURL)

	parts := buildParts(extractMediaIDs(doc), base)
	if len(parts) == 0 {
		logger.Warn("no media identifiers found", "url", detailURL, "title", title)
	}

	record := catalog.ItemRecord{
		Title:       title,
		DetailURL:   detailURL,
		Category:    s.cfg.Category,
		Parts:       parts,
		ScrapedAt:   time.Now().UTC(),
		Rating:      rating,
		RatingCount: votes,
	}

	if s.cfg.MinimumScore > 0 && rating != nil && *rating < s.cfg.MinimumScore {
		s.tracker.skipped()

		if s.tel != nil {
			s.tel.RecordItemSkipped()
		}

		logger.Debug("item below minimum score, skipping", "title", title, "rating", *rating)

		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- record:
	}

	s.tracker.processed()

	if s.tel != nil {
		s.tel.RecordItemScraped()
	}

	return nil
}

func (s *Scraper) fetchDoc(ctx context.Context, pageURL, kind string) (*goquery.Document, error) {
	resp, err := s.client.Get(ctx, pageURL, nil)

	if s.tel != nil {
		s.tel.RecordPageFetch(kind, err)
	}

	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s page: %w", kind, err)
	}

	return doc, nil
}

// wait sleeps the configured inter-request delay without blocking shutdown.
func (s *Scraper) wait(ctx context.Context) error {
	if s.cfg.RequestDelay <= 0 {
		return nil
	}

	timer := time.NewTimer(s.cfg.RequestDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Scraper) listingURL(letter string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(s.cfg.SiteBaseURL, "/"), s.cfg.Category, letter)
}

// buildParts labels the media identifiers as discs. More than one
// identifier numbers them in order; exactly one is a single "Disc 1".
func buildParts(ids []string, base string) []catalog.PartInfo {
	parts := make([]catalog.PartInfo, 0, len(ids))

	for i, id := range ids {
		parts = append(parts, catalog.PartInfo{
			Label:       fmt.Sprintf("Disc %d", i+1),
			MediaID:     id,
			DownloadURL: strings.TrimSuffix(base, "/") + "/?mediaId=" + id,
		})
	}

	return parts
}
