package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/carwatch/olx-monitor/internal/models"
	"github.com/carwatch/olx-monitor/internal/scraper"
	"github.com/carwatch/olx-monitor/internal/storage"
)

// ErrCycleInProgress is returned by RunCycle while another cycle is running.
var ErrCycleInProgress = errors.New("a crawl cycle is already in progress")

type Options struct {
	Cities  []models.CityTarget
	Scraper scraper.Options
	// Now defaults to time.Now.
	Now func() time.Time
}

// CycleResult summarizes one crawl cycle.
type CycleResult struct {
	RunID      string
	Regions    int
	Candidates int
	NewAds     []models.EnrichedAd
	StartedAt  time.Time
	FinishedAt time.Time
}

// Crawler runs crawl cycles. At most one cycle runs at a time across every
// caller sharing the Crawler.
type Crawler struct {
	launcher scraper.Launcher
	ledger   AdLedger
	archive  AdArchive
	recorder storage.Recorder
	notifier AdNotifier
	opts     Options

	cycle   *semaphore.Weighted
	writeMu sync.Mutex

	mu      sync.RWMutex
	lastRun time.Time
}

func New(launcher scraper.Launcher, ledger AdLedger, archive AdArchive, notifier AdNotifier, opts Options) *Crawler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Crawler{
		launcher: launcher,
		ledger:   ledger,
		archive:  archive,
		notifier: notifier,
		opts:     opts,
		cycle:    semaphore.NewWeighted(1),
	}
	// Ledger and archive living in the same transactional backend are
	// written together.
	if rec, ok := ledger.(storage.Recorder); ok {
		if l, ok := archive.(AdLedger); ok && l == ledger {
			c.recorder = rec
		}
	}
	return c
}

// LastRun reports when the last cycle finished.
func (c *Crawler) LastRun() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRun, !c.lastRun.IsZero()
}

// RunCycle scrapes every region, enriches and records unseen ads, and sends
// one notification for the batch. Only a launch failure aborts the cycle.
// If ctx is cancelled mid-cycle the ads recorded so far are still notified
// and the partial result is returned with the context error.
func (c *Crawler) RunCycle(ctx context.Context) (*CycleResult, error) {
	if !c.cycle.TryAcquire(1) {
		return nil, ErrCycleInProgress
	}
	defer c.cycle.Release(1)

	result := &CycleResult{RunID: uuid.NewString(), StartedAt: c.opts.Now()}
	log := slog.With("run", result.RunID)
	log.Info("Starting monitor run", "cities", len(c.opts.Cities))

	session, err := c.launcher.Launch(ctx)
	if err != nil {
		log.Error("Failed to launch browser", "error", err)
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	c.crawl(ctx, log, scraper.New(session, c.opts.Scraper), result)

	if err := session.Close(); err != nil {
		log.Warn("Failed to close browser", "error", err)
	}

	if len(result.NewAds) > 0 {
		if err := c.notifier.Notify(context.WithoutCancel(ctx), result.NewAds); err != nil {
			log.Error("Error sending notification", "ads", len(result.NewAds), "error", err)
		}
	}

	result.FinishedAt = c.opts.Now()
	c.mu.Lock()
	c.lastRun = result.FinishedAt
	c.mu.Unlock()

	if len(result.NewAds) > 0 {
		log.Info("Run finished", "new", len(result.NewAds), "candidates", result.Candidates, "duration", result.FinishedAt.Sub(result.StartedAt))
	} else {
		log.Info("Run finished. No new ads found.", "candidates", result.Candidates)
	}

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("cycle interrupted: %w", err)
	}
	return result, nil
}

func (c *Crawler) crawl(ctx context.Context, log *slog.Logger, client *scraper.Client, result *CycleResult) {
	regions := scraper.MapRegions(c.opts.Cities)
	result.Regions = len(regions)
	seenThisCycle := make(map[string]struct{})

	for _, region := range regions {
		if ctx.Err() != nil {
			log.Warn("Cycle cancelled, skipping remaining regions")
			return
		}

		candidates := 0
		for candidate := range client.ScrapeRegion(ctx, region) {
			if ctx.Err() != nil {
				log.Warn("Cycle cancelled, skipping remaining candidates", "url", region.QueryURL)
				result.Candidates += candidates
				return
			}
			candidates++

			id := candidate.ExternalID
			if _, dup := seenThisCycle[id]; dup {
				continue
			}
			seenThisCycle[id] = struct{}{}

			seen, err := c.ledger.IsSeen(ctx, id)
			if err != nil {
				log.Warn("Failed to check ledger, treating ad as new", "id", id, "error", err)
			}
			if seen {
				continue
			}

			reference, ok := client.ReferencePrice(ctx, candidate.URL)
			if ctx.Err() != nil {
				// The lookup was cut short; leave the ad unseen for the next cycle.
				log.Warn("Cycle cancelled during enrichment, dropping ad", "id", id)
				result.Candidates += candidates
				return
			}
			if !ok {
				reference = models.NotInformed
			}
			ad := models.EnrichedAd{CandidateAd: candidate, ReferencePrice: reference}
			c.record(context.WithoutCancel(ctx), log, ad)
			result.NewAds = append(result.NewAds, ad)
			log.Info("New ad found", "id", id, "city", candidate.MatchedCity, "title", candidate.Title, "fipe", reference)
		}
		result.Candidates += candidates
		log.Info("Region scraped", "url", region.QueryURL, "cities", len(region.TargetCities), "candidates", candidates)
	}
}

// record persists ad. Failures are logged; the ad is still reported.
func (c *Crawler) record(ctx context.Context, log *slog.Logger, ad models.EnrichedAd) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	rec := ad.Record(c.opts.Now())
	if c.recorder != nil {
		if err := c.recorder.Record(ctx, rec); err != nil {
			log.Warn("Failed to record ad", "id", rec.ID, "error", err)
		}
		return
	}
	if err := c.ledger.MarkSeen(ctx, rec.ID); err != nil {
		log.Warn("Failed to mark ad seen", "id", rec.ID, "error", err)
	}
	if err := c.archive.Append(ctx, rec); err != nil {
		log.Warn("Failed to archive ad", "id", rec.ID, "error", err)
	}
}
