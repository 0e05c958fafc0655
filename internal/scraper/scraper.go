package scraper

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/carwatch/olx-monitor/internal/models"
)

// WaitUntil names the page lifecycle event a navigation waits for.
type WaitUntil string

const (
	WaitDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitNetworkIdle      WaitUntil = "networkidle"
)

// WaitPolicy bounds a single navigation. Settle is a fixed delay after the
// page loaded, giving client-side scripts time to populate the DOM.
type WaitPolicy struct {
	Until   WaitUntil
	Timeout time.Duration
	Settle  time.Duration
}

// DefaultListingWait and DefaultDetailWait match what OLX needs in practice.
var (
	DefaultListingWait = WaitPolicy{Until: WaitDOMContentLoaded, Timeout: 60 * time.Second, Settle: 5 * time.Second}
	DefaultDetailWait  = WaitPolicy{Until: WaitNetworkIdle, Timeout: 45 * time.Second, Settle: 3 * time.Second}
)

// Session is one open browser. Every Render uses a fresh browsing context so
// cookies and storage never leak between pages.
type Session interface {
	Render(ctx context.Context, url string, wait WaitPolicy) (string, error)
	Close() error
}

// Launcher starts a browser for one crawl cycle.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

type Options struct {
	ListingWait WaitPolicy
	DetailWait  WaitPolicy
	// Strategies are tried in order by ReferencePrice. Nil means DefaultStrategies(true).
	Strategies []PriceStrategy
	// Limiter paces navigations. Nil means unlimited.
	Limiter *rate.Limiter
}

// Client drives listing and detail page scraping over a single Session.
type Client struct {
	session Session
	opts    Options
}

func New(session Session, opts Options) *Client {
	if opts.Strategies == nil {
		opts.Strategies = DefaultStrategies(true)
	}
	if opts.ListingWait.Timeout == 0 {
		opts.ListingWait = DefaultListingWait
	}
	if opts.DetailWait.Timeout == 0 {
		opts.DetailWait = DefaultDetailWait
	}
	return &Client{session: session, opts: opts}
}

// ScrapeRegion renders the region's listing page and returns its candidates.
// Render and payload failures are logged and yield an empty sequence.
func (c *Client) ScrapeRegion(ctx context.Context, region models.Region) iter.Seq[models.CandidateAd] {
	html, err := c.render(ctx, region.QueryURL, c.opts.ListingWait)
	if err != nil {
		slog.Warn("Failed to render region page", "url", region.QueryURL, "error", err)
		return emptySeq
	}

	payload, err := NextData(html)
	if err != nil {
		slog.Warn("Region page has no embedded listing data", "url", region.QueryURL, "error", err)
		return emptySeq
	}
	return Candidates(payload, region.TargetCities)
}

// ReferencePrice looks up the FIPE price on an ad's detail page.
// It never fails: render errors are logged and reported as not found.
func (c *Client) ReferencePrice(ctx context.Context, adURL string) (string, bool) {
	html, err := c.render(ctx, adURL, c.opts.DetailWait)
	if err != nil {
		slog.Warn("Error visiting ad", "url", adURL, "error", err)
		return "", false
	}
	return ReferencePriceFromPage(html, c.opts.Strategies...)
}

func (c *Client) render(ctx context.Context, url string, wait WaitPolicy) (string, error) {
	if c.opts.Limiter != nil {
		if err := c.opts.Limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	return c.session.Render(ctx, url, wait)
}

func emptySeq(func(models.CandidateAd) bool) {}
