package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"

	"github.com/carwatch/olx-monitor/internal/scraper"
)

// ChromeLauncher starts Chrome through the DevTools protocol.
type ChromeLauncher struct {
	ExecPath  string
	UserAgent string
	Headless  bool
}

func (l *ChromeLauncher) Launch(ctx context.Context) (scraper.Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.Headless),
	)
	for _, arg := range launchArgs {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	if l.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.UserAgent))
	}
	if l.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...any) {}))

	// An empty Run starts the browser so launch failures surface here.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}
	slog.Debug("Chrome started", "execPath", l.ExecPath)

	return &chromeSession{browserCtx: browserCtx, cancelBrowser: cancelBrowser, cancelAlloc: cancelAlloc}, nil
}

type chromeSession struct {
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	closeOnce     sync.Once
}

// Render opens url in a fresh incognito browser context and returns the DOM
// after the settle delay. Navigate already waits for the load event, which
// covers both wait states.
func (s *chromeSession) Render(ctx context.Context, url string, wait scraper.WaitPolicy) (string, error) {
	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx, chromedp.WithNewBrowserContext())
	defer cancelTab()

	runCtx, cancel := tabCtx, context.CancelFunc(func() {})
	if wait.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(tabCtx, wait.Timeout)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return settle(ctx, wait.Settle)
		}),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	return html, nil
}

func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.cancelBrowser()
		s.cancelAlloc()
	})
	return nil
}
