package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/carwatch/olx-monitor/internal/scraper"
)

// PlaywrightLauncher drives Chromium through playwright-go. The driver and
// browsers must already be installed (playwright install chromium).
type PlaywrightLauncher struct {
	ExecPath  string
	UserAgent string
	Headless  bool
}

func (l *PlaywrightLauncher) Launch(ctx context.Context) (scraper.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.Headless),
		Args:     launchArgs,
	}
	if l.ExecPath != "" {
		opts.ExecutablePath = playwright.String(l.ExecPath)
	}
	browser, err := pw.Chromium.Launch(opts)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch chromium: %w", err)
	}
	return &playwrightSession{pw: pw, browser: browser, userAgent: l.UserAgent}, nil
}

type playwrightSession struct {
	pw        *playwright.Playwright
	browser   playwright.Browser
	userAgent string
	closeOnce sync.Once
	closeErr  error
}

func (s *playwrightSession) Render(ctx context.Context, url string, wait scraper.WaitPolicy) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ctxOpts := playwright.BrowserNewContextOptions{}
	if s.userAgent != "" {
		ctxOpts.UserAgent = playwright.String(s.userAgent)
	}
	bctx, err := s.browser.NewContext(ctxOpts)
	if err != nil {
		return "", fmt.Errorf("new browser context: %w", err)
	}
	defer bctx.Close()

	page, err := bctx.NewPage()
	if err != nil {
		return "", fmt.Errorf("new page: %w", err)
	}

	gotoOpts := playwright.PageGotoOptions{WaitUntil: waitUntilState(wait.Until)}
	if wait.Timeout > 0 {
		gotoOpts.Timeout = playwright.Float(float64(wait.Timeout.Milliseconds()))
	}
	if _, err := page.Goto(url, gotoOpts); err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	if err := settle(ctx, wait.Settle); err != nil {
		return "", err
	}

	html, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("read content of %s: %w", url, err)
	}
	return html, nil
}

func (s *playwrightSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = errors.Join(s.browser.Close(), s.pw.Stop())
	})
	return s.closeErr
}

func waitUntilState(until scraper.WaitUntil) *playwright.WaitUntilState {
	if until == scraper.WaitNetworkIdle {
		return playwright.WaitUntilStateNetworkidle
	}
	return playwright.WaitUntilStateDomcontentloaded
}
