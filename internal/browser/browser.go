// Package browser provides the headless renderers behind scraper.Launcher.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/carwatch/olx-monitor/internal/config"
	"github.com/carwatch/olx-monitor/internal/scraper"
)

var launchArgs = []string{
	"--no-sandbox",
	"--disable-dev-shm-usage",
	"--disable-gpu",
	"--disable-blink-features=AutomationControlled",
}

// NewLauncher returns the renderer selected by cfg.Renderer.
func NewLauncher(cfg *config.Config) (scraper.Launcher, error) {
	switch cfg.Renderer {
	case "", "chromedp":
		return &ChromeLauncher{ExecPath: cfg.ChromeBin, UserAgent: cfg.UserAgent, Headless: true}, nil
	case "playwright":
		return &PlaywrightLauncher{ExecPath: cfg.ChromeBin, UserAgent: cfg.UserAgent, Headless: true}, nil
	default:
		return nil, fmt.Errorf("unknown renderer %q", cfg.Renderer)
	}
}

// settle pauses for d unless ctx ends first.
func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
