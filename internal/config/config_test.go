package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Setenv("RESEND_API_KEY", "re_test")
	t.Setenv("EMAIL_TO", "ops@example.com")
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "sqlite:///tmp/olx.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.ResendAPIKey != "re_test" {
		t.Errorf("Expected re_test, got %s", cfg.ResendAPIKey)
	}
	if cfg.Port != "9090" {
		t.Errorf("Expected 9090, got %s", cfg.Port)
	}
	if !cfg.EmailEnabled() {
		t.Error("Expected email to be enabled")
	}
	if cfg.CrawlInterval != time.Hour {
		t.Errorf("Expected default 1h, got %s", cfg.CrawlInterval)
	}
	if cfg.ListingTimeout != 60*time.Second || cfg.DetailTimeout != 45*time.Second {
		t.Errorf("Unexpected default timeouts: %s / %s", cfg.ListingTimeout, cfg.DetailTimeout)
	}
	if cfg.ListingSettle != 5*time.Second || cfg.DetailSettle != 3*time.Second {
		t.Errorf("Unexpected default settle delays: %s / %s", cfg.ListingSettle, cfg.DetailSettle)
	}
	if cfg.Renderer != "chromedp" {
		t.Errorf("Expected default renderer chromedp, got %s", cfg.Renderer)
	}
	if !cfg.RunOnStart || !cfg.FIPETextFallback {
		t.Error("Expected RunOnStart and FIPETextFallback to default to true")
	}
	if len(cfg.Cities) != 23 {
		t.Errorf("Expected 23 embedded cities, got %d", len(cfg.Cities))
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("RESEND_API_KEY", "")
	t.Setenv("EMAIL_TO", "")
	t.Setenv("PORT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("Expected default port 8000, got %s", cfg.Port)
	}
	if cfg.EmailEnabled() {
		t.Error("Email should be disabled without RESEND_API_KEY")
	}
	if cfg.EmailFrom != defaultEmailFrom {
		t.Errorf("Expected default sender, got %q", cfg.EmailFrom)
	}
}

func TestLoad_MultipleRecipients(t *testing.T) {
	t.Setenv("RESEND_API_KEY", "re_test")
	t.Setenv("EMAIL_TO", "ops@example.com, owner@example.com,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	want := []string{"ops@example.com", "owner@example.com"}
	if len(cfg.EmailTo) != len(want) || cfg.EmailTo[0] != want[0] || cfg.EmailTo[1] != want[1] {
		t.Errorf("EmailTo = %q, want %q", cfg.EmailTo, want)
	}
	if !cfg.EmailEnabled() {
		t.Error("Expected email to be enabled")
	}
}

func TestLoad_InvalidRecipient(t *testing.T) {
	t.Setenv("EMAIL_TO", "ops@example.com, not-an-address")

	if _, err := Load(); err == nil {
		t.Error("Load() should reject an invalid EMAIL_TO entry")
	}
}

func TestLoad_InvalidInterval(t *testing.T) {
	t.Setenv("CRAWL_INTERVAL", "not-a-duration")

	if _, err := Load(); err == nil {
		t.Error("Load() should return error for invalid CRAWL_INTERVAL")
	}
}

func TestLoad_InvalidRenderer(t *testing.T) {
	t.Setenv("RENDERER", "lynx")

	if _, err := Load(); err == nil {
		t.Error("Load() should return error for unknown RENDERER")
	}
}

func TestLoad_InvalidBool(t *testing.T) {
	t.Setenv("RUN_ON_START", "maybe")

	if _, err := Load(); err == nil {
		t.Error("Load() should return error for invalid RUN_ON_START")
	}
}

func TestLoad_CustomCities(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cities.toml")
	content := `
[[city]]
name = "Laguna"
url = "https://www.olx.com.br/laguna"

[[city]]
name = "Tubarão"
url = "https://www.olx.com.br/tubarao"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CITIES_CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if len(cfg.Cities) != 2 || cfg.Cities[0].Name != "Laguna" || cfg.Cities[1].Name != "Tubarão" {
		t.Errorf("Unexpected cities: %+v", cfg.Cities)
	}
}

func TestLoad_TimezoneFallback(t *testing.T) {
	t.Setenv("TIMEZONE", "Nowhere/Atlantis")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	_, offset := time.Date(2025, 1, 1, 12, 0, 0, 0, cfg.Location).Zone()
	if offset != -3*60*60 {
		t.Errorf("Expected UTC-3 fallback, got offset %d", offset)
	}
}

func TestParseCities_PreservesOrder(t *testing.T) {
	cities, err := ParseCities(embeddedCities)
	if err != nil {
		t.Fatal(err)
	}
	if cities[0].Name != "Criciúma" {
		t.Errorf("Expected first city Criciúma, got %s", cities[0].Name)
	}
	if last := cities[len(cities)-1]; last.Name != "Bom Jardim da Serra" {
		t.Errorf("Expected last city Bom Jardim da Serra, got %s", last.Name)
	}
}

func TestParseCities_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ``},
		{"bad toml", `[[city]`},
		{"unknown key", "[[city]]\nname = \"A\"\nurl = \"https://x\"\nstate = \"SC\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCities([]byte(tt.input)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
