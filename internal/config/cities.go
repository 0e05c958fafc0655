package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/carwatch/olx-monitor/internal/models"
)

//go:embed cities.toml
var embeddedCities []byte

type cityFile struct {
	Cities []models.CityTarget `toml:"city"`
}

// LoadCities reads the city list from path, or the embedded default list when
// path is empty. Order in the file is the matching priority order.
func LoadCities(path string) ([]models.CityTarget, error) {
	if path == "" {
		slog.Debug("Loading embedded city list")
		return ParseCities(embeddedCities)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read city config file: %w", err)
	}
	slog.Info("Loaded city list from external file", "path", path)
	return ParseCities(data)
}

// ParseCities decodes a TOML city list.
func ParseCities(data []byte) ([]models.CityTarget, error) {
	var f cityFile
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse city config TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("unknown keys in city config: %s", strings.Join(keys, ", "))
	}
	if len(f.Cities) == 0 {
		return nil, fmt.Errorf("city config lists no cities")
	}
	for i := range f.Cities {
		f.Cities[i].Name = strings.TrimSpace(f.Cities[i].Name)
		f.Cities[i].QueryURL = strings.TrimSpace(f.Cities[i].QueryURL)
	}
	return f.Cities, nil
}
