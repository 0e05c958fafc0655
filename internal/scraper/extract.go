package scraper

import (
	"iter"
	"log/slog"
	"strings"

	"github.com/carwatch/olx-monitor/internal/models"
	"github.com/carwatch/olx-monitor/internal/util"
	"github.com/carwatch/olx-monitor/internal/validator"
)

var listingValidator = validator.New()

// Candidates decodes a listing page payload and lazily yields the entries
// whose location names one of targetCities. The sequence is single-use; a
// second range over it yields nothing.
//
// A payload that fails to decode is logged and yields no candidates.
func Candidates(payload []byte, targetCities []string) iter.Seq[models.CandidateAd] {
	props, err := decodePageProps[listingPageProps](payload)
	if err != nil {
		slog.Warn("Failed to decode listing payload", "error", err)
		return emptySeq
	}

	consumed := false
	return func(yield func(models.CandidateAd) bool) {
		if consumed {
			return
		}
		consumed = true

		for _, entry := range props.Ads {
			raw := entry.raw()
			if err := listingValidator.ValidateStruct(raw); err != nil {
				slog.Debug("Skipping incomplete listing", "id", raw.ExternalID, "error", err)
				continue
			}
			city, ok := MatchCity(raw.LocationText, targetCities)
			if !ok {
				continue
			}
			if !yield(models.CandidateAd{RawListing: raw, MatchedCity: city}) {
				return
			}
		}
	}
}

// MatchCity returns the first target city contained, case-insensitively, in
// location.
func MatchCity(location string, targetCities []string) (string, bool) {
	loc := strings.ToLower(location)
	for _, city := range targetCities {
		if city == "" {
			continue
		}
		if strings.Contains(loc, strings.ToLower(city)) {
			return city, true
		}
	}
	return "", false
}

func (e listingEntry) raw() models.RawListing {
	return models.RawListing{
		ExternalID:   strings.TrimSpace(string(e.ListID)),
		Title:        strings.TrimSpace(string(e.Title)),
		PriceText:    orNotAvailable(string(e.Price)),
		URL:          adURL(string(e.URL)),
		LocationText: orNotAvailable(string(e.Location)),
	}
}

// adURL normalizes link; an unparsable link is kept as-is.
func adURL(link string) string {
	normalized, err := util.NormalizeAdURL(link)
	if err != nil {
		return strings.TrimSpace(link)
	}
	return normalized
}

func orNotAvailable(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "N/A"
	}
	return s
}
