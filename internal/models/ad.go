package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// NotInformed is the reference price shown when no FIPE price could be found.
const NotInformed = "não informado"

// CityTarget is one configured city and the listing URL that covers it.
type CityTarget struct {
	Name     string `toml:"name" validate:"required"`
	QueryURL string `toml:"url" validate:"required,url"`
}

// Region is a unique listing URL together with every city it should match.
type Region struct {
	QueryURL     string
	TargetCities []string
}

// ListingID is the upstream ad identifier. OLX emits it as a JSON number,
// older payloads as a string; both decode to the same value.
type ListingID string

func (id *ListingID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ListingID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ListingID(n.String())
	return nil
}

// RawListing is one entry of a region page before it is matched to a city.
type RawListing struct {
	ExternalID   string `validate:"required"`
	Title        string `validate:"required"`
	PriceText    string
	URL          string `validate:"required"`
	LocationText string
}

// CandidateAd is a RawListing whose location matched one of the region's cities.
type CandidateAd struct {
	RawListing
	MatchedCity string
}

// EnrichedAd is a candidate plus its reference (FIPE) price.
type EnrichedAd struct {
	CandidateAd
	ReferencePrice string
}

// Record converts the ad into its archived form.
func (a EnrichedAd) Record(recordedAt time.Time) AdRecord {
	return AdRecord{
		ID:             a.ExternalID,
		Title:          a.Title,
		Price:          a.PriceText,
		URL:            a.URL,
		Location:       a.LocationText,
		City:           a.MatchedCity,
		ReferencePrice: a.ReferencePrice,
		RecordedAt:     recordedAt,
	}
}

// AdRecord is an accumulated ad as stored and served by /ads.
// JSON names match the archive file written by earlier releases.
type AdRecord struct {
	ID             string    `json:"id" firestore:"id"`
	Title          string    `json:"title" firestore:"title"`
	Price          string    `json:"price" firestore:"price"`
	URL            string    `json:"url" firestore:"url"`
	Location       string    `json:"location" firestore:"location"`
	City           string    `json:"city" firestore:"city"`
	ReferencePrice string    `json:"fipe" firestore:"fipe"`
	RecordedAt     time.Time `json:"recorded_at" firestore:"recordedAt"`
}
