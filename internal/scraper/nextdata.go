package scraper

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/carwatch/olx-monitor/internal/models"
)

// ErrNoPayload is returned when a page carries no __NEXT_DATA__ script.
var ErrNoPayload = errors.New("embedded page data not found")

const nextDataSelector = "script#__NEXT_DATA__"

// nextData is the envelope Next.js embeds in every OLX page.
type nextData[P any] struct {
	Props struct {
		PageProps P `json:"pageProps"`
	} `json:"props"`
}

type listingPageProps struct {
	Ads []listingEntry `json:"ads"`
}

type listingEntry struct {
	ListID   models.ListingID `json:"listId"`
	Title    textValue        `json:"title"`
	Price    textValue        `json:"price"`
	URL      textValue        `json:"url"`
	Location textValue        `json:"location"`
}

type detailPageProps struct {
	Ad struct {
		PriceReference struct {
			FipePrice *float64 `json:"fipePrice"`
		} `json:"priceReference"`
	} `json:"ad"`
}

// textValue accepts a JSON string, number or null. OLX occasionally ships
// numeric prices, which would otherwise fail the whole page.
type textValue string

func (t *textValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*t = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = textValue(strings.TrimSpace(s))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*t = textValue(n.String())
	}
	return nil
}

// NextData returns the raw JSON of the page's __NEXT_DATA__ script.
func NextData(html string) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return nextDataFromDoc(doc)
}

func nextDataFromDoc(doc *goquery.Document) ([]byte, error) {
	script := doc.Find(nextDataSelector).First()
	if script.Length() == 0 {
		return nil, ErrNoPayload
	}
	text := strings.TrimSpace(script.Text())
	if text == "" {
		return nil, ErrNoPayload
	}
	return []byte(text), nil
}

func decodePageProps[P any](payload []byte) (P, error) {
	var envelope nextData[P]
	err := json.Unmarshal(payload, &envelope)
	return envelope.Props.PageProps, err
}
