package scraper

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/carwatch/olx-monitor/internal/util"
)

// minReferencePrice filters placeholder FIPE values OLX sometimes embeds.
const minReferencePrice = 1000

const fipeLabel = "PREÇO FIPE"

var fipePriceRegex = regexp.MustCompile(`R\$[\s\x{00a0}]*[0-9.]+`)

// PriceStrategy extracts a formatted reference price from a parsed detail page.
type PriceStrategy func(doc *goquery.Document) (string, bool)

// DefaultStrategies returns the structured lookup, followed by the label-text
// lookup when textFallback is set.
func DefaultStrategies(textFallback bool) []PriceStrategy {
	strategies := []PriceStrategy{StructuredPriceStrategy}
	if textFallback {
		strategies = append(strategies, TextPriceStrategy)
	}
	return strategies
}

// ReferencePriceFromPage runs strategies in order and returns the first hit.
// Without strategies it uses DefaultStrategies(true).
func ReferencePriceFromPage(html string, strategies ...PriceStrategy) (string, bool) {
	if len(strategies) == 0 {
		strategies = DefaultStrategies(true)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}
	for _, find := range strategies {
		if price, ok := find(doc); ok {
			return price, true
		}
	}
	return "", false
}

// StructuredPriceStrategy reads ad.priceReference.fipePrice from the page's
// embedded data. Values at or below minReferencePrice are ignored.
func StructuredPriceStrategy(doc *goquery.Document) (string, bool) {
	payload, err := nextDataFromDoc(doc)
	if err != nil {
		return "", false
	}
	props, err := decodePageProps[detailPageProps](payload)
	if err != nil {
		return "", false
	}
	fipe := props.Ad.PriceReference.FipePrice
	if fipe == nil || *fipe <= minReferencePrice {
		return "", false
	}
	return util.FormatBRL(*fipe), true
}

// TextPriceStrategy finds an element whose text is exactly the FIPE label
// and takes the first "R$ ..." amount from its parent's text. It depends on
// OLX's visible markup and is the first thing to break on a redesign.
func TextPriceStrategy(doc *goquery.Document) (string, bool) {
	var price string
	doc.Find("span, p, div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.TrimSpace(s.Text()) != fipeLabel {
			return true
		}
		parent := s.Parent()
		if parent.Length() == 0 {
			return true
		}
		if m := fipePriceRegex.FindString(parent.Text()); m != "" {
			price = m
			return false
		}
		return true
	})
	return price, price != ""
}
