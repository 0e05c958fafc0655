package util

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatBRL renders v as whole reais with Brazilian digit grouping,
// e.g. 45000 -> "R$ 45.000".
func FormatBRL(v float64) string {
	p := message.NewPrinter(language.BrazilianPortuguese)
	return p.Sprintf("R$ %d", int64(math.RoundToEven(v)))
}
