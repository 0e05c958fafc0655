package util

import (
	"regexp"
	"strconv"
)

var nonNumericRegex = regexp.MustCompile(`[^\d]`)

func CleanNumericString(s string) string {
	return nonNumericRegex.ReplaceAllString(s, "")
}

// ParsePrice keeps only the digits of a price label ("R$ 45.990" -> 45990).
// Labels without digits parse as 0.
func ParsePrice(s string) int64 {
	digits := CleanNumericString(s)
	if digits == "" {
		return 0
	}
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
