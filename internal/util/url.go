package util

import (
	"net/url"
	"strings"
)

// trackingParams are query parameters OLX and ad networks append to ad links.
var trackingParams = []string{
	"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
	"lis", "gclid", "fbclid",
}

// NormalizeAdURL forces https, drops tracking parameters and trailing slashes so
// the same ad always maps to the same link. Relative or unparsable input is
// returned unchanged.
func NormalizeAdURL(rawURL string) (string, error) {
	parsedURL, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL, err
	}
	if parsedURL.Host == "" {
		return rawURL, nil
	}

	if parsedURL.Scheme == "http" {
		parsedURL.Scheme = "https"
	}
	if len(parsedURL.Path) > 1 && strings.HasSuffix(parsedURL.Path, "/") {
		parsedURL.Path = strings.TrimSuffix(parsedURL.Path, "/")
		// Clear RawPath to ensure String() regenerates the URL path without the trailing slash
		parsedURL.RawPath = ""
	}
	queryParams := parsedURL.Query()
	for _, param := range trackingParams {
		queryParams.Del(param)
	}
	parsedURL.RawQuery = queryParams.Encode()
	parsedURL.Fragment = ""
	return parsedURL.String(), nil
}
