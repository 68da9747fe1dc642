package origin

import (
	"fmt"
	"net/url"
)

// hostOf extracts the hostname from an absolute URL, e.g.
// "http://host:1985/api/v1/streams" -> "host".
func hostOf(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid origin URL: %w", err)
	}
	if parsed.Hostname() == "" {
		return "", fmt.Errorf("origin URL %q has no host", rawURL)
	}
	return parsed.Hostname(), nil
}
