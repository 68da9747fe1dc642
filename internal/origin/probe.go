// Package origin asks the external media origin (SRS) whether a given
// stream key is currently being ingested.
package origin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/opentracing/opentracing-go"
)

// Prober is satisfied by *Probe; callers depend on this interface so tests
// can substitute a fake.
type Prober interface {
	IsLive(ctx context.Context, streamKey string) bool
	WaitUntilLive(ctx context.Context, streamKey string, deadline time.Time) bool
}

// streamsResponse is the subset of SRS's stream-listing payload this probe
// cares about: an array of objects each carrying a "name" field.
type streamsResponse struct {
	Streams []struct {
		Name string `json:"name"`
	} `json:"streams"`
}

// Probe polls an SRS-compatible stream-listing API over HTTP.
type Probe struct {
	apiURL       string
	client       *http.Client
	pollInterval time.Duration
}

func New(apiURL string) *Probe {
	return &Probe{
		apiURL:       apiURL,
		client:       &http.Client{Timeout: 2 * time.Second},
		pollInterval: 500 * time.Millisecond,
	}
}

// IsLive performs one GET against the origin's stream-listing endpoint and
// scans the response for an entry named streamKey. Network errors,
// malformed JSON, and non-2xx responses all resolve to false rather than an
// error — the caller polls.
func (p *Probe) IsLive(ctx context.Context, streamKey string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL, nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}

	var parsed streamsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return false
	}

	for _, s := range parsed.Streams {
		if s.Name == streamKey {
			return true
		}
	}
	return false
}

// WaitUntilLive polls IsLive every pollInterval until it returns true or
// deadline passes, returning whichever happened first.
func (p *Probe) WaitUntilLive(ctx context.Context, streamKey string, deadline time.Time) bool {
	span, ctx := opentracing.StartSpanFromContext(ctx, "origin.wait_until_live")
	defer span.Finish()
	span.SetTag("stream_key", streamKey)

	if p.IsLive(ctx, streamKey) {
		span.SetTag("live", true)
		return true
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		if time.Now().After(deadline) {
			span.SetTag("live", false)
			return false
		}

		select {
		case <-ctx.Done():
			span.SetTag("live", false)
			return false
		case <-ticker.C:
			if p.IsLive(ctx, streamKey) {
				span.SetTag("live", true)
				return true
			}
		}
	}
}

// Host returns the hostname of the configured API URL, without any port:
// the same host the driver pushes RTMP to on port 1935.
func Host(apiURL string) (string, error) {
	return hostOf(apiURL)
}
