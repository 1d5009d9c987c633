package health

import (
	"context"
	"net/http"
	"time"
)

// Probe reports whether the thing being polled is ready.
type Probe func(ctx context.Context) bool

// Poll runs probe at most attempts times, waiting interval between tries,
// and returns true on the first success. Cancelling ctx ends the poll early
// with false.
func Poll(ctx context.Context, probe Probe, interval time.Duration, attempts int) bool {
	for i := 0; i < attempts; i++ {
		if probe(ctx) {
			return true
		}
		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
	return false
}

// HTTPProbe returns a Probe that GETs url. Any response below 500 counts
// as ready: a dev server answering 404 for "/" is still serving.
func HTTPProbe(client *http.Client, url string) Probe {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode < 500
	}
}
