package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/osintlab/dronewatch/internal/incident"
)

// HTTPClassifier calls a remote classification endpoint.
type HTTPClassifier struct {
	endpoint string
	apiKey   string
	client   *http.Client
	limiter  *rate.Limiter
}

// classifyRequest is the wire request body.
type classifyRequest struct {
	Title     string  `json:"title"`
	Narrative string  `json:"narrative"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

// NewHTTPClassifier creates a classifier client. The timeout bounds each
// attempt, not the whole call.
func NewHTTPClassifier(endpoint, apiKey string, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClassifier{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Every(500*time.Millisecond), 2),
	}
}

// Available returns true if an endpoint is configured.
func (c *HTTPClassifier) Available() bool {
	return c.endpoint != ""
}

// Classify sends the text to the remote endpoint. One retry on transient
// failure (network error, 429, 5xx); anything beyond that surfaces as
// ErrUnavailable so the caller falls back to the heuristic verdict.
func (c *HTTPClassifier) Classify(ctx context.Context, title, narrative string, loc incident.Location) (Classification, error) {
	reqBody, err := json.Marshal(classifyRequest{
		Title:     title,
		Narrative: narrative,
		Lat:       loc.Lat,
		Lon:       loc.Lon,
	})
	if err != nil {
		return Classification{}, fmt.Errorf("classify: marshal request: %w", err)
	}

	const maxAttempts = 2 // initial call plus one retry
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Classification{}, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(time.Second):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return Classification{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		result, retryable, err := c.attempt(ctx, reqBody)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return Classification{}, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// attempt performs one HTTP round trip. The second return value reports
// whether the failure is worth retrying.
func (c *HTTPClassifier) attempt(ctx context.Context, reqBody []byte) (Classification, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return Classification{}, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Classification{}, false, ctx.Err()
		}
		return Classification{}, true, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Classification{}, true, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var result Classification
		if err := json.Unmarshal(body, &result); err != nil {
			return Classification{}, true, fmt.Errorf("parse response: %w", err)
		}
		return result, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Classification{}, true, fmt.Errorf("status %d", resp.StatusCode)
	default:
		// 4xx other than 429 will not improve on retry.
		return Classification{}, false, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
