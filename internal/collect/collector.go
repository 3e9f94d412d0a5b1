// Package collect provides the reference RSS collector. It turns feed
// entries into candidate incidents for the pipeline, mapping only what a
// feed actually carries: a missing coordinate stays missing and is rejected
// downstream, never substituted with a default.
package collect

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/osintlab/dronewatch/internal/config"
	"github.com/osintlab/dronewatch/internal/incident"
	"github.com/osintlab/dronewatch/internal/logging"
)

// maxConcurrentFetches limits parallel feed fetches.
const maxConcurrentFetches = 5

// fetchTimeout bounds each individual feed fetch.
const fetchTimeout = 30 * time.Second

// Collector fetches configured feeds and emits candidate incidents.
type Collector struct {
	feeds  []config.FeedConfig
	client *http.Client
}

// NewCollector creates a Collector for the configured feeds.
func NewCollector(feeds []config.FeedConfig) *Collector {
	return &Collector{
		feeds:  feeds,
		client: &http.Client{Timeout: fetchTimeout},
	}
}

// CollectAll fetches every feed in parallel and returns the combined
// candidates. Per-feed failures are logged and skipped; a bad feed never
// fails the batch.
func (c *Collector) CollectAll(ctx context.Context) []*incident.Candidate {
	var g errgroup.Group
	g.SetLimit(maxConcurrentFetches)

	results := make([][]*incident.Candidate, len(c.feeds))
	for i, feed := range c.feeds {
		i, feed := i, feed
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			candidates, err := c.fetchFeed(ctx, feed)
			if err != nil {
				logging.Warn("feed fetch failed", "feed", feed.Name, "err", err)
				return nil // errors reported per-feed, never fail the group
			}
			results[i] = candidates
			return nil
		})
	}
	_ = g.Wait()

	var all []*incident.Candidate
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

// fetchFeed retrieves and converts one feed.
func (c *Collector) fetchFeed(ctx context.Context, feed config.FeedConfig) ([]*incident.Candidate, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "dronewatch/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	parser := gofeed.NewParser()
	parsed, err := parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	now := time.Now()
	candidates := make([]*incident.Candidate, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		candidates = append(candidates, convertFeedItem(item, feed, now))
	}
	return candidates, nil
}

// convertFeedItem maps one feed entry to a candidate incident.
func convertFeedItem(item *gofeed.Item, feed config.FeedConfig, fetchTime time.Time) *incident.Candidate {
	// Best-effort event time: published time, falling back to report time.
	occurred := fetchTime
	if item.PublishedParsed != nil {
		occurred = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		occurred = *item.UpdatedParsed
	}

	narrative := item.Description
	if narrative == "" {
		narrative = item.Content
	}

	return &incident.Candidate{
		Title:      item.Title,
		Narrative:  narrative,
		OccurredAt: occurred,
		Location:   geoPoint(item),
		AssetType:  guessAssetType(item.Title + " " + narrative),
		Country:    feed.Country,
		Sources: []incident.Source{
			{
				URL:         item.Link,
				SourceType:  incident.SourceType(feed.SourceType),
				SourceName:  feed.Name,
				TrustWeight: feed.TrustWeight,
				PublishedAt: occurred,
			},
		},
	}
}

// geoPoint extracts a georss point extension if the feed provides one.
// Returns nil when absent: inventing a coordinate here would poison the
// consolidation grid downstream.
func geoPoint(item *gofeed.Item) *incident.Location {
	ext, ok := item.Extensions["georss"]
	if !ok {
		return nil
	}
	points, ok := ext["point"]
	if !ok || len(points) == 0 {
		return nil
	}
	fields := strings.Fields(points[0].Value)
	if len(fields) != 2 {
		return nil
	}
	lat, err1 := strconv.ParseFloat(fields[0], 64)
	lon, err2 := strconv.ParseFloat(fields[1], 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	return &incident.Location{Lat: lat, Lon: lon}
}

// assetKeywords maps facility keywords (English and Danish) to asset types.
var assetKeywords = []struct {
	words []string
	asset incident.AssetType
}{
	{[]string{"airport", "airfield", "lufthavn", "runway"}, incident.AssetAirport},
	{[]string{"military", "air base", "barracks", "kaserne", "flyvestation"}, incident.AssetMilitary},
	{[]string{"harbor", "harbour", "port of", "havn", "ferry terminal"}, incident.AssetHarbor},
	{[]string{"power plant", "powerplant", "kraftværk", "substation"}, incident.AssetPowerplant},
	{[]string{"bridge", "broen", "storebælt"}, incident.AssetBridge},
}

// guessAssetType picks the asset type from facility keywords in the text.
func guessAssetType(text string) incident.AssetType {
	lower := strings.ToLower(text)
	for _, entry := range assetKeywords {
		for _, w := range entry.words {
			if strings.Contains(lower, w) {
				return entry.asset
			}
		}
	}
	return incident.AssetOther
}
