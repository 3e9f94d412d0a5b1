package consolidate

import (
	"fmt"
	"math"
	"time"

	"github.com/osintlab/dronewatch/internal/incident"
)

// Keyer derives spacetime grouping keys. Coordinates are rounded onto a
// coarse grid and occurred_at is bucketed, so the same physical facility
// collapses to one key even with geocoding noise and clock slop across
// outlets. Country and asset type are part of the key to stop cross-border
// and cross-category over-merging. The title is deliberately excluded:
// outlets headline the same event differently, and keying on title text
// would split genuine duplicates.
type Keyer struct {
	gridPrecision int
	timeBucket    time.Duration
}

// NewKeyer builds a Keyer. A non-positive bucket defaults to six hours and
// a negative precision to two decimals, so a zero-value config cannot
// produce a degenerate key space.
func NewKeyer(gridPrecision int, timeBucket time.Duration) *Keyer {
	if timeBucket <= 0 {
		timeBucket = 6 * time.Hour
	}
	if gridPrecision < 0 {
		gridPrecision = 2
	}
	return &Keyer{gridPrecision: gridPrecision, timeBucket: timeBucket}
}

// Key derives the spacetime key for a location, time, country, and asset
// type.
func (k *Keyer) Key(loc incident.Location, occurred time.Time, country string, asset incident.AssetType) string {
	lat := roundTo(loc.Lat, k.gridPrecision)
	lon := roundTo(loc.Lon, k.gridPrecision)
	bucket := occurred.UTC().Unix() / int64(k.timeBucket.Seconds())
	return fmt.Sprintf("%s|%s|%.*f|%.*f|%d", country, asset, k.gridPrecision, lat, k.gridPrecision, lon, bucket)
}

// CandidateKey derives the key for a candidate. The candidate must have a
// location; callers enforce that at the validation boundary.
func (k *Keyer) CandidateKey(c *incident.Candidate) string {
	return k.Key(*c.Location, c.OccurredAt, c.Country, c.AssetType)
}

// roundTo rounds v to the given number of decimal places.
func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
