// Package geo decides whether a candidate report belongs to the region of
// interest. Text is checked before coordinates: a report that merely
// mentions an out-of-scope country must be rejected even when its
// coordinates fall inside the bounding box, because geocoders routinely pin
// context mentions ("officials comment on the Ukraine strike") to an
// in-scope city.
package geo

import (
	"fmt"
	"strings"

	"github.com/osintlab/dronewatch/internal/config"
	"github.com/osintlab/dronewatch/internal/incident"
)

// Rejection reason codes, machine-readable for audit.
const (
	ReasonExcludedKeyword = "excluded_keyword"
	ReasonMissingLocation = "missing_location"
	ReasonOutOfBounds     = "out_of_bounds"
)

// ScopeFilter rejects candidates outside the configured region.
type ScopeFilter struct {
	minLat, maxLat float64
	minLon, maxLon float64
	exclude        []string // lowercased keywords
}

// NewScopeFilter builds a ScopeFilter from config.
func NewScopeFilter(cfg config.ScopeConfig) *ScopeFilter {
	exclude := make([]string, 0, len(cfg.ExcludeKeywords))
	for _, kw := range cfg.ExcludeKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			exclude = append(exclude, kw)
		}
	}
	return &ScopeFilter{
		minLat:  cfg.MinLat,
		maxLat:  cfg.MaxLat,
		minLon:  cfg.MinLon,
		maxLon:  cfg.MaxLon,
		exclude: exclude,
	}
}

// Accept reports whether the candidate is in scope.
func (f *ScopeFilter) Accept(c *incident.Candidate) bool {
	ok, _ := f.Check(c)
	return ok
}

// Check is Accept with a reason code for rejections. The order of checks is
// a correctness property, not a style choice: keywords first, then the
// missing-location rule, then bounds.
func (f *ScopeFilter) Check(c *incident.Candidate) (bool, string) {
	text := strings.ToLower(c.Text())
	for _, kw := range f.exclude {
		if strings.Contains(text, kw) {
			return false, fmt.Sprintf("%s:%s", ReasonExcludedKeyword, kw)
		}
	}

	// A candidate with no location is rejected outright. Never substitute a
	// fallback coordinate here: the old default-to-capital behavior
	// misattributed international stories and produced false clusters.
	if c.Location == nil {
		return false, ReasonMissingLocation
	}

	if !f.inBounds(*c.Location) {
		return false, ReasonOutOfBounds
	}
	return true, ""
}

// inBounds checks the inclusive bounding box.
func (f *ScopeFilter) inBounds(loc incident.Location) bool {
	return loc.Lat >= f.minLat && loc.Lat <= f.maxLat &&
		loc.Lon >= f.minLon && loc.Lon <= f.maxLon
}
