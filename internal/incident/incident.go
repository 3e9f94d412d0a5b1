// Package incident defines the records that flow through the pipeline:
// candidate reports handed in by collectors and the consolidated incidents
// the pipeline produces.
package incident

import "time"

// AssetType categorizes the facility a report concerns.
type AssetType string

const (
	AssetAirport    AssetType = "airport"
	AssetMilitary   AssetType = "military"
	AssetHarbor     AssetType = "harbor"
	AssetPowerplant AssetType = "powerplant"
	AssetBridge     AssetType = "bridge"
	AssetOther      AssetType = "other"
)

// SourceType identifies the institutional origin of a source.
type SourceType string

const (
	SourcePolice            SourceType = "police"
	SourceMilitary          SourceType = "military"
	SourceNOTAM             SourceType = "notam"
	SourceAviationAuthority SourceType = "aviation_authority"
	SourceMedia             SourceType = "media"
	SourceSocial            SourceType = "social"
	SourceResearch          SourceType = "research"
	SourceOther             SourceType = "other"
)

// Trust weight bounds. 4 is an official authority, 1 is unverified social.
const (
	TrustMin = 1
	TrustMax = 4
)

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64
	Lon float64
}

// Source is one outlet's report backing an incident.
// URL is the identity of a source within an incident once merged.
type Source struct {
	URL         string
	SourceType  SourceType
	SourceName  string
	TrustWeight int
	Quote       string // verbatim excerpt, used for official-quote detection
	PublishedAt time.Time
}

// Candidate is an unvalidated, unmerged report from one collector run.
// Candidates are immutable once handed to the pipeline: each is consumed
// exactly once, either rejected or folded into a consolidated incident.
type Candidate struct {
	Title        string
	Narrative    string
	OccurredAt   time.Time
	Location     *Location // nil means the collector had no real coordinate
	LocationName string
	AssetType    AssetType
	Country      string
	Sources      []Source
}

// Consolidated is the durable, externally visible record after merging
// same-event candidates. Owned by the persistence layer; the pipeline only
// holds it in memory for the duration of one consolidation pass.
type Consolidated struct {
	ID           string
	Title        string
	Narrative    string
	OccurredAt   time.Time
	Location     Location
	LocationName string
	AssetType    AssetType
	Country      string
	Sources      []Source // deduplicated by URL

	// EvidenceScore always equals the scorer's output for the current
	// Sources set. It is recomputed on every merge, never carried forward.
	EvidenceScore int

	// MergedFromCount is how many raw candidates were folded in.
	MergedFromCount int

	// SpacetimeKey is the derived grouping key. Not user-visible.
	SpacetimeKey string

	UpdatedAt time.Time
}

// HasSourceURL reports whether the incident already carries a source with
// the given URL.
func (c *Consolidated) HasSourceURL(url string) bool {
	for _, s := range c.Sources {
		if s.URL == url {
			return true
		}
	}
	return false
}

// Text returns the searchable text of a candidate (title plus narrative).
func (c *Candidate) Text() string {
	if c.Narrative == "" {
		return c.Title
	}
	return c.Title + " " + c.Narrative
}
