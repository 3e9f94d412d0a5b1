package incident

import "fmt"

// ValidationError describes a malformed candidate. Fatal for that candidate
// only; the cycle continues with the rest of the batch.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid candidate: %s: %s", e.Field, e.Reason)
}

// Validate checks the ingestion contract for a candidate. Required fields:
// title, occurred_at, location, at least one source. A missing location is a
// hard rejection here, never a fallback-coordinate opportunity: the historic
// behavior of defaulting unknown locations to a capital-city coordinate
// produced false clusters, so synthetic coordinates must not pass this
// boundary.
func Validate(c *Candidate) error {
	if c.Title == "" {
		return &ValidationError{Field: "title", Reason: "empty"}
	}
	if c.OccurredAt.IsZero() {
		return &ValidationError{Field: "occurred_at", Reason: "missing"}
	}
	if c.Location == nil {
		return &ValidationError{Field: "location", Reason: "missing"}
	}
	if c.Location.Lat < -90 || c.Location.Lat > 90 {
		return &ValidationError{Field: "location.lat", Reason: fmt.Sprintf("out of range: %v", c.Location.Lat)}
	}
	if c.Location.Lon < -180 || c.Location.Lon > 180 {
		return &ValidationError{Field: "location.lon", Reason: fmt.Sprintf("out of range: %v", c.Location.Lon)}
	}
	if len(c.Sources) == 0 {
		return &ValidationError{Field: "sources", Reason: "empty"}
	}
	for i, s := range c.Sources {
		if s.URL == "" {
			return &ValidationError{Field: fmt.Sprintf("sources[%d].url", i), Reason: "empty"}
		}
		if s.TrustWeight < TrustMin || s.TrustWeight > TrustMax {
			return &ValidationError{Field: fmt.Sprintf("sources[%d].trust_weight", i), Reason: fmt.Sprintf("out of range: %d", s.TrustWeight)}
		}
	}
	return nil
}
