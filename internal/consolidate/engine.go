// Package consolidate groups candidates that describe the same real-world
// event by spacetime proximity and merges their sources. The engine is pure:
// it takes a candidate plus the already-stored incidents for the same
// spacetime window and returns a decision; the caller performs the write.
package consolidate

import (
	"sort"
	"time"

	"github.com/osintlab/dronewatch/internal/evidence"
	"github.com/osintlab/dronewatch/internal/incident"
)

// Action is the outcome kind of a consolidation decision.
type Action string

const (
	ActionNew   Action = "new"
	ActionMerge Action = "merge"
)

// Decision is the engine's verdict for one candidate. Incident is the
// record to upsert: freshly built for ActionNew, the updated target for
// ActionMerge.
type Decision struct {
	Action   Action
	Incident incident.Consolidated
}

// Engine performs space-time deduplication and multi-source merging.
type Engine struct {
	keyer  *Keyer
	scorer *evidence.Scorer
}

// NewEngine builds an Engine.
func NewEngine(keyer *Keyer, scorer *evidence.Scorer) *Engine {
	return &Engine{keyer: keyer, scorer: scorer}
}

// Keyer exposes the engine's key derivation for partitioning.
func (e *Engine) Keyer() *Keyer {
	return e.keyer
}

// Consolidate decides whether the candidate is a new incident or a merge
// into one of the existing incidents sharing its spacetime key. The
// existing slice is the persistence layer's window query result; incidents
// with a different key are ignored. now stamps UpdatedAt on the result.
func (e *Engine) Consolidate(c *incident.Candidate, existing []incident.Consolidated, now time.Time) Decision {
	key := e.keyer.CandidateKey(c)

	target := pickTarget(existing, key)
	if target == nil {
		return Decision{Action: ActionNew, Incident: e.build(c, key, now)}
	}

	merged := e.merge(*target, c, now)
	return Decision{Action: ActionMerge, Incident: merged}
}

// Partition groups candidates by spacetime key. Candidates within one
// partition must be folded sequentially so two reports of the same bucket
// cannot race to both become new incidents; distinct partitions never touch
// the same target and may run concurrently.
func (e *Engine) Partition(candidates []*incident.Candidate) map[string][]*incident.Candidate {
	parts := make(map[string][]*incident.Candidate)
	for _, c := range candidates {
		key := e.keyer.CandidateKey(c)
		parts[key] = append(parts[key], c)
	}
	return parts
}

// pickTarget selects the merge target among existing incidents with the
// same key. Tie-break order is a contract: most recently updated first,
// then more sources, then earliest occurrence.
func pickTarget(existing []incident.Consolidated, key string) *incident.Consolidated {
	var matches []incident.Consolidated
	for _, inc := range existing {
		if inc.SpacetimeKey == key {
			matches = append(matches, inc)
		}
	}
	if len(matches) == 0 {
		return nil
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if !matches[i].UpdatedAt.Equal(matches[j].UpdatedAt) {
			return matches[i].UpdatedAt.After(matches[j].UpdatedAt)
		}
		if len(matches[i].Sources) != len(matches[j].Sources) {
			return len(matches[i].Sources) > len(matches[j].Sources)
		}
		return matches[i].OccurredAt.Before(matches[j].OccurredAt)
	})
	return &matches[0]
}

// build promotes a candidate to a brand-new consolidated incident. The ID
// is left empty; the persistence layer assigns one on insert. A candidate
// with no sources still becomes a valid incident scored UNCONFIRMED rather
// than an error; consolidation is total over degenerate input.
func (e *Engine) build(c *incident.Candidate, key string, now time.Time) incident.Consolidated {
	sources := make([]incident.Source, len(c.Sources))
	copy(sources, c.Sources)

	return incident.Consolidated{
		Title:           c.Title,
		Narrative:       c.Narrative,
		OccurredAt:      c.OccurredAt,
		Location:        *c.Location,
		LocationName:    c.LocationName,
		AssetType:       c.AssetType,
		Country:         c.Country,
		Sources:         sources,
		EvidenceScore:   e.scorer.Score(sources),
		MergedFromCount: 1,
		SpacetimeKey:    key,
		UpdatedAt:       now,
	}
}

// merge folds a candidate into the target. Sources are unioned by URL with
// first-seen-wins metadata, the longer narrative and the more descriptive
// title are kept, and the evidence score is recomputed from the merged
// source set so a stale score is never carried forward. A candidate that
// contributes no new source URL is a resubmission, and merging it is a
// no-op: the target comes back untouched, merged_from_count and UpdatedAt
// included.
func (e *Engine) merge(target incident.Consolidated, c *incident.Candidate, now time.Time) incident.Consolidated {
	seen := make(map[string]bool, len(target.Sources))
	for _, s := range target.Sources {
		seen[s.URL] = true
	}
	added := false
	for _, s := range c.Sources {
		if seen[s.URL] {
			// Same URL submitted again: the existing entry stays
			// untouched so a late low-quality duplicate cannot overwrite
			// good metadata.
			continue
		}
		seen[s.URL] = true
		target.Sources = append(target.Sources, s)
		added = true
	}
	if !added {
		return target
	}

	if len(c.Narrative) > len(target.Narrative) {
		target.Narrative = c.Narrative
	}
	target.Title = pickTitle(target.Title, c.Title)
	if target.LocationName == "" {
		target.LocationName = c.LocationName
	}

	target.EvidenceScore = e.scorer.Score(target.Sources)
	target.MergedFromCount++
	target.UpdatedAt = now
	return target
}
