// Package pipeline runs the per-cycle validation-and-consolidation batch:
// boundary validation, geographic and plausibility filtering in parallel,
// optional external classification with heuristic fallback, then
// consolidation partitioned by spacetime key. Filters and the engine are
// pure; all state lives behind the Persistence interface.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/osintlab/dronewatch/internal/classify"
	"github.com/osintlab/dronewatch/internal/consolidate"
	"github.com/osintlab/dronewatch/internal/geo"
	"github.com/osintlab/dronewatch/internal/incident"
	"github.com/osintlab/dronewatch/internal/logging"
	"github.com/osintlab/dronewatch/internal/plausibility"
	"github.com/osintlab/dronewatch/internal/store"
)

// Persistence is the narrow storage contract the pipeline consumes. The
// SQLite store implements it; tests use in-memory fakes.
type Persistence interface {
	FindInWindow(ctx context.Context, spacetimeKey string) ([]incident.Consolidated, error)
	Upsert(ctx context.Context, inc incident.Consolidated) (incident.Consolidated, error)
}

// MergeAuditor is optionally implemented by a Persistence to record an
// audit row per merge fold.
type MergeAuditor interface {
	RecordMerge(ctx context.Context, incidentID, candidateDigest string, at time.Time) error
}

// CycleStats is the externally observable result of one cycle.
type CycleStats struct {
	AcceptedNew        int
	AcceptedMerged     int
	RejectedValidation int
	RejectedGeographic int
	RejectedContent    int
	RejectedClassifier int
	Deferred           int
}

func (s CycleStats) String() string {
	return fmt.Sprintf("new=%d merged=%d rejected_validation=%d rejected_geo=%d rejected_content=%d rejected_classifier=%d deferred=%d",
		s.AcceptedNew, s.AcceptedMerged, s.RejectedValidation,
		s.RejectedGeographic, s.RejectedContent, s.RejectedClassifier, s.Deferred)
}

// Pipeline wires the filter stages and the consolidation engine.
type Pipeline struct {
	scope        *geo.ScopeFilter
	plausibility *plausibility.Filter
	classifier   classify.Classifier // optional: nil disables the stage
	engine       *consolidate.Engine
	persist      Persistence

	workers       int
	cycleTimeout  time.Duration
	borderlineLow float64

	metrics *Metrics // optional: nil disables metrics

	now func() time.Time // injectable clock for tests
}

// New creates a Pipeline. classifier and metrics may be nil.
func New(scope *geo.ScopeFilter, plaus *plausibility.Filter, classifier classify.Classifier,
	engine *consolidate.Engine, persist Persistence, workers int, cycleTimeout time.Duration,
	borderlineLow float64, m *Metrics) *Pipeline {
	if workers <= 0 {
		workers = 8
	}
	return &Pipeline{
		scope:         scope,
		plausibility:  plaus,
		classifier:    classifier,
		engine:        engine,
		persist:       persist,
		workers:       workers,
		cycleTimeout:  cycleTimeout,
		borderlineLow: borderlineLow,
		metrics:       m,
		now:           time.Now,
	}
}

// Run processes one batch of candidates and returns the cycle counts. The
// only fatal outcome is an unreachable store: the cycle aborts and the
// error propagates so the scheduler retries the whole cycle later.
// Candidates left unprocessed at the cycle timeout are counted as deferred;
// reprocessing them next cycle is safe.
func (p *Pipeline) Run(ctx context.Context, candidates []*incident.Candidate) (CycleStats, error) {
	started := p.now()
	if p.cycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cycleTimeout)
		defer cancel()
	}

	var stats CycleStats

	valid := p.validate(candidates, &stats)
	accepted := p.filter(ctx, valid, &stats)
	err := p.consolidateAll(ctx, accepted, &stats)

	if p.metrics != nil {
		p.metrics.ObserveCycle(stats, p.now().Sub(started))
	}
	if err != nil {
		return stats, err
	}

	logging.Info("cycle complete", "stats", stats.String())
	return stats, nil
}

// validate applies the ingestion contract. Malformed candidates are logged
// with the offending field and dropped; the cycle continues.
func (p *Pipeline) validate(candidates []*incident.Candidate, stats *CycleStats) []*incident.Candidate {
	valid := make([]*incident.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if err := incident.Validate(c); err != nil {
			var verr *incident.ValidationError
			if errors.As(err, &verr) {
				logging.Warn("candidate rejected at boundary", "field", verr.Field, "reason", verr.Reason, "title", c.Title)
			}
			stats.RejectedValidation++
			continue
		}
		valid = append(valid, c)
	}
	return valid
}

// filter runs the geographic and plausibility stages across candidates in
// parallel, bounded by the worker limit. The classifier call is the only
// slow step, so the limit is sized for it.
func (p *Pipeline) filter(ctx context.Context, candidates []*incident.Candidate, stats *CycleStats) []*incident.Candidate {
	var mu sync.Mutex
	accepted := make([]*incident.Candidate, 0, len(candidates))

	var g errgroup.Group
	g.SetLimit(p.workers)

	for _, c := range candidates {
		c := c
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				stats.Deferred++
				mu.Unlock()
				return nil
			}

			outcome := p.evaluate(ctx, c)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeAccept:
				accepted = append(accepted, c)
			case outcomeRejectGeo:
				stats.RejectedGeographic++
			case outcomeRejectContent:
				stats.RejectedContent++
			case outcomeRejectClassifier:
				stats.RejectedClassifier++
			}
			return nil
		})
	}
	_ = g.Wait()

	return accepted
}

type outcome int

const (
	outcomeAccept outcome = iota
	outcomeRejectGeo
	outcomeRejectContent
	outcomeRejectClassifier
)

// evaluate runs one candidate through scope, plausibility, and the
// borderline classifier. Classifier unavailability falls back to the
// heuristic verdict; it never rejects or blocks on its own.
func (p *Pipeline) evaluate(ctx context.Context, c *incident.Candidate) outcome {
	if ok, reason := p.scope.Check(c); !ok {
		logging.Debug("rejected by scope filter", "title", c.Title, "reason", reason)
		return outcomeRejectGeo
	}

	verdict := p.plausibility.Evaluate(c, p.now())
	if verdict.Rejected {
		logging.Debug("rejected by plausibility filter", "title", c.Title,
			"confidence", verdict.Confidence, "reasons", verdict.Reasons)
		return outcomeRejectContent
	}

	// Borderline candidates get a second opinion from the external
	// classifier when one is configured.
	if p.classifier != nil && p.classifier.Available() && verdict.Confidence >= p.borderlineLow {
		result, err := p.classifier.Classify(ctx, c.Title, c.Narrative, *c.Location)
		if err != nil {
			// Degraded mode: the heuristic verdict already accepted this
			// candidate, so it stands.
			logging.Warn("classifier unavailable, falling back to heuristic verdict",
				"title", c.Title, "err", err)
			if p.metrics != nil {
				p.metrics.ClassifierFallback()
			}
			return outcomeAccept
		}
		if !result.Accepted() {
			logging.Debug("rejected by classifier", "title", c.Title,
				"category", result.Category, "reasoning", result.Reasoning)
			return outcomeRejectClassifier
		}
	}

	return outcomeAccept
}

// consolidateAll partitions accepted candidates by spacetime key and folds
// each partition sequentially. Partitions never share a target record, so
// they run concurrently with no further coordination.
func (p *Pipeline) consolidateAll(ctx context.Context, candidates []*incident.Candidate, stats *CycleStats) error {
	parts := p.engine.Partition(candidates)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.workers)

	for key, group := range parts {
		key, group := key, group
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				stats.Deferred += len(group)
				mu.Unlock()
				return nil
			}

			newCount, mergedCount, err := p.consolidatePartition(ctx, key, group)
			mu.Lock()
			stats.AcceptedNew += newCount
			stats.AcceptedMerged += mergedCount
			mu.Unlock()
			return err
		})
	}

	return g.Wait()
}

// consolidatePartition folds one partition's candidates into a single
// running record and hands the result to the store once. A spacetime-key
// conflict on insert means a concurrent cycle created the record first; the
// winning version is re-fetched and the folds are replayed as a merge.
func (p *Pipeline) consolidatePartition(ctx context.Context, key string, group []*incident.Candidate) (newCount, mergedCount int, err error) {
	existing, err := p.persist.FindInWindow(ctx, key)
	if err != nil {
		return 0, 0, fmt.Errorf("find in window %s: %w", key, err)
	}

	result, newCount, mergedCount := p.fold(group, existing)

	stored, err := p.persist.Upsert(ctx, result)
	if errors.Is(err, store.ErrConflict) {
		// Someone else already created this incident. Re-read the winner
		// and replay the folds against it.
		logging.Info("upsert conflict, refetching and merging", "key", key)
		existing, ferr := p.persist.FindInWindow(ctx, key)
		if ferr != nil {
			return 0, 0, fmt.Errorf("refetch after conflict %s: %w", key, ferr)
		}
		result, _, replayMerged := p.fold(group, existing)
		newCount, mergedCount = 0, replayMerged
		stored, err = p.persist.Upsert(ctx, result)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("upsert %s: %w", key, err)
	}

	p.auditMerges(ctx, stored.ID, group, newCount)
	return newCount, mergedCount, nil
}

// fold runs the engine over the partition's candidates against a running
// window, returning the final record plus per-action counts.
func (p *Pipeline) fold(group []*incident.Candidate, existing []incident.Consolidated) (incident.Consolidated, int, int) {
	window := existing
	var current incident.Consolidated
	newCount, mergedCount := 0, 0

	for _, c := range group {
		decision := p.engine.Consolidate(c, window, p.now())
		current = decision.Incident
		window = []incident.Consolidated{current}

		switch decision.Action {
		case consolidate.ActionNew:
			newCount++
		case consolidate.ActionMerge:
			mergedCount++
		}
	}
	return current, newCount, mergedCount
}

// auditMerges records one audit row per folded candidate beyond the one
// that created the record, when the store supports it.
func (p *Pipeline) auditMerges(ctx context.Context, incidentID string, group []*incident.Candidate, newCount int) {
	auditor, ok := p.persist.(MergeAuditor)
	if !ok || incidentID == "" {
		return
	}
	start := newCount // skip the candidate(s) that created the record
	for i := start; i < len(group); i++ {
		if err := auditor.RecordMerge(ctx, incidentID, candidateDigest(group[i]), p.now()); err != nil {
			logging.Warn("merge audit write failed", "incident", incidentID, "err", err)
		}
	}
}

// candidateDigest is a stable short identifier for a candidate, used only
// in the merge audit trail.
func candidateDigest(c *incident.Candidate) string {
	first := ""
	if len(c.Sources) > 0 {
		first = c.Sources[0].URL
	}
	h := sha256.Sum256([]byte(c.Title + "|" + c.OccurredAt.UTC().Format(time.RFC3339) + "|" + first))
	return hex.EncodeToString(h[:8])
}
