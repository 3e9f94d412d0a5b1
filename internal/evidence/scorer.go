// Package evidence derives the 1..4 confidence label attached to a
// consolidated incident. The score is a pure function of the current source
// set: same sources in, same score out, regardless of call order or prior
// state. It is recomputed after every merge and never stored-then-trusted.
package evidence

import (
	"strings"

	"github.com/osintlab/dronewatch/internal/incident"
)

// Score levels.
const (
	Unconfirmed = 1 // all sources low trust
	Reported    = 2 // at least one source with decent trust
	Verified    = 3 // two decent sources, or one decent source quoting an authority
	Official    = 4 // an official/authoritative source
)

// Scorer scores source sets. Quote patterns are injected configuration; all
// corpus languages must be represented there, not just English.
type Scorer struct {
	quotePatterns []string // lowercased authority-speech phrases, all languages flattened
}

// NewScorer builds a Scorer from per-language quote pattern lists.
func NewScorer(quotePatterns map[string][]string) *Scorer {
	var flat []string
	for _, patterns := range quotePatterns {
		for _, p := range patterns {
			flat = append(flat, strings.ToLower(p))
		}
	}
	return &Scorer{quotePatterns: flat}
}

// Score evaluates sources against the priority ladder, first match wins:
//
//	4 OFFICIAL:    any source with trust weight 4
//	3 VERIFIED:    two or more sources with trust weight >= 2, or a single
//	               such source whose quote matches an official-quote pattern
//	2 REPORTED:    at least one source with trust weight >= 2
//	1 UNCONFIRMED: otherwise
//
// An empty source set is an upstream invariant violation but still returns
// 1 rather than erroring; the function is total.
func (s *Scorer) Score(sources []incident.Source) int {
	decent := 0
	decentWithQuote := false

	for _, src := range sources {
		if src.TrustWeight >= 4 {
			return Official
		}
		if src.TrustWeight >= 2 {
			decent++
			if s.hasOfficialQuote(src.Quote) {
				decentWithQuote = true
			}
		}
	}

	if decent >= 2 || (decent >= 1 && decentWithQuote) {
		return Verified
	}
	if decent >= 1 {
		return Reported
	}
	return Unconfirmed
}

// hasOfficialQuote reports whether the quote contains an authority-speech
// phrase in any configured language.
func (s *Scorer) hasOfficialQuote(quote string) bool {
	if quote == "" {
		return false
	}
	lower := strings.ToLower(quote)
	for _, p := range s.quotePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
