// Package plausibility scores candidates against satire, clickbait, and
// credibility signals. It is deliberately a deterministic heuristic, not a
// classifier: every rejection carries the list of signals that fired so the
// decision can be audited.
package plausibility

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/osintlab/dronewatch/internal/config"
	"github.com/osintlab/dronewatch/internal/incident"
)

// Signal reason codes.
const (
	ReasonSatireDomain   = "satire_domain"
	ReasonSatireKeyword  = "satire_keyword"
	ReasonClickbait      = "clickbait_pattern"
	ReasonConspiracy     = "conspiracy_phrase"
	ReasonFutureEvent    = "occurred_in_future"
	ReasonStaleEvent     = "older_than_max_age"
	ReasonLowCredibility = "low_source_credibility"
)

// Verdict is the outcome of evaluating one candidate. Reasons is never nil
// when Rejected is true.
type Verdict struct {
	Rejected   bool
	Confidence float64 // combined noise confidence in [0,1]
	Reasons    []string
}

// Filter evaluates candidates against the six configured noise signals.
type Filter struct {
	satireDomains  map[string]bool
	satireKeywords []string
	clickbait      []*regexp.Regexp
	conspiracy     []string
	maxReportAge   time.Duration
	minAvgTrust    float64
	weights        config.SignalWeights
	threshold      float64
}

// NewFilter builds a Filter from config. Invalid clickbait patterns are
// skipped rather than failing construction, matching how pattern filters
// are compiled elsewhere in the codebase.
func NewFilter(cfg config.PlausibilityConfig) *Filter {
	domains := make(map[string]bool, len(cfg.SatireDomains))
	for _, d := range cfg.SatireDomains {
		domains[strings.ToLower(d)] = true
	}

	keywords := make([]string, 0, len(cfg.SatireKeywords))
	for _, kw := range cfg.SatireKeywords {
		keywords = append(keywords, strings.ToLower(kw))
	}

	var clickbait []*regexp.Regexp
	for _, p := range cfg.ClickbaitPatterns {
		if re, err := regexp.Compile(p); err == nil {
			clickbait = append(clickbait, re)
		}
	}

	phrases := make([]string, 0, len(cfg.ConspiracyPhrases))
	for _, p := range cfg.ConspiracyPhrases {
		phrases = append(phrases, strings.ToLower(p))
	}

	return &Filter{
		satireDomains:  domains,
		satireKeywords: keywords,
		clickbait:      clickbait,
		conspiracy:     phrases,
		maxReportAge:   cfg.MaxReportAge,
		minAvgTrust:    cfg.MinAvgTrust,
		weights:        cfg.Weights,
		threshold:      cfg.RejectThreshold,
	}
}

// Evaluate scores the candidate at the given ingestion time. Each signal
// votes with its configured weight; the weighted sum is normalized by the
// total weight so the combined confidence stays in [0,1].
func (f *Filter) Evaluate(c *incident.Candidate, now time.Time) Verdict {
	text := strings.ToLower(c.Text())

	var fired float64
	var reasons []string

	if d := f.matchSatireDomain(c.Sources); d != "" {
		fired += f.weights.SatireDomain
		reasons = append(reasons, fmt.Sprintf("%s:%s", ReasonSatireDomain, d))
	}
	if kw := containsAny(text, f.satireKeywords); kw != "" {
		fired += f.weights.SatireKeyword
		reasons = append(reasons, fmt.Sprintf("%s:%s", ReasonSatireKeyword, kw))
	}
	if re := f.matchClickbait(text); re != "" {
		fired += f.weights.Clickbait
		reasons = append(reasons, fmt.Sprintf("%s:%s", ReasonClickbait, re))
	}
	if p := containsAny(text, f.conspiracy); p != "" {
		fired += f.weights.Conspiracy
		reasons = append(reasons, fmt.Sprintf("%s:%s", ReasonConspiracy, p))
	}
	if reason := f.temporalSignal(c.OccurredAt, now); reason != "" {
		fired += f.weights.Temporal
		reasons = append(reasons, reason)
	}
	if avg, low := f.lowCredibility(c.Sources); low {
		fired += f.weights.LowCredibility
		reasons = append(reasons, fmt.Sprintf("%s:avg=%.2f", ReasonLowCredibility, avg))
	}

	total := f.weights.SatireDomain + f.weights.SatireKeyword + f.weights.Clickbait +
		f.weights.Conspiracy + f.weights.Temporal + f.weights.LowCredibility

	confidence := 0.0
	if total > 0 {
		confidence = fired / total
	}

	return Verdict{
		Rejected:   confidence >= f.threshold,
		Confidence: confidence,
		Reasons:    reasons,
	}
}

// matchSatireDomain returns the first source host found on the satire
// blacklist, or "".
func (f *Filter) matchSatireDomain(sources []incident.Source) string {
	for _, s := range sources {
		host := hostOf(s.URL)
		if host == "" {
			continue
		}
		if f.satireDomains[host] {
			return host
		}
		// Also match against the registrable suffix so subdomains of a
		// blacklisted site do not slip through.
		for d := range f.satireDomains {
			if strings.HasSuffix(host, "."+d) {
				return host
			}
		}
	}
	return ""
}

// matchClickbait returns the pattern that matched, or "".
func (f *Filter) matchClickbait(text string) string {
	for _, re := range f.clickbait {
		if re.MatchString(text) {
			return re.String()
		}
	}
	return ""
}

// temporalSignal flags events claimed in the future or older than the
// configured maximum report age.
func (f *Filter) temporalSignal(occurred, now time.Time) string {
	if occurred.After(now) {
		return ReasonFutureEvent
	}
	if f.maxReportAge > 0 && now.Sub(occurred) > f.maxReportAge {
		return ReasonStaleEvent
	}
	return ""
}

// lowCredibility reports whether the average trust weight falls below the
// configured floor. No sources counts as low.
func (f *Filter) lowCredibility(sources []incident.Source) (float64, bool) {
	if len(sources) == 0 {
		return 0, true
	}
	sum := 0
	for _, s := range sources {
		sum += s.TrustWeight
	}
	avg := float64(sum) / float64(len(sources))
	return avg, avg < f.minAvgTrust
}

// containsAny returns the first needle contained in text, or "".
func containsAny(text string, needles []string) string {
	for _, n := range needles {
		if n != "" && strings.Contains(text, n) {
			return n
		}
	}
	return ""
}

// hostOf extracts the lowercased host from a URL, stripping a www prefix.
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Host)
	return strings.TrimPrefix(host, "www.")
}
