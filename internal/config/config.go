// Package config holds the versioned tuning knobs for the pipeline:
// geographic scope, noise-signal keyword lists, scoring thresholds, and
// consolidation grid sizes. Everything the filters match against lives here
// rather than in the algorithms, so lists can be tuned and tested
// independently of the logic.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the persistent application configuration.
type Config struct {
	Scope         ScopeConfig         `yaml:"scope"`
	Plausibility  PlausibilityConfig  `yaml:"plausibility"`
	Evidence      EvidenceConfig      `yaml:"evidence"`
	Consolidation ConsolidationConfig `yaml:"consolidation"`
	Classifier    ClassifierConfig    `yaml:"classifier"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Store         StoreConfig         `yaml:"store"`
	Feeds         []FeedConfig        `yaml:"feeds"`
}

// ScopeConfig configures the geographic scope filter.
type ScopeConfig struct {
	// Inclusive bounding box of the region of interest.
	MinLat float64 `yaml:"min_lat"`
	MaxLat float64 `yaml:"max_lat"`
	MinLon float64 `yaml:"min_lon"`
	MaxLon float64 `yaml:"max_lon"`

	// ExcludeKeywords are out-of-scope place names and their adjectival
	// forms. A match anywhere in title+narrative rejects the candidate
	// before coordinates are even looked at.
	ExcludeKeywords []string `yaml:"exclude_keywords"`
}

// PlausibilityConfig configures the content plausibility filter.
type PlausibilityConfig struct {
	SatireDomains     []string `yaml:"satire_domains"`
	SatireKeywords    []string `yaml:"satire_keywords"`
	ClickbaitPatterns []string `yaml:"clickbait_patterns"`
	ConspiracyPhrases []string `yaml:"conspiracy_phrases"`

	// MaxReportAge is how far in the past occurred_at may lie relative to
	// ingestion time before the report counts as temporally implausible.
	MaxReportAge time.Duration `yaml:"max_report_age"`

	// MinAvgTrust is the aggregate credibility floor; a mean source trust
	// weight below it contributes the low-credibility signal.
	MinAvgTrust float64 `yaml:"min_avg_trust"`

	// Weights per signal, normalized at evaluation time.
	Weights SignalWeights `yaml:"weights"`

	// RejectThreshold is the combined confidence at or above which a
	// candidate is rejected.
	RejectThreshold float64 `yaml:"reject_threshold"`
}

// SignalWeights are the per-signal votes of the plausibility filter.
type SignalWeights struct {
	SatireDomain   float64 `yaml:"satire_domain"`
	SatireKeyword  float64 `yaml:"satire_keyword"`
	Clickbait      float64 `yaml:"clickbait"`
	Conspiracy     float64 `yaml:"conspiracy"`
	Temporal       float64 `yaml:"temporal"`
	LowCredibility float64 `yaml:"low_credibility"`
}

// EvidenceConfig configures the evidence scorer.
type EvidenceConfig struct {
	// QuotePatterns are authority-speech phrases per language code. A
	// source quote containing one of these upgrades a single decent source
	// to VERIFIED.
	QuotePatterns map[string][]string `yaml:"quote_patterns"`
}

// ConsolidationConfig configures spacetime bucketing.
type ConsolidationConfig struct {
	// GridPrecision is the number of decimal places lat/lon are rounded to
	// for the grid cell. 2 decimals is roughly a 1.1 km cell: coarse enough
	// to absorb geocoding noise, fine enough to keep nearby facilities
	// apart.
	GridPrecision int `yaml:"grid_precision"`

	// TimeBucket is the width of the occurred_at bucket.
	TimeBucket time.Duration `yaml:"time_bucket"`
}

// ClassifierConfig configures the optional external text classifier.
type ClassifierConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`

	// Borderline band: candidates whose plausibility confidence falls in
	// [BorderlineLow, reject_threshold) are sent to the classifier.
	BorderlineLow float64 `yaml:"borderline_low"`
}

// PipelineConfig configures the batch cycle.
type PipelineConfig struct {
	Interval     time.Duration `yaml:"interval"`
	CycleTimeout time.Duration `yaml:"cycle_timeout"`
	Workers      int           `yaml:"workers"`
	MetricsAddr  string        `yaml:"metrics_addr"`
}

// StoreConfig configures persistence.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// FeedConfig describes one RSS source for the reference collector.
type FeedConfig struct {
	Name        string `yaml:"name"`
	URL         string `yaml:"url"`
	SourceType  string `yaml:"source_type"`
	TrustWeight int    `yaml:"trust_weight"`
	Country     string `yaml:"country"`
}

// Default returns sensible defaults covering the Danish region of interest.
func Default() *Config {
	return &Config{
		Scope: ScopeConfig{
			MinLat: 54.5,
			MaxLat: 57.8,
			MinLon: 8.0,
			MaxLon: 15.2,
			ExcludeKeywords: []string{
				"ukraine", "ukrainian", "ukrainsk",
				"russia", "russian", "rusland", "russisk",
				"belarus", "belarusian",
				"poland", "polish", "polen", "polsk",
				"germany", "german", "tyskland", "tysk",
				"gaza", "israel", "israeli",
				"moldova", "moldovan",
				"lithuania", "lithuanian", "litauen",
				"latvia", "latvian", "letland",
				"estonia", "estonian", "estland",
			},
		},
		Plausibility: PlausibilityConfig{
			SatireDomains: []string{
				"theonion.com",
				"babylonbee.com",
				"rokokoposten.dk",
				"der-postillon.com",
				"newsthump.com",
			},
			SatireKeywords: []string{
				"satire", "parody", "spoof", "satirisk",
			},
			ClickbaitPatterns: []string{
				`(?i)you won'?t believe`,
				`(?i)what happened next`,
				`(?i)will (shock|amaze|stun) you`,
				`(?i)number \d+ will`,
				`(?i)doctors hate`,
				`(?i)\bshocking truth\b`,
				`(?i)\bmind[- ]blowing\b`,
			},
			ConspiracyPhrases: []string{
				"false flag", "cover-up", "cover up", "deep state",
				"they don't want you to know", "wake up sheeple",
				"crisis actor", "psyop",
			},
			MaxReportAge: 30 * 24 * time.Hour,
			MinAvgTrust:  1.5,
			Weights: SignalWeights{
				SatireDomain:   1.0,
				SatireKeyword:  0.6,
				Clickbait:      0.5,
				Conspiracy:     0.6,
				Temporal:       0.7,
				LowCredibility: 0.4,
			},
			RejectThreshold: 0.5,
		},
		Evidence: EvidenceConfig{
			QuotePatterns: map[string][]string{
				"en": {
					"police confirm", "police confirmed", "according to police",
					"authorities state", "authorities confirmed",
					"military confirms", "the ministry confirmed",
				},
				"da": {
					"politiet bekræfter", "ifølge politiet",
					"myndighederne oplyser", "forsvaret bekræfter",
				},
				"de": {
					"polizei bestätigt", "laut polizei",
					"behörden bestätigen",
				},
				"sv": {
					"polisen bekräftar", "enligt polisen",
					"myndigheterna uppger",
				},
				"no": {
					"politiet bekrefter", "ifølge politiet",
					"forsvaret bekrefter",
				},
			},
		},
		Consolidation: ConsolidationConfig{
			GridPrecision: 2,
			TimeBucket:    6 * time.Hour,
		},
		Classifier: ClassifierConfig{
			Timeout:       15 * time.Second,
			BorderlineLow: 0.25,
		},
		Pipeline: PipelineConfig{
			Interval:     10 * time.Minute,
			CycleTimeout: 5 * time.Minute,
			Workers:      8,
			MetricsAddr:  ":9313",
		},
		Store: StoreConfig{
			Path: DefaultStorePath(),
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dronewatch", "config.yaml")
}

// DefaultStorePath returns the default database location.
func DefaultStorePath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dronewatch", "incidents.db")
}

// Load reads config from path. A missing file yields defaults; a malformed
// file is an error rather than a silent fallback, since a typo in a keyword
// list must not widen the scope unnoticed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	return cfg, nil
}

// Save writes config to path, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// applyEnv fills in secrets from the environment.
func (c *Config) applyEnv() {
	if key := os.Getenv("DRONEWATCH_CLASSIFIER_KEY"); key != "" {
		c.Classifier.APIKey = key
	}
	if ep := os.Getenv("DRONEWATCH_CLASSIFIER_ENDPOINT"); ep != "" {
		c.Classifier.Endpoint = ep
	}
}
