package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultCoversAllSections(t *testing.T) {
	cfg := Default()

	if cfg.Scope.MinLat >= cfg.Scope.MaxLat || cfg.Scope.MinLon >= cfg.Scope.MaxLon {
		t.Errorf("degenerate bounding box: %+v", cfg.Scope)
	}
	if len(cfg.Scope.ExcludeKeywords) == 0 {
		t.Error("expected default exclude keywords")
	}
	if len(cfg.Plausibility.SatireDomains) == 0 || len(cfg.Plausibility.ClickbaitPatterns) == 0 {
		t.Error("expected default noise-signal lists")
	}
	if cfg.Plausibility.RejectThreshold <= 0 || cfg.Plausibility.RejectThreshold > 1 {
		t.Errorf("reject threshold out of range: %f", cfg.Plausibility.RejectThreshold)
	}
	for _, lang := range []string{"en", "da", "de", "sv", "no"} {
		if len(cfg.Evidence.QuotePatterns[lang]) == 0 {
			t.Errorf("expected quote patterns for %q", lang)
		}
	}
	if cfg.Consolidation.GridPrecision != 2 || cfg.Consolidation.TimeBucket != 6*time.Hour {
		t.Errorf("unexpected consolidation defaults: %+v", cfg.Consolidation)
	}
	if cfg.Classifier.BorderlineLow >= cfg.Plausibility.RejectThreshold {
		t.Error("borderline floor must sit below the reject threshold")
	}
	if cfg.Pipeline.Workers <= 0 || cfg.Pipeline.Interval <= 0 {
		t.Errorf("unexpected pipeline defaults: %+v", cfg.Pipeline)
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load of missing file failed: %v", err)
	}
	if cfg.Consolidation.GridPrecision != Default().Consolidation.GridPrecision {
		t.Error("expected defaults for missing file")
	}
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("scope: [not a map"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed config")
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := Default()
	cfg.Scope.MaxLat = 58.1
	cfg.Pipeline.Interval = 3 * time.Minute
	cfg.Feeds = []FeedConfig{
		{Name: "test", URL: "https://feeds.example/rss", SourceType: "media", TrustWeight: 2, Country: "DK"},
	}
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Scope.MaxLat != 58.1 {
		t.Errorf("expected max_lat 58.1, got %f", got.Scope.MaxLat)
	}
	if got.Pipeline.Interval != 3*time.Minute {
		t.Errorf("expected interval 3m, got %s", got.Pipeline.Interval)
	}
	if len(got.Feeds) != 1 || got.Feeds[0].URL != "https://feeds.example/rss" {
		t.Errorf("feeds did not roundtrip: %+v", got.Feeds)
	}
}

func TestLoadPartialFileKeepsOtherDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("consolidation:\n  grid_precision: 3\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Consolidation.GridPrecision != 3 {
		t.Errorf("expected overridden precision 3, got %d", cfg.Consolidation.GridPrecision)
	}
	if cfg.Plausibility.RejectThreshold != Default().Plausibility.RejectThreshold {
		t.Error("expected untouched sections to keep defaults")
	}
}

func TestEnvOverridesClassifierSecrets(t *testing.T) {
	t.Setenv("DRONEWATCH_CLASSIFIER_KEY", "sekrit")
	t.Setenv("DRONEWATCH_CLASSIFIER_ENDPOINT", "https://classify.example/v1")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Classifier.APIKey != "sekrit" {
		t.Errorf("expected env API key, got %q", cfg.Classifier.APIKey)
	}
	if cfg.Classifier.Endpoint != "https://classify.example/v1" {
		t.Errorf("expected env endpoint, got %q", cfg.Classifier.Endpoint)
	}
}
