package incident

import (
	"errors"
	"testing"
	"time"
)

func validCandidate() *Candidate {
	return &Candidate{
		Title:      "Drone near airport",
		OccurredAt: time.Date(2026, 8, 24, 18, 30, 0, 0, time.UTC),
		Location:   &Location{Lat: 55.62, Lon: 12.65},
		AssetType:  AssetAirport,
		Country:    "DK",
		Sources: []Source{
			{URL: "https://news.example/a", SourceType: SourceMedia, TrustWeight: 2},
		},
	}
}

func TestValidateAcceptsWellFormedCandidate(t *testing.T) {
	if err := Validate(validCandidate()); err != nil {
		t.Errorf("expected valid candidate to pass, got %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Candidate)
		wantField string
	}{
		{"empty title", func(c *Candidate) { c.Title = "" }, "title"},
		{"zero occurred_at", func(c *Candidate) { c.OccurredAt = time.Time{} }, "occurred_at"},
		{"nil location", func(c *Candidate) { c.Location = nil }, "location"},
		{"latitude out of range", func(c *Candidate) { c.Location.Lat = 95 }, "location.lat"},
		{"longitude out of range", func(c *Candidate) { c.Location.Lon = -181 }, "location.lon"},
		{"no sources", func(c *Candidate) { c.Sources = nil }, "sources"},
		{"source without url", func(c *Candidate) { c.Sources[0].URL = "" }, "sources[0].url"},
		{"trust weight too low", func(c *Candidate) { c.Sources[0].TrustWeight = 0 }, "sources[0].trust_weight"},
		{"trust weight too high", func(c *Candidate) { c.Sources[0].TrustWeight = 5 }, "sources[0].trust_weight"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCandidate()
			tt.mutate(c)
			err := Validate(c)
			if err == nil {
				t.Fatal("expected validation error")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("expected field %q, got %q", tt.wantField, verr.Field)
			}
		})
	}
}

func TestCandidateText(t *testing.T) {
	c := &Candidate{Title: "Title here", Narrative: "Narrative here"}
	if got := c.Text(); got != "Title here Narrative here" {
		t.Errorf("unexpected Text(): %q", got)
	}
}
