// Package classify provides the narrow interface to an external text
// classification capability that separates genuine incident reports from
// announcement/policy/deployment discussion. The pipeline only depends on
// the request/response contract; when the service is down it falls back to
// the heuristic filters, so its availability never gates the cycle.
package classify

import (
	"context"
	"errors"

	"github.com/osintlab/dronewatch/internal/incident"
)

// Category labels what a text is actually about.
type Category string

const (
	CategoryIncident          Category = "incident"
	CategoryPolicy            Category = "policy"
	CategoryDefenseDiscussion Category = "defense_discussion"
	CategoryOther             Category = "other"
)

// ErrUnavailable signals the classifier could not be reached within its
// timeout and retry budget. Recoverable: callers fall back to the heuristic
// verdict and log a degraded-mode event.
var ErrUnavailable = errors.New("classifier unavailable")

// Classification is the classifier's verdict for one candidate.
type Classification struct {
	IsEvent    bool     `json:"is_event"`
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// Accepted reports whether the classification admits the candidate. Any
// category other than incident rejects regardless of confidence, as does
// is_event=false.
func (c Classification) Accepted() bool {
	return c.IsEvent && c.Category == CategoryIncident
}

// Classifier labels candidate text. Implementations must respect the
// context deadline.
type Classifier interface {
	// Available reports whether the classifier is configured and worth
	// calling at all.
	Available() bool

	// Classify labels the candidate's text and location.
	Classify(ctx context.Context, title, narrative string, loc incident.Location) (Classification, error)
}
