package classify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/osintlab/dronewatch/internal/incident"
)

func testLocation() incident.Location {
	return incident.Location{Lat: 55.62, Lon: 12.65}
}

func TestClassifySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req classifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Title == "" {
			t.Error("expected title in request")
		}
		json.NewEncoder(w).Encode(Classification{
			IsEvent:    true,
			Category:   CategoryIncident,
			Confidence: 0.9,
			Reasoning:  "describes a concrete sighting",
		})
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, "test-key", 5*time.Second)
	result, err := c.Classify(context.Background(), "Drone over airport", "Flights paused.", testLocation())
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if !result.Accepted() {
		t.Errorf("expected accepted classification, got %+v", result)
	}
}

func TestClassifyNonIncidentCategoryRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Classification{
			IsEvent:    true,
			Category:   CategoryPolicy,
			Confidence: 0.95,
		})
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, "", 5*time.Second)
	result, err := c.Classify(context.Background(), "New drone rules announced", "", testLocation())
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	// High confidence does not matter: category != incident rejects.
	if result.Accepted() {
		t.Errorf("expected policy category to reject, got %+v", result)
	}
}

func TestClassifyNotEventRejects(t *testing.T) {
	result := Classification{IsEvent: false, Category: CategoryIncident, Confidence: 0.99}
	if result.Accepted() {
		t.Error("expected is_event=false to reject")
	}
}

func TestClassifyRetriesOnTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(Classification{IsEvent: true, Category: CategoryIncident})
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, "", 5*time.Second)
	result, err := c.Classify(context.Background(), "Drone over airport", "", testLocation())
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if !result.Accepted() {
		t.Errorf("expected accepted result after retry, got %+v", result)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestClassifyUnavailableAfterRetryBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, "", 5*time.Second)
	_, err := c.Classify(context.Background(), "Drone over airport", "", testLocation())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	// Initial attempt plus exactly one retry.
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestClassifyDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, "bad-key", 5*time.Second)
	_, err := c.Classify(context.Background(), "Drone over airport", "", testLocation())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected auth failure not to be retried, got %d attempts", got)
	}
}

func TestAvailable(t *testing.T) {
	if NewHTTPClassifier("", "", 0).Available() {
		t.Error("expected classifier without endpoint to be unavailable")
	}
	if !NewHTTPClassifier("https://classifier.example", "", 0).Available() {
		t.Error("expected configured classifier to be available")
	}
}
