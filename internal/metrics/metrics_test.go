package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistryCountsRequestsAndVotes(t *testing.T) {
	registry := NewRegistry()

	registry.ObserveRequest(http.MethodPost, "/questions/:id/votes", http.StatusCreated, 15*time.Millisecond)
	registry.ObserveRequest(http.MethodPost, "/questions/:id/votes", http.StatusConflict, 5*time.Millisecond)
	registry.RecordVote(VoteOutcomeCast)
	registry.RecordVote(VoteOutcomeDuplicate)
	registry.RecordVote(VoteOutcomeDuplicate)

	if got := testutil.ToFloat64(registry.requests.WithLabelValues(http.MethodPost, "/questions/:id/votes", "201")); got != 1 {
		t.Fatalf("expected one created request, got %v", got)
	}
	if got := testutil.ToFloat64(registry.votes.WithLabelValues(VoteOutcomeDuplicate)); got != 2 {
		t.Fatalf("expected two duplicate votes, got %v", got)
	}

	closeStream := registry.StreamOpened()
	if got := testutil.ToFloat64(registry.streams); got != 1 {
		t.Fatalf("expected one open stream, got %v", got)
	}
	closeStream()
	if got := testutil.ToFloat64(registry.streams); got != 0 {
		t.Fatalf("expected no open streams, got %v", got)
	}
}

func TestRegistryHandlerExposesMetrics(t *testing.T) {
	registry := NewRegistry()
	registry.RecordVote(VoteOutcomeRetracted)

	recorder := httptest.NewRecorder()
	registry.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `askroom_ledger_vote_operations_total{outcome="retracted"} 1`) {
		t.Fatalf("expected vote counter in exposition, got %s", recorder.Body.String())
	}
}

func TestNilRegistryIsInert(t *testing.T) {
	var registry *Registry
	registry.ObserveRequest(http.MethodGet, "/questions", http.StatusOK, time.Millisecond)
	registry.RecordVote(VoteOutcomeCast)
	registry.StreamOpened()()
}
