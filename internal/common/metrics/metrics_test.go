package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistryRecordsJudgeAndSandbox(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	r.ObserveVerdict(ctx, "python", "completed", 120*time.Millisecond)
	r.ObserveVerdict(ctx, "python", "completed", 80*time.Millisecond)
	r.ObserveVerdict(ctx, "cpp", "timeout", time.Second)
	r.ObserveRun(ctx, "cpp", "TLE", 1000, 2048, 0)
	r.ObserveCompile(ctx, "cpp", false, 300, 0)
	r.SetInFlight(3)

	if got := testutil.ToFloat64(r.verdicts.WithLabelValues("python", "completed")); got != 2 {
		t.Fatalf("expected 2 python verdicts, got %v", got)
	}
	if got := testutil.ToFloat64(r.runs.WithLabelValues("cpp", "TLE")); got != 1 {
		t.Fatalf("expected 1 TLE run, got %v", got)
	}
	if got := testutil.ToFloat64(r.compiles.WithLabelValues("cpp", "false")); got != 1 {
		t.Fatalf("expected 1 failed compile, got %v", got)
	}
	if got := testutil.ToFloat64(r.judgeInFlight); got != 3 {
		t.Fatalf("expected in flight 3, got %v", got)
	}
}

func TestRegistryDuelGauges(t *testing.T) {
	r := NewRegistry()
	r.SetRooms(map[string]int{"waiting": 2, "inProgress": 1})
	r.MatchFinished("solved")
	r.ConnOpened()
	r.ConnOpened()
	r.ConnClosed()

	if got := testutil.ToFloat64(r.roomsActive.WithLabelValues("waiting")); got != 2 {
		t.Fatalf("expected 2 waiting rooms, got %v", got)
	}
	if got := testutil.ToFloat64(r.matchesFinished.WithLabelValues("solved")); got != 1 {
		t.Fatalf("expected 1 solved match, got %v", got)
	}
	if got := testutil.ToFloat64(r.connections); got != 1 {
		t.Fatalf("expected 1 connection, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRegistry()
	r.MatchFinished("timeout")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `algoarena_duel_matches_finished_total{reason="timeout"} 1`) {
		t.Fatalf("metric missing from exposition:\n%s", body)
	}
}
