package agent

import (
	"context"
	"testing"

	"github.com/ragroute/ragroute/schema"
)

func collect(t *testing.T, ch <-chan schema.ProgressEvent) []schema.ProgressEvent {
	t.Helper()
	var events []schema.ProgressEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestQueryStreamTerminatesWithResult(t *testing.T) {
	f := newFixture(t, pythonHits(), "0.9")

	events := collect(t, f.agent.QueryStream(context.Background(), admin(), schema.QueryRequest{
		Query: "what is python",
	}))
	if len(events) < 2 {
		t.Fatalf("expected progress plus a terminal event, got %d", len(events))
	}

	last := events[len(events)-1]
	if last.Stage != "result" || last.Result == nil || last.Err != "" {
		t.Fatalf("terminal event = %+v, want stage result with a result", last)
	}
	if last.Result.AgentDecision != schema.DecisionLocalSufficient {
		t.Errorf("decision = %q", last.Result.AgentDecision)
	}

	var prev int64
	for _, ev := range events[:len(events)-1] {
		if ev.Result != nil || ev.Err != "" {
			t.Errorf("intermediate event carries a payload: %+v", ev)
		}
		if ev.Stage == "" || ev.Message == "" {
			t.Errorf("intermediate event missing stage or message: %+v", ev)
		}
		if ev.ElapsedMs < prev {
			t.Errorf("elapsed went backwards: %d after %d", ev.ElapsedMs, prev)
		}
		prev = ev.ElapsedMs
	}
}

func TestQueryStreamTerminatesWithError(t *testing.T) {
	f := newFixture(t, nil, "0.5")

	events := collect(t, f.agent.QueryStream(context.Background(), admin(), schema.QueryRequest{
		Query: "q", Mode: schema.Mode("telepathy"),
	}))
	if len(events) == 0 {
		t.Fatal("expected at least the terminal event")
	}
	last := events[len(events)-1]
	if last.Stage != "error" || last.Err == "" || last.Result != nil {
		t.Fatalf("terminal event = %+v, want stage error", last)
	}
	for _, ev := range events[:len(events)-1] {
		if ev.Stage == "error" || ev.Stage == "result" {
			t.Errorf("more than one terminal event: %+v", ev)
		}
	}
}
