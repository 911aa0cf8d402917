package loop_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"loopline/internal/app"
	"loopline/internal/config"
	"loopline/internal/loop"
)

func TestRunnerDrivesDays(t *testing.T) {
	a := app.New(config.Default())
	a.Engine.Now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	a.Engine.Rand = func() float64 { return 0 }

	var out bytes.Buffer
	runner := &loop.Runner{Engine: a.Engine, Out: &out}
	snap, err := runner.Run(context.Background(), 2)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if snap.Stats.ProposalsCreated == 0 {
		t.Fatalf("expected proposals, got %+v", snap.Stats)
	}
	// Each day completes at least the market scan mission.
	if snap.Stats.MissionsCompleted < 2 {
		t.Fatalf("expected at least 2 completed missions, got %+v", snap.Stats)
	}
	if snap.Stats.TriggersFired == 0 {
		t.Fatalf("expected the opportunity trigger to fire, got %+v", snap.Stats)
	}
	text := out.String()
	for _, want := range []string{"== day 1 ==", "== day 2 ==", "market scan: completed", "drained"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
}

func TestRunnerStopsOnCanceledContext(t *testing.T) {
	a := app.New(config.Default())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &loop.Runner{Engine: a.Engine}
	if _, err := runner.Run(ctx, 3); err == nil {
		t.Fatalf("expected context error")
	}
}
