package loop

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"loopline/internal/domain"
	"loopline/internal/engine"
)

// Runner drives simulated business days through the engine: a morning
// market scan, a possible market-opportunity trigger, concurrent
// opportunity evaluations, an approval pass over the pending queue, the
// event drain and the stale sweep. It exists for demos and smoke runs;
// production callers submit proposals directly.
type Runner struct {
	Engine *engine.Engine
	Out    io.Writer // day-by-day progress; nil silences it
}

func (r *Runner) printf(format string, args ...any) {
	if r.Out != nil {
		fmt.Fprintf(r.Out, format, args...)
	}
}

// Run drives the given number of days and returns the final snapshot.
func (r *Runner) Run(ctx context.Context, days int) (domain.Snapshot, error) {
	for day := 1; day <= days; day++ {
		if err := ctx.Err(); err != nil {
			return domain.Snapshot{}, err
		}
		if err := r.runDay(ctx, day); err != nil {
			return domain.Snapshot{}, fmt.Errorf("day %d: %w", day, err)
		}
	}
	return r.Engine.Snapshot(0), nil
}

func (r *Runner) runDay(ctx context.Context, day int) error {
	r.printf("== day %d ==\n", day)

	scan, err := r.Engine.Submit(ctx, engine.SubmitOptions{
		Title:    fmt.Sprintf("day %d market scan", day),
		Proposer: "cmo",
		Kinds:    []string{"market_scan"},
		Context:  map[string]any{"confidence": 0.85, "day": day},
	})
	if err != nil {
		return err
	}
	r.printf("market scan: %s\n", scan.Status)
	if scan.Status == "completed" {
		if r.Engine.Fire(ctx, "trigger_market_opportunity", map[string]any{"day": day}) {
			r.printf("market opportunity trigger fired\n")
		}
	}

	// The two evaluation tracks are independent; run them concurrently.
	evaluations := []struct {
		title    string
		proposer string
	}{
		{fmt.Sprintf("day %d technical deep dive", day), "cto"},
		{fmt.Sprintf("day %d financial review", day), "cfo"},
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, ev := range evaluations {
		g.Go(func() error {
			_, err := r.Engine.Submit(gctx, engine.SubmitOptions{
				Title:    ev.title,
				Proposer: ev.proposer,
				Kinds:    []string{"tech_eval", "financial_check"},
				Context:  map[string]any{"confidence": 0.8, "day": day},
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// End-of-day approval pass: clear up to two pending proposals.
	approved := 0
	for _, p := range r.Engine.Store.ListProposals("awaiting_approval") {
		if approved >= 2 {
			break
		}
		if _, err := r.Engine.Approve(ctx, p.ID); err != nil {
			return err
		}
		r.printf("approved %s (%s)\n", p.ID, p.Title)
		approved++
	}

	drained := r.Engine.DrainEvents(50)
	r.printf("drained %d events\n", len(drained))

	for _, st := range r.Engine.SweepStale(r.Engine.Now(), 0) {
		r.printf("stale step %s failed\n", st.ID)
		if err := r.Engine.RecheckMission(st.MissionID); err != nil {
			return err
		}
	}
	return nil
}
