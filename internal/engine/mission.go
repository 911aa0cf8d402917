package engine

import (
	"context"
	"fmt"

	"loopline/internal/domain"
	"loopline/internal/events"
	"loopline/internal/executor"
)

// createAndRun materializes the approved proposal into a mission with one
// queued step per kind, then runs it to completion.
func (e *Engine) createAndRun(ctx context.Context, p domain.Proposal, pctx map[string]any) (domain.Proposal, error) {
	now := e.now().UTC()
	missionID := "mission_" + p.ID
	stepIDs := make([]string, 0, len(p.StepKinds))
	for i, kind := range p.StepKinds {
		st := domain.Step{
			ID:               fmt.Sprintf("step_%s_%d", missionID, i),
			MissionID:        missionID,
			Kind:             kind,
			Status:           "queued",
			AssignedExecutor: e.assignExecutor(kind),
			Context:          pctx,
		}
		if err := e.Store.InsertStep(st); err != nil {
			return p, err
		}
		stepIDs = append(stepIDs, st.ID)
	}
	m := domain.Mission{
		ID:         missionID,
		ProposalID: p.ID,
		Title:      p.Title,
		Status:     "running",
		StepIDs:    stepIDs,
		CreatedAt:  now,
	}
	if err := e.Store.InsertMission(m); err != nil {
		return p, err
	}
	p.MissionID = missionID
	p.Status = "executing"
	if err := e.Store.UpdateProposal(p); err != nil {
		return p, err
	}
	e.Events.Append("system", "mission_created", []string{"mission", "created"}, events.Payload{
		"mission_id":  missionID,
		"proposal_id": p.ID,
	})
	if err := e.runMission(ctx, missionID); err != nil {
		return p, err
	}
	return e.Store.GetProposal(p.ID)
}

func (e *Engine) assignExecutor(kind string) string {
	if name, ok := e.Config.Executors.Assignments[kind]; ok {
		return name
	}
	return e.Config.Executors.Default
}

// runMission executes the mission's queued steps strictly in creation
// order. A failed step fires the mission-failure trigger immediately but
// does not stop the later steps.
func (e *Engine) runMission(ctx context.Context, missionID string) error {
	steps, err := e.Store.MissionSteps(missionID)
	if err != nil {
		return err
	}
	for _, st := range steps {
		if st.Status != "queued" {
			continue
		}
		started := e.now().UTC()
		st.Status = "running"
		st.StartedAt = &started
		if err := e.Store.UpdateStep(st); err != nil {
			return err
		}
		result, execErr := e.Executors.Resolve(st.AssignedExecutor).Execute(ctx, executor.Request{
			StepID:  st.ID,
			Kind:    st.Kind,
			Context: st.Context,
		})
		completed := e.now().UTC()
		st.CompletedAt = &completed
		if execErr != nil {
			st.Status = "failed"
			st.Error = execErr.Error()
			if err := e.Store.UpdateStep(st); err != nil {
				return err
			}
			e.reactToStepFailure(ctx, missionID, st)
			continue
		}
		st.Status = "succeeded"
		st.Result = result
		if err := e.Store.UpdateStep(st); err != nil {
			return err
		}
	}
	return e.finalizeMission(missionID)
}

// finalizeMission concludes a running mission once no step is queued or
// running: failed when any step failed, succeeded when all succeeded.
// Concluding twice is a no-op, so the watchdog path and the run path can
// both call it safely.
func (e *Engine) finalizeMission(missionID string) error {
	m, err := e.Store.GetMission(missionID)
	if err != nil {
		return err
	}
	if m.Status != "running" {
		return nil
	}
	steps, err := e.Store.MissionSteps(missionID)
	if err != nil {
		return err
	}
	anyFailed := false
	allSucceeded := true
	for _, st := range steps {
		if st.Status == "failed" {
			anyFailed = true
		}
		if st.Status != "succeeded" && st.Status != "failed" {
			// a step is still queued or running; leave the mission open
			return nil
		}
		if st.Status != "succeeded" {
			allSucceeded = false
		}
	}
	switch {
	case anyFailed:
		m.Status = "failed"
	case allSucceeded:
		m.Status = "succeeded"
	default:
		return nil
	}
	now := e.now().UTC()
	m.CompletedAt = &now
	if err := e.Store.UpdateMission(m); err != nil {
		return err
	}
	p, err := e.Store.GetProposal(m.ProposalID)
	if err == nil {
		if m.Status == "succeeded" {
			p.Status = "completed"
		} else {
			p.Status = "failed"
		}
		if err := e.Store.UpdateProposal(p); err != nil {
			return err
		}
	}
	if m.Status == "succeeded" {
		e.Store.AddStats(domain.LoopStats{MissionsCompleted: 1})
	}
	e.Events.Append("system", "mission_"+m.Status, []string{"mission", m.Status}, events.Payload{
		"mission_id":  m.ID,
		"proposal_id": m.ProposalID,
	})
	return nil
}

// RecheckMission re-runs finalization for a mission whose steps were
// concluded out of band, typically by the stale sweep.
func (e *Engine) RecheckMission(missionID string) error {
	return e.finalizeMission(missionID)
}
