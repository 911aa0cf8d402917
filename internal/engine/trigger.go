package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"loopline/internal/domain"
)

// Fire evaluates the rule's cooldown and probability and, when both pass,
// performs its action. It reports whether the rule actually fired. Rules
// fire only from explicit call sites; the configured condition is a
// descriptive tag, not an evaluated expression.
func (e *Engine) Fire(ctx context.Context, ruleID string, tctx map[string]any) bool {
	e.mu.Lock()
	rule, ok := e.rules[ruleID]
	if !ok {
		e.mu.Unlock()
		return false
	}
	now := e.now()
	if rule.LastTriggered != nil && now.Before(rule.LastTriggered.Add(rule.Cooldown)) {
		e.mu.Unlock()
		return false
	}
	if e.randFloat() > rule.Probability {
		e.mu.Unlock()
		return false
	}
	fired := now.UTC()
	rule.LastTriggered = &fired
	name, action := rule.Name, rule.Action
	e.mu.Unlock()

	e.Store.AddStats(domain.LoopStats{TriggersFired: 1})
	e.performAction(ctx, name, action, tctx)
	return true
}

// performAction interprets the rule's action tag. The only executable
// form is create_proposal:<kind>; anything else is recorded in config for
// documentation and does nothing here.
func (e *Engine) performAction(ctx context.Context, ruleName, action string, tctx map[string]any) {
	kind, ok := strings.CutPrefix(action, "create_proposal:")
	if !ok {
		return
	}
	title := fmt.Sprintf("%s: %s", ruleName, kind)
	description := "proposal raised by trigger rule " + ruleName
	if mt, ok := tctx["mission_title"].(string); ok && mt != "" {
		title = "diagnose failed mission: " + mt
		description = fmt.Sprintf("step %v failed and needs diagnosis", tctx["failed_step"])
	}
	// Submission reuses the normal path, so the reaction proposal is
	// itself cap-gated and approval-checked. Errors and rejections are
	// visible on the stored proposal.
	_, _ = e.Submit(ctx, SubmitOptions{
		Title:       title,
		Description: description,
		Proposer:    "system",
		Kinds:       []string{kind},
		Context:     tctx,
	})
}

// reactToStepFailure fires the mission-failure rule with enough context
// for a diagnostic proposal.
func (e *Engine) reactToStepFailure(ctx context.Context, missionID string, st domain.Step) {
	m, err := e.Store.GetMission(missionID)
	if err != nil {
		return
	}
	e.Fire(ctx, "trigger_mission_failed", map[string]any{
		"failed_mission": m.ID,
		"failed_step":    st.ID,
		"mission_title":  m.Title,
	})
}

// Rules returns the trigger rules with their runtime state, sorted by id.
func (e *Engine) Rules() []domain.TriggerRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	res := make([]domain.TriggerRule, 0, len(e.rules))
	for _, r := range e.rules {
		res = append(res, *r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}
