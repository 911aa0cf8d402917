package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"loopline/internal/config"
	"loopline/internal/domain"
	"loopline/internal/events"
	"loopline/internal/executor"
	"loopline/internal/store"
)

// Engine runs the closed loop: proposals are cap-gated, auto-approved and
// executed as missions whose outcomes feed trigger rules that submit new
// proposals. All shared state lives in the injected store.
type Engine struct {
	Store     *store.Store
	Events    events.Log
	Executors *executor.Registry
	Config    *config.Config
	Now       func() time.Time
	Rand      func() float64

	mu    sync.Mutex
	rules map[string]*domain.TriggerRule
}

func New(st *store.Store, reg *executor.Registry, cfg *config.Config) *Engine {
	e := &Engine{
		Store:     st,
		Executors: reg,
		Config:    cfg,
		Now:       time.Now,
		Rand:      rand.Float64,
		rules:     map[string]*domain.TriggerRule{},
	}
	e.Events = events.Log{Store: st, Now: func() time.Time { return e.now() }}
	for _, tr := range cfg.Triggers {
		e.rules[tr.ID] = &domain.TriggerRule{
			ID:          tr.ID,
			Name:        tr.Name,
			Condition:   tr.Condition,
			Action:      tr.Action,
			Cooldown:    time.Duration(tr.CooldownMinutes) * time.Minute,
			Probability: tr.Probability,
		}
	}
	return e
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) randFloat() float64 {
	if e.Rand != nil {
		return e.Rand()
	}
	return rand.Float64()
}

// SubmitOptions are parameters for submitting a proposal.
type SubmitOptions struct {
	Title       string
	Description string
	Proposer    string
	Kinds       []string
	Context     map[string]any
}

// Submit is the single entry point for proposals. It checks the cap gate
// for every requested kind, rejecting the whole proposal on the first
// failure; otherwise it evaluates auto-approval and, on approval, runs the
// mission synchronously. Step-level failures never surface as errors
// here; callers observe them through proposal and mission status.
func (e *Engine) Submit(ctx context.Context, opts SubmitOptions) (domain.Proposal, error) {
	if opts.Title == "" {
		return domain.Proposal{}, errors.New("title is required")
	}
	if len(opts.Kinds) == 0 {
		return domain.Proposal{}, errors.New("at least one step kind is required")
	}
	if opts.Proposer == "" {
		opts.Proposer = "system"
	}
	now := e.now().UTC()
	p := domain.Proposal{
		ID:          "prop_" + uuid.NewString(),
		Title:       opts.Title,
		Description: opts.Description,
		Proposer:    opts.Proposer,
		Status:      "pending",
		StepKinds:   append([]string(nil), opts.Kinds...),
		CreatedAt:   now,
	}

	gates := map[string]domain.GateResult{}
	for _, kind := range opts.Kinds {
		res := e.checkCapGate(kind, now)
		gates[kind] = res
		if !res.OK {
			p.Status = "rejected"
			p.RejectedReason = res.Reason
			p.CapGateResults = gates
			if err := e.Store.InsertProposal(p); err != nil {
				return p, err
			}
			e.Store.AddStats(domain.LoopStats{ProposalsRejected: 1})
			e.Events.Append(opts.Proposer, "proposal_rejected", []string{"proposal", "rejected", kind}, events.Payload{
				"proposal_id": p.ID,
				"reason":      res.Reason,
			})
			return p, nil
		}
	}
	p.CapGateResults = gates
	if err := e.Store.InsertProposal(p); err != nil {
		return p, err
	}
	e.Store.AddStats(domain.LoopStats{ProposalsCreated: 1})

	if !e.autoApprove(opts.Kinds, opts.Context) {
		p.Status = "awaiting_approval"
		if err := e.Store.UpdateProposal(p); err != nil {
			return p, err
		}
		return p, nil
	}
	p.Status = "approved"
	p.AutoApproved = true
	if err := e.Store.UpdateProposal(p); err != nil {
		return p, err
	}
	e.Store.AddStats(domain.LoopStats{ProposalsApproved: 1})
	return e.createAndRun(ctx, p, opts.Context)
}

// Approve is the manual approval path for proposals that failed
// auto-approval and are awaiting_approval.
func (e *Engine) Approve(ctx context.Context, proposalID string) (domain.Proposal, error) {
	p, err := e.Store.GetProposal(proposalID)
	if err != nil {
		return domain.Proposal{}, err
	}
	if p.Status != "awaiting_approval" {
		return p, fmt.Errorf("proposal %s is %s; only awaiting_approval proposals can be approved", p.ID, p.Status)
	}
	p.Status = "approved"
	if err := e.Store.UpdateProposal(p); err != nil {
		return p, err
	}
	e.Store.AddStats(domain.LoopStats{ProposalsApproved: 1})
	e.Events.Append("system", "proposal_approved", []string{"proposal", "approved"}, events.Payload{
		"proposal_id": p.ID,
	})
	return e.createAndRun(ctx, p, nil)
}
