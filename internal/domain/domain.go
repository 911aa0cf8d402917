package domain

import "time"

// Proposal is a request to perform a set of typed steps, subject to cap
// gating and approval. Rejected, completed and failed are terminal.
type Proposal struct {
	ID             string                `json:"id"`
	Title          string                `json:"title"`
	Description    string                `json:"description,omitempty"`
	Proposer       string                `json:"proposer"`
	Status         string                `json:"status" enum:"pending,awaiting_approval,approved,rejected,executing,completed,failed"`
	StepKinds      []string              `json:"step_kinds"`
	AutoApproved   bool                  `json:"auto_approved"`
	RejectedReason string                `json:"rejected_reason,omitempty"`
	MissionID      string                `json:"mission_id,omitempty"`
	CapGateResults map[string]GateResult `json:"cap_gate_results,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}

// GateResult is the outcome of one cap-gate check for a step kind.
type GateResult struct {
	OK      bool   `json:"ok"`
	Reason  string `json:"reason,omitempty"`
	Current int    `json:"current,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// Mission is the executable instance created from an approved proposal.
// Exactly one mission exists per approved proposal; once the status is
// terminal the mission is never mutated again.
type Mission struct {
	ID          string     `json:"id"`
	ProposalID  string     `json:"proposal_id"`
	Title       string     `json:"title"`
	Status      string     `json:"status" enum:"running,succeeded,failed"`
	StepIDs     []string   `json:"step_ids"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Step is one unit of work of a given kind within a mission. Steps are
// created in request order at mission-creation time and never reordered.
type Step struct {
	ID               string         `json:"id"`
	MissionID        string         `json:"mission_id"`
	Kind             string         `json:"kind"`
	Status           string         `json:"status" enum:"queued,running,succeeded,failed"`
	AssignedExecutor string         `json:"assigned_executor"`
	Context          map[string]any `json:"context,omitempty"`
	Result           map[string]any `json:"result,omitempty"`
	Error            string         `json:"error,omitempty"`
	StartedAt        *time.Time     `json:"started_at,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
}

// Event is an append-only record of a domain occurrence. Processed is the
// only mutable field, flipped by the drain sweep.
type Event struct {
	ID        int64          `json:"id"`
	Source    string         `json:"source"`
	Type      string         `json:"type"`
	Tags      []string       `json:"tags,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Processed bool           `json:"processed"`
}

// TriggerRule converts an occurrence into a new proposal, gated by a
// cooldown and a firing probability. Condition and Action are descriptive
// tags; rules are fired explicitly by id at the relevant call sites.
type TriggerRule struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Condition     string        `json:"condition"`
	Action        string        `json:"action"`
	Cooldown      time.Duration `json:"cooldown"`
	Probability   float64       `json:"probability"`
	LastTriggered *time.Time    `json:"last_triggered,omitempty"`
}

// LoopStats are running counters over the closed loop.
type LoopStats struct {
	ProposalsCreated  int `json:"proposals_created"`
	ProposalsApproved int `json:"proposals_approved"`
	ProposalsRejected int `json:"proposals_rejected"`
	MissionsCompleted int `json:"missions_completed"`
	EventsEmitted     int `json:"events_emitted"`
	TriggersFired     int `json:"triggers_fired"`
}

// Snapshot is the read-only state exposed to presentation layers.
type Snapshot struct {
	ProposalsByStatus map[string]int `json:"proposals_by_status"`
	MissionsByStatus  map[string]int `json:"missions_by_status"`
	StepsByStatus     map[string]int `json:"steps_by_status"`
	StepsByKind       map[string]int `json:"steps_by_kind"`
	Stats             LoopStats      `json:"stats"`
	RecentEvents      []Event        `json:"recent_events"`
}
