package server

import (
	"time"

	"loopline/internal/domain"
)

// Request payloads

type SubmitProposalRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Proposer    string         `json:"proposer,omitempty"`
	StepKinds   []string       `json:"step_kinds"`
	Context     map[string]any `json:"context,omitempty"`
}

// Response payloads

type GateResultResponse struct {
	OK      bool   `json:"ok"`
	Reason  string `json:"reason,omitempty"`
	Current int    `json:"current,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type ProposalResponse struct {
	ID             string                        `json:"id"`
	Title          string                        `json:"title"`
	Description    string                        `json:"description,omitempty"`
	Proposer       string                        `json:"proposer"`
	Status         string                        `json:"status" enum:"pending,awaiting_approval,approved,rejected,executing,completed,failed"`
	StepKinds      []string                      `json:"step_kinds"`
	AutoApproved   bool                          `json:"auto_approved"`
	RejectedReason string                        `json:"rejected_reason,omitempty"`
	MissionID      string                        `json:"mission_id,omitempty"`
	CapGateResults map[string]GateResultResponse `json:"cap_gate_results,omitempty"`
	CreatedAt      string                        `json:"created_at" format:"date-time"`
}

type StepResponse struct {
	ID               string         `json:"id"`
	MissionID        string         `json:"mission_id"`
	Kind             string         `json:"kind"`
	Status           string         `json:"status" enum:"queued,running,succeeded,failed"`
	AssignedExecutor string         `json:"assigned_executor"`
	Result           map[string]any `json:"result,omitempty"`
	Error            string         `json:"error,omitempty"`
	StartedAt        *string        `json:"started_at,omitempty" format:"date-time"`
	CompletedAt      *string        `json:"completed_at,omitempty" format:"date-time"`
}

type MissionResponse struct {
	ID          string         `json:"id"`
	ProposalID  string         `json:"proposal_id"`
	Title       string         `json:"title"`
	Status      string         `json:"status" enum:"running,succeeded,failed"`
	StepIDs     []string       `json:"step_ids"`
	Steps       []StepResponse `json:"steps,omitempty"`
	CreatedAt   string         `json:"created_at" format:"date-time"`
	CompletedAt *string        `json:"completed_at,omitempty" format:"date-time"`
}

type EventResponse struct {
	ID        int64          `json:"id"`
	Source    string         `json:"source"`
	Type      string         `json:"type"`
	Tags      []string       `json:"tags,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt string         `json:"created_at" format:"date-time"`
	Processed bool           `json:"processed"`
}

type TriggerResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Condition     string  `json:"condition"`
	Action        string  `json:"action"`
	CooldownSec   int     `json:"cooldown_seconds"`
	Probability   float64 `json:"probability"`
	LastTriggered *string `json:"last_triggered,omitempty" format:"date-time"`
}

type StatusResponse struct {
	CompanyID         string           `json:"company_id"`
	CompanyName       string           `json:"company_name"`
	ProposalsByStatus map[string]int   `json:"proposals_by_status"`
	MissionsByStatus  map[string]int   `json:"missions_by_status"`
	StepsByStatus     map[string]int   `json:"steps_by_status"`
	StepsByKind       map[string]int   `json:"steps_by_kind"`
	Stats             domain.LoopStats `json:"stats"`
	RecentEvents      []EventResponse  `json:"recent_events"`
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func fmtTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := fmtTime(*t)
	return &s
}

func proposalResponse(p domain.Proposal) ProposalResponse {
	res := ProposalResponse{
		ID:             p.ID,
		Title:          p.Title,
		Description:    p.Description,
		Proposer:       p.Proposer,
		Status:         p.Status,
		StepKinds:      p.StepKinds,
		AutoApproved:   p.AutoApproved,
		RejectedReason: p.RejectedReason,
		MissionID:      p.MissionID,
		CreatedAt:      fmtTime(p.CreatedAt),
	}
	if len(p.CapGateResults) > 0 {
		res.CapGateResults = map[string]GateResultResponse{}
		for kind, g := range p.CapGateResults {
			res.CapGateResults[kind] = GateResultResponse{
				OK:      g.OK,
				Reason:  g.Reason,
				Current: g.Current,
				Limit:   g.Limit,
			}
		}
	}
	return res
}

func mapProposals(items []domain.Proposal) []ProposalResponse {
	res := make([]ProposalResponse, 0, len(items))
	for _, p := range items {
		res = append(res, proposalResponse(p))
	}
	return res
}

func stepResponse(st domain.Step) StepResponse {
	return StepResponse{
		ID:               st.ID,
		MissionID:        st.MissionID,
		Kind:             st.Kind,
		Status:           st.Status,
		AssignedExecutor: st.AssignedExecutor,
		Result:           st.Result,
		Error:            st.Error,
		StartedAt:        fmtTimePtr(st.StartedAt),
		CompletedAt:      fmtTimePtr(st.CompletedAt),
	}
}

func missionResponse(m domain.Mission, steps []domain.Step) MissionResponse {
	res := MissionResponse{
		ID:          m.ID,
		ProposalID:  m.ProposalID,
		Title:       m.Title,
		Status:      m.Status,
		StepIDs:     m.StepIDs,
		CreatedAt:   fmtTime(m.CreatedAt),
		CompletedAt: fmtTimePtr(m.CompletedAt),
	}
	for _, st := range steps {
		res.Steps = append(res.Steps, stepResponse(st))
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:        e.ID,
		Source:    e.Source,
		Type:      e.Type,
		Tags:      e.Tags,
		Payload:   e.Payload,
		CreatedAt: fmtTime(e.CreatedAt),
		Processed: e.Processed,
	}
}

func mapEvents(items []domain.Event) []EventResponse {
	res := make([]EventResponse, 0, len(items))
	for _, e := range items {
		res = append(res, eventResponse(e))
	}
	return res
}

func triggerResponse(r domain.TriggerRule) TriggerResponse {
	return TriggerResponse{
		ID:            r.ID,
		Name:          r.Name,
		Condition:     r.Condition,
		Action:        r.Action,
		CooldownSec:   int(r.Cooldown.Seconds()),
		Probability:   r.Probability,
		LastTriggered: fmtTimePtr(r.LastTriggered),
	}
}

func statusResponse(companyID, companyName string, snap domain.Snapshot) StatusResponse {
	return StatusResponse{
		CompanyID:         companyID,
		CompanyName:       companyName,
		ProposalsByStatus: snap.ProposalsByStatus,
		MissionsByStatus:  snap.MissionsByStatus,
		StepsByStatus:     snap.StepsByStatus,
		StepsByKind:       snap.StepsByKind,
		Stats:             snap.Stats,
		RecentEvents:      mapEvents(snap.RecentEvents),
	}
}
