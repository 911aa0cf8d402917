package store

import (
	"errors"
	"sync"
	"time"

	"loopline/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Store owns every Proposal, Mission, Step and Event in the system. It is
// the only shared mutable state: components receive the store at
// construction time and go through its methods, never through shared
// references. All state is volatile; nothing survives a restart.
type Store struct {
	mu sync.RWMutex

	proposals     map[string]domain.Proposal
	proposalOrder []string
	missions      map[string]domain.Mission
	missionOrder  []string
	steps         map[string]domain.Step
	stepOrder     []string

	events      []domain.Event
	nextEventID int64

	stats domain.LoopStats
}

func New() *Store {
	return &Store{
		proposals: map[string]domain.Proposal{},
		missions:  map[string]domain.Mission{},
		steps:     map[string]domain.Step{},
	}
}

// --- proposals ---

func (s *Store) InsertProposal(p domain.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.proposals[p.ID]; ok {
		return errors.New("proposal already exists: " + p.ID)
	}
	s.proposals[p.ID] = p
	s.proposalOrder = append(s.proposalOrder, p.ID)
	return nil
}

func (s *Store) GetProposal(id string) (domain.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[id]
	if !ok {
		return domain.Proposal{}, ErrNotFound
	}
	return p, nil
}

func (s *Store) UpdateProposal(p domain.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.proposals[p.ID]; !ok {
		return ErrNotFound
	}
	s.proposals[p.ID] = p
	return nil
}

// ListProposals returns proposals in insertion order, optionally filtered
// by status.
func (s *Store) ListProposals(status string) []domain.Proposal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.Proposal, 0, len(s.proposalOrder))
	for _, id := range s.proposalOrder {
		p := s.proposals[id]
		if status != "" && p.Status != status {
			continue
		}
		res = append(res, p)
	}
	return res
}

// --- missions ---

func (s *Store) InsertMission(m domain.Mission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.missions[m.ID]; ok {
		return errors.New("mission already exists: " + m.ID)
	}
	s.missions[m.ID] = m
	s.missionOrder = append(s.missionOrder, m.ID)
	return nil
}

func (s *Store) GetMission(id string) (domain.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.missions[id]
	if !ok {
		return domain.Mission{}, ErrNotFound
	}
	return m, nil
}

func (s *Store) UpdateMission(m domain.Mission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.missions[m.ID]; !ok {
		return ErrNotFound
	}
	s.missions[m.ID] = m
	return nil
}

func (s *Store) ListMissions(status string) []domain.Mission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.Mission, 0, len(s.missionOrder))
	for _, id := range s.missionOrder {
		m := s.missions[id]
		if status != "" && m.Status != status {
			continue
		}
		res = append(res, m)
	}
	return res
}

// --- steps ---

func (s *Store) InsertStep(st domain.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.steps[st.ID]; ok {
		return errors.New("step already exists: " + st.ID)
	}
	s.steps[st.ID] = st
	s.stepOrder = append(s.stepOrder, st.ID)
	return nil
}

func (s *Store) GetStep(id string) (domain.Step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.steps[id]
	if !ok {
		return domain.Step{}, ErrNotFound
	}
	return st, nil
}

func (s *Store) UpdateStep(st domain.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.steps[st.ID]; !ok {
		return ErrNotFound
	}
	s.steps[st.ID] = st
	return nil
}

// MissionSteps returns the mission's steps in their creation order.
func (s *Store) MissionSteps(missionID string) ([]domain.Step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.missions[missionID]
	if !ok {
		return nil, ErrNotFound
	}
	res := make([]domain.Step, 0, len(m.StepIDs))
	for _, id := range m.StepIDs {
		if st, ok := s.steps[id]; ok {
			res = append(res, st)
		}
	}
	return res, nil
}

// CountStepsStartedBetween counts steps of the kind whose started_at falls
// in [from, to). Queued steps have no start time and never count.
func (s *Store) CountStepsStartedBetween(kind string, from, to time.Time) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, st := range s.steps {
		if st.Kind != kind || st.StartedAt == nil {
			continue
		}
		if !st.StartedAt.Before(from) && st.StartedAt.Before(to) {
			count++
		}
	}
	return count
}

// RunningStepsStartedBefore returns running steps whose start time is
// strictly before the cutoff, in creation order.
func (s *Store) RunningStepsStartedBefore(cutoff time.Time) []domain.Step {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.Step
	for _, id := range s.stepOrder {
		st := s.steps[id]
		if st.Status == "running" && st.StartedAt != nil && st.StartedAt.Before(cutoff) {
			res = append(res, st)
		}
	}
	return res
}

func (s *Store) ListSteps(status string) []domain.Step {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.Step, 0, len(s.stepOrder))
	for _, id := range s.stepOrder {
		st := s.steps[id]
		if status != "" && st.Status != status {
			continue
		}
		res = append(res, st)
	}
	return res
}

// --- events ---

// AppendEvent assigns the next sequence id and appends the event.
func (s *Store) AppendEvent(e domain.Event) domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEventID++
	e.ID = s.nextEventID
	s.events = append(s.events, e)
	s.stats.EventsEmitted++
	return e
}

// RecentEvents returns up to limit events, newest first.
func (s *Store) RecentEvents(limit int) []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	res := make([]domain.Event, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(res) < limit; i-- {
		res = append(res, s.events[i])
	}
	return res
}

// DrainEvents marks up to max unprocessed events processed and returns
// them in insertion order.
func (s *Store) DrainEvents(max int) []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []domain.Event
	for i := range s.events {
		if s.events[i].Processed {
			continue
		}
		if max > 0 && len(res) >= max {
			break
		}
		s.events[i].Processed = true
		res = append(res, s.events[i])
	}
	return res
}

// --- stats & snapshot ---

// AddStats adds the delta to the running loop counters.
func (s *Store) AddStats(delta domain.LoopStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.ProposalsCreated += delta.ProposalsCreated
	s.stats.ProposalsApproved += delta.ProposalsApproved
	s.stats.ProposalsRejected += delta.ProposalsRejected
	s.stats.MissionsCompleted += delta.MissionsCompleted
	s.stats.EventsEmitted += delta.EventsEmitted
	s.stats.TriggersFired += delta.TriggersFired
}

func (s *Store) Stats() domain.LoopStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Snapshot builds the read-only view for presentation layers.
func (s *Store) Snapshot(recentEvents int) domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := domain.Snapshot{
		ProposalsByStatus: map[string]int{},
		MissionsByStatus:  map[string]int{},
		StepsByStatus:     map[string]int{},
		StepsByKind:       map[string]int{},
		Stats:             s.stats,
	}
	for _, p := range s.proposals {
		snap.ProposalsByStatus[p.Status]++
	}
	for _, m := range s.missions {
		snap.MissionsByStatus[m.Status]++
	}
	for _, st := range s.steps {
		snap.StepsByStatus[st.Status]++
		snap.StepsByKind[st.Kind]++
	}
	if recentEvents <= 0 {
		recentEvents = 10
	}
	for i := len(s.events) - 1; i >= 0 && len(snap.RecentEvents) < recentEvents; i-- {
		snap.RecentEvents = append(snap.RecentEvents, s.events[i])
	}
	return snap
}
