package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"roofcrm/internal/models"
	"roofcrm/internal/workflow"
)

// MemoryStore is an in-process StatusStore, LeadRepository and UserRepository.
// Each unit of work runs against a copy of the state under the store lock and
// replaces the state only when it succeeds. It backs the "memory" database
// driver and the tests.
type MemoryStore struct {
	mu    sync.RWMutex
	state memoryState
	nowFn func() time.Time
}

type memoryState struct {
	leads       map[int64]models.Leads
	deleted     map[int64]bool
	transitions []workflow.Transition
	users       map[int]models.User
	nextLeadID  int64
	nextTransID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: memoryState{
			leads:   map[int64]models.Leads{},
			deleted: map[int64]bool{},
			users:   map[int]models.User{},
		},
		nowFn: time.Now,
	}
}

func (s memoryState) clone() memoryState {
	c := memoryState{
		leads:       make(map[int64]models.Leads, len(s.leads)),
		deleted:     make(map[int64]bool, len(s.deleted)),
		transitions: make([]workflow.Transition, len(s.transitions)),
		users:       make(map[int]models.User, len(s.users)),
		nextLeadID:  s.nextLeadID,
		nextTransID: s.nextTransID,
	}
	for k, v := range s.leads {
		c.leads[k] = v
	}
	for k, v := range s.deleted {
		c.deleted[k] = v
	}
	copy(c.transitions, s.transitions)
	for k, v := range s.users {
		c.users[k] = v
	}
	return c
}

// PutUser registers a user so notifications can reach them.
func (s *MemoryStore) PutUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.users[u.ID] = u
}

// ---- StatusStore

func (s *MemoryStore) WithinTx(_ context.Context, fn func(tx StatusTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memoryTx{state: s.state.clone(), now: s.nowFn}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *MemoryStore) GetStage(_ context.Context, leadID int64) (workflow.Stage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.state.lead(leadID)
	if !ok {
		return workflow.Stage{}, ErrLeadNotFound
	}
	return l.Stage(), nil
}

func (s *MemoryStore) ListTransitions(_ context.Context, f HistoryFilter) ([]workflow.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]workflow.Transition, 0)
	for _, tr := range s.state.transitions {
		if !f.match(tr) {
			continue
		}
		out = append(out, cloneTransition(tr))
		if len(out) == f.EffectiveLimit() {
			break
		}
	}
	return out, nil
}

type memoryTx struct {
	state memoryState
	now   func() time.Time
}

func (t *memoryTx) LockStage(_ context.Context, leadID int64) (workflow.Stage, error) {
	l, ok := t.state.lead(leadID)
	if !ok {
		return workflow.Stage{}, ErrLeadNotFound
	}
	return l.Stage(), nil
}

func (t *memoryTx) UpdateStage(_ context.Context, leadID int64, from, to workflow.Stage) error {
	l, ok := t.state.lead(leadID)
	if !ok || l.Stage() != from {
		return ErrConcurrentModification
	}
	l.Status, l.SubStatus = to.Status, to.SubStatus
	l.UpdatedAt = t.now()
	t.state.leads[leadID] = l
	return nil
}

func (t *memoryTx) InsertTransition(_ context.Context, tr *workflow.Transition) error {
	t.state.nextTransID++
	tr.ID = t.state.nextTransID
	tr.CreatedAt = t.now()
	t.state.transitions = append(t.state.transitions, cloneTransition(*tr))
	return nil
}

func (t *memoryTx) InsertLead(_ context.Context, lead *models.Leads) error {
	t.state.nextLeadID++
	lead.ID = t.state.nextLeadID
	lead.CreatedAt = t.now()
	lead.UpdatedAt = lead.CreatedAt
	t.state.leads[lead.ID] = *lead
	return nil
}

// ---- LeadRepository

func (s *MemoryStore) GetByID(_ context.Context, id int64) (*models.Leads, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.state.lead(id)
	if !ok {
		return nil, ErrLeadNotFound
	}
	return &l, nil
}

func (s *MemoryStore) Update(_ context.Context, lead *models.Leads) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.state.lead(lead.ID)
	if !ok {
		return ErrLeadNotFound
	}
	l.Title, l.Description, l.Address, l.OwnerID = lead.Title, lead.Description, lead.Address, lead.OwnerID
	l.UpdatedAt = s.nowFn()
	s.state.leads[l.ID] = l
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.lead(id); !ok {
		return ErrLeadNotFound
	}
	s.state.deleted[id] = true
	return nil
}

func (s *MemoryStore) UpdateOwner(_ context.Context, id int64, ownerID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.state.lead(id)
	if !ok {
		return ErrLeadNotFound
	}
	l.OwnerID = ownerID
	l.UpdatedAt = s.nowFn()
	s.state.leads[id] = l
	return nil
}

func (s *MemoryStore) ListPaginated(ctx context.Context, limit, offset int) ([]*models.Leads, error) {
	return s.FilterLeads(ctx, models.LeadFilter{Limit: limit, Offset: offset})
}

func (s *MemoryStore) ListByOwner(ctx context.Context, ownerID, limit, offset int) ([]*models.Leads, error) {
	return s.FilterLeads(ctx, models.LeadFilter{OwnerID: ownerID, Limit: limit, Offset: offset})
}

// FilterLeads honours the filter fields; sorting is always newest first.
func (s *MemoryStore) FilterLeads(_ context.Context, f models.LeadFilter) ([]*models.Leads, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []models.Leads
	for id, l := range s.state.leads {
		if s.state.deleted[id] {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if f.SubStatus != "" && l.SubStatus != f.SubStatus {
			continue
		}
		if f.OwnerID > 0 && l.OwnerID != f.OwnerID {
			continue
		}
		all = append(all, l)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	out := make([]*models.Leads, 0)
	for i := f.Offset; i < len(all) && (f.Limit <= 0 || len(out) < f.Limit); i++ {
		l := all[i]
		out = append(out, &l)
	}
	return out, nil
}

// ---- UserRepository

// GetUser is the UserRepository lookup; MemoryStore already uses GetByID for leads.
func (s *MemoryStore) GetUser(_ context.Context, id int) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.state.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

// Users adapts the store to UserRepository.
func (s *MemoryStore) Users() UserRepository { return memoryUsers{s} }

type memoryUsers struct{ s *MemoryStore }

func (m memoryUsers) GetByID(ctx context.Context, id int) (*models.User, error) {
	return m.s.GetUser(ctx, id)
}

func (s memoryState) lead(id int64) (models.Leads, bool) {
	l, ok := s.leads[id]
	if !ok || s.deleted[id] {
		return models.Leads{}, false
	}
	return l, true
}

func cloneTransition(tr workflow.Transition) workflow.Transition {
	if tr.From != nil {
		from := *tr.From
		tr.From = &from
	}
	if tr.ChangedBy != nil {
		by := *tr.ChangedBy
		tr.ChangedBy = &by
	}
	meta := make(map[string]any, len(tr.Metadata))
	for k, v := range tr.Metadata {
		meta[k] = v
	}
	tr.Metadata = meta
	return tr
}
