// Package memory is an in-process Store used for local runs and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gigflow/internal/models"
	"gigflow/internal/storage"
)

type pairKey struct {
	taskID     string
	proposerID string
}

// Store keeps tasks and proposals in maps guarded by one RWMutex. Hiring
// transactions additionally hold a per-task lock, so hires on different
// tasks never wait on each other.
type Store struct {
	mu        sync.RWMutex
	tasks     map[string]models.Task
	proposals map[string]models.Proposal
	byPair    map[pairKey]string

	locksMu   sync.Mutex
	taskLocks map[string]chan struct{}

	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		tasks:     make(map[string]models.Task),
		proposals: make(map[string]models.Proposal),
		byPair:    make(map[pairKey]string),
		taskLocks: make(map[string]chan struct{}),
		now:       time.Now,
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) CreateTask(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = *task
	return nil
}

func (s *Store) GetTask(_ context.Context, id string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &t, nil
}

func (s *Store) ListTasks(_ context.Context, f storage.TaskFilter) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var idSet map[string]struct{}
	if f.IDs != nil {
		idSet = make(map[string]struct{}, len(f.IDs))
		for _, id := range f.IDs {
			idSet[id] = struct{}{}
		}
	}
	needle := strings.ToLower(f.TitleContains)

	out := make([]*models.Task, 0)
	for _, t := range s.tasks {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.OwnerID != "" && t.OwnerID != f.OwnerID {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(t.Title), needle) {
			continue
		}
		if idSet != nil {
			if _, ok := idSet[t.ID]; !ok {
				continue
			}
		}
		t := t
		out = append(out, &t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateProposal(_ context.Context, p *models.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[p.TaskID]; !ok {
		return storage.ErrNotFound
	}
	key := pairKey{taskID: p.TaskID, proposerID: p.ProposerID}
	if _, exists := s.byPair[key]; exists {
		return storage.ErrUniqueViolation
	}
	stored := *p
	stored.Task = nil
	s.proposals[p.ID] = stored
	s.byPair[key] = p.ID
	return nil
}

func (s *Store) GetProposal(_ context.Context, id string) (*models.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.withTask(p), nil
}

func (s *Store) ListProposalsByTask(_ context.Context, taskID string) ([]*models.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Proposal, 0)
	for _, p := range s.proposals {
		if p.TaskID == taskID {
			p := p
			out = append(out, &p)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *Store) ListProposalsByProposer(_ context.Context, proposerID string) ([]*models.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Proposal, 0)
	for _, p := range s.proposals {
		if p.ProposerID == proposerID {
			out = append(out, s.withTask(p))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// withTask must be called with mu held.
func (s *Store) withTask(p models.Proposal) *models.Proposal {
	if t, ok := s.tasks[p.TaskID]; ok {
		p.Task = t.Summary()
	}
	return &p
}

func sortNewestFirst(ps []*models.Proposal) {
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].CreatedAt.After(ps[j].CreatedAt) })
}

// lockTask blocks until the task lock is held or ctx ends.
func (s *Store) lockTask(ctx context.Context, taskID string) (func(), error) {
	s.locksMu.Lock()
	ch, ok := s.taskLocks[taskID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.taskLocks[taskID] = ch
	}
	s.locksMu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WithHireTx buffers fn's writes and applies them in one critical section.
func (s *Store) WithHireTx(ctx context.Context, fn func(ctx context.Context, tx storage.HireTx) error) error {
	tx := &hireTx{
		store:     s,
		tasks:     make(map[string]models.Task),
		proposals: make(map[string]models.Proposal),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	for id, t := range tx.tasks {
		s.tasks[id] = t
	}
	for id, p := range tx.proposals {
		s.proposals[id] = p
	}
	s.mu.Unlock()
	return nil
}

type hireTx struct {
	store     *Store
	unlocks   []func()
	tasks     map[string]models.Task
	proposals map[string]models.Proposal
}

func (tx *hireTx) release() {
	for i := len(tx.unlocks) - 1; i >= 0; i-- {
		tx.unlocks[i]()
	}
}

func (tx *hireTx) task(id string) (models.Task, bool) {
	if t, ok := tx.tasks[id]; ok {
		return t, true
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	t, ok := tx.store.tasks[id]
	return t, ok
}

func (tx *hireTx) proposal(id string) (models.Proposal, bool) {
	if p, ok := tx.proposals[id]; ok {
		return p, true
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	p, ok := tx.store.proposals[id]
	return p, ok
}

func (tx *hireTx) LoadProposalForHire(ctx context.Context, proposalID string) (*models.Proposal, *models.Task, error) {
	p, ok := tx.proposal(proposalID)
	if !ok {
		return nil, nil, storage.ErrNotFound
	}

	unlock, err := tx.store.lockTask(ctx, p.TaskID)
	if err != nil {
		return nil, nil, err
	}
	tx.unlocks = append(tx.unlocks, unlock)

	// Re-read under the lock so the status reflects any hire committed while waiting.
	p, _ = tx.proposal(proposalID)
	t, ok := tx.task(p.TaskID)
	if !ok {
		return nil, nil, storage.ErrNotFound
	}
	p.Task = t.Summary()
	return &p, &t, nil
}

func (tx *hireTx) AssignTask(_ context.Context, taskID string) (bool, error) {
	t, ok := tx.task(taskID)
	if !ok || t.Status != models.TaskOpen {
		return false, nil
	}
	t.Status = models.TaskAssigned
	t.UpdatedAt = tx.store.now().UTC()
	tx.tasks[taskID] = t
	return true, nil
}

func (tx *hireTx) MarkHired(_ context.Context, proposalID string) (bool, error) {
	p, ok := tx.proposal(proposalID)
	if !ok || p.Status != models.ProposalPending {
		return false, nil
	}
	p.Status = models.ProposalHired
	p.UpdatedAt = tx.store.now().UTC()
	tx.proposals[proposalID] = p
	return true, nil
}

func (tx *hireTx) RejectPendingSiblings(_ context.Context, taskID, hiredProposalID string) (int64, error) {
	tx.store.mu.RLock()
	ids := make([]string, 0)
	for id, p := range tx.store.proposals {
		if p.TaskID == taskID && id != hiredProposalID {
			ids = append(ids, id)
		}
	}
	tx.store.mu.RUnlock()

	now := tx.store.now().UTC()
	var n int64
	for _, id := range ids {
		p, _ := tx.proposal(id)
		if p.Status != models.ProposalPending {
			continue
		}
		p.Status = models.ProposalRejected
		p.UpdatedAt = now
		tx.proposals[id] = p
		n++
	}
	return n, nil
}
