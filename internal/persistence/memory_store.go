package persistence

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/flowgate/flowgate/pkg/api"
)

// InMemoryStore is a goroutine-safe implementation of WorkflowStore,
// ExecutionStore, and UserStore backed by maps. It is non-durable and
// intended for tests and local development.
type InMemoryStore struct {
	mu         sync.RWMutex
	workflows  map[string]*api.Workflow
	executions map[string]*api.ExecutionRecord
	users      map[string]*api.User
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		workflows:  make(map[string]*api.Workflow),
		executions: make(map[string]*api.ExecutionRecord),
		users:      make(map[string]*api.User),
	}
}

// Ensure InMemoryStore implements the interfaces.
var (
	_ WorkflowStore  = (*InMemoryStore)(nil)
	_ ExecutionStore = (*InMemoryStore)(nil)
	_ UserStore      = (*InMemoryStore)(nil)
)

func (s *InMemoryStore) SaveWorkflow(ctx context.Context, wf *api.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *wf
	s.workflows[wf.ID] = &cp
	return nil
}

func (s *InMemoryStore) UpdateWorkflow(ctx context.Context, wf *api.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[wf.ID]; !ok {
		return ErrWorkflowNotFound
	}
	cp := *wf
	s.workflows[wf.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetWorkflow(ctx context.Context, id string) (*api.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.workflows[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	cp := *wf
	return &cp, nil
}

func (s *InMemoryStore) ListWorkflows(ctx context.Context, userID string) ([]*api.Workflow, error) {
	return s.listWorkflows(userID, false)
}

func (s *InMemoryStore) ListPublishedWorkflows(ctx context.Context, userID string) ([]*api.Workflow, error) {
	return s.listWorkflows(userID, true)
}

func (s *InMemoryStore) listWorkflows(userID string, publishedOnly bool) ([]*api.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.Workflow
	for _, wf := range s.workflows {
		if wf.UserID != userID {
			continue
		}
		if publishedOnly && !wf.Publish {
			continue
		}
		cp := *wf
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *InMemoryStore) DeleteWorkflow(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[id]; !ok {
		return ErrWorkflowNotFound
	}
	delete(s.workflows, id)
	return nil
}

func (s *InMemoryStore) SetCronPath(ctx context.Context, id string, path []api.ActionKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, ok := s.workflows[id]
	if !ok {
		return ErrWorkflowNotFound
	}
	wf.CronPath = append([]api.ActionKind(nil), path...)
	return nil
}

func (s *InMemoryStore) SetPublish(ctx context.Context, id string, publish bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, ok := s.workflows[id]
	if !ok {
		return ErrWorkflowNotFound
	}
	wf.Publish = publish
	return nil
}

func (s *InMemoryStore) SaveExecution(ctx context.Context, rec *api.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	cp.Actions = append([]api.ActionResult(nil), rec.Actions...)
	s.executions[rec.ID] = &cp
	return nil
}

func (s *InMemoryStore) UpdateExecution(ctx context.Context, rec *api.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.executions[rec.ID]; !ok {
		return ErrExecutionNotFound
	}
	cp := *rec
	cp.Actions = append([]api.ActionResult(nil), rec.Actions...)
	s.executions[rec.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetExecution(ctx context.Context, id string) (*api.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.executions[id]
	if !ok {
		return nil, ErrExecutionNotFound
	}
	cp := *rec
	cp.Actions = append([]api.ActionResult(nil), rec.Actions...)
	return &cp, nil
}

func (s *InMemoryStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*api.ExecutionRecord, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*api.ExecutionRecord
	for _, rec := range s.executions {
		if filter.UserID != "" && rec.UserID != filter.UserID {
			continue
		}
		if filter.WorkflowID != "" && rec.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		cp := *rec
		cp.Actions = append([]api.ActionResult(nil), rec.Actions...)
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	offset := filter.Offset
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return matched[offset:end], total, nil
}

func (s *InMemoryStore) SaveUser(ctx context.Context, u *api.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetUser(ctx context.Context, id string) (*api.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *InMemoryStore) GetUserByResource(ctx context.Context, resourceID string) (*api.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.ResourceID == resourceID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *InMemoryStore) DecrementCredits(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	if u.Credits == api.CreditsUnlimited {
		return nil
	}
	n, err := strconv.Atoi(u.Credits)
	if err != nil || n <= 0 {
		u.Credits = "0"
		return nil
	}
	u.Credits = strconv.Itoa(n - 1)
	return nil
}
