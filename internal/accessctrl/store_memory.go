package accessctrl

import (
	"context"
	"sync"

	"civitas/pkg/platform/sentinel"
)

// InMemoryStore keeps the role assignment in process for tests and
// database-less deployments.
type InMemoryStore struct {
	mu     sync.RWMutex
	roles  Roles
	seeded bool
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Get(_ context.Context) (Roles, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.seeded {
		return Roles{}, sentinel.ErrNotFound
	}
	return s.roles, nil
}

func (s *InMemoryStore) Save(_ context.Context, roles Roles) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roles = roles
	s.seeded = true
	return nil
}
