package stakelock

import (
	"context"
	"sort"
	"sync"

	id "civitas/pkg/domain"
	"civitas/pkg/platform/sentinel"
)

// InMemoryStore keeps locks in process for tests and single-node runs.
type InMemoryStore struct {
	mu    sync.RWMutex
	locks map[id.AccountID]Lock
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{locks: make(map[id.AccountID]Lock)}
}

func (s *InMemoryStore) Get(_ context.Context, account id.AccountID) (Lock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lock, ok := s.locks[account]
	if !ok {
		return Lock{}, sentinel.ErrNotFound
	}
	return lock, nil
}

func (s *InMemoryStore) Save(_ context.Context, lock Lock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[lock.Account] = lock
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, account id.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.locks[account]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.locks, account)
	return nil
}

func (s *InMemoryStore) ListAll(_ context.Context) ([]Lock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Lock, 0, len(s.locks))
	for _, lock := range s.locks {
		out = append(out, lock)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Account.String() < out[j].Account.String()
	})
	return out, nil
}
