package credential

import (
	"context"
	"sort"
	"sync"
	"time"

	id "civitas/pkg/domain"
	"civitas/pkg/platform/sentinel"
)

// InMemoryStore keeps the credential ledger in process. A single RWMutex
// serializes mutations, which is exactly the total-ordering the ledger
// semantics require.
type InMemoryStore struct {
	mu          sync.RWMutex
	credentials map[id.CredentialID]Credential
	approvals   map[id.CredentialID]id.AccountID
	operators   map[id.AccountID]map[id.AccountID]bool
	receivers   map[id.AccountID]string
	counters    Counters
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		credentials: make(map[id.CredentialID]Credential),
		approvals:   make(map[id.CredentialID]id.AccountID),
		operators:   make(map[id.AccountID]map[id.AccountID]bool),
		receivers:   make(map[id.AccountID]string),
	}
}

func (s *InMemoryStore) Get(_ context.Context, credentialID id.CredentialID) (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.credentials[credentialID]
	if !ok {
		return Credential{}, sentinel.ErrNotFound
	}
	return cred, nil
}

func (s *InMemoryStore) Counters(_ context.Context) (Counters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters, nil
}

func (s *InMemoryStore) BalanceOf(_ context.Context, account id.AccountID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, cred := range s.credentials {
		if cred.Owner == account {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) CredentialsOf(_ context.Context, account id.AccountID) ([]Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Credential
	for _, cred := range s.credentials {
		if cred.Owner == account {
			out = append(out, cred)
		}
	}
	sortByID(out)
	return out, nil
}

func (s *InMemoryStore) ListAll(_ context.Context) ([]Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Credential, 0, len(s.credentials))
	for _, cred := range s.credentials {
		out = append(out, cred)
	}
	sortByID(out)
	return out, nil
}

func (s *InMemoryStore) Approved(_ context.Context, credentialID id.CredentialID) (id.AccountID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.approvals[credentialID], nil
}

func (s *InMemoryStore) IsOperator(_ context.Context, owner, operator id.AccountID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.operators[owner][operator], nil
}

func (s *InMemoryStore) Receiver(_ context.Context, account id.AccountID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.receivers[account], nil
}

func (s *InMemoryStore) Mint(_ context.Context, to id.AccountID, mintedAt time.Time) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred := Credential{
		ID:       s.counters.NextID,
		Owner:    to,
		MintedAt: mintedAt,
	}
	s.credentials[cred.ID] = cred
	s.counters.NextID++
	s.counters.TotalSupply++
	return cred, nil
}

func (s *InMemoryStore) Burn(_ context.Context, credentialID id.CredentialID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.credentials[credentialID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.credentials, credentialID)
	delete(s.approvals, credentialID)
	// NextID is deliberately untouched: burned ids are never reissued.
	s.counters.TotalSupply--
	return nil
}

func (s *InMemoryStore) Transfer(_ context.Context, from, to id.AccountID, credentialID id.CredentialID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.credentials[credentialID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if cred.Owner != from {
		return sentinel.ErrConflict
	}

	cred.Owner = to
	s.credentials[credentialID] = cred
	delete(s.approvals, credentialID)
	return nil
}

func (s *InMemoryStore) SetApproval(_ context.Context, credentialID id.CredentialID, spender id.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.credentials[credentialID]; !ok {
		return sentinel.ErrNotFound
	}
	if spender.IsZero() {
		delete(s.approvals, credentialID)
		return nil
	}
	s.approvals[credentialID] = spender
	return nil
}

func (s *InMemoryStore) SetOperator(_ context.Context, owner, operator id.AccountID, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if approved {
		if s.operators[owner] == nil {
			s.operators[owner] = make(map[id.AccountID]bool)
		}
		s.operators[owner][operator] = true
		return nil
	}
	delete(s.operators[owner], operator)
	return nil
}

func (s *InMemoryStore) SetReceiver(_ context.Context, account id.AccountID, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if endpoint == "" {
		delete(s.receivers, account)
		return nil
	}
	s.receivers[account] = endpoint
	return nil
}

func sortByID(creds []Credential) {
	sort.Slice(creds, func(i, j int) bool { return creds[i].ID < creds[j].ID })
}

// MemoryTx serializes ledger mutations with a single mutex, mirroring the
// host-ledger total ordering of the production path.
type MemoryTx struct {
	mu sync.Mutex
}

func NewMemoryTx() *MemoryTx {
	return &MemoryTx{}
}

func (t *MemoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(ctx)
}
