package staketoken

import (
	"context"
	"sync"

	id "civitas/pkg/domain"
	dErrors "civitas/pkg/domain-errors"
)

// Memory is an in-process token service for tests and database-less
// deployments. It implements standard balance/allowance semantics with the
// ledger's custody account as the implicit spender.
type Memory struct {
	mu       sync.Mutex
	custody  id.AccountID
	balances map[id.Asset]map[id.AccountID]int64
	// allowances[asset][owner] is the amount the custody account may pull.
	allowances map[id.Asset]map[id.AccountID]int64
}

func NewMemory(custody id.AccountID) *Memory {
	return &Memory{
		custody:    custody,
		balances:   make(map[id.Asset]map[id.AccountID]int64),
		allowances: make(map[id.Asset]map[id.AccountID]int64),
	}
}

// Credit adds balance to an account. Test and dev seeding only.
func (m *Memory) Credit(asset id.Asset, account id.AccountID, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureAsset(asset)
	m.balances[asset][account] += amount
}

// Approve sets the custody account's allowance for an owner.
func (m *Memory) Approve(asset id.Asset, owner id.AccountID, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureAsset(asset)
	m.allowances[asset][owner] = amount
}

func (m *Memory) BalanceOf(_ context.Context, asset id.Asset, account id.AccountID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if accounts, ok := m.balances[asset]; ok {
		return accounts[account], nil
	}
	return 0, nil
}

func (m *Memory) TransferFrom(_ context.Context, asset id.Asset, from, to id.AccountID, amount int64) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "transfer amount must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureAsset(asset)

	if m.allowances[asset][from] < amount {
		return dErrors.New(dErrors.CodeConflict, "insufficient allowance")
	}
	if m.balances[asset][from] < amount {
		return dErrors.New(dErrors.CodeConflict, "insufficient balance")
	}

	m.allowances[asset][from] -= amount
	m.balances[asset][from] -= amount
	m.balances[asset][to] += amount
	return nil
}

func (m *Memory) Transfer(_ context.Context, asset id.Asset, to id.AccountID, amount int64) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "transfer amount must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureAsset(asset)

	if m.balances[asset][m.custody] < amount {
		return dErrors.New(dErrors.CodeConflict, "insufficient custody balance")
	}

	m.balances[asset][m.custody] -= amount
	m.balances[asset][to] += amount
	return nil
}

func (m *Memory) ensureAsset(asset id.Asset) {
	if _, ok := m.balances[asset]; !ok {
		m.balances[asset] = make(map[id.AccountID]int64)
	}
	if _, ok := m.allowances[asset]; !ok {
		m.allowances[asset] = make(map[id.AccountID]int64)
	}
}
