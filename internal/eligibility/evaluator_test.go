package eligibility

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civitas/internal/policy"
	"civitas/internal/stakelock"
	id "civitas/pkg/domain"
)

func yearLock(t *testing.T, amount int64, duration time.Duration, createdAt time.Time) stakelock.Lock {
	t.Helper()
	return stakelock.Lock{
		Account:   id.AccountID(uuid.New()),
		Amount:    amount,
		Maturity:  createdAt.Add(duration),
		CreatedAt: createdAt,
	}
}

func TestDecayedBalance(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	year := 365 * 24 * time.Hour
	full := yearLock(t, 1000, policy.MaxLockDuration, t0)

	tests := []struct {
		name string
		lock stakelock.Lock
		at   time.Time
		want int64
	}{
		{"no lock", stakelock.Lock{}, t0, 0},
		{"maximum lock at creation", full, t0, 1000},
		{"halfway through horizon", full, t0.Add(2 * year), 500},
		{"three quarters through", full, t0.Add(3 * year), 250},
		{"at maturity", full, full.Maturity, 0},
		{"after maturity", full, full.Maturity.Add(time.Hour), 0},
		{"one second before maturity floors to zero", full, full.Maturity.Add(-time.Second), 0},
		{"short lock starts below full", yearLock(t, 1000, year, t0), t0, 250},
		{"short lock halfway", yearLock(t, 1000, year, t0), t0.Add(year / 2), 125},
		{"evaluation before creation clamps to amount", full, t0.Add(-time.Hour), 1000},
		{"large amounts survive the intermediate product", yearLock(t, 1<<60, policy.MaxLockDuration, t0), t0.Add(2 * year), 1 << 59},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecayedBalance(tt.lock, tt.at))
		})
	}
}

func TestIsEligible(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	year := 365 * 24 * time.Hour
	lock := yearLock(t, 1000, policy.MaxLockDuration, t0)

	assert.True(t, IsEligible(lock, t0, 1000))
	assert.True(t, IsEligible(lock, t0.Add(2*year), 500))
	assert.False(t, IsEligible(lock, t0.Add(2*year), 501))
	assert.False(t, IsEligible(lock, lock.Maturity, 1))
	assert.True(t, IsEligible(lock, lock.Maturity, 0))
	assert.False(t, IsEligible(stakelock.Lock{}, t0, 1))
}

func TestVestingStart(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	year := 365 * 24 * time.Hour

	t.Run("no lock", func(t *testing.T) {
		_, ok := VestingStart(stakelock.Lock{}, t0)
		assert.False(t, ok)
	})

	t.Run("maximum lock anchors at evaluation instant", func(t *testing.T) {
		lock := yearLock(t, 1000, policy.MaxLockDuration, t0)
		start, ok := VestingStart(lock, t0)
		require.True(t, ok)
		assert.Equal(t, t0, start)
	})

	t.Run("anchor moves with the evaluation instant", func(t *testing.T) {
		lock := yearLock(t, 1000, policy.MaxLockDuration, t0)
		start, ok := VestingStart(lock, t0.Add(2*year))
		require.True(t, ok)
		assert.Equal(t, t0.Add(2*year), start)
	})

	t.Run("matured lock anchors at maturity", func(t *testing.T) {
		lock := yearLock(t, 1000, year, t0)
		start, ok := VestingStart(lock, lock.Maturity.Add(time.Hour))
		require.True(t, ok)
		assert.Equal(t, lock.Maturity, start)
	})
}

func TestProjection(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lock := yearLock(t, 1000, policy.MaxLockDuration, t0)

	t.Run("no lock", func(t *testing.T) {
		assert.Nil(t, Projection(stakelock.Lock{}, t0, 16))
	})

	t.Run("non-positive points", func(t *testing.T) {
		assert.Nil(t, Projection(lock, t0, 0))
	})

	t.Run("matured lock is a single zero sample", func(t *testing.T) {
		at := lock.Maturity.Add(time.Minute)
		curve := Projection(lock, at, 16)
		require.Len(t, curve, 1)
		assert.Equal(t, at, curve[0].At)
		assert.Zero(t, curve[0].Balance)
	})

	t.Run("curve spans now to maturity", func(t *testing.T) {
		curve := Projection(lock, t0, 4)
		require.Len(t, curve, 5)

		assert.Equal(t, t0, curve[0].At)
		assert.Equal(t, int64(1000), curve[0].Balance)
		assert.Equal(t, lock.Maturity, curve[4].At)
		assert.Zero(t, curve[4].Balance)

		for i := 1; i < len(curve); i++ {
			assert.True(t, curve[i].At.After(curve[i-1].At))
			assert.LessOrEqual(t, curve[i].Balance, curve[i-1].Balance)
		}
	})
}
