package stakelock

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	id "civitas/pkg/domain"
)

func TestLockStateAt(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	maturity := created.Add(365 * 24 * time.Hour)
	lock := Lock{
		Account:   id.AccountID(uuid.New()),
		Amount:    1000,
		Maturity:  maturity,
		CreatedAt: created,
	}

	tests := []struct {
		name string
		lock Lock
		at   time.Time
		want State
	}{
		{"zero lock is NoLock", Lock{}, created, StateNoLock},
		{"before maturity is Active", lock, created, StateActive},
		{"one instant before maturity is Active", lock, maturity.Add(-time.Nanosecond), StateActive},
		{"at maturity is Expired", lock, maturity, StateExpired},
		{"after maturity is Expired", lock, maturity.Add(time.Hour), StateExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.lock.StateAt(tt.at))
		})
	}
}

func TestLockExists(t *testing.T) {
	assert.False(t, Lock{}.Exists())
	assert.True(t, Lock{Amount: 1}.Exists())
}
