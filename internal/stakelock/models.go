package stakelock

import (
	"time"

	id "civitas/pkg/domain"
)

// State is the observable lifecycle state of an account's lock. Withdrawal
// deletes the record, so a withdrawn lock is indistinguishable from no lock
// ever having existed; the state machine runs NoLock -> Active -> Expired and
// withdrawal returns it to NoLock.
type State string

const (
	StateNoLock  State = "no_lock"
	StateActive  State = "active"
	StateExpired State = "expired"
)

// Lock is an account's staked position. An account holds at most one lock.
// Amount and Maturity only ever increase while the lock is active; CreatedAt
// anchors the four-year horizon for later increases.
type Lock struct {
	Account   id.AccountID
	Amount    int64
	Maturity  time.Time
	CreatedAt time.Time
}

// Exists reports whether the value represents a stored lock. The zero Lock is
// the NoLock state.
func (l Lock) Exists() bool {
	return l.Amount > 0
}

// StateAt derives the lifecycle state at the given instant. Expiry is
// observed, never triggered: a lock becomes Expired the moment at reaches
// maturity, with no background transition.
func (l Lock) StateAt(at time.Time) State {
	switch {
	case !l.Exists():
		return StateNoLock
	case at.Before(l.Maturity):
		return StateActive
	default:
		return StateExpired
	}
}
