// Package eligibility computes decayed stake balances and gates credential
// issuance on them. The arithmetic in this file is pure: no clocks, no
// stores, no I/O. Callers supply the evaluation instant, so one request (or
// one sweep batch) observes one consistent set of balances.
package eligibility

import (
	"math/bits"
	"time"

	"civitas/internal/policy"
	"civitas/internal/stakelock"
)

// horizonSeconds is the decay window: a lock's balance falls from its full
// amount to zero across this many seconds before maturity.
const horizonSeconds = int64(policy.MaxLockDuration / time.Second)

// DecayedBalance returns the lock's voting-weight balance at the given
// instant, in stake base units.
//
// The balance is amount * remaining / horizon, clamped to [0, amount]:
// zero at or after maturity, the full amount when the remaining life covers
// the whole horizon (only possible at creation of a maximum-length lock),
// and linearly interpolated in between. Integer division floors, which biases
// balances downward; gating therefore never overstates a position.
//
// Locks that do not exist short-circuit to zero before any arithmetic, so no
// division can observe a zero amount.
func DecayedBalance(lock stakelock.Lock, at time.Time) int64 {
	if !lock.Exists() {
		return 0
	}

	remaining := lock.Maturity.Unix() - at.Unix()
	switch {
	case remaining <= 0:
		return 0
	case remaining >= horizonSeconds:
		return lock.Amount
	default:
		return mulDiv(lock.Amount, remaining, horizonSeconds)
	}
}

// IsEligible reports whether the lock's decayed balance meets the threshold
// at the given instant.
func IsEligible(lock stakelock.Lock, at time.Time, threshold int64) bool {
	return DecayedBalance(lock, at) >= threshold
}

// VestingStart returns the implied instant at which the lock's decay line,
// anchored at the current balance, would have stood at the full amount:
// maturity minus (balance/amount) of the horizon. The second result is false
// when no lock exists.
//
// The anchor deliberately moves with the evaluation instant. Two locks with
// identical amount and maturity observed at different times project different
// starts; the curve is a display aid, not a stored fact.
func VestingStart(lock stakelock.Lock, at time.Time) (time.Time, bool) {
	if !lock.Exists() {
		return time.Time{}, false
	}

	balance := DecayedBalance(lock, at)
	offset := mulDiv(balance, horizonSeconds, lock.Amount)
	return lock.Maturity.Add(-time.Duration(offset) * time.Second), true
}

// Point is one sample of a projected balance curve.
type Point struct {
	At      time.Time
	Balance int64
}

// Projection samples the decay curve from at to maturity inclusive, returning
// points+1 samples. It returns nil when no lock exists and a single zero
// sample when the lock has already matured.
func Projection(lock stakelock.Lock, at time.Time, points int) []Point {
	if !lock.Exists() || points < 1 {
		return nil
	}
	if !at.Before(lock.Maturity) {
		return []Point{{At: at, Balance: 0}}
	}

	span := lock.Maturity.Unix() - at.Unix()
	curve := make([]Point, 0, points+1)
	for i := 0; i <= points; i++ {
		sampleAt := at.Add(time.Duration(span*int64(i)/int64(points)) * time.Second)
		if i == points {
			sampleAt = lock.Maturity
		}
		curve = append(curve, Point{At: sampleAt, Balance: DecayedBalance(lock, sampleAt)})
	}
	return curve
}

// mulDiv computes a*b/den without 64-bit overflow in the intermediate
// product. Callers guarantee a, b, den > 0 and that the true quotient fits in
// int64, which holds for both uses here: balances never exceed the lock
// amount and offsets never exceed the horizon.
func mulDiv(a, b, den int64) int64 {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	q, _ := bits.Div64(hi, lo, uint64(den))
	return int64(q)
}
