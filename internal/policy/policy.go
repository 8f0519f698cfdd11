// Package policy holds product-level constants for the credential ledger.
// Values that operators tune per deployment live in config; values here are
// protocol constants shared by every deployment.
package policy

import "time"

// MaxLockDuration is the longest a stake lock may run, measured from the
// lock's creation. Locks decay linearly over this horizon: a lock created for
// the full duration starts at its full amount and reaches zero at maturity.
const MaxLockDuration = 4 * 365 * 24 * time.Hour

// DefaultEligibilityThreshold is the decayed balance, in stake base units,
// required to claim a credential when the deployment does not override it.
const DefaultEligibilityThreshold int64 = 1000

// DefaultRevocationMinimum is the decayed balance below which the revocation
// sweep burns an already-issued credential. Deployments that do not want
// automatic revocation set the minimum to zero.
const DefaultRevocationMinimum int64 = 0

// ProjectionDefaultPoints and ProjectionMaxPoints bound the balance curve
// sampling for the projection endpoint.
const (
	ProjectionDefaultPoints = 16
	ProjectionMaxPoints     = 256
)

// EligibilityCacheTTL bounds staleness of cached eligibility snapshots. The
// cache serves display reads only; gating decisions always recompute.
var EligibilityCacheTTL = 30 * time.Second
