// Package accessctrl holds the two-role authorization primitive the
// credential ledger consumes. The owner administers the deployment; the
// controller is the delegated operational account that moves credentials.
// No other module mutates these roles.
package accessctrl

import (
	"time"

	id "civitas/pkg/domain"
)

// Role is a privilege scope a caller can be checked against.
type Role string

const (
	// RoleOwner gates administrative actions: controller rotation, renderer
	// swaps, custody sweeps.
	RoleOwner Role = "owner"
	// RoleController gates credential mutation: mint, burn, transfer.
	RoleController Role = "controller"
)

// Roles is the stored role assignment. Exactly one row exists per
// deployment.
type Roles struct {
	Owner      id.AccountID
	Controller id.AccountID
	UpdatedAt  time.Time
}

// Grant is a typed authorization result. Services thread it through so a
// privileged code path cannot be entered without a capability check having
// produced one.
type Grant struct {
	Caller    id.AccountID
	Role      Role
	CheckedAt time.Time
}
