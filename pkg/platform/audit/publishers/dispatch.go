// Package publishers composes the category-specific audit publishers into a
// single audit.Publisher for services that emit mixed-category events.
package publishers

import (
	"context"

	audit "civitas/pkg/platform/audit"
)

// Dispatch routes each event to the publisher matching its category:
// compliance is fail-closed, security is buffered, operations is sampled.
type Dispatch struct {
	compliance audit.Publisher
	security   audit.Publisher
	operations audit.Publisher
}

func NewDispatch(compliance, security, operations audit.Publisher) *Dispatch {
	return &Dispatch{
		compliance: compliance,
		security:   security,
		operations: operations,
	}
}

// Emit routes by the action's category. Only compliance failures propagate.
func (d *Dispatch) Emit(ctx context.Context, event audit.Event) error {
	switch audit.AuditEvent(event.Action).Category() {
	case audit.CategoryCompliance:
		return d.compliance.Emit(ctx, event)
	case audit.CategorySecurity:
		return d.security.Emit(ctx, event)
	default:
		return d.operations.Emit(ctx, event)
	}
}
