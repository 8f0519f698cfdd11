package accessctrl

import "context"

// Store persists the deployment's role assignment.
// Get returns sentinel.ErrNotFound (wrapped or bare) before the first Save.
type Store interface {
	Get(ctx context.Context) (Roles, error)
	Save(ctx context.Context, roles Roles) error
}
