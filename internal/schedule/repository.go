package schedule

import (
	"context"

	"github.com/carebook/scheduling/internal/provider"
)

// Repository stores one availability template per provider.
type Repository interface {
	GetByProvider(ctx context.Context, ref provider.Ref) (*Template, error)

	// Upsert replaces the provider's template wholesale. Templates are never
	// partially patched.
	Upsert(ctx context.Context, tpl Template) (*Template, error)

	// SetActive flips the active flag without touching the window.
	SetActive(ctx context.Context, ref provider.Ref, active bool) error
}
