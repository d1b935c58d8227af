// Package pricing resolves the price a provider charges for a service.
// Amounts are integer minor currency units throughout.
package pricing

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/carebook/scheduling/internal/provider"
)

var ErrPriceNotFound = errors.New("no price configured for provider and service")

// Lookup is the collaborator contract the booking path depends on.
type Lookup interface {
	GetPrice(ctx context.Context, ref provider.Ref, serviceID uuid.UUID) (int64, error)
}

// Split divides a total into the deposit due up front and the balance due
// after completion. The deposit is 10% of the total, rounded half away from
// zero on the minor unit; the balance is the remainder. Both are fixed at
// appointment creation and never recomputed.
func Split(total int64) (deposit, balance int64) {
	deposit = (total + 5) / 10
	balance = total - deposit
	return deposit, balance
}
