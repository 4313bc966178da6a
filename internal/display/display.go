// Package display derives the public board projection. Reads are best-effort
// snapshots: they take no locks and may race with call/serve mutations, which
// is acceptable for a board that refreshes continuously.
package display

import (
	"context"

	"campusq/internal/clock"
	"campusq/internal/models"
	"campusq/internal/store"
)

type Store interface {
	GetPolicy(ctx context.Context, departmentID string) (models.DepartmentPolicy, error)
	GetDisplay(ctx context.Context, departmentID, dateKey string, upNextCount int) (store.Display, error)
}

type Aggregator struct {
	store Store
	clock clock.Clock
}

func NewAggregator(st Store, clk clock.Clock) *Aggregator {
	return &Aggregator{store: st, clock: clk}
}

// GetDisplay returns today's now-serving ticket and the up-next list truncated
// to the department's configured up_next_count.
func (a *Aggregator) GetDisplay(ctx context.Context, departmentID string) (store.Display, error) {
	policy, err := a.store.GetPolicy(ctx, departmentID)
	if err != nil {
		return store.Display{}, err
	}
	dateKey := a.clock.DateKey(a.clock.Now())
	return a.store.GetDisplay(ctx, departmentID, dateKey, policy.UpNextCount)
}
