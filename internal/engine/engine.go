// Package engine implements the operations a window operator performs on the
// queue: call-next, mark-served, hold/no-show, current-called. The engine
// resolves the operator's window and department policy; the concurrency-safe
// ticket pick itself lives in the store.
package engine

import (
	"context"

	"campusq/internal/clock"
	"campusq/internal/models"
	"campusq/internal/store"
)

// Store is the slice of the ticket/admin store the engine needs.
type Store interface {
	GetWindow(ctx context.Context, windowID string) (models.Window, error)
	GetPolicy(ctx context.Context, departmentID string) (models.DepartmentPolicy, error)
	GetTicket(ctx context.Context, ticketID string) (models.Ticket, error)
	CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, error)
	MarkServed(ctx context.Context, input store.TicketActionInput) (models.Ticket, error)
	HoldOrNoShow(ctx context.Context, input store.TicketActionInput) (models.Ticket, error)
	CurrentCalled(ctx context.Context, windowID, dateKey string) (models.Ticket, bool, error)
}

type Engine struct {
	store Store
	clock clock.Clock
}

func New(st Store, clk clock.Clock) *Engine {
	return &Engine{store: st, clock: clk}
}

// CallNext calls the next eligible ticket for the window's department. Hold
// tickets awaiting recall take priority over fresh waiting tickets when the
// department policy says so (the default); each pool is FIFO by queue number.
func (e *Engine) CallNext(ctx context.Context, requestID, windowID string) (models.Ticket, error) {
	window, err := e.store.GetWindow(ctx, windowID)
	if err != nil {
		return models.Ticket{}, err
	}
	if !window.Enabled {
		return models.Ticket{}, store.ErrWindowNotFound
	}
	policy, err := e.store.GetPolicy(ctx, window.DepartmentID)
	if err != nil {
		return models.Ticket{}, err
	}

	now := e.clock.Now()
	return e.store.CallNext(ctx, store.CallNextInput{
		RequestID:           requestID,
		DepartmentID:        window.DepartmentID,
		DateKey:             e.clock.DateKey(now),
		WindowID:            window.WindowID,
		WindowNumber:        window.Number,
		RecallBeforeWaiting: policy.RecallBeforeWaiting,
		CalledAt:            now,
	})
}

// MarkServed is deliberately not idempotent: serving a ticket that is not in
// called status fails with ErrInvalidTransition so reports never double-count.
func (e *Engine) MarkServed(ctx context.Context, ticketID string) (models.Ticket, error) {
	now := e.clock.Now()
	return e.store.MarkServed(ctx, store.TicketActionInput{
		TicketID:   ticketID,
		DateKey:    e.clock.DateKey(now),
		OccurredAt: now,
	})
}

// HoldOrNoShow strikes a called ticket. The department's max_hold_attempts
// bounds how often a ticket can re-enter hold before it retires as out.
func (e *Engine) HoldOrNoShow(ctx context.Context, ticketID string) (models.Ticket, error) {
	ticket, err := e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	policy, err := e.store.GetPolicy(ctx, ticket.DepartmentID)
	if err != nil {
		return models.Ticket{}, err
	}

	now := e.clock.Now()
	return e.store.HoldOrNoShow(ctx, store.TicketActionInput{
		TicketID:        ticketID,
		DateKey:         e.clock.DateKey(now),
		OccurredAt:      now,
		MaxHoldAttempts: policy.MaxHoldAttempts,
	})
}

// CurrentCalled reports the most recent ticket this window called that is
// still in called status.
func (e *Engine) CurrentCalled(ctx context.Context, windowID string) (models.Ticket, bool, error) {
	dateKey := e.clock.DateKey(e.clock.Now())
	return e.store.CurrentCalled(ctx, windowID, dateKey)
}
