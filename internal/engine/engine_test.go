package engine

import (
	"context"
	"testing"
	"time"

	"campusq/internal/clock"
	"campusq/internal/models"
	"campusq/internal/store"

	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	windowFn  func(ctx context.Context, windowID string) (models.Window, error)
	policyFn  func(ctx context.Context, departmentID string) (models.DepartmentPolicy, error)
	ticketFn  func(ctx context.Context, ticketID string) (models.Ticket, error)
	callFn    func(ctx context.Context, input store.CallNextInput) (models.Ticket, error)
	serveFn   func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error)
	holdFn    func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error)
	currentFn func(ctx context.Context, windowID, dateKey string) (models.Ticket, bool, error)
}

func (f fakeStore) GetWindow(ctx context.Context, windowID string) (models.Window, error) {
	if f.windowFn == nil {
		return models.Window{WindowID: windowID, DepartmentID: "dept-1", Number: 2, Enabled: true}, nil
	}
	return f.windowFn(ctx, windowID)
}

func (f fakeStore) GetPolicy(ctx context.Context, departmentID string) (models.DepartmentPolicy, error) {
	if f.policyFn == nil {
		return models.DepartmentPolicy{
			DepartmentID:        departmentID,
			MaxHoldAttempts:     3,
			UpNextCount:         5,
			RecallBeforeWaiting: true,
		}, nil
	}
	return f.policyFn(ctx, departmentID)
}

func (f fakeStore) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	if f.ticketFn == nil {
		return models.Ticket{TicketID: ticketID, DepartmentID: "dept-1", Status: models.StatusCalled}, nil
	}
	return f.ticketFn(ctx, ticketID)
}

func (f fakeStore) CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, error) {
	if f.callFn == nil {
		return models.Ticket{}, store.ErrNoTicket
	}
	return f.callFn(ctx, input)
}

func (f fakeStore) MarkServed(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	if f.serveFn == nil {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return f.serveFn(ctx, input)
}

func (f fakeStore) HoldOrNoShow(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	if f.holdFn == nil {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return f.holdFn(ctx, input)
}

func (f fakeStore) CurrentCalled(ctx context.Context, windowID, dateKey string) (models.Ticket, bool, error) {
	if f.currentFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.currentFn(ctx, windowID, dateKey)
}

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func testEngine(st fakeStore) *Engine {
	return New(st, clock.Fixed(testNow, "UTC"))
}

func TestCallNextResolvesWindowAndPolicy(t *testing.T) {
	var got store.CallNextInput
	st := fakeStore{
		callFn: func(ctx context.Context, input store.CallNextInput) (models.Ticket, error) {
			got = input
			return models.Ticket{TicketID: "ticket-1", Status: models.StatusCalled}, nil
		},
	}

	ticket, err := testEngine(st).CallNext(context.Background(), "req-1", "window-1")
	require.NoError(t, err)
	require.Equal(t, models.StatusCalled, ticket.Status)
	require.Equal(t, "req-1", got.RequestID)
	require.Equal(t, "dept-1", got.DepartmentID)
	require.Equal(t, "2026-03-02", got.DateKey)
	require.Equal(t, 2, got.WindowNumber)
	require.True(t, got.RecallBeforeWaiting)
	require.Equal(t, testNow, got.CalledAt)
}

func TestCallNextRecallDisabledByPolicy(t *testing.T) {
	var got store.CallNextInput
	st := fakeStore{
		policyFn: func(ctx context.Context, departmentID string) (models.DepartmentPolicy, error) {
			return models.DepartmentPolicy{DepartmentID: departmentID, MaxHoldAttempts: 3, UpNextCount: 5}, nil
		},
		callFn: func(ctx context.Context, input store.CallNextInput) (models.Ticket, error) {
			got = input
			return models.Ticket{TicketID: "ticket-1", Status: models.StatusCalled}, nil
		},
	}

	_, err := testEngine(st).CallNext(context.Background(), "req-1", "window-1")
	require.NoError(t, err)
	require.False(t, got.RecallBeforeWaiting)
}

func TestCallNextDisabledWindow(t *testing.T) {
	st := fakeStore{
		windowFn: func(ctx context.Context, windowID string) (models.Window, error) {
			return models.Window{WindowID: windowID, DepartmentID: "dept-1", Enabled: false}, nil
		},
	}

	_, err := testEngine(st).CallNext(context.Background(), "req-1", "window-1")
	require.ErrorIs(t, err, store.ErrWindowNotFound)
}

func TestCallNextEmptyQueue(t *testing.T) {
	_, err := testEngine(fakeStore{}).CallNext(context.Background(), "req-1", "window-1")
	require.ErrorIs(t, err, store.ErrNoTicket)
}

func TestMarkServedPassesThrough(t *testing.T) {
	var got store.TicketActionInput
	st := fakeStore{
		serveFn: func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
			got = input
			return models.Ticket{TicketID: input.TicketID, Status: models.StatusServed}, nil
		},
	}

	ticket, err := testEngine(st).MarkServed(context.Background(), "ticket-1")
	require.NoError(t, err)
	require.Equal(t, models.StatusServed, ticket.Status)
	require.Equal(t, "ticket-1", got.TicketID)
	require.Equal(t, testNow, got.OccurredAt)
}

func TestMarkServedNotIdempotent(t *testing.T) {
	st := fakeStore{
		serveFn: func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
			return models.Ticket{}, store.ErrInvalidTransition
		},
	}

	_, err := testEngine(st).MarkServed(context.Background(), "ticket-1")
	require.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestHoldUsesDepartmentPolicy(t *testing.T) {
	var got store.TicketActionInput
	st := fakeStore{
		policyFn: func(ctx context.Context, departmentID string) (models.DepartmentPolicy, error) {
			require.Equal(t, "dept-1", departmentID)
			return models.DepartmentPolicy{DepartmentID: departmentID, MaxHoldAttempts: 2, UpNextCount: 5}, nil
		},
		holdFn: func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
			got = input
			return models.Ticket{TicketID: input.TicketID, Status: models.StatusHold, HoldAttempts: 1}, nil
		},
	}

	ticket, err := testEngine(st).HoldOrNoShow(context.Background(), "ticket-1")
	require.NoError(t, err)
	require.Equal(t, models.StatusHold, ticket.Status)
	require.Equal(t, 2, got.MaxHoldAttempts)
}

func TestHoldUnknownTicket(t *testing.T) {
	st := fakeStore{
		ticketFn: func(ctx context.Context, ticketID string) (models.Ticket, error) {
			return models.Ticket{}, store.ErrTicketNotFound
		},
	}

	_, err := testEngine(st).HoldOrNoShow(context.Background(), "ticket-1")
	require.ErrorIs(t, err, store.ErrTicketNotFound)
}

func TestCurrentCalled(t *testing.T) {
	st := fakeStore{
		currentFn: func(ctx context.Context, windowID, dateKey string) (models.Ticket, bool, error) {
			require.Equal(t, "2026-03-02", dateKey)
			return models.Ticket{TicketID: "ticket-1", Status: models.StatusCalled}, true, nil
		},
	}

	ticket, found, err := testEngine(st).CurrentCalled(context.Background(), "window-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "ticket-1", ticket.TicketID)
}
