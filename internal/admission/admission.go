// Package admission validates and performs queue join requests. The checks here
// mirror what the store enforces transactionally; validation happens first so a
// rejected join has no side effects to roll back.
package admission

import (
	"context"
	"errors"
	"fmt"

	"campusq/internal/clock"
	"campusq/internal/models"
	"campusq/internal/store"
)

var (
	ErrInvalidPurposeSelection = errors.New("purpose selection not permitted for participant")
	ErrDepartmentLocked        = errors.New("participant is locked to another department")
	ErrMissingParticipant      = errors.New("participant id is required")
)

// DuplicateTicketError carries the conflicting active ticket so callers can
// show it instead of a bare error (the 409-with-payload contract).
type DuplicateTicketError struct {
	Ticket models.Ticket
}

func (e *DuplicateTicketError) Error() string {
	return fmt.Sprintf("active ticket %s already exists", e.Ticket.TicketID)
}

func (e *DuplicateTicketError) Unwrap() error {
	return store.ErrDuplicateActiveTicket
}

// Store is the slice of the ticket store the controller needs.
type Store interface {
	GetDepartment(ctx context.Context, departmentID string) (models.Department, error)
	GetParticipant(ctx context.Context, participantID string) (models.Participant, bool, error)
	FindActiveTicket(ctx context.Context, departmentID, dateKey, participantID string) (models.Ticket, bool, error)
	CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, bool, error)
}

type JoinRequest struct {
	RequestID     string
	DepartmentID  string
	ParticipantID string
	PurposeKeys   []string
}

type Controller struct {
	store Store
	clock clock.Clock
}

func NewController(st Store, clk clock.Clock) *Controller {
	return &Controller{store: st, clock: clk}
}

func (c *Controller) Join(ctx context.Context, req JoinRequest) (models.Ticket, error) {
	if req.ParticipantID == "" {
		return models.Ticket{}, ErrMissingParticipant
	}

	dept, err := c.store.GetDepartment(ctx, req.DepartmentID)
	if err != nil {
		return models.Ticket{}, err
	}
	if !dept.Enabled {
		return models.Ticket{}, store.ErrDepartmentDisabled
	}

	participant, known, err := c.store.GetParticipant(ctx, req.ParticipantID)
	if err != nil {
		return models.Ticket{}, err
	}
	if known {
		// The client guard rejects department switches locally; the server
		// re-validates because the guard is advisory only.
		if participant.DepartmentID != "" && participant.DepartmentID != req.DepartmentID {
			return models.Ticket{}, ErrDepartmentLocked
		}
		if len(participant.PurposeKeys) > 0 {
			if len(req.PurposeKeys) == 0 {
				return models.Ticket{}, ErrInvalidPurposeSelection
			}
			for _, key := range req.PurposeKeys {
				if !contains(participant.PurposeKeys, key) {
					return models.Ticket{}, ErrInvalidPurposeSelection
				}
			}
		}
	}

	now := c.clock.Now()
	dateKey := c.clock.DateKey(now)

	existing, found, err := c.store.FindActiveTicket(ctx, req.DepartmentID, dateKey, req.ParticipantID)
	if err != nil {
		return models.Ticket{}, err
	}
	if found {
		// A retry of the request that created the active ticket replays the
		// ticket; only a new request conflicts.
		if existing.RequestID == req.RequestID {
			return existing, nil
		}
		return models.Ticket{}, &DuplicateTicketError{Ticket: existing}
	}

	ticket, _, err := c.store.CreateTicket(ctx, store.CreateTicketInput{
		RequestID:     req.RequestID,
		DepartmentID:  req.DepartmentID,
		DateKey:       dateKey,
		ParticipantID: req.ParticipantID,
		PurposeKeys:   req.PurposeKeys,
		CreatedAt:     now,
	})
	if err != nil {
		// A concurrent join can slip past the pre-check; surface the winner's
		// ticket the same way.
		if errors.Is(err, store.ErrDuplicateActiveTicket) {
			if winner, ok, findErr := c.store.FindActiveTicket(ctx, req.DepartmentID, dateKey, req.ParticipantID); findErr == nil && ok {
				if winner.RequestID == req.RequestID {
					return winner, nil
				}
				return models.Ticket{}, &DuplicateTicketError{Ticket: winner}
			}
			return models.Ticket{}, err
		}
		return models.Ticket{}, err
	}
	return ticket, nil
}

// FindActive reports the participant's active ticket for today, if any.
func (c *Controller) FindActive(ctx context.Context, departmentID, participantID string) (models.Ticket, bool, error) {
	if participantID == "" {
		return models.Ticket{}, false, ErrMissingParticipant
	}
	dateKey := c.clock.DateKey(c.clock.Now())
	return c.store.FindActiveTicket(ctx, departmentID, dateKey, participantID)
}

func contains(values []string, value string) bool {
	for _, item := range values {
		if item == value {
			return true
		}
	}
	return false
}
