package store

import (
	"context"
	"encoding/json"
	"time"

	"campusq/internal/models"
)

type CreateTicketInput struct {
	RequestID     string
	DepartmentID  string
	DateKey       string
	ParticipantID string
	PurposeKeys   []string
	CreatedAt     time.Time
}

type CallNextInput struct {
	// RequestID dedupes staff retries: a replay returns the ticket the first
	// call picked (or ErrNoTicket again) instead of advancing the queue.
	RequestID    string
	DepartmentID string
	DateKey      string
	WindowID     string
	WindowNumber int
	// RecallBeforeWaiting drains recall-eligible hold tickets ahead of fresh
	// waiting tickets; each pool is FIFO by queue number either way.
	RecallBeforeWaiting bool
	CalledAt            time.Time
}

// TicketActionInput drives served and hold transitions. These carry no
// request ID: both act on an explicit ticket in the called state, so a
// replay fails the status precondition rather than repeating work.
type TicketActionInput struct {
	TicketID   string
	DateKey    string
	WindowID   string
	OccurredAt time.Time
	// MaxHoldAttempts applies to hold actions only.
	MaxHoldAttempts int
}

// Display is the read projection a public board renders.
type Display struct {
	DepartmentID string          `json:"department_id"`
	DateKey      string          `json:"date_key"`
	NowServing   *models.Ticket  `json:"now_serving"`
	UpNext       []models.Ticket `json:"up_next"`
}

// TicketStore is the single source of truth for tickets and their daily
// sequence counters. Mutations behave as if serialized per (department,
// date key); see the postgres implementation.
type TicketStore interface {
	CreateTicket(ctx context.Context, input CreateTicketInput) (models.Ticket, bool, error)
	GetTicket(ctx context.Context, ticketID string) (models.Ticket, error)
	FindActiveTicket(ctx context.Context, departmentID, dateKey, participantID string) (models.Ticket, bool, error)
	ListWaiting(ctx context.Context, departmentID, dateKey string, limit int) ([]models.Ticket, error)
	CallNext(ctx context.Context, input CallNextInput) (models.Ticket, error)
	MarkServed(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	HoldOrNoShow(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	CurrentCalled(ctx context.Context, windowID, dateKey string) (models.Ticket, bool, error)
	GetDisplay(ctx context.Context, departmentID, dateKey string, upNextCount int) (Display, error)
	ListOutboxEvents(ctx context.Context, afterTime time.Time, afterID string, limit int) ([]OutboxEvent, error)
}

// AdminStore owns departments, windows, staff, participants, and policies.
type AdminStore interface {
	CreateDepartment(ctx context.Context, name, code string) (models.Department, error)
	UpdateDepartment(ctx context.Context, dept models.Department) error
	GetDepartment(ctx context.Context, departmentID string) (models.Department, error)
	ListDepartments(ctx context.Context, enabledOnly bool) ([]models.Department, error)
	CreateWindow(ctx context.Context, departmentID, name string, number int) (models.Window, error)
	UpdateWindow(ctx context.Context, window models.Window) error
	GetWindow(ctx context.Context, windowID string) (models.Window, error)
	ListWindows(ctx context.Context, departmentID string) ([]models.Window, error)
	AssignStaff(ctx context.Context, assignment models.StaffAssignment) error
	GetAssignment(ctx context.Context, staffID string) (models.StaffAssignment, error)
	UpsertParticipant(ctx context.Context, participant models.Participant) error
	GetParticipant(ctx context.Context, participantID string) (models.Participant, bool, error)
	UpsertPolicy(ctx context.Context, policy models.DepartmentPolicy) error
	GetPolicy(ctx context.Context, departmentID string) (models.DepartmentPolicy, error)
}

// AuthStore backs staff login and session lookup.
type AuthStore interface {
	Login(ctx context.Context, username, password string) (models.User, Session, error)
	GetSession(ctx context.Context, sessionID string) (Session, models.User, error)
}

type Session struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type OutboxEvent struct {
	EventID      string          `json:"event_id"`
	DepartmentID string          `json:"department_id"`
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"created_at"`
}
