package models

import "time"

type Ticket struct {
	TicketID      string     `json:"ticket_id"`
	DepartmentID  string     `json:"department_id"`
	DateKey       string     `json:"date_key"`
	ParticipantID string     `json:"participant_id"`
	QueueNumber   int        `json:"queue_number"`
	Status        string     `json:"status"`
	HoldAttempts  int        `json:"hold_attempts"`
	PurposeKeys   []string   `json:"purpose_keys,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CalledAt      *time.Time `json:"called_at,omitempty"`
	ServedAt      *time.Time `json:"served_at,omitempty"`
	WindowID      *string    `json:"window_id,omitempty"`
	WindowNumber  *int       `json:"window_number,omitempty"`
	RequestID     string     `json:"request_id,omitempty"`
}

const (
	StatusWaiting = "waiting"
	StatusCalled  = "called"
	StatusServed  = "served"
	StatusHold    = "hold"
	StatusOut     = "out"
)

// ActiveStatuses are the statuses that count against the one-active-ticket
// invariant per (department, date key, participant).
var ActiveStatuses = []string{StatusWaiting, StatusCalled, StatusHold}

type Department struct {
	DepartmentID string `json:"department_id"`
	Name         string `json:"name"`
	Code         string `json:"code"`
	Enabled      bool   `json:"enabled"`
}

type Window struct {
	WindowID     string `json:"window_id"`
	DepartmentID string `json:"department_id"`
	Name         string `json:"name"`
	Number       int    `json:"number"`
	Enabled      bool   `json:"enabled"`
}

type StaffAssignment struct {
	StaffID      string  `json:"staff_id"`
	DepartmentID string  `json:"department_id"`
	WindowID     *string `json:"window_id,omitempty"`
}

// Participant is the profile a registrar keeps for a student or alumnus. A
// resolved DepartmentID locks all queue actions to that department; PurposeKeys
// is the set of transaction purposes the participant may queue for.
type Participant struct {
	ParticipantID string   `json:"participant_id"`
	DepartmentID  string   `json:"department_id"`
	FullName      string   `json:"full_name,omitempty"`
	PurposeKeys   []string `json:"purpose_keys,omitempty"`
}

// DepartmentPolicy holds the administrator-configured knobs for one department.
type DepartmentPolicy struct {
	DepartmentID        string `json:"department_id"`
	MaxHoldAttempts     int    `json:"max_hold_attempts"`
	UpNextCount         int    `json:"up_next_count"`
	RecallBeforeWaiting bool   `json:"recall_before_waiting"`
}

type User struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Role     string    `json:"role"`
	Created  time.Time `json:"created_at"`
}

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)
