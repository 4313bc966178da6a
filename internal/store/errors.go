package store

import "errors"

var (
	ErrDepartmentNotFound    = errors.New("department not found")
	ErrDepartmentDisabled    = errors.New("department disabled")
	ErrWindowNotFound        = errors.New("window not found")
	ErrTicketNotFound        = errors.New("ticket not found")
	ErrNoTicket              = errors.New("no callable ticket")
	ErrInvalidTransition     = errors.New("ticket state does not allow this transition")
	ErrDuplicateActiveTicket = errors.New("participant already holds an active ticket")
	ErrAssignmentNotFound    = errors.New("staff assignment not found")
	ErrSessionNotFound       = errors.New("session not found")
	ErrInvalidCredentials    = errors.New("invalid credentials")
)
