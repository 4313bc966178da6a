package postgres

import (
	"context"
	"database/sql"
	"errors"

	"campusq/internal/models"
	"campusq/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Policy defaults applied when a department has no department_policies row.
const (
	DefaultMaxHoldAttempts = 3
	DefaultUpNextCount     = 5
)

func (s *Store) CreateDepartment(ctx context.Context, name, code string) (models.Department, error) {
	dept := models.Department{
		DepartmentID: uuid.NewString(),
		Name:         name,
		Code:         code,
		Enabled:      true,
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO departments (department_id, name, code, enabled)
		VALUES ($1, $2, $3, TRUE)
	`, dept.DepartmentID, dept.Name, dept.Code)
	if err != nil {
		return models.Department{}, err
	}
	return dept, nil
}

func (s *Store) UpdateDepartment(ctx context.Context, dept models.Department) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE departments
		SET name = $2, code = $3, enabled = $4
		WHERE department_id = $1
	`, dept.DepartmentID, dept.Name, dept.Code, dept.Enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrDepartmentNotFound
	}
	return nil
}

func (s *Store) GetDepartment(ctx context.Context, departmentID string) (models.Department, error) {
	var dept models.Department
	row := s.pool.QueryRow(ctx, `
		SELECT department_id, name, code, enabled
		FROM departments
		WHERE department_id = $1
	`, departmentID)
	if err := row.Scan(&dept.DepartmentID, &dept.Name, &dept.Code, &dept.Enabled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Department{}, store.ErrDepartmentNotFound
		}
		return models.Department{}, err
	}
	return dept, nil
}

func (s *Store) ListDepartments(ctx context.Context, enabledOnly bool) ([]models.Department, error) {
	query := `
		SELECT department_id, name, code, enabled
		FROM departments
	`
	if enabledOnly {
		query += " WHERE enabled = TRUE"
	}
	query += " ORDER BY name ASC"

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var departments []models.Department
	for rows.Next() {
		var dept models.Department
		if err := rows.Scan(&dept.DepartmentID, &dept.Name, &dept.Code, &dept.Enabled); err != nil {
			return nil, err
		}
		departments = append(departments, dept)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return departments, nil
}

func (s *Store) CreateWindow(ctx context.Context, departmentID, name string, number int) (models.Window, error) {
	window := models.Window{
		WindowID:     uuid.NewString(),
		DepartmentID: departmentID,
		Name:         name,
		Number:       number,
		Enabled:      true,
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO windows (window_id, department_id, name, number, enabled)
		VALUES ($1, $2, $3, $4, TRUE)
	`, window.WindowID, window.DepartmentID, window.Name, window.Number)
	if err != nil {
		return models.Window{}, err
	}
	return window, nil
}

func (s *Store) UpdateWindow(ctx context.Context, window models.Window) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE windows
		SET name = $2, number = $3, enabled = $4
		WHERE window_id = $1
	`, window.WindowID, window.Name, window.Number, window.Enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrWindowNotFound
	}
	return nil
}

func (s *Store) GetWindow(ctx context.Context, windowID string) (models.Window, error) {
	var window models.Window
	row := s.pool.QueryRow(ctx, `
		SELECT window_id, department_id, name, number, enabled
		FROM windows
		WHERE window_id = $1
	`, windowID)
	if err := row.Scan(&window.WindowID, &window.DepartmentID, &window.Name, &window.Number, &window.Enabled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Window{}, store.ErrWindowNotFound
		}
		return models.Window{}, err
	}
	return window, nil
}

func (s *Store) ListWindows(ctx context.Context, departmentID string) ([]models.Window, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT window_id, department_id, name, number, enabled
		FROM windows
		WHERE department_id = $1
		ORDER BY number ASC
	`, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var windows []models.Window
	for rows.Next() {
		var window models.Window
		if err := rows.Scan(&window.WindowID, &window.DepartmentID, &window.Name, &window.Number, &window.Enabled); err != nil {
			return nil, err
		}
		windows = append(windows, window)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return windows, nil
}

// AssignStaff is last-write-wins: a staff member has at most one active
// department/window binding.
func (s *Store) AssignStaff(ctx context.Context, assignment models.StaffAssignment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO staff_assignments (staff_id, department_id, window_id, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (staff_id)
		DO UPDATE SET department_id = $2, window_id = $3, updated_at = NOW()
	`, assignment.StaffID, assignment.DepartmentID, assignment.WindowID)
	return err
}

func (s *Store) GetAssignment(ctx context.Context, staffID string) (models.StaffAssignment, error) {
	var assignment models.StaffAssignment
	var windowID sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT staff_id, department_id, window_id
		FROM staff_assignments
		WHERE staff_id = $1
	`, staffID)
	if err := row.Scan(&assignment.StaffID, &assignment.DepartmentID, &windowID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.StaffAssignment{}, store.ErrAssignmentNotFound
		}
		return models.StaffAssignment{}, err
	}
	if windowID.Valid {
		assignment.WindowID = &windowID.String
	}
	return assignment, nil
}

func (s *Store) UpsertParticipant(ctx context.Context, participant models.Participant) error {
	purposes := participant.PurposeKeys
	if purposes == nil {
		purposes = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO participants (participant_id, department_id, full_name, purpose_keys)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (participant_id)
		DO UPDATE SET department_id = $2, full_name = $3, purpose_keys = $4
	`, participant.ParticipantID, nullIfEmpty(participant.DepartmentID), participant.FullName, purposes)
	return err
}

func (s *Store) GetParticipant(ctx context.Context, participantID string) (models.Participant, bool, error) {
	var participant models.Participant
	var departmentID sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT participant_id, department_id, full_name, purpose_keys
		FROM participants
		WHERE participant_id = $1
	`, participantID)
	if err := row.Scan(&participant.ParticipantID, &departmentID, &participant.FullName, &participant.PurposeKeys); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Participant{}, false, nil
		}
		return models.Participant{}, false, err
	}
	if departmentID.Valid {
		participant.DepartmentID = departmentID.String
	}
	return participant, true, nil
}

func (s *Store) UpsertPolicy(ctx context.Context, policy models.DepartmentPolicy) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO department_policies (department_id, max_hold_attempts, up_next_count, recall_before_waiting)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (department_id)
		DO UPDATE SET max_hold_attempts = $2, up_next_count = $3, recall_before_waiting = $4
	`, policy.DepartmentID, policy.MaxHoldAttempts, policy.UpNextCount, policy.RecallBeforeWaiting)
	return err
}

func (s *Store) GetPolicy(ctx context.Context, departmentID string) (models.DepartmentPolicy, error) {
	policy := models.DepartmentPolicy{
		DepartmentID:        departmentID,
		MaxHoldAttempts:     s.opts.MaxHoldAttempts,
		UpNextCount:         s.opts.UpNextCount,
		RecallBeforeWaiting: true,
	}
	row := s.pool.QueryRow(ctx, `
		SELECT max_hold_attempts, up_next_count, recall_before_waiting
		FROM department_policies
		WHERE department_id = $1
	`, departmentID)
	if err := row.Scan(&policy.MaxHoldAttempts, &policy.UpNextCount, &policy.RecallBeforeWaiting); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return policy, nil
		}
		return models.DepartmentPolicy{}, err
	}
	return policy, nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
