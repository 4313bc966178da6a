package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"campusq/internal/models"
	"campusq/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
	opts Options
}

// Options carries the service-wide fallback policy knobs applied when a
// department has no department_policies row. Zero values fall back to the
// package defaults.
type Options struct {
	MaxHoldAttempts int
	UpNextCount     int
}

func NewStore(pool *pgxpool.Pool, opts Options) *Store {
	if opts.MaxHoldAttempts <= 0 {
		opts.MaxHoldAttempts = DefaultMaxHoldAttempts
	}
	if opts.UpNextCount <= 0 {
		opts.UpNextCount = DefaultUpNextCount
	}
	return &Store{pool: pool, opts: opts}
}

const ticketColumns = `ticket_id, request_id, department_id, date_key, participant_id, queue_number,
	status, hold_attempts, purpose_keys, created_at, called_at, served_at, window_id, window_number`

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, err := findTicketByRequestID(ctx, tx, input.RequestID)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, false, err
		}
		return existing, false, nil
	}

	_, found, err = findActiveTicketTx(ctx, tx, input.DepartmentID, input.DateKey, input.ParticipantID)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if found {
		err = store.ErrDuplicateActiveTicket
		return models.Ticket{}, false, err
	}

	seq, err := nextQueueNumber(ctx, tx, input.DepartmentID, input.DateKey)
	if err != nil {
		return models.Ticket{}, false, err
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	purposes := input.PurposeKeys
	if purposes == nil {
		purposes = []string{}
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO tickets (
			ticket_id, request_id, department_id, date_key, participant_id,
			queue_number, status, hold_attempts, purpose_keys, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8,$9)
		RETURNING `+ticketColumns+`
	`, uuid.NewString(), input.RequestID, input.DepartmentID, input.DateKey, input.ParticipantID,
		seq, models.StatusWaiting, purposes, createdAt)

	ticket, err := scanTicket(row)
	if err != nil {
		// A concurrent join for the same participant can beat the check above;
		// the partial unique index is the authoritative guard.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "uq_tickets_active" {
			return models.Ticket{}, false, store.ErrDuplicateActiveTicket
		}
		return models.Ticket{}, false, err
	}

	if err = insertOutboxEvent(ctx, tx, "ticket.created", ticket); err != nil {
		return models.Ticket{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE ticket_id = $1
	`, ticketID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) FindActiveTicket(ctx context.Context, departmentID, dateKey, participantID string) (models.Ticket, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE department_id = $1 AND date_key = $2 AND participant_id = $3
			AND status = ANY($4)
	`, departmentID, dateKey, participantID, models.ActiveStatuses)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) ListWaiting(ctx context.Context, departmentID, dateKey string, limit int) ([]models.Ticket, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE department_id = $1 AND date_key = $2 AND status = 'waiting'
		ORDER BY queue_number ASC
		LIMIT $3
	`, departmentID, dateKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, empty, err := findActionRequest(ctx, tx, "call_next", input.RequestID)
	if err != nil {
		return models.Ticket{}, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, err
		}
		if empty {
			return models.Ticket{}, store.ErrNoTicket
		}
		return existing, nil
	}

	calledAt := input.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}

	pools := []string{models.StatusHold, models.StatusWaiting}
	if !input.RecallBeforeWaiting {
		pools = []string{models.StatusWaiting, models.StatusHold}
	}

	var ticket models.Ticket
	for _, pool := range pools {
		ticket, err = callNextFromPool(ctx, tx, input, pool, calledAt)
		if err == nil {
			break
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, err
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		// Record the empty outcome too, so a retry of this request does not
		// pull a ticket that arrived in between.
		if err = insertActionRequest(ctx, tx, "call_next", input.RequestID, ""); err != nil {
			return models.Ticket{}, err
		}
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, err
		}
		return models.Ticket{}, store.ErrNoTicket
	}

	if err = insertActionRequest(ctx, tx, "call_next", input.RequestID, ticket.TicketID); err != nil {
		return models.Ticket{}, err
	}
	if err = insertOutboxEvent(ctx, tx, "ticket.called", ticket); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

// findActionRequest reports whether a staff action with this request ID
// already ran. found with empty=true means the action ran and matched no
// ticket; otherwise the recorded ticket is reloaded and returned.
func findActionRequest(ctx context.Context, tx pgx.Tx, action, requestID string) (models.Ticket, bool, bool, error) {
	var ticketID sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT ticket_id
		FROM action_requests
		WHERE request_id = $1 AND action = $2
	`, requestID, action)
	if err := row.Scan(&ticketID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, false, nil
		}
		return models.Ticket{}, false, false, err
	}
	if !ticketID.Valid {
		return models.Ticket{}, true, true, nil
	}

	row = tx.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE ticket_id = $1
	`, ticketID.String)
	ticket, err := scanTicket(row)
	if err != nil {
		return models.Ticket{}, false, false, err
	}
	return ticket, true, false, nil
}

func insertActionRequest(ctx context.Context, tx pgx.Tx, action, requestID, ticketID string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO action_requests (request_id, action, ticket_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (request_id) DO NOTHING
	`, requestID, action, nullIfEmpty(ticketID))
	return err
}

// callNextFromPool picks the oldest ticket (lowest queue number) in the given
// status pool and flips it to called. SKIP LOCKED keeps two windows calling at
// once from grabbing the same ticket.
func callNextFromPool(ctx context.Context, tx pgx.Tx, input store.CallNextInput, pool string, calledAt time.Time) (models.Ticket, error) {
	row := tx.QueryRow(ctx, `
		WITH next_ticket AS (
			SELECT ticket_id
			FROM tickets
			WHERE department_id = $1 AND date_key = $2 AND status = $3
			ORDER BY queue_number ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE tickets
		SET status = 'called',
			window_id = $4,
			window_number = $5,
			called_at = $6
		FROM next_ticket
		WHERE tickets.ticket_id = next_ticket.ticket_id
		RETURNING `+qualifiedTicketColumns("tickets")+`
	`, input.DepartmentID, input.DateKey, pool, input.WindowID, input.WindowNumber, calledAt)
	return scanTicket(row)
}

func (s *Store) MarkServed(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		UPDATE tickets
		SET status = 'served',
			served_at = $3
		WHERE ticket_id = $1 AND date_key = $2 AND status = 'called'
		RETURNING `+ticketColumns+`
	`, input.TicketID, input.DateKey, occurredAt)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = classifyMissedUpdate(ctx, tx, input.TicketID, input.DateKey)
			return models.Ticket{}, err
		}
		return models.Ticket{}, err
	}

	if err = insertOutboxEvent(ctx, tx, "ticket.served", ticket); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) HoldOrNoShow(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var status string
	var attempts int
	row := tx.QueryRow(ctx, `
		SELECT status, hold_attempts
		FROM tickets
		WHERE ticket_id = $1 AND date_key = $2
		FOR UPDATE
	`, input.TicketID, input.DateKey)
	if err = row.Scan(&status, &attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	if !store.ValidTransition("hold", status) {
		err = store.ErrInvalidTransition
		return models.Ticket{}, err
	}

	nextStatus, nextAttempts := store.HoldOutcome(attempts, input.MaxHoldAttempts)
	row = tx.QueryRow(ctx, `
		UPDATE tickets
		SET status = $2,
			hold_attempts = $3
		WHERE ticket_id = $1
		RETURNING `+ticketColumns+`
	`, input.TicketID, nextStatus, nextAttempts)
	ticket, err := scanTicket(row)
	if err != nil {
		return models.Ticket{}, err
	}

	eventType := "ticket.held"
	if nextStatus == models.StatusOut {
		eventType = "ticket.out"
	}
	if err = insertOutboxEvent(ctx, tx, eventType, ticket); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) CurrentCalled(ctx context.Context, windowID, dateKey string) (models.Ticket, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE window_id = $1 AND date_key = $2 AND status = 'called'
		ORDER BY called_at DESC
		LIMIT 1
	`, windowID, dateKey)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) GetDisplay(ctx context.Context, departmentID, dateKey string, upNextCount int) (store.Display, error) {
	display := store.Display{
		DepartmentID: departmentID,
		DateKey:      dateKey,
		UpNext:       []models.Ticket{},
	}

	row := s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE department_id = $1 AND date_key = $2 AND status = 'called'
		ORDER BY called_at DESC
		LIMIT 1
	`, departmentID, dateKey)
	nowServing, err := scanTicket(row)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return store.Display{}, err
	}
	if err == nil {
		display.NowServing = &nowServing
	}

	if upNextCount > 0 {
		upNext, err := s.ListWaiting(ctx, departmentID, dateKey, upNextCount)
		if err != nil {
			return store.Display{}, err
		}
		if upNext != nil {
			display.UpNext = upNext
		}
	}
	return display, nil
}

// ListOutboxEvents pages the outbox by a (created_at, event_id) cursor so
// events sharing a timestamp are never skipped across batch boundaries.
func (s *Store) ListOutboxEvents(ctx context.Context, afterTime time.Time, afterID string, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, department_id, type, payload_json, created_at
		FROM outbox_events
		WHERE (created_at, event_id) > ($1, $2)
		ORDER BY created_at ASC, event_id ASC
		LIMIT $3
	`, afterTime, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.DepartmentID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// classifyMissedUpdate explains why a conditional transition matched no row.
func classifyMissedUpdate(ctx context.Context, tx pgx.Tx, ticketID, dateKey string) error {
	var status string
	row := tx.QueryRow(ctx, `
		SELECT status
		FROM tickets
		WHERE ticket_id = $1 AND date_key = $2
	`, ticketID, dateKey)
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrTicketNotFound
		}
		return err
	}
	return store.ErrInvalidTransition
}

func findTicketByRequestID(ctx context.Context, tx pgx.Tx, requestID string) (models.Ticket, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE request_id = $1
	`, requestID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func findActiveTicketTx(ctx context.Context, tx pgx.Tx, departmentID, dateKey, participantID string) (models.Ticket, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE department_id = $1 AND date_key = $2 AND participant_id = $3
			AND status = ANY($4)
	`, departmentID, dateKey, participantID, models.ActiveStatuses)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

// nextQueueNumber allocates the next number for (department, date key). The
// upsert runs inside the caller's transaction, so a rolled-back create never
// burns a number and concurrent creates serialize on the sequence row.
func nextQueueNumber(ctx context.Context, tx pgx.Tx, departmentID, dateKey string) (int, error) {
	var next int
	row := tx.QueryRow(ctx, `
		INSERT INTO ticket_sequences (department_id, date_key, next_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (department_id, date_key)
		DO UPDATE SET next_number = ticket_sequences.next_number + 1
		RETURNING next_number
	`, departmentID, dateKey)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, eventType string, ticket models.Ticket) error {
	payload, err := json.Marshal(ticket)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, department_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), ticket.DepartmentID, eventType, payload, time.Now().UTC())
	return err
}

func qualifiedTicketColumns(table string) string {
	return table + `.ticket_id, ` + table + `.request_id, ` + table + `.department_id, ` + table + `.date_key, ` +
		table + `.participant_id, ` + table + `.queue_number, ` + table + `.status, ` + table + `.hold_attempts, ` +
		table + `.purpose_keys, ` + table + `.created_at, ` + table + `.called_at, ` + table + `.served_at, ` +
		table + `.window_id, ` + table + `.window_number`
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (models.Ticket, error) {
	var ticket models.Ticket
	var calledAt sql.NullTime
	var servedAt sql.NullTime
	var windowID sql.NullString
	var windowNumber sql.NullInt64
	if err := row.Scan(
		&ticket.TicketID, &ticket.RequestID, &ticket.DepartmentID, &ticket.DateKey,
		&ticket.ParticipantID, &ticket.QueueNumber, &ticket.Status, &ticket.HoldAttempts,
		&ticket.PurposeKeys, &ticket.CreatedAt, &calledAt, &servedAt, &windowID, &windowNumber,
	); err != nil {
		return models.Ticket{}, err
	}
	if calledAt.Valid {
		ticket.CalledAt = &calledAt.Time
	}
	if servedAt.Valid {
		ticket.ServedAt = &servedAt.Time
	}
	if windowID.Valid {
		ticket.WindowID = &windowID.String
	}
	if windowNumber.Valid {
		number := int(windowNumber.Int64)
		ticket.WindowNumber = &number
	}
	return ticket, nil
}

func scanTickets(rows pgx.Rows) ([]models.Ticket, error) {
	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}
