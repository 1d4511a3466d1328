package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iwtkmsss/queue-sub000/internal/models"
	"github.com/iwtkmsss/queue-sub000/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ticketNumberPad = 3

const ticketColumns = `
	id, ticket_number, COALESCE(question_id, 0), question_text, appointment_time, window_id,
	status, queue_type, start_time, end_time, created_at,
	personal_account, extra_actions, extra_other_text, application_yesno, application_types,
	manager_comment, service_zone, meta_tabs`

type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTicket(row scanner) (models.Ticket, error) {
	var ticket models.Ticket
	var startNull, endNull sql.NullTime
	var tabsRaw []byte
	err := row.Scan(
		&ticket.ID, &ticket.TicketNumber, &ticket.QuestionID, &ticket.QuestionText, &ticket.AppointmentTime, &ticket.WindowID,
		&ticket.Status, &ticket.QueueType, &startNull, &endNull, &ticket.CreatedAt,
		&ticket.PersonalAccount, &ticket.ExtraActions, &ticket.ExtraOtherText, &ticket.ApplicationYesNo, &ticket.ApplicationTypes,
		&ticket.ManagerComment, &ticket.ServiceZone, &tabsRaw,
	)
	if err != nil {
		return models.Ticket{}, err
	}
	tabs, err := models.DecodeMetaTabs(tabsRaw)
	if err != nil {
		return models.Ticket{}, fmt.Errorf("%w: ticket %d meta_tabs: %v", store.ErrCorruptRecord, ticket.ID, err)
	}
	ticket.MetaTabs = tabs
	ticket.AppointmentTime = ticket.AppointmentTime.In(models.Location)
	ticket.StartTime = nullTimePtr(startNull)
	ticket.EndTime = nullTimePtr(endNull)
	return ticket, nil
}

func collectTickets(rows pgx.Rows) ([]models.Ticket, error) {
	defer rows.Close()
	out := make([]models.Ticket, 0)
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ticket)
	}
	return out, rows.Err()
}

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	ticket, err := insertTicket(ctx, tx, input)
	if err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func insertTicket(ctx context.Context, tx pgx.Tx, input store.CreateTicketInput) (models.Ticket, error) {
	if err := models.CheckMetaTabs(input.MetaTabs); err != nil {
		return models.Ticket{}, err
	}
	tabs, err := models.EncodeMetaTabs(input.MetaTabs)
	if err != nil {
		return models.Ticket{}, err
	}

	appointment := models.MinuteKey(input.AppointmentTime)
	number := input.TicketNumber
	if number == "" {
		seq, err := nextTicketNumber(ctx, tx, appointment.In(models.Location).Format(models.DateLayout))
		if err != nil {
			return models.Ticket{}, err
		}
		number = fmt.Sprintf("%0*d", ticketNumberPad, seq)
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	queueType := input.QueueType
	if queueType == "" {
		queueType = models.QueueRegular
	}

	fields := input.Fields
	row := tx.QueryRow(ctx, `
		INSERT INTO queue (
			ticket_number, question_id, question_text, appointment_time, window_id, status, queue_type,
			start_time, end_time, created_at,
			personal_account, extra_actions, extra_other_text, application_yesno, application_types,
			manager_comment, service_zone, meta_tabs
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING `+ticketColumns,
		number, nullIfZero(input.QuestionID), input.QuestionText, appointment, input.WindowID, input.Status, queueType,
		input.StartTime, input.EndTime, createdAt,
		fields.PersonalAccount, nonNil(fields.ExtraActions), fields.ExtraOtherText, fields.ApplicationYesNo, nonNil(fields.ApplicationTypes),
		fields.ManagerComment, fields.ServiceZone, string(tabs),
	)
	return scanTicket(row)
}

func (s *Store) GetTicket(ctx context.Context, id int64) (models.Ticket, bool, error) {
	return getTicket(ctx, s.pool, id)
}

func getTicket(ctx context.Context, q querier, id int64) (models.Ticket, bool, error) {
	ticket, err := scanTicket(q.QueryRow(ctx, `SELECT `+ticketColumns+` FROM queue WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) ListTickets(ctx context.Context, filter store.TicketFilter) ([]models.Ticket, error) {
	var where []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.WindowID != 0 {
		add("window_id = $%d", filter.WindowID)
	}
	if !filter.From.IsZero() {
		add("appointment_time >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("appointment_time < $%d", filter.To)
	}
	if filter.TicketNumber != "" {
		add("ticket_number = $%d", filter.TicketNumber)
	}
	if len(filter.Statuses) > 0 {
		add("status = ANY($%d)", filter.Statuses)
	}

	query := `SELECT ` + ticketColumns + ` FROM queue`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY appointment_time, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectTickets(rows)
}

func (s *Store) ActiveTicket(ctx context.Context, windowID int) (models.Ticket, bool, error) {
	ticket, err := scanTicket(s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM queue
		WHERE window_id = $1 AND status = $2
		ORDER BY appointment_time, id
		LIMIT 1
	`, windowID, models.StatusInProgress))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) UpdateTicket(ctx context.Context, ticket models.Ticket, expected []string) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	updated, err := updateTicket(ctx, tx, ticket, expected)
	if err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return updated, nil
}

// updateTicket writes the mutable columns guarded by the expected status list.
// A miss is reported as ErrTicketNotFound or ErrInvalidState depending on whether the row exists.
func updateTicket(ctx context.Context, tx pgx.Tx, ticket models.Ticket, expected []string) (models.Ticket, error) {
	if err := models.CheckMetaTabs(ticket.MetaTabs); err != nil {
		return models.Ticket{}, err
	}
	tabs, err := models.EncodeMetaTabs(ticket.MetaTabs)
	if err != nil {
		return models.Ticket{}, err
	}
	var guard []string
	if len(expected) > 0 {
		guard = expected
	}

	fields := ticket.ServiceFields
	updated, err := scanTicket(tx.QueryRow(ctx, `
		UPDATE queue
		SET status = $2, start_time = $3, end_time = $4,
			personal_account = $5, extra_actions = $6, extra_other_text = $7, application_yesno = $8,
			application_types = $9, manager_comment = $10, service_zone = $11, meta_tabs = $12
		WHERE id = $1 AND ($13::text[] IS NULL OR status = ANY($13::text[]))
		RETURNING `+ticketColumns,
		ticket.ID, ticket.Status, ticket.StartTime, ticket.EndTime,
		fields.PersonalAccount, nonNil(fields.ExtraActions), fields.ExtraOtherText, fields.ApplicationYesNo,
		nonNil(fields.ApplicationTypes), fields.ManagerComment, fields.ServiceZone, string(tabs),
		guard,
	))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Ticket{}, err
	}
	_, found, lookupErr := getTicket(ctx, tx, ticket.ID)
	if lookupErr != nil {
		return models.Ticket{}, lookupErr
	}
	if !found {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return models.Ticket{}, store.ErrInvalidState
}

func (s *Store) CommitTabFinish(ctx context.Context, ticket models.Ticket, expected []string, continuation *store.CreateTicketInput) (models.Ticket, *models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	updated, err := updateTicket(ctx, tx, ticket, expected)
	if err != nil {
		return models.Ticket{}, nil, err
	}
	var created *models.Ticket
	if continuation != nil {
		row, insertErr := insertTicket(ctx, tx, *continuation)
		if insertErr != nil {
			err = insertErr
			return models.Ticket{}, nil, err
		}
		created = &row
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, nil, err
	}
	return updated, created, nil
}

func (s *Store) MoveWaiting(ctx context.Context, input store.MoveWindowInput) (int, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Lock both windows' waiting rows so a concurrent booking cannot slip in between check and move.
	if _, err = tx.Exec(ctx, `
		SELECT id FROM queue
		WHERE window_id = ANY($1) AND status = ANY($2)
		ORDER BY id
		FOR UPDATE
	`, []int{input.From, input.To}, models.WaitingStatuses); err != nil {
		return 0, err
	}

	if input.CheckConflicts {
		conflicts, conflictErr := listMoveConflicts(ctx, tx, input.From, input.To)
		if conflictErr != nil {
			err = conflictErr
			return 0, err
		}
		if len(conflicts) > 0 {
			err = &store.ConflictError{Conflicts: conflicts}
			return 0, err
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE queue SET window_id = $2
		WHERE window_id = $1 AND status = ANY($3)
	`, input.From, input.To, models.WaitingStatuses)
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) ListMoveConflicts(ctx context.Context, from, to int) ([]store.MoveConflict, error) {
	return listMoveConflicts(ctx, s.pool, from, to)
}

func listMoveConflicts(ctx context.Context, q querier, from, to int) ([]store.MoveConflict, error) {
	rows, err := q.Query(ctx, `
		SELECT src.appointment_time, src.ticket_number, dst.ticket_number
		FROM queue src
		JOIN queue dst
			ON dst.window_id = $2
			AND dst.appointment_time = src.appointment_time
			AND dst.status = ANY($3)
		WHERE src.window_id = $1 AND src.status = ANY($3)
		ORDER BY src.appointment_time, src.id
	`, from, to, models.WaitingStatuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conflicts []store.MoveConflict
	for rows.Next() {
		var conflict store.MoveConflict
		if err := rows.Scan(&conflict.AppointmentTime, &conflict.FromTicketNumber, &conflict.ToTicketNumber); err != nil {
			return nil, err
		}
		conflict.AppointmentTime = conflict.AppointmentTime.In(models.Location)
		conflicts = append(conflicts, conflict)
	}
	return conflicts, rows.Err()
}

func (s *Store) ExpireTickets(ctx context.Context, input store.ExpireInput) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE queue
		SET status = $1,
			end_time = $2,
			start_time = CASE WHEN $3::boolean THEN COALESCE(start_time, $2) ELSE start_time END
		WHERE status = ANY($4) AND appointment_time <= $5
	`, input.ToStatus, input.Now, input.SetStartTime, input.FromStatuses, input.Cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func nextTicketNumber(ctx context.Context, tx pgx.Tx, day string) (int64, error) {
	var next int64
	row := tx.QueryRow(ctx, `
		INSERT INTO ticket_sequences (day, next_number)
		VALUES ($1::date, 1)
		ON CONFLICT (day)
		DO UPDATE SET next_number = ticket_sequences.next_number + 1
		RETURNING next_number
	`, day)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func nullIfZero(value int64) interface{} {
	if value == 0 {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
