package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iwtkmsss/queue-sub000/internal/models"
	"github.com/iwtkmsss/queue-sub000/internal/store"

	"github.com/jackc/pgx/v5"
)

const scheduleColumns = `id, employee_id, week_start::text, data, status, created_by, note, supersedes_id, created_at`

func scanSchedule(row scanner) (models.WorkSchedule, error) {
	var ws models.WorkSchedule
	var raw []byte
	var supersedes sql.NullInt64
	if err := row.Scan(&ws.ID, &ws.EmployeeID, &ws.WeekStart, &raw, &ws.Status, &ws.CreatedBy, &ws.Note, &supersedes, &ws.CreatedAt); err != nil {
		return models.WorkSchedule{}, err
	}
	ws.Data = map[string]models.DayHours{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &ws.Data); err != nil {
			return models.WorkSchedule{}, fmt.Errorf("%w: schedule %d data: %v", store.ErrCorruptRecord, ws.ID, err)
		}
	}
	if supersedes.Valid {
		id := supersedes.Int64
		ws.SupersedesID = &id
	}
	return ws, nil
}

func (s *Store) GetActiveSchedule(ctx context.Context, employeeID int64, weekStart string) (models.WorkSchedule, bool, error) {
	ws, err := scanSchedule(s.pool.QueryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM work_schedules
		WHERE employee_id = $1 AND week_start = $2::date AND status = $3
	`, employeeID, weekStart, models.ScheduleActive))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.WorkSchedule{}, false, nil
		}
		return models.WorkSchedule{}, false, err
	}
	return ws, true, nil
}

func (s *Store) ReplaceActiveSchedule(ctx context.Context, input store.ScheduleInput) (models.WorkSchedule, error) {
	payload, err := json.Marshal(input.Data)
	if err != nil {
		return models.WorkSchedule{}, err
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.WorkSchedule{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// The employee row lock serializes concurrent replacements for the same person.
	var locked int64
	if err = tx.QueryRow(ctx, `SELECT id FROM employees WHERE id = $1 FOR UPDATE`, input.EmployeeID).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrEmployeeNotFound
		}
		return models.WorkSchedule{}, err
	}

	var supersedes sql.NullInt64
	err = tx.QueryRow(ctx, `
		UPDATE work_schedules SET status = $3
		WHERE employee_id = $1 AND week_start = $2::date AND status = $4
		RETURNING id
	`, input.EmployeeID, input.WeekStart, models.ScheduleArchived, models.ScheduleActive).Scan(&supersedes)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return models.WorkSchedule{}, err
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	ws, err := scanSchedule(tx.QueryRow(ctx, `
		INSERT INTO work_schedules (employee_id, week_start, data, status, created_by, note, supersedes_id, created_at)
		VALUES ($1, $2::date, $3, $4, $5, $6, $7, $8)
		RETURNING `+scheduleColumns,
		input.EmployeeID, input.WeekStart, string(payload), models.ScheduleActive, input.CreatedBy, input.Note, supersedes, createdAt,
	))
	if err != nil {
		return models.WorkSchedule{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.WorkSchedule{}, err
	}
	return ws, nil
}

func (s *Store) ListSchedules(ctx context.Context, filter store.ScheduleFilter) ([]models.WorkSchedule, error) {
	var where []string
	var args []any
	if filter.EmployeeID != 0 {
		args = append(args, filter.EmployeeID)
		where = append(where, fmt.Sprintf("employee_id = $%d", len(args)))
	}
	if filter.WeekStart != "" {
		args = append(args, filter.WeekStart)
		where = append(where, fmt.Sprintf("week_start = $%d::date", len(args)))
	}
	if !filter.IncludeArchived {
		args = append(args, models.ScheduleActive)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `SELECT ` + scheduleColumns + ` FROM work_schedules`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY week_start DESC, id DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.WorkSchedule, 0)
	for rows.Next() {
		ws, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

const employeeColumns = `id, name, position, password_hash, status, window_number, topics, schedule, priority`

func scanEmployee(row scanner) (models.Employee, error) {
	var e models.Employee
	var schedule []byte
	if err := row.Scan(&e.ID, &e.Name, &e.Position, &e.PasswordHash, &e.Status, &e.WindowNumber, &e.Topics, &schedule, &e.Priority); err != nil {
		return models.Employee{}, err
	}
	if e.Topics == nil {
		e.Topics = []int64{}
	}
	if len(schedule) > 0 && string(schedule) != "null" {
		if err := json.Unmarshal(schedule, &e.Schedule); err != nil {
			return models.Employee{}, fmt.Errorf("%w: employee %d schedule: %v", store.ErrCorruptRecord, e.ID, err)
		}
	}
	return e, nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]models.Employee, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+employeeColumns+` FROM employees ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Employee, 0)
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) GetEmployee(ctx context.Context, id int64) (models.Employee, bool, error) {
	return s.findEmployee(ctx, `id = $1`, id)
}

func (s *Store) GetEmployeeByName(ctx context.Context, name string) (models.Employee, bool, error) {
	return s.findEmployee(ctx, `name = $1`, name)
}

func (s *Store) findEmployee(ctx context.Context, where string, arg any) (models.Employee, bool, error) {
	e, err := scanEmployee(s.pool.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Employee{}, false, nil
		}
		return models.Employee{}, false, err
	}
	return e, true, nil
}

func (s *Store) CreateEmployee(ctx context.Context, input store.CreateEmployeeInput) (models.Employee, error) {
	topics := input.Topics
	if topics == nil {
		topics = []int64{}
	}
	status := input.Status
	if status == "" {
		status = "active"
	}
	return scanEmployee(s.pool.QueryRow(ctx, `
		INSERT INTO employees (name, position, password_hash, status, window_number, topics, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+employeeColumns,
		input.Name, input.Position, input.PasswordHash, status, input.WindowNumber, topics, input.Priority,
	))
}

func (s *Store) AssignWindow(ctx context.Context, id int64, window *int) (models.Employee, error) {
	e, err := scanEmployee(s.pool.QueryRow(ctx, `
		UPDATE employees SET window_number = $2 WHERE id = $1
		RETURNING `+employeeColumns,
		id, window,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Employee{}, store.ErrEmployeeNotFound
		}
		return models.Employee{}, err
	}
	return e, nil
}

func (s *Store) ListQuestions(ctx context.Context) ([]models.Question, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, text FROM questions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Question, 0)
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.Text); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *Store) GetQuestion(ctx context.Context, id int64) (models.Question, bool, error) {
	var q models.Question
	if err := s.pool.QueryRow(ctx, `SELECT id, text FROM questions WHERE id = $1`, id).Scan(&q.ID, &q.Text); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Question{}, false, nil
		}
		return models.Question{}, false, err
	}
	return q, true, nil
}

func (s *Store) CreateQuestion(ctx context.Context, text string) (models.Question, error) {
	var q models.Question
	err := s.pool.QueryRow(ctx, `INSERT INTO questions (text) VALUES ($1) RETURNING id, text`, text).Scan(&q.ID, &q.Text)
	return q, err
}

func (s *Store) UpdateQuestion(ctx context.Context, id int64, text string) (models.Question, error) {
	var q models.Question
	err := s.pool.QueryRow(ctx, `UPDATE questions SET text = $2 WHERE id = $1 RETURNING id, text`, id, text).Scan(&q.ID, &q.Text)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Question{}, store.ErrQuestionNotFound
	}
	return q, err
}

func (s *Store) DeleteQuestion(ctx context.Context, id int64) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = store.ErrQuestionNotFound
		return err
	}
	if _, err = tx.Exec(ctx, `
		UPDATE employees SET topics = array_remove(topics, $1)
		WHERE $1 = ANY(topics)
	`, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	if err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	return err
}
