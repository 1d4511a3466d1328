package postgres

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iwtkmsss/queue-sub000/internal/models"
	"github.com/iwtkmsss/queue-sub000/internal/store"
	"github.com/iwtkmsss/queue-sub000/migrations"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var morning = time.Date(2026, 10, 19, 9, 0, 0, 0, models.Location)

func TestTicketNumbersArePerDay(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	first := createTicket(t, ctx, st, morning, 3)
	second := createTicket(t, ctx, st, morning.Add(20*time.Minute), 3)
	nextDay := createTicket(t, ctx, st, morning.AddDate(0, 0, 1), 3)

	if first.TicketNumber != "001" || second.TicketNumber != "002" {
		t.Fatalf("expected 001 and 002, got %s and %s", first.TicketNumber, second.TicketNumber)
	}
	if nextDay.TicketNumber != "001" {
		t.Fatalf("expected sequence reset on next day, got %s", nextDay.TicketNumber)
	}
	if len(first.MetaTabs) != 1 || first.MetaTabs[0].Slot != models.PrimarySlot {
		t.Fatalf("expected primary tab, got %+v", first.MetaTabs)
	}
}

func TestUpdateTicketStatusGuardConcurrency(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	ticket := createTicket(t, ctx, st, morning, 3)
	started := ticket
	started.Status = models.StatusInProgress
	now := morning
	started.StartTime = &now

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.UpdateTicket(ctx, started, models.WaitingStatuses)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var okCount, conflictCount int
	for err := range results {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, store.ErrInvalidState):
			conflictCount++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if okCount != 1 || conflictCount != 1 {
		t.Fatalf("expected one winner and one conflict, got ok=%d conflict=%d", okCount, conflictCount)
	}

	missing := started
	missing.ID = ticket.ID + 1000
	if _, err := st.UpdateTicket(ctx, missing, nil); !errors.Is(err, store.ErrTicketNotFound) {
		t.Fatalf("expected ErrTicketNotFound, got %v", err)
	}
}

func TestCommitTabFinishInsertsContinuation(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	ticket := createTicket(t, ctx, st, morning, 3)
	ticket.MetaTabs = append(ticket.MetaTabs, models.MetaTab{Slot: 2, Status: models.TabCompleted})
	continuation := store.CreateTicketInput{
		TicketNumber:    ticket.TicketNumber,
		AppointmentTime: morning.Add(15 * time.Minute),
		WindowID:        3,
		Status:          models.StatusInProgress,
		MetaTabs:        models.CloneTabs(ticket.MetaTabs),
	}

	updated, created, err := st.CommitTabFinish(ctx, ticket, models.OpenStatuses, &continuation)
	if err != nil {
		t.Fatalf("commit tab finish: %v", err)
	}
	if created == nil || created.TicketNumber != ticket.TicketNumber || created.ID == updated.ID {
		t.Fatalf("expected continuation row with same number, got %+v", created)
	}
	rows, err := st.ListTickets(ctx, store.TicketFilter{TicketNumber: ticket.TicketNumber})
	if err != nil || len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d (%v)", len(rows), err)
	}
}

func TestMoveWaitingChecksConflicts(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	createTicket(t, ctx, st, morning, 3)
	createTicket(t, ctx, st, morning.Add(20*time.Minute), 3)
	createTicket(t, ctx, st, morning, 4)

	conflicts, err := st.ListMoveConflicts(ctx, 3, 4)
	if err != nil || len(conflicts) != 1 {
		t.Fatalf("expected one conflict, got %v (%v)", conflicts, err)
	}
	if !conflicts[0].AppointmentTime.Equal(morning) {
		t.Fatalf("unexpected conflict time %v", conflicts[0].AppointmentTime)
	}

	_, err = st.MoveWaiting(ctx, store.MoveWindowInput{From: 3, To: 4, CheckConflicts: true})
	var conflictErr *store.ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("expected ConflictError, got %v", err)
	}

	moved, err := st.MoveWaiting(ctx, store.MoveWindowInput{From: 3, To: 4})
	if err != nil || moved != 2 {
		t.Fatalf("expected 2 moved, got %d (%v)", moved, err)
	}
}

func TestExpireTicketsSetsTimes(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	stale := createTicket(t, ctx, st, morning, 3)
	createTicket(t, ctx, st, morning.Add(time.Hour), 3)

	now := morning.Add(30 * time.Minute)
	changed, err := st.ExpireTickets(ctx, store.ExpireInput{
		FromStatuses: []string{models.StatusWaiting},
		ToStatus:     models.StatusMissed,
		Cutoff:       morning.Add(5 * time.Minute),
		Now:          now,
		SetStartTime: true,
	})
	if err != nil || changed != 1 {
		t.Fatalf("expected 1 expired, got %d (%v)", changed, err)
	}
	got, _, err := st.GetTicket(ctx, stale.ID)
	if err != nil {
		t.Fatalf("get ticket: %v", err)
	}
	if got.Status != models.StatusMissed || got.StartTime == nil || got.EndTime == nil || !got.EndTime.Equal(now) {
		t.Fatalf("unexpected expired ticket %+v", got)
	}
}

func TestCorruptMetaTabsSurfaceAsError(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	ticket := createTicket(t, ctx, st, morning, 3)
	if _, err := pool.Exec(ctx, `UPDATE queue SET meta_tabs = '{"tab_slot": 1}' WHERE id = $1`, ticket.ID); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}
	if _, _, err := st.GetTicket(ctx, ticket.ID); !errors.Is(err, store.ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}
}

func TestReplaceActiveScheduleSupersedes(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	emp, err := st.CreateEmployee(ctx, store.CreateEmployeeInput{Name: "Olena", Topics: []int64{1}})
	if err != nil {
		t.Fatalf("create employee: %v", err)
	}
	first, err := st.ReplaceActiveSchedule(ctx, store.ScheduleInput{
		EmployeeID: emp.ID,
		WeekStart:  "2026-10-19",
		Data:       map[string]models.DayHours{"1": {Start: "09:00", End: "13:00"}},
	})
	if err != nil {
		t.Fatalf("first schedule: %v", err)
	}
	second, err := st.ReplaceActiveSchedule(ctx, store.ScheduleInput{
		EmployeeID: emp.ID,
		WeekStart:  "2026-10-19",
		Data:       map[string]models.DayHours{"2": {Start: "10:00", End: "14:00"}},
	})
	if err != nil {
		t.Fatalf("second schedule: %v", err)
	}
	if second.SupersedesID == nil || *second.SupersedesID != first.ID {
		t.Fatalf("expected supersedes %d, got %v", first.ID, second.SupersedesID)
	}

	active, ok, err := st.GetActiveSchedule(ctx, emp.ID, "2026-10-19")
	if err != nil || !ok || active.ID != second.ID || active.WeekStart != "2026-10-19" {
		t.Fatalf("unexpected active schedule %+v ok=%v err=%v", active, ok, err)
	}
	all, err := st.ListSchedules(ctx, store.ScheduleFilter{EmployeeID: emp.ID, IncludeArchived: true})
	if err != nil || len(all) != 2 || all[1].Status != models.ScheduleArchived {
		t.Fatalf("expected archived history, got %+v (%v)", all, err)
	}

	if _, err := st.ReplaceActiveSchedule(ctx, store.ScheduleInput{EmployeeID: emp.ID + 100, WeekStart: "2026-10-19"}); !errors.Is(err, store.ErrEmployeeNotFound) {
		t.Fatalf("expected ErrEmployeeNotFound, got %v", err)
	}
}

func TestDeleteQuestionPrunesTopics(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	keep, _ := st.CreateQuestion(ctx, "Meter readings")
	drop, _ := st.CreateQuestion(ctx, "Contract")
	emp, err := st.CreateEmployee(ctx, store.CreateEmployeeInput{Name: "Taras", Topics: []int64{keep.ID, drop.ID}})
	if err != nil {
		t.Fatalf("create employee: %v", err)
	}

	if err := st.DeleteQuestion(ctx, drop.ID); err != nil {
		t.Fatalf("delete question: %v", err)
	}
	got, _, err := st.GetEmployee(ctx, emp.ID)
	if err != nil || len(got.Topics) != 1 || got.Topics[0] != keep.ID {
		t.Fatalf("expected topics [%d], got %v (%v)", keep.ID, got.Topics, err)
	}
	if err := st.DeleteQuestion(ctx, drop.ID); !errors.Is(err, store.ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
}

func TestSettingsUpsert(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	if _, ok, _ := st.GetSetting(ctx, models.SettingServiceDuration); ok {
		t.Fatalf("expected missing setting")
	}
	_ = st.SetSetting(ctx, models.SettingServiceDuration, "20")
	_ = st.SetSetting(ctx, models.SettingServiceDuration, "30")
	value, ok, err := st.GetSetting(ctx, models.SettingServiceDuration)
	if err != nil || !ok || value != "30" {
		t.Fatalf("expected 30, got %q ok=%v err=%v", value, ok, err)
	}
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, *pgxpool.Pool, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := execAdmin(ctx, dsn, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if err := migrations.Apply(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		_ = execAdmin(context.Background(), dsn, "DROP SCHEMA "+schema+" CASCADE")
	}
	return NewStore(pool), pool, cleanup
}

func execAdmin(ctx context.Context, dsn, statement string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, statement)
	return err
}

func createTicket(t *testing.T, ctx context.Context, st *Store, at time.Time, window int) models.Ticket {
	t.Helper()
	ticket, err := st.CreateTicket(ctx, store.CreateTicketInput{
		QuestionText:    "Meter readings",
		AppointmentTime: at,
		WindowID:        window,
		Status:          models.StatusWaiting,
		QueueType:       models.QueueRegular,
		MetaTabs:        []models.MetaTab{models.NewPrimaryTab()},
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket
}
