package queue

import (
	"context"
	"testing"
	"time"

	"github.com/iwtkmsss/queue-sub000/internal/events"
	"github.com/iwtkmsss/queue-sub000/internal/models"
	"github.com/iwtkmsss/queue-sub000/internal/store"
)

func (f *fixture) seed(t *testing.T, at time.Time, window int, status string) models.Ticket {
	t.Helper()
	ticket, err := f.store.CreateTicket(context.Background(), store.CreateTicketInput{
		QuestionID:      f.question.ID,
		AppointmentTime: at,
		WindowID:        window,
		Status:          status,
		QueueType:       models.QueueRegular,
		MetaTabs:        []models.MetaTab{models.NewPrimaryTab()},
	})
	if err != nil {
		t.Fatalf("seed ticket: %v", err)
	}
	return ticket
}

func TestAlarmSweepInactiveDoesNothing(t *testing.T) {
	f := newFixture(t)
	ticket := f.seed(t, f.clock.Now().Add(-5*time.Minute), 3, models.StatusWaiting)

	changed, err := f.svc.AlarmSweep(context.Background())
	if err != nil || changed != 0 {
		t.Fatalf("expected no change, got %d (%v)", changed, err)
	}
	if f.reload(t, ticket.ID).Status != models.StatusWaiting {
		t.Fatalf("ticket changed while alarm inactive")
	}
	if len(f.bus.Events()) != 0 {
		t.Fatalf("expected no events")
	}
}

func TestAlarmSweepMarksDueWaitingTickets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.settings.Set(ctx, models.SettingAlarmActive, "true"); err != nil {
		t.Fatalf("set alarm: %v", err)
	}
	now := f.clock.Now()
	due := f.seed(t, now.Add(-5*time.Minute), 3, models.StatusWaiting)
	live := f.seed(t, now, 4, models.StatusLiveQueue)
	future := f.seed(t, now.Add(20*time.Minute), 3, models.StatusWaiting)
	serving := f.seed(t, now.Add(-20*time.Minute), 5, models.StatusInProgress)

	changed, err := f.svc.AlarmSweep(ctx)
	if err != nil {
		t.Fatalf("alarm sweep: %v", err)
	}
	if changed != 2 {
		t.Fatalf("expected 2 changed, got %d", changed)
	}
	if f.reload(t, due.ID).Status != models.StatusAlarmMissed || f.reload(t, live.ID).Status != models.StatusAlarmMissed {
		t.Fatalf("expected due tickets alarm_missed")
	}
	if f.reload(t, future.ID).Status != models.StatusWaiting || f.reload(t, serving.ID).Status != models.StatusInProgress {
		t.Fatalf("unexpected change to future or in-progress ticket")
	}
	if f.bus.Count(events.TypeQueueUpdated) != 1 {
		t.Fatalf("expected exactly one queue_updated, got %d", f.bus.Count(events.TypeQueueUpdated))
	}

	changed, _ = f.svc.AlarmSweep(ctx)
	if changed != 0 || f.bus.Count(events.TypeQueueUpdated) != 1 {
		t.Fatalf("second sweep should be silent, changed=%d", changed)
	}
}

func TestExpirySweepUsesGrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()
	stale := f.seed(t, now.Add(-26*time.Minute), 3, models.StatusWaiting)
	recent := f.seed(t, now.Add(-24*time.Minute), 3, models.StatusWaiting)
	walkIn := f.seed(t, now.Add(-60*time.Minute), 4, models.StatusLiveQueue)

	changed, err := f.svc.ExpirySweep(ctx)
	if err != nil {
		t.Fatalf("expiry sweep: %v", err)
	}
	if changed != 1 {
		t.Fatalf("expected 1 expired, got %d", changed)
	}
	got := f.reload(t, stale.ID)
	if got.Status != models.StatusMissed || got.StartTime == nil || got.EndTime == nil {
		t.Fatalf("expected stale ticket missed with times set, got %+v", got)
	}
	if f.reload(t, recent.ID).Status != models.StatusWaiting || f.reload(t, walkIn.ID).Status != models.StatusLiveQueue {
		t.Fatalf("unexpected expiry of recent or walk-in ticket")
	}
	if f.bus.Count(events.TypeQueueUpdated) != 1 {
		t.Fatalf("expected one queue_updated")
	}
}
