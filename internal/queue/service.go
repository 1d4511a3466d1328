// Package queue owns every status change of a ticket and announces it on the event bus.
package queue

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/iwtkmsss/queue-sub000/internal/clock"
	"github.com/iwtkmsss/queue-sub000/internal/events"
	"github.com/iwtkmsss/queue-sub000/internal/models"
	"github.com/iwtkmsss/queue-sub000/internal/store"
)

type Settings interface {
	AlarmActive(ctx context.Context) (bool, error)
	ExpiryGrace(ctx context.Context) (time.Duration, error)
}

type Service struct {
	tickets   store.TicketStore
	questions store.QuestionStore
	bus       events.Bus
	settings  Settings
	clock     clock.Clock
}

func NewService(tickets store.TicketStore, questions store.QuestionStore, bus events.Bus, settings Settings, c clock.Clock) *Service {
	return &Service{tickets: tickets, questions: questions, bus: bus, settings: settings, clock: c}
}

type update struct {
	Reason   string `json:"reason"`
	TicketID int64  `json:"ticket_id,omitempty"`
	Status   string `json:"status,omitempty"`
	Count    int    `json:"count,omitempty"`
}

func (s *Service) now() time.Time {
	return s.clock.Now().In(models.Location)
}

func (s *Service) publishUpdate(ctx context.Context, reason string, ticket models.Ticket) {
	event := events.New(events.TypeQueueUpdated, update{Reason: reason, TicketID: ticket.ID, Status: ticket.Status})
	event.WindowID = ticket.WindowID
	s.bus.Publish(ctx, event)
}

func (s *Service) load(ctx context.Context, id int64) (models.Ticket, error) {
	ticket, ok, err := s.tickets.GetTicket(ctx, id)
	if err != nil {
		return models.Ticket{}, err
	}
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return ticket, nil
}

func (s *Service) GetTicket(ctx context.Context, id int64) (models.Ticket, error) {
	return s.load(ctx, id)
}

type BookInput struct {
	QuestionID      int64  `json:"question_id"`
	AppointmentTime string `json:"appointment_time"`
	WindowID        int    `json:"window_id"`
	Status          string `json:"status"`
}

// Book creates a ticket. Regular bookings are re-checked against the clock and the slot grid.
func (s *Service) Book(ctx context.Context, input BookInput) (models.Ticket, error) {
	status := strings.TrimSpace(input.Status)
	if status == "" {
		status = models.StatusWaiting
	}
	live := status == models.StatusLiveQueue
	if status != models.StatusWaiting && !live {
		return models.Ticket{}, store.Invalid("status must be waiting or live_queue")
	}

	var missing []string
	if input.QuestionID <= 0 {
		missing = append(missing, "question_id")
	}
	if strings.TrimSpace(input.AppointmentTime) == "" && !live {
		missing = append(missing, "appointment_time")
	}
	if input.WindowID <= 0 {
		missing = append(missing, "window_id")
	}
	if len(missing) > 0 {
		return models.Ticket{}, store.MissingFields(missing...)
	}

	now := s.now()
	at := now
	if strings.TrimSpace(input.AppointmentTime) != "" {
		parsed, err := ParseAppointmentTime(input.AppointmentTime)
		if err != nil {
			return models.Ticket{}, store.Invalid("appointment_time: " + err.Error())
		}
		at = parsed
	}
	at = models.MinuteKey(at)

	question, ok, err := s.questions.GetQuestion(ctx, input.QuestionID)
	if err != nil {
		return models.Ticket{}, err
	}
	if !ok {
		return models.Ticket{}, store.ErrQuestionNotFound
	}

	queueType := models.QueueRegular
	if live {
		queueType = models.QueueLive
	} else {
		if at.Before(models.MinuteKey(now)) {
			return models.Ticket{}, store.Invalid("appointment_time is in the past")
		}
		existing, err := s.tickets.ListTickets(ctx, store.TicketFilter{WindowID: input.WindowID, From: at, To: at.Add(time.Minute)})
		if err != nil {
			return models.Ticket{}, err
		}
		if len(existing) > 0 {
			return models.Ticket{}, store.ErrSlotTaken
		}
	}

	ticket, err := s.tickets.CreateTicket(ctx, store.CreateTicketInput{
		QuestionID:      question.ID,
		QuestionText:    question.Text,
		AppointmentTime: at,
		WindowID:        input.WindowID,
		Status:          status,
		QueueType:       queueType,
		MetaTabs:        []models.MetaTab{models.NewPrimaryTab()},
		CreatedAt:       now.UTC(),
	})
	if err != nil {
		return models.Ticket{}, err
	}
	log.Printf("ticket booked ticket_id=%d number=%s window=%d at=%s queue=%s", ticket.ID, ticket.TicketNumber, ticket.WindowID, ticket.AppointmentTime.Format(time.RFC3339), queueType)
	s.publishUpdate(ctx, "booked", ticket)
	return ticket, nil
}

var appointmentLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// ParseAppointmentTime accepts RFC 3339 or a naive local timestamp.
func ParseAppointmentTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.In(models.Location), nil
	}
	var lastErr error
	for _, layout := range appointmentLayouts {
		t, err := time.ParseInLocation(layout, value, models.Location)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// ensurePrimary adds tab 1 to rows stored without one, mirroring the row status.
func ensurePrimary(ticket *models.Ticket) {
	if _, _, ok := ticket.Tab(models.PrimarySlot); ok {
		return
	}
	tab := models.NewPrimaryTab()
	switch {
	case ticket.Status == models.StatusInProgress:
		tab.Status = models.TabInProgress
	case ticket.Status == models.StatusCompleted:
		tab.Status = models.TabCompleted
		tab.ServiceFields = ticket.ServiceFields.Clone()
	}
	ticket.MetaTabs = append([]models.MetaTab{tab}, ticket.MetaTabs...)
}

// Start calls the client to the window. Only one ticket per window may be in progress.
func (s *Service) Start(ctx context.Context, id int64) (models.Ticket, error) {
	ticket, err := s.load(ctx, id)
	if err != nil {
		return models.Ticket{}, err
	}
	if !store.ValidTransition(store.ActionStart, ticket.Status) {
		return models.Ticket{}, store.ErrInvalidState
	}
	active, busy, err := s.tickets.ActiveTicket(ctx, ticket.WindowID)
	if err != nil {
		return models.Ticket{}, err
	}
	if busy && active.ID != ticket.ID {
		return models.Ticket{}, store.ErrWindowBusy
	}

	now := s.now()
	ticket.Status = models.StatusInProgress
	ticket.StartTime = &now
	ticket.EndTime = nil
	ensurePrimary(&ticket)
	if tab, i, _ := ticket.Tab(models.PrimarySlot); tab.Status == models.TabWaiting {
		ticket.MetaTabs[i].Status = models.TabInProgress
	}

	updated, err := s.tickets.UpdateTicket(ctx, ticket, store.AllowedFrom(store.ActionStart))
	if err != nil {
		return models.Ticket{}, err
	}
	log.Printf("ticket started ticket_id=%d number=%s window=%d", updated.ID, updated.TicketNumber, updated.WindowID)
	s.publishUpdate(ctx, "started", updated)
	called := events.New(events.TypeClientCalled, models.CalledEvent{QueueNumber: updated.TicketNumber, WindowNumber: updated.WindowID})
	called.WindowID = updated.WindowID
	s.bus.Publish(ctx, called)
	return updated, nil
}

func (s *Service) Skip(ctx context.Context, id int64) (models.Ticket, error) {
	ticket, err := s.load(ctx, id)
	if err != nil {
		return models.Ticket{}, err
	}
	if !store.ValidTransition(store.ActionSkip, ticket.Status) {
		return models.Ticket{}, store.ErrInvalidState
	}
	now := s.now()
	start, end := now, now
	ticket.Status = models.StatusMissed
	ticket.StartTime = &start
	ticket.EndTime = &end
	updated, err := s.tickets.UpdateTicket(ctx, ticket, store.AllowedFrom(store.ActionSkip))
	if err != nil {
		return models.Ticket{}, err
	}
	s.publishUpdate(ctx, "skipped", updated)
	return updated, nil
}

func (s *Service) DidNotAppear(ctx context.Context, id int64) (models.Ticket, error) {
	ticket, err := s.load(ctx, id)
	if err != nil {
		return models.Ticket{}, err
	}
	if !store.ValidTransition(store.ActionDidNotAppear, ticket.Status) {
		return models.Ticket{}, store.ErrInvalidState
	}
	now := s.now()
	if ticket.StartTime == nil {
		start := now
		ticket.StartTime = &start
	}
	ticket.Status = models.StatusDidNotAppear
	ticket.EndTime = &now
	updated, err := s.tickets.UpdateTicket(ctx, ticket, store.AllowedFrom(store.ActionDidNotAppear))
	if err != nil {
		return models.Ticket{}, err
	}
	s.publishUpdate(ctx, "did_not_appear", updated)
	return updated, nil
}

func (s *Service) ActiveTicket(ctx context.Context, windowID int) (models.Ticket, bool, error) {
	if windowID <= 0 {
		return models.Ticket{}, false, store.MissingFields("window")
	}
	return s.tickets.ActiveTicket(ctx, windowID)
}

func (s *Service) dayFilter(windowID int, date string) (store.TicketFilter, error) {
	day := s.now()
	if strings.TrimSpace(date) != "" {
		parsed, err := models.ParseDate(strings.TrimSpace(date))
		if err != nil {
			return store.TicketFilter{}, store.ErrInvalidDate
		}
		day = parsed
	}
	from, to := models.DayRange(day)
	return store.TicketFilter{WindowID: windowID, From: from, To: to}, nil
}

// ListRows returns the raw rows of a day, optionally for one window.
func (s *Service) ListRows(ctx context.Context, windowID int, date string) ([]models.Ticket, error) {
	filter, err := s.dayFilter(windowID, date)
	if err != nil {
		return nil, err
	}
	return s.tickets.ListTickets(ctx, filter)
}

// ListToday returns the day's rows merged by ticket number.
func (s *Service) ListToday(ctx context.Context, windowID int, date string) ([]TicketGroup, error) {
	rows, err := s.ListRows(ctx, windowID, date)
	if err != nil {
		return nil, err
	}
	return MergeRows(rows), nil
}
