// Package memory is a process-local Store used for development runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/iwtkmsss/queue-sub000/internal/models"
	"github.com/iwtkmsss/queue-sub000/internal/store"
)

type Store struct {
	mu        sync.Mutex
	nextID    int64
	tickets   map[int64]models.Ticket
	sequences map[string]int
	schedules []models.WorkSchedule
	employees map[int64]models.Employee
	questions map[int64]models.Question
	settings  map[string]string
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		tickets:   make(map[int64]models.Ticket),
		sequences: make(map[string]int),
		employees: make(map[int64]models.Employee),
		questions: make(map[int64]models.Question),
		settings:  make(map[string]string),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func cloneTicket(t models.Ticket) models.Ticket {
	out := t
	out.ServiceFields = t.ServiceFields.Clone()
	out.MetaTabs = models.CloneTabs(t.MetaTabs)
	if t.StartTime != nil {
		v := *t.StartTime
		out.StartTime = &v
	}
	if t.EndTime != nil {
		v := *t.EndTime
		out.EndTime = &v
	}
	return out
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createTicketLocked(input)
}

func (s *Store) createTicketLocked(input store.CreateTicketInput) (models.Ticket, error) {
	if err := models.CheckMetaTabs(input.MetaTabs); err != nil {
		return models.Ticket{}, err
	}
	number := input.TicketNumber
	if number == "" {
		day := input.AppointmentTime.In(models.Location).Format(models.DateLayout)
		s.sequences[day]++
		number = fmt.Sprintf("%03d", s.sequences[day])
	}
	ticket := models.Ticket{
		ID:              s.id(),
		TicketNumber:    number,
		QuestionID:      input.QuestionID,
		QuestionText:    input.QuestionText,
		AppointmentTime: models.MinuteKey(input.AppointmentTime),
		WindowID:        input.WindowID,
		Status:          input.Status,
		QueueType:       input.QueueType,
		StartTime:       input.StartTime,
		EndTime:         input.EndTime,
		CreatedAt:       input.CreatedAt,
		ServiceFields:   input.Fields,
		MetaTabs:        input.MetaTabs,
	}
	if ticket.MetaTabs == nil {
		ticket.MetaTabs = []models.MetaTab{}
	}
	stored := cloneTicket(ticket)
	s.tickets[stored.ID] = stored
	return cloneTicket(stored), nil
}

func (s *Store) GetTicket(ctx context.Context, id int64) (models.Ticket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return models.Ticket{}, false, nil
	}
	return cloneTicket(ticket), true, nil
}

func matches(t models.Ticket, filter store.TicketFilter) bool {
	if filter.WindowID != 0 && t.WindowID != filter.WindowID {
		return false
	}
	if !filter.From.IsZero() && t.AppointmentTime.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && !t.AppointmentTime.Before(filter.To) {
		return false
	}
	if filter.TicketNumber != "" && t.TicketNumber != filter.TicketNumber {
		return false
	}
	if len(filter.Statuses) > 0 && !contains(filter.Statuses, t.Status) {
		return false
	}
	return true
}

func (s *Store) ListTickets(ctx context.Context, filter store.TicketFilter) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(filter), nil
}

func (s *Store) listLocked(filter store.TicketFilter) []models.Ticket {
	out := make([]models.Ticket, 0)
	for _, ticket := range s.tickets {
		if matches(ticket, filter) {
			out = append(out, cloneTicket(ticket))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AppointmentTime.Equal(out[j].AppointmentTime) {
			return out[i].AppointmentTime.Before(out[j].AppointmentTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) ActiveTicket(ctx context.Context, windowID int) (models.Ticket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.listLocked(store.TicketFilter{WindowID: windowID, Statuses: []string{models.StatusInProgress}})
	if len(rows) == 0 {
		return models.Ticket{}, false, nil
	}
	return rows[0], true, nil
}

func (s *Store) UpdateTicket(ctx context.Context, ticket models.Ticket, expected []string) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(ticket, expected)
}

func (s *Store) updateLocked(ticket models.Ticket, expected []string) (models.Ticket, error) {
	current, ok := s.tickets[ticket.ID]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	if len(expected) > 0 && !contains(expected, current.Status) {
		return models.Ticket{}, store.ErrInvalidState
	}
	if err := models.CheckMetaTabs(ticket.MetaTabs); err != nil {
		return models.Ticket{}, err
	}
	current.Status = ticket.Status
	current.StartTime = ticket.StartTime
	current.EndTime = ticket.EndTime
	current.ServiceFields = ticket.ServiceFields
	current.MetaTabs = ticket.MetaTabs
	if current.MetaTabs == nil {
		current.MetaTabs = []models.MetaTab{}
	}
	stored := cloneTicket(current)
	s.tickets[stored.ID] = stored
	return cloneTicket(stored), nil
}

func (s *Store) CommitTabFinish(ctx context.Context, ticket models.Ticket, expected []string, continuation *store.CreateTicketInput) (models.Ticket, *models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if continuation != nil {
		if err := models.CheckMetaTabs(continuation.MetaTabs); err != nil {
			return models.Ticket{}, nil, err
		}
	}
	updated, err := s.updateLocked(ticket, expected)
	if err != nil {
		return models.Ticket{}, nil, err
	}
	if continuation == nil {
		return updated, nil, nil
	}
	created, err := s.createTicketLocked(*continuation)
	if err != nil {
		return models.Ticket{}, nil, err
	}
	return updated, &created, nil
}

func (s *Store) conflictsLocked(from, to int) []store.MoveConflict {
	destination := make(map[int64]string)
	for _, t := range s.listLocked(store.TicketFilter{WindowID: to, Statuses: models.WaitingStatuses}) {
		destination[t.AppointmentTime.Unix()] = t.TicketNumber
	}
	var conflicts []store.MoveConflict
	for _, t := range s.listLocked(store.TicketFilter{WindowID: from, Statuses: models.WaitingStatuses}) {
		if number, ok := destination[t.AppointmentTime.Unix()]; ok {
			conflicts = append(conflicts, store.MoveConflict{
				AppointmentTime:  t.AppointmentTime,
				FromTicketNumber: t.TicketNumber,
				ToTicketNumber:   number,
			})
		}
	}
	return conflicts
}

func (s *Store) MoveWaiting(ctx context.Context, input store.MoveWindowInput) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if input.CheckConflicts {
		if conflicts := s.conflictsLocked(input.From, input.To); len(conflicts) > 0 {
			return 0, &store.ConflictError{Conflicts: conflicts}
		}
	}
	moved := 0
	for id, ticket := range s.tickets {
		if ticket.WindowID == input.From && models.IsWaiting(ticket.Status) {
			ticket.WindowID = input.To
			s.tickets[id] = ticket
			moved++
		}
	}
	return moved, nil
}

func (s *Store) ListMoveConflicts(ctx context.Context, from, to int) ([]store.MoveConflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conflictsLocked(from, to), nil
}

func (s *Store) ExpireTickets(ctx context.Context, input store.ExpireInput) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for id, ticket := range s.tickets {
		if !contains(input.FromStatuses, ticket.Status) || ticket.AppointmentTime.After(input.Cutoff) {
			continue
		}
		now := input.Now
		ticket.Status = input.ToStatus
		ticket.EndTime = &now
		if input.SetStartTime && ticket.StartTime == nil {
			start := input.Now
			ticket.StartTime = &start
		}
		s.tickets[id] = ticket
		changed++
	}
	return changed, nil
}

func cloneSchedule(ws models.WorkSchedule) models.WorkSchedule {
	out := ws
	out.Data = make(map[string]models.DayHours, len(ws.Data))
	for k, v := range ws.Data {
		out.Data[k] = v
	}
	return out
}

func (s *Store) GetActiveSchedule(ctx context.Context, employeeID int64, weekStart string) (models.WorkSchedule, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ws := range s.schedules {
		if ws.EmployeeID == employeeID && ws.WeekStart == weekStart && ws.Status == models.ScheduleActive {
			return cloneSchedule(ws), true, nil
		}
	}
	return models.WorkSchedule{}, false, nil
}

func (s *Store) ReplaceActiveSchedule(ctx context.Context, input store.ScheduleInput) (models.WorkSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.employees[input.EmployeeID]; !ok {
		return models.WorkSchedule{}, store.ErrEmployeeNotFound
	}
	var supersedes *int64
	for i, ws := range s.schedules {
		if ws.EmployeeID == input.EmployeeID && ws.WeekStart == input.WeekStart && ws.Status == models.ScheduleActive {
			s.schedules[i].Status = models.ScheduleArchived
			id := ws.ID
			supersedes = &id
		}
	}
	ws := cloneSchedule(models.WorkSchedule{
		ID:           s.id(),
		EmployeeID:   input.EmployeeID,
		WeekStart:    input.WeekStart,
		Data:         input.Data,
		Status:       models.ScheduleActive,
		CreatedBy:    input.CreatedBy,
		Note:         input.Note,
		SupersedesID: supersedes,
		CreatedAt:    input.CreatedAt,
	})
	s.schedules = append(s.schedules, ws)
	return cloneSchedule(ws), nil
}

func (s *Store) ListSchedules(ctx context.Context, filter store.ScheduleFilter) ([]models.WorkSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.WorkSchedule, 0)
	for _, ws := range s.schedules {
		if filter.EmployeeID != 0 && ws.EmployeeID != filter.EmployeeID {
			continue
		}
		if filter.WeekStart != "" && ws.WeekStart != filter.WeekStart {
			continue
		}
		if !filter.IncludeArchived && ws.Status != models.ScheduleActive {
			continue
		}
		out = append(out, cloneSchedule(ws))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WeekStart != out[j].WeekStart {
			return out[i].WeekStart > out[j].WeekStart
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func cloneEmployee(e models.Employee) models.Employee {
	out := e
	out.Topics = append([]int64{}, e.Topics...)
	if e.WindowNumber != nil {
		v := *e.WindowNumber
		out.WindowNumber = &v
	}
	return out
}

func (s *Store) ListEmployees(ctx context.Context) ([]models.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Employee, 0, len(s.employees))
	for _, e := range s.employees {
		out = append(out, cloneEmployee(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetEmployee(ctx context.Context, id int64) (models.Employee, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.employees[id]
	if !ok {
		return models.Employee{}, false, nil
	}
	return cloneEmployee(e), true, nil
}

func (s *Store) GetEmployeeByName(ctx context.Context, name string) (models.Employee, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.employees {
		if e.Name == name {
			return cloneEmployee(e), true, nil
		}
	}
	return models.Employee{}, false, nil
}

func (s *Store) CreateEmployee(ctx context.Context, input store.CreateEmployeeInput) (models.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := cloneEmployee(models.Employee{
		ID:           s.id(),
		Name:         input.Name,
		Position:     input.Position,
		PasswordHash: input.PasswordHash,
		Status:       input.Status,
		WindowNumber: input.WindowNumber,
		Topics:       input.Topics,
		Priority:     input.Priority,
	})
	s.employees[e.ID] = e
	return cloneEmployee(e), nil
}

func (s *Store) AssignWindow(ctx context.Context, id int64, window *int) (models.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.employees[id]
	if !ok {
		return models.Employee{}, store.ErrEmployeeNotFound
	}
	e.WindowNumber = window
	e = cloneEmployee(e)
	s.employees[id] = e
	return cloneEmployee(e), nil
}

func (s *Store) ListQuestions(ctx context.Context) ([]models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Question, 0, len(s.questions))
	for _, q := range s.questions {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetQuestion(ctx context.Context, id int64) (models.Question, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	return q, ok, nil
}

func (s *Store) CreateQuestion(ctx context.Context, text string) (models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := models.Question{ID: s.id(), Text: text}
	s.questions[q.ID] = q
	return q, nil
}

func (s *Store) UpdateQuestion(ctx context.Context, id int64, text string) (models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return models.Question{}, store.ErrQuestionNotFound
	}
	q.Text = text
	s.questions[id] = q
	return q, nil
}

func (s *Store) DeleteQuestion(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[id]; !ok {
		return store.ErrQuestionNotFound
	}
	delete(s.questions, id)
	for eid, e := range s.employees {
		kept := e.Topics[:0:0]
		for _, topic := range e.Topics {
			if topic != id {
				kept = append(kept, topic)
			}
		}
		e.Topics = kept
		s.employees[eid] = e
	}
	return nil
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.settings[key]
	return value, ok, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}
