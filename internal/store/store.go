package store

import (
	"context"
	"time"

	"github.com/iwtkmsss/queue-sub000/internal/models"
)

type CreateTicketInput struct {
	// TicketNumber is assigned from the per-day sequence when empty.
	TicketNumber    string
	QuestionID      int64
	QuestionText    string
	AppointmentTime time.Time
	WindowID        int
	Status          string
	QueueType       string
	StartTime       *time.Time
	EndTime         *time.Time
	Fields          models.ServiceFields
	MetaTabs        []models.MetaTab
	CreatedAt       time.Time
}

// TicketFilter selects rows. Zero values match everything.
type TicketFilter struct {
	WindowID     int
	From         time.Time
	To           time.Time
	TicketNumber string
	Statuses     []string
}

type MoveWindowInput struct {
	From           int
	To             int
	CheckConflicts bool
}

type MoveConflict struct {
	AppointmentTime  time.Time `json:"appointment_time"`
	FromTicketNumber string    `json:"from_ticket_number"`
	ToTicketNumber   string    `json:"to_ticket_number"`
}

// ExpireInput moves rows in FromStatuses with appointment_time <= Cutoff to ToStatus.
type ExpireInput struct {
	FromStatuses []string
	ToStatus     string
	Cutoff       time.Time
	Now          time.Time
	SetStartTime bool
}

type TicketStore interface {
	CreateTicket(ctx context.Context, input CreateTicketInput) (models.Ticket, error)
	GetTicket(ctx context.Context, id int64) (models.Ticket, bool, error)
	ListTickets(ctx context.Context, filter TicketFilter) ([]models.Ticket, error)
	ActiveTicket(ctx context.Context, windowID int) (models.Ticket, bool, error)
	// UpdateTicket persists the mutable columns of ticket if its stored status is one of expected.
	UpdateTicket(ctx context.Context, ticket models.Ticket, expected []string) (models.Ticket, error)
	// CommitTabFinish updates ticket and inserts the optional continuation row atomically.
	CommitTabFinish(ctx context.Context, ticket models.Ticket, expected []string, continuation *CreateTicketInput) (models.Ticket, *models.Ticket, error)
	MoveWaiting(ctx context.Context, input MoveWindowInput) (int, error)
	ListMoveConflicts(ctx context.Context, from, to int) ([]MoveConflict, error)
	ExpireTickets(ctx context.Context, input ExpireInput) (int, error)
}

type ScheduleInput struct {
	EmployeeID int64
	WeekStart  string
	Data       map[string]models.DayHours
	CreatedBy  string
	Note       string
	CreatedAt  time.Time
}

type ScheduleFilter struct {
	EmployeeID      int64
	WeekStart       string
	IncludeArchived bool
}

type ScheduleStore interface {
	GetActiveSchedule(ctx context.Context, employeeID int64, weekStart string) (models.WorkSchedule, bool, error)
	// ReplaceActiveSchedule archives the current active row and inserts input as the new one.
	ReplaceActiveSchedule(ctx context.Context, input ScheduleInput) (models.WorkSchedule, error)
	ListSchedules(ctx context.Context, filter ScheduleFilter) ([]models.WorkSchedule, error)
}

type CreateEmployeeInput struct {
	Name         string
	Position     string
	PasswordHash string
	Status       string
	WindowNumber *int
	Topics       []int64
	Priority     int
}

type EmployeeStore interface {
	ListEmployees(ctx context.Context) ([]models.Employee, error)
	GetEmployee(ctx context.Context, id int64) (models.Employee, bool, error)
	GetEmployeeByName(ctx context.Context, name string) (models.Employee, bool, error)
	CreateEmployee(ctx context.Context, input CreateEmployeeInput) (models.Employee, error)
	AssignWindow(ctx context.Context, id int64, window *int) (models.Employee, error)
}

type QuestionStore interface {
	ListQuestions(ctx context.Context) ([]models.Question, error)
	GetQuestion(ctx context.Context, id int64) (models.Question, bool, error)
	CreateQuestion(ctx context.Context, text string) (models.Question, error)
	UpdateQuestion(ctx context.Context, id int64, text string) (models.Question, error)
	// DeleteQuestion removes the question and prunes it from every employee's topics.
	DeleteQuestion(ctx context.Context, id int64) error
}

type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

type Store interface {
	TicketStore
	ScheduleStore
	EmployeeStore
	QuestionStore
	SettingsStore
}
