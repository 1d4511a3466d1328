// Package slots computes which appointment times are free for a question on a day.
package slots

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/iwtkmsss/queue-sub000/internal/models"
	"github.com/iwtkmsss/queue-sub000/internal/store"
)

type DayResolver interface {
	ResolveDay(ctx context.Context, employeeID int64, date string) (*models.DayHours, error)
}

type Settings interface {
	ServiceDuration(ctx context.Context) (time.Duration, error)
	LunchWindow(ctx context.Context) (start, end int, ok bool, err error)
}

type Engine struct {
	employees store.EmployeeStore
	tickets   store.TicketStore
	resolver  DayResolver
	settings  Settings
}

func NewEngine(employees store.EmployeeStore, tickets store.TicketStore, resolver DayResolver, settings Settings) *Engine {
	return &Engine{employees: employees, tickets: tickets, resolver: resolver, settings: settings}
}

type Slot struct {
	Time    string `json:"time"`
	Taken   bool   `json:"taken"`
	Skipped bool   `json:"skipped"`
}

type EmployeeRef struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	WindowNumber int    `json:"window_number"`
	Priority     int    `json:"priority"`
}

type Availability struct {
	Employee  *EmployeeRef `json:"employee"`
	TimeSlots []Slot       `json:"timeSlots"`
}

type candidate struct {
	employee models.Employee
	hours    models.DayHours
	load     int
}

// AvailableTimes picks the best employee for the question on date and lays out their slot grid.
func (e *Engine) AvailableTimes(ctx context.Context, questionID int64, date string) (Availability, error) {
	empty := Availability{TimeSlots: []Slot{}}
	var missing []string
	if questionID <= 0 {
		missing = append(missing, "question_id")
	}
	if strings.TrimSpace(date) == "" {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		return empty, store.MissingFields(missing...)
	}
	day, err := models.ParseDate(strings.TrimSpace(date))
	if err != nil {
		return empty, store.ErrInvalidDate
	}
	dayStart, dayEnd := models.DayRange(day)

	employees, err := e.employees.ListEmployees(ctx)
	if err != nil {
		return empty, err
	}
	var candidates []candidate
	for _, emp := range employees {
		if !emp.HasTopic(questionID) || emp.WindowNumber == nil {
			continue
		}
		hours, err := e.resolver.ResolveDay(ctx, emp.ID, date)
		if err != nil {
			return empty, err
		}
		if hours == nil {
			continue
		}
		rows, err := e.tickets.ListTickets(ctx, store.TicketFilter{WindowID: *emp.WindowNumber, From: dayStart, To: dayEnd})
		if err != nil {
			return empty, err
		}
		candidates = append(candidates, candidate{employee: emp, hours: *hours, load: len(rows)})
	}
	if len(candidates) == 0 {
		return empty, nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.employee.Priority != b.employee.Priority {
			return a.employee.Priority > b.employee.Priority
		}
		if a.load != b.load {
			return a.load < b.load
		}
		return a.employee.ID < b.employee.ID
	})
	chosen := candidates[0]
	window := *chosen.employee.WindowNumber

	step, err := e.settings.ServiceDuration(ctx)
	if err != nil {
		return empty, err
	}
	lunchStart, lunchEnd, hasLunch, err := e.settings.LunchWindow(ctx)
	if err != nil {
		return empty, err
	}

	rows, err := e.tickets.ListTickets(ctx, store.TicketFilter{WindowID: window, From: dayStart, To: dayEnd})
	if err != nil {
		return empty, err
	}
	occupied := make(map[int]string, len(rows))
	for _, row := range rows {
		local := models.MinuteKey(row.AppointmentTime)
		minute := local.Hour()*60 + local.Minute()
		// A non-skipped booking at the same minute takes precedence.
		if prev, ok := occupied[minute]; ok && !models.SkippedStatus(prev) {
			continue
		}
		occupied[minute] = row.Status
	}

	minutes := int(step / time.Minute)
	slots := make([]Slot, 0)
	for _, start := range Grid(chosen.hours, minutes) {
		if hasLunch && start < lunchEnd && start+minutes > lunchStart {
			continue
		}
		status, taken := occupied[start]
		slots = append(slots, Slot{
			Time:    models.FormatClock(start),
			Taken:   taken,
			Skipped: taken && models.SkippedStatus(status),
		})
	}

	return Availability{
		Employee: &EmployeeRef{
			ID:           chosen.employee.ID,
			Name:         chosen.employee.Name,
			WindowNumber: window,
			Priority:     chosen.employee.Priority,
		},
		TimeSlots: slots,
	}, nil
}

// Grid lists the start minute of every step-long slot that fits inside hours.
func Grid(hours models.DayHours, step int) []int {
	start, end, err := hours.Bounds()
	if err != nil {
		return nil
	}
	if step <= 0 {
		step = models.DefaultServiceDuration
	}
	var out []int
	for t := start; t+step <= end; t += step {
		out = append(out, t)
	}
	return out
}
