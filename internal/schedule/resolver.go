// Package schedule resolves an employee's working hours from versioned weekly schedules.
package schedule

import (
	"context"
	"strconv"
	"strings"

	"github.com/iwtkmsss/queue-sub000/internal/clock"
	"github.com/iwtkmsss/queue-sub000/internal/models"
	"github.com/iwtkmsss/queue-sub000/internal/store"
)

type Resolver struct {
	store     store.ScheduleStore
	employees store.EmployeeStore
	clock     clock.Clock
}

func NewResolver(schedules store.ScheduleStore, employees store.EmployeeStore, c clock.Clock) *Resolver {
	return &Resolver{store: schedules, employees: employees, clock: c}
}

// IsoWeekStart returns the Monday of the ISO week containing date, both as YYYY-MM-DD.
func IsoWeekStart(date string) (string, error) {
	day, err := models.ParseDate(strings.TrimSpace(date))
	if err != nil {
		return "", store.ErrInvalidDate
	}
	return day.AddDate(0, 0, 1-models.ISOWeekday(day)).Format(models.DateLayout), nil
}

func checkWeekStart(weekStart string) error {
	day, err := models.ParseDate(strings.TrimSpace(weekStart))
	if err != nil || models.ISOWeekday(day) != 1 {
		return store.ErrInvalidWeekStart
	}
	return nil
}

// ResolveWeek returns the active schedule for the week, or nil when none exists.
func (r *Resolver) ResolveWeek(ctx context.Context, employeeID int64, weekStart string) (*models.WorkSchedule, error) {
	if err := checkWeekStart(weekStart); err != nil {
		return nil, err
	}
	ws, ok, err := r.store.GetActiveSchedule(ctx, employeeID, strings.TrimSpace(weekStart))
	if err != nil || !ok {
		return nil, err
	}
	return &ws, nil
}

// ResolveDay returns the working hours for one date, or nil when the employee is off.
func (r *Resolver) ResolveDay(ctx context.Context, employeeID int64, date string) (*models.DayHours, error) {
	weekStart, err := IsoWeekStart(date)
	if err != nil {
		return nil, err
	}
	ws, err := r.ResolveWeek(ctx, employeeID, weekStart)
	if err != nil || ws == nil {
		return nil, err
	}
	day, _ := models.ParseDate(strings.TrimSpace(date))
	hours, ok := ws.Data[strconv.Itoa(models.ISOWeekday(day))]
	if !ok {
		return nil, nil
	}
	if _, _, err := hours.Bounds(); err != nil {
		return nil, nil
	}
	return &hours, nil
}

type CreateInput struct {
	EmployeeID int64                      `json:"employee_id"`
	WeekStart  string                     `json:"week_start"`
	Days       map[string]models.DayHours `json:"days"`
	CreatedBy  string                     `json:"created_by"`
	Note       string                     `json:"note"`
}

// CleanDays keeps the entries with a weekday key 1..7 and valid hours.
func CleanDays(days map[string]models.DayHours) map[string]models.DayHours {
	out := make(map[string]models.DayHours)
	for key, hours := range days {
		weekday, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || weekday < 1 || weekday > 7 {
			continue
		}
		hours.Start = strings.TrimSpace(hours.Start)
		hours.End = strings.TrimSpace(hours.End)
		if _, _, err := hours.Bounds(); err != nil {
			continue
		}
		out[strconv.Itoa(weekday)] = hours
	}
	return out
}

// CreateWeeklySchedule stores a new active version, archiving the previous one.
func (r *Resolver) CreateWeeklySchedule(ctx context.Context, input CreateInput) (models.WorkSchedule, error) {
	var missing []string
	if input.EmployeeID <= 0 {
		missing = append(missing, "employee_id")
	}
	if strings.TrimSpace(input.WeekStart) == "" {
		missing = append(missing, "week_start")
	}
	if len(missing) > 0 {
		return models.WorkSchedule{}, store.MissingFields(missing...)
	}
	if err := checkWeekStart(input.WeekStart); err != nil {
		return models.WorkSchedule{}, err
	}
	days := CleanDays(input.Days)
	if len(days) == 0 {
		return models.WorkSchedule{}, store.ErrEmptySchedule
	}
	if _, ok, err := r.employees.GetEmployee(ctx, input.EmployeeID); err != nil {
		return models.WorkSchedule{}, err
	} else if !ok {
		return models.WorkSchedule{}, store.ErrEmployeeNotFound
	}
	return r.store.ReplaceActiveSchedule(ctx, store.ScheduleInput{
		EmployeeID: input.EmployeeID,
		WeekStart:  strings.TrimSpace(input.WeekStart),
		Data:       days,
		CreatedBy:  strings.TrimSpace(input.CreatedBy),
		Note:       strings.TrimSpace(input.Note),
		CreatedAt:  r.clock.Now().UTC(),
	})
}

func (r *Resolver) ListSchedules(ctx context.Context, filter store.ScheduleFilter) ([]models.WorkSchedule, error) {
	if filter.WeekStart != "" {
		if err := checkWeekStart(filter.WeekStart); err != nil {
			return nil, err
		}
	}
	return r.store.ListSchedules(ctx, filter)
}
