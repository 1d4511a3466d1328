package models

import (
	"fmt"
	"strconv"
	"time"
)

const (
	ScheduleActive   = "active"
	ScheduleArchived = "archived"
)

// DayHours is one working day, both ends as HH:MM.
type DayHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// WorkSchedule is one version of an employee's hours for an ISO week.
type WorkSchedule struct {
	ID           int64               `json:"id"`
	EmployeeID   int64               `json:"employee_id"`
	WeekStart    string              `json:"week_start"`
	Data         map[string]DayHours `json:"data"`
	Status       string              `json:"status"`
	CreatedBy    string              `json:"created_by,omitempty"`
	Note         string              `json:"note,omitempty"`
	SupersedesID *int64              `json:"supersedes_id,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}

// ParseClock parses a 24h HH:MM value into minutes after midnight.
func ParseClock(value string) (int, error) {
	if len(value) != 5 || value[2] != ':' {
		return 0, fmt.Errorf("invalid time %q", value)
	}
	hours, err := strconv.Atoi(value[:2])
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", value)
	}
	minutes, err := strconv.Atoi(value[3:])
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", value)
	}
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid time %q", value)
	}
	return hours*60 + minutes, nil
}

// Bounds returns start and end as minutes after midnight, requiring end after start.
func (d DayHours) Bounds() (int, int, error) {
	start, err := ParseClock(d.Start)
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseClock(d.End)
	if err != nil {
		return 0, 0, err
	}
	if end <= start {
		return 0, 0, fmt.Errorf("end %s is not after start %s", d.End, d.Start)
	}
	return start, end, nil
}

func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
