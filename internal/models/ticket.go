package models

import "time"

type Ticket struct {
	ID              int64      `json:"id"`
	TicketNumber    string     `json:"ticket_number"`
	QuestionID      int64      `json:"question_id"`
	QuestionText    string     `json:"question_text"`
	AppointmentTime time.Time  `json:"appointment_time"`
	WindowID        int        `json:"window_id"`
	Status          string     `json:"status"`
	QueueType       string     `json:"queue_type"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ServiceFields
	MetaTabs []MetaTab `json:"meta_tabs"`
}

const (
	StatusWaiting      = "waiting"
	StatusInProgress   = "in_progress"
	StatusCompleted    = "completed"
	StatusMissed       = "missed"
	StatusDidNotAppear = "did_not_appear"
	StatusAlarmMissed  = "alarm_missed"
	StatusLiveQueue    = "live_queue"
)

const (
	QueueRegular = "regular"
	QueueLive    = "live"
)

// WaitingStatuses are the statuses a ticket has before a manager calls it.
var WaitingStatuses = []string{StatusWaiting, StatusLiveQueue}

// OpenStatuses are the statuses of a ticket that still needs work.
var OpenStatuses = []string{StatusWaiting, StatusLiveQueue, StatusInProgress}

func IsWaiting(status string) bool {
	return status == StatusWaiting || status == StatusLiveQueue
}

func IsOpen(status string) bool {
	return IsWaiting(status) || status == StatusInProgress
}

// SkippedStatus reports whether a slot held by a ticket in this status is shown as skipped.
func SkippedStatus(status string) bool {
	switch status {
	case StatusMissed, StatusDidNotAppear, StatusAlarmMissed:
		return true
	}
	return false
}

func KnownStatus(status string) bool {
	switch status {
	case StatusWaiting, StatusInProgress, StatusCompleted, StatusMissed,
		StatusDidNotAppear, StatusAlarmMissed, StatusLiveQueue:
		return true
	}
	return false
}

// Tab returns the tab in the given slot.
func (t Ticket) Tab(slot int) (MetaTab, int, bool) {
	for i, tab := range t.MetaTabs {
		if tab.Slot == slot {
			return tab, i, true
		}
	}
	return MetaTab{}, -1, false
}

// CalledEvent is the payload announced on the display when a ticket is started.
type CalledEvent struct {
	QueueNumber  string `json:"queue_number"`
	WindowNumber int    `json:"window_number"`
}
