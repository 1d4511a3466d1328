package store

import "github.com/iwtkmsss/queue-sub000/internal/models"

const (
	ActionStart        = "start"
	ActionStartTab     = "start_tab"
	ActionSkip         = "skip"
	ActionDidNotAppear = "did_not_appear"
	ActionFinishTab    = "finish_tab"
	ActionComplete     = "complete"
	ActionAddTab       = "add_tab"
	ActionCancelTab    = "cancel_tab"
	ActionAlarmMiss    = "alarm_miss"
	ActionExpire       = "expire"
)

var transitionMap = map[string][]string{
	ActionStart:        {models.StatusWaiting, models.StatusLiveQueue},
	ActionStartTab:     {models.StatusWaiting, models.StatusLiveQueue, models.StatusInProgress},
	ActionSkip:         {models.StatusWaiting, models.StatusLiveQueue, models.StatusInProgress},
	ActionDidNotAppear: {models.StatusWaiting, models.StatusLiveQueue, models.StatusInProgress},
	ActionFinishTab:    {models.StatusInProgress},
	ActionComplete:     {models.StatusWaiting, models.StatusLiveQueue, models.StatusInProgress},
	ActionAddTab:       {models.StatusWaiting, models.StatusLiveQueue, models.StatusInProgress, models.StatusCompleted},
	ActionCancelTab:    {models.StatusWaiting, models.StatusLiveQueue, models.StatusInProgress},
	ActionAlarmMiss:    {models.StatusWaiting, models.StatusLiveQueue},
	ActionExpire:       {models.StatusWaiting},
}

func ValidTransition(action, fromStatus string) bool {
	for _, status := range AllowedFrom(action) {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// AllowedFrom lists the statuses an action may start from.
func AllowedFrom(action string) []string {
	return transitionMap[action]
}
