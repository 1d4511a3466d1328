package models

const (
	SettingServiceDuration   = "service_duration_minutes"
	SettingAlarmActive       = "alarm_active"
	SettingMaxWaitMultiplier = "max_wait_multiplier"
	SettingLunchWindow       = "lunch_window"
)

const DefaultServiceDuration = 20

type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
