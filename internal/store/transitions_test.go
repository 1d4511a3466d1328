package store

import "testing"

func TestValidTransition(t *testing.T) {
	cases := []struct {
		action string
		from   string
		valid  bool
	}{
		{"start", "waiting", true},
		{"start", "live_queue", true},
		{"start", "in_progress", false},
		{"start", "completed", false},
		{"skip", "in_progress", true},
		{"skip", "missed", false},
		{"did_not_appear", "waiting", true},
		{"did_not_appear", "alarm_missed", false},
		{"finish_tab", "in_progress", true},
		{"finish_tab", "waiting", false},
		{"add_tab", "completed", true},
		{"add_tab", "missed", false},
		{"cancel_tab", "completed", false},
		{"alarm_miss", "live_queue", true},
		{"alarm_miss", "in_progress", false},
		{"expire", "waiting", true},
		{"expire", "live_queue", false},
		{"unknown", "waiting", false},
	}

	for _, tt := range cases {
		if got := ValidTransition(tt.action, tt.from); got != tt.valid {
			t.Fatalf("ValidTransition(%q, %q)=%v, want %v", tt.action, tt.from, got, tt.valid)
		}
	}
}
