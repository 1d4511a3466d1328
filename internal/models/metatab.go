package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	MaxTabs     = 5
	PrimarySlot = 1
)

const (
	TabWaiting    = "waiting"
	TabInProgress = "in_progress"
	TabCompleted  = "completed"
	TabCanceled   = "canceled"
)

// ExtraActionOther is the extra action that needs a free-text description.
const ExtraActionOther = "other"

// ServiceFields is the record a manager fills in while serving a client.
type ServiceFields struct {
	PersonalAccount  string   `json:"personal_account"`
	ExtraActions     []string `json:"extra_actions"`
	ExtraOtherText   string   `json:"extra_other_text"`
	ApplicationYesNo *bool    `json:"application_yesno"`
	ApplicationTypes []string `json:"application_types"`
	ManagerComment   string   `json:"manager_comment"`
	ServiceZone      bool     `json:"service_zone"`
}

// Problems lists every rule the fields break. Empty means the record can be finalized.
func (f ServiceFields) Problems() []string {
	var problems []string
	if f.ServiceZone && strings.TrimSpace(f.PersonalAccount) == "" {
		problems = append(problems, "personal_account is required when service_zone is set")
	}
	for _, action := range f.ExtraActions {
		if action == ExtraActionOther && strings.TrimSpace(f.ExtraOtherText) == "" {
			problems = append(problems, "extra_other_text is required when extra_actions includes other")
			break
		}
	}
	if f.ApplicationYesNo != nil && *f.ApplicationYesNo && len(f.ApplicationTypes) == 0 {
		problems = append(problems, "application_types is required when application_yesno is yes")
	}
	return problems
}

type MetaTab struct {
	Slot   int    `json:"tab_slot"`
	Status string `json:"tab_status"`
	ServiceFields
}

func (m MetaTab) Open() bool {
	return m.Status == TabWaiting || m.Status == TabInProgress
}

func (m MetaTab) Closed() bool {
	return m.Status == TabCompleted || m.Status == TabCanceled
}

// Signature identifies a tab by content. Two tabs with equal signatures are the same record.
func (m MetaTab) Signature() string {
	if m.ExtraActions == nil {
		m.ExtraActions = []string{}
	}
	if m.ApplicationTypes == nil {
		m.ApplicationTypes = []string{}
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Sprintf("%d|%s", m.Slot, m.Status)
	}
	return string(payload)
}

func NewPrimaryTab() MetaTab {
	return MetaTab{Slot: PrimarySlot, Status: TabWaiting}
}

func knownTabStatus(status string) bool {
	switch status {
	case TabWaiting, TabInProgress, TabCompleted, TabCanceled:
		return true
	}
	return false
}

// CheckMetaTabs validates the structure of a tab list.
func CheckMetaTabs(tabs []MetaTab) error {
	if len(tabs) > MaxTabs {
		return fmt.Errorf("too many tabs: %d", len(tabs))
	}
	seen := make(map[int]bool, len(tabs))
	for _, tab := range tabs {
		if tab.Slot < 1 || tab.Slot > MaxTabs {
			return fmt.Errorf("tab_slot %d out of range", tab.Slot)
		}
		if seen[tab.Slot] {
			return fmt.Errorf("duplicate tab_slot %d", tab.Slot)
		}
		seen[tab.Slot] = true
		if !knownTabStatus(tab.Status) {
			return fmt.Errorf("tab_slot %d: unknown tab_status %q", tab.Slot, tab.Status)
		}
		if tab.Slot == PrimarySlot && tab.Status == TabCanceled {
			return fmt.Errorf("tab_slot 1 cannot be canceled")
		}
	}
	return nil
}

// DecodeMetaTabs parses persisted tab data. Empty input decodes to no tabs.
func DecodeMetaTabs(raw []byte) ([]MetaTab, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []MetaTab{}, nil
	}
	if trimmed[0] != '[' {
		return nil, fmt.Errorf("meta_tabs: expected array")
	}
	var tabs []MetaTab
	if err := json.Unmarshal(trimmed, &tabs); err != nil {
		return nil, fmt.Errorf("meta_tabs: %w", err)
	}
	if err := CheckMetaTabs(tabs); err != nil {
		return nil, fmt.Errorf("meta_tabs: %w", err)
	}
	return tabs, nil
}

func EncodeMetaTabs(tabs []MetaTab) ([]byte, error) {
	if tabs == nil {
		tabs = []MetaTab{}
	}
	if err := CheckMetaTabs(tabs); err != nil {
		return nil, fmt.Errorf("meta_tabs: %w", err)
	}
	return json.Marshal(tabs)
}

// CloneTabs returns a deep copy of tabs.
func CloneTabs(tabs []MetaTab) []MetaTab {
	out := make([]MetaTab, len(tabs))
	for i, tab := range tabs {
		out[i] = tab
		out[i].ServiceFields = tab.ServiceFields.Clone()
	}
	return out
}

func (f ServiceFields) Clone() ServiceFields {
	out := f
	if f.ExtraActions != nil {
		out.ExtraActions = append([]string(nil), f.ExtraActions...)
	}
	if f.ApplicationTypes != nil {
		out.ApplicationTypes = append([]string(nil), f.ApplicationTypes...)
	}
	if f.ApplicationYesNo != nil {
		v := *f.ApplicationYesNo
		out.ApplicationYesNo = &v
	}
	return out
}
