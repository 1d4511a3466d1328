package queue

import (
	"sort"
	"strconv"

	"github.com/iwtkmsss/queue-sub000/internal/models"
)

// TicketGroup is the merged view of every row that shares a ticket number.
type TicketGroup struct {
	models.Ticket
	RowIDs []int64 `json:"row_ids"`
}

var terminalRank = map[string]int{
	models.StatusAlarmMissed:  1,
	models.StatusMissed:       2,
	models.StatusDidNotAppear: 3,
}

// MergeRows folds rows into one group per ticket number, keeping first-seen order.
func MergeRows(rows []models.Ticket) []TicketGroup {
	var order []string
	byNumber := make(map[string][]models.Ticket)
	for _, row := range rows {
		key := row.TicketNumber
		if key == "" {
			key = "#" + strconv.FormatInt(row.ID, 10)
		}
		if _, ok := byNumber[key]; !ok {
			order = append(order, key)
		}
		byNumber[key] = append(byNumber[key], row)
	}

	groups := make([]TicketGroup, 0, len(order))
	for _, key := range order {
		groups = append(groups, mergeGroup(byNumber[key]))
	}
	return groups
}

// mergeGroup keeps one tab per slot. A closed tab beats an open one, otherwise the tab
// from the highest row id wins. Exact duplicates are dropped by signature.
func mergeGroup(rows []models.Ticket) TicketGroup {
	sorted := append([]models.Ticket(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	base := sorted[0]
	var open []models.Ticket
	for _, row := range sorted {
		if models.IsOpen(row.Status) {
			open = append(open, row)
		}
	}
	if len(open) == 1 {
		base = open[0]
	}

	bySlot := make(map[int]models.MetaTab)
	seen := make(map[string]bool)
	ids := make([]int64, 0, len(sorted))
	best := 0
	status := ""
	for _, row := range sorted {
		ids = append(ids, row.ID)
		for _, tab := range row.MetaTabs {
			sig := tab.Signature()
			if seen[sig] {
				continue
			}
			seen[sig] = true
			if current, ok := bySlot[tab.Slot]; ok && current.Closed() && !tab.Closed() {
				continue
			}
			bySlot[tab.Slot] = tab
		}
		if rank := terminalRank[row.Status]; rank > best {
			best = rank
			status = row.Status
		}
	}
	tabs := make([]models.MetaTab, 0, len(bySlot))
	for _, tab := range bySlot {
		tabs = append(tabs, tab)
	}
	sort.Slice(tabs, func(i, j int) bool { return tabs[i].Slot < tabs[j].Slot })

	merged := base
	merged.ServiceFields = base.ServiceFields.Clone()
	merged.MetaTabs = models.CloneTabs(tabs)
	if status != "" {
		merged.Status = status
	}
	return TicketGroup{Ticket: merged, RowIDs: ids}
}
