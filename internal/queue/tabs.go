package queue

import (
	"context"
	"log"
	"sort"

	"github.com/iwtkmsss/queue-sub000/internal/models"
	"github.com/iwtkmsss/queue-sub000/internal/store"
)

// StartTab starts the ticket if it is still waiting, then marks the tab in progress.
func (s *Service) StartTab(ctx context.Context, id int64, slot int) (models.Ticket, error) {
	ticket, err := s.load(ctx, id)
	if err != nil {
		return models.Ticket{}, err
	}
	if !store.ValidTransition(store.ActionStartTab, ticket.Status) {
		return models.Ticket{}, store.ErrInvalidState
	}
	if models.IsWaiting(ticket.Status) {
		ticket, err = s.Start(ctx, id)
		if err != nil {
			return models.Ticket{}, err
		}
	}
	if ticket.Status != models.StatusInProgress {
		return models.Ticket{}, store.ErrInvalidState
	}
	ensurePrimary(&ticket)
	tab, i, ok := ticket.Tab(slot)
	if !ok {
		return models.Ticket{}, store.ErrTabNotFound
	}
	if tab.Closed() {
		return models.Ticket{}, store.ErrInvalidState
	}
	if tab.Status == models.TabInProgress {
		return ticket, nil
	}
	ticket.MetaTabs[i].Status = models.TabInProgress
	updated, err := s.tickets.UpdateTicket(ctx, ticket, []string{models.StatusInProgress})
	if err != nil {
		return models.Ticket{}, err
	}
	s.publishUpdate(ctx, "tab_started", updated)
	return updated, nil
}

type FinishInput struct {
	Slot int `json:"tab_slot"`
	models.ServiceFields
}

type FinishResult struct {
	Ticket       models.Ticket  `json:"ticket"`
	Continuation *models.Ticket `json:"continuation,omitempty"`
}

// FinishTab validates and completes one tab. Finishing a secondary tab while others stay
// open records it as its own completed row under the same ticket number.
func (s *Service) FinishTab(ctx context.Context, id int64, input FinishInput) (FinishResult, error) {
	slot := input.Slot
	if slot == 0 {
		slot = models.PrimarySlot
	}
	ticket, err := s.load(ctx, id)
	if err != nil {
		return FinishResult{}, err
	}
	if !store.ValidTransition(store.ActionFinishTab, ticket.Status) {
		return FinishResult{}, store.ErrInvalidState
	}
	ensurePrimary(&ticket)
	tab, i, ok := ticket.Tab(slot)
	if !ok {
		return FinishResult{}, store.ErrTabNotFound
	}
	if tab.Closed() {
		return FinishResult{}, store.ErrInvalidState
	}
	if problems := input.ServiceFields.Problems(); len(problems) > 0 {
		return FinishResult{}, store.Invalid(problems...)
	}

	now := s.now()
	fields := input.ServiceFields.Clone()
	ticket.MetaTabs[i].ServiceFields = fields
	ticket.MetaTabs[i].Status = models.TabCompleted
	finished := ticket.MetaTabs[i]
	if slot == models.PrimarySlot {
		ticket.ServiceFields = fields.Clone()
	}

	open, err := s.openSlots(ctx, ticket)
	if err != nil {
		return FinishResult{}, err
	}

	var continuation *store.CreateTicketInput
	switch {
	case len(open) == 0:
		ticket.Status = models.StatusCompleted
		ticket.EndTime = &now
	case slot != models.PrimarySlot:
		end := now
		continuation = &store.CreateTicketInput{
			TicketNumber:    ticket.TicketNumber,
			QuestionID:      ticket.QuestionID,
			QuestionText:    ticket.QuestionText,
			AppointmentTime: ticket.AppointmentTime,
			WindowID:        ticket.WindowID,
			Status:          models.StatusCompleted,
			QueueType:       ticket.QueueType,
			StartTime:       ticket.StartTime,
			EndTime:         &end,
			Fields:          fields.Clone(),
			MetaTabs:        models.CloneTabs([]models.MetaTab{finished}),
			CreatedAt:       now.UTC(),
		}
	}

	updated, created, err := s.tickets.CommitTabFinish(ctx, ticket, store.AllowedFrom(store.ActionFinishTab), continuation)
	if err != nil {
		return FinishResult{}, err
	}
	log.Printf("tab finished ticket_id=%d number=%s slot=%d status=%s open_tabs=%d", updated.ID, updated.TicketNumber, slot, updated.Status, len(open))
	s.publishUpdate(ctx, "tab_finished", updated)
	return FinishResult{Ticket: updated, Continuation: created}, nil
}

// openSlots lists the tab slots still open across every row sharing the ticket's number.
func (s *Service) openSlots(ctx context.Context, ticket models.Ticket) ([]int, error) {
	closed := map[int]bool{}
	open := map[int]bool{}
	for _, tab := range ticket.MetaTabs {
		if tab.Open() {
			open[tab.Slot] = true
		} else {
			closed[tab.Slot] = true
		}
	}
	if ticket.TicketNumber != "" {
		from, to := models.DayRange(ticket.AppointmentTime)
		rows, err := s.tickets.ListTickets(ctx, store.TicketFilter{TicketNumber: ticket.TicketNumber, From: from, To: to})
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if row.ID == ticket.ID {
				continue
			}
			for _, tab := range row.MetaTabs {
				if tab.Closed() {
					closed[tab.Slot] = true
				}
			}
		}
	}
	var out []int
	for slot := range open {
		if !closed[slot] {
			out = append(out, slot)
		}
	}
	sort.Ints(out)
	return out, nil
}

func allClosedWithPrimaryDone(tabs []models.MetaTab) bool {
	primaryDone := false
	for _, tab := range tabs {
		if tab.Open() {
			return false
		}
		if tab.Slot == models.PrimarySlot && tab.Status == models.TabCompleted {
			primaryDone = true
		}
	}
	return primaryDone
}

type MetaUpdate struct {
	models.ServiceFields
	MetaTabs []models.MetaTab `json:"meta_tabs"`
}

// UpdateMeta saves the form state as is. When every tab is closed and the primary tab is
// completed the ticket completes. A concurrent status change fails with ErrInvalidState.
func (s *Service) UpdateMeta(ctx context.Context, id int64, input MetaUpdate) (models.Ticket, error) {
	if input.MetaTabs != nil {
		if err := models.CheckMetaTabs(input.MetaTabs); err != nil {
			return models.Ticket{}, store.Invalid(err.Error())
		}
		if _, _, ok := (models.Ticket{MetaTabs: input.MetaTabs}).Tab(models.PrimarySlot); !ok {
			return models.Ticket{}, store.Invalid("meta_tabs must include tab_slot 1")
		}
	}

	ticket, err := s.load(ctx, id)
	if err != nil {
		return models.Ticket{}, err
	}
	ticket.ServiceFields = input.ServiceFields.Clone()
	if input.MetaTabs != nil {
		ticket.MetaTabs = models.CloneTabs(input.MetaTabs)
	}
	ensurePrimary(&ticket)
	expected := []string{ticket.Status}
	if store.ValidTransition(store.ActionComplete, ticket.Status) && allClosedWithPrimaryDone(ticket.MetaTabs) {
		now := s.now()
		ticket.Status = models.StatusCompleted
		ticket.EndTime = &now
	}
	updated, err := s.tickets.UpdateTicket(ctx, ticket, expected)
	if err != nil {
		return models.Ticket{}, err
	}
	s.publishUpdate(ctx, "meta_updated", updated)
	return updated, nil
}

// AddTab opens the lowest free slot. A completed ticket is reopened unless it is a
// continuation row or another row with its number is still open.
func (s *Service) AddTab(ctx context.Context, id int64) (models.Ticket, int, error) {
	ticket, err := s.load(ctx, id)
	if err != nil {
		return models.Ticket{}, 0, err
	}
	if !store.ValidTransition(store.ActionAddTab, ticket.Status) {
		return models.Ticket{}, 0, store.ErrInvalidState
	}
	if ticket.Status == models.StatusCompleted {
		if err := s.checkReopen(ctx, ticket); err != nil {
			return models.Ticket{}, 0, err
		}
	}
	ensurePrimary(&ticket)

	chosen := 0
	for slot := models.PrimarySlot + 1; slot <= models.MaxTabs; slot++ {
		tab, i, ok := ticket.Tab(slot)
		if !ok {
			ticket.MetaTabs = append(ticket.MetaTabs, models.MetaTab{Slot: slot, Status: models.TabWaiting})
			chosen = slot
			break
		}
		if tab.Status == models.TabCanceled {
			ticket.MetaTabs[i] = models.MetaTab{Slot: slot, Status: models.TabWaiting}
			chosen = slot
			break
		}
	}
	if chosen == 0 {
		return models.Ticket{}, 0, store.ErrTabLimit
	}
	sort.SliceStable(ticket.MetaTabs, func(i, j int) bool { return ticket.MetaTabs[i].Slot < ticket.MetaTabs[j].Slot })

	expected := []string{ticket.Status}
	if ticket.Status == models.StatusCompleted {
		ticket.Status = models.StatusInProgress
		ticket.EndTime = nil
	}
	updated, err := s.tickets.UpdateTicket(ctx, ticket, expected)
	if err != nil {
		return models.Ticket{}, 0, err
	}
	s.publishUpdate(ctx, "tab_added", updated)
	return updated, chosen, nil
}

// checkReopen keeps a single open row per ticket number.
func (s *Service) checkReopen(ctx context.Context, ticket models.Ticket) error {
	if len(ticket.MetaTabs) > 0 {
		if _, _, ok := ticket.Tab(models.PrimarySlot); !ok {
			return store.ErrInvalidState
		}
	}
	if ticket.TicketNumber == "" {
		return nil
	}
	from, to := models.DayRange(ticket.AppointmentTime)
	rows, err := s.tickets.ListTickets(ctx, store.TicketFilter{TicketNumber: ticket.TicketNumber, From: from, To: to})
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.ID != ticket.ID && models.IsOpen(row.Status) {
			return store.ErrInvalidState
		}
	}
	return nil
}

// CancelTab cancels a secondary tab. Canceling the last open tab after the primary one was
// completed completes the ticket.
func (s *Service) CancelTab(ctx context.Context, id int64, slot int) (models.Ticket, error) {
	if slot == models.PrimarySlot {
		return models.Ticket{}, store.ErrPrimaryTab
	}
	ticket, err := s.load(ctx, id)
	if err != nil {
		return models.Ticket{}, err
	}
	if !store.ValidTransition(store.ActionCancelTab, ticket.Status) {
		return models.Ticket{}, store.ErrInvalidState
	}
	ensurePrimary(&ticket)
	tab, i, ok := ticket.Tab(slot)
	if !ok {
		return models.Ticket{}, store.ErrTabNotFound
	}
	switch tab.Status {
	case models.TabCompleted:
		return models.Ticket{}, store.ErrInvalidState
	case models.TabCanceled:
		return ticket, nil
	}
	ticket.MetaTabs[i].Status = models.TabCanceled

	expected := []string{ticket.Status}
	if store.ValidTransition(store.ActionComplete, ticket.Status) && allClosedWithPrimaryDone(ticket.MetaTabs) {
		now := s.now()
		ticket.Status = models.StatusCompleted
		ticket.EndTime = &now
	}
	updated, err := s.tickets.UpdateTicket(ctx, ticket, expected)
	if err != nil {
		return models.Ticket{}, err
	}
	s.publishUpdate(ctx, "tab_canceled", updated)
	return updated, nil
}
