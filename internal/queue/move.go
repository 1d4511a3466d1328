package queue

import (
	"context"
	"log"

	"github.com/iwtkmsss/queue-sub000/internal/events"
	"github.com/iwtkmsss/queue-sub000/internal/store"
)

func checkWindows(from, to int) error {
	var missing []string
	if from <= 0 {
		missing = append(missing, "from")
	}
	if to <= 0 {
		missing = append(missing, "to")
	}
	if len(missing) > 0 {
		return store.MissingFields(missing...)
	}
	if from == to {
		return store.Invalid("from and to must be different windows")
	}
	return nil
}

// MoveWindow reassigns every waiting ticket of one window to another.
func (s *Service) MoveWindow(ctx context.Context, from, to int, checkConflicts bool) (int, error) {
	if err := checkWindows(from, to); err != nil {
		return 0, err
	}
	moved, err := s.tickets.MoveWaiting(ctx, store.MoveWindowInput{From: from, To: to, CheckConflicts: checkConflicts})
	if err != nil {
		return 0, err
	}
	if moved == 0 {
		return 0, store.ErrNothingToMove
	}
	log.Printf("window move from=%d to=%d moved=%d", from, to, moved)
	s.bus.Publish(ctx, events.New(events.TypeQueueUpdated, update{Reason: "window_moved", Count: moved}))
	return moved, nil
}

// MoveConflicts lists waiting tickets that would share a minute with the destination's.
func (s *Service) MoveConflicts(ctx context.Context, from, to int) ([]store.MoveConflict, error) {
	if err := checkWindows(from, to); err != nil {
		return nil, err
	}
	conflicts, err := s.tickets.ListMoveConflicts(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if conflicts == nil {
		conflicts = []store.MoveConflict{}
	}
	return conflicts, nil
}
