package queue

import (
	"context"
	"log"

	"github.com/iwtkmsss/queue-sub000/internal/events"
	"github.com/iwtkmsss/queue-sub000/internal/models"
	"github.com/iwtkmsss/queue-sub000/internal/store"
)

// AlarmSweep marks every due waiting ticket alarm_missed while the alarm flag is on.
func (s *Service) AlarmSweep(ctx context.Context) (int, error) {
	active, err := s.settings.AlarmActive(ctx)
	if err != nil || !active {
		return 0, err
	}
	now := s.now()
	changed, err := s.tickets.ExpireTickets(ctx, store.ExpireInput{
		FromStatuses: store.AllowedFrom(store.ActionAlarmMiss),
		ToStatus:     models.StatusAlarmMissed,
		Cutoff:       now,
		Now:          now,
	})
	if err != nil {
		return 0, err
	}
	if changed > 0 {
		log.Printf("alarm sweep marked=%d", changed)
		s.bus.Publish(ctx, events.New(events.TypeQueueUpdated, update{Reason: "alarm", Count: changed}))
	}
	return changed, nil
}

// ExpirySweep skips scheduled tickets left waiting past their slot plus the grace period.
func (s *Service) ExpirySweep(ctx context.Context) (int, error) {
	grace, err := s.settings.ExpiryGrace(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	changed, err := s.tickets.ExpireTickets(ctx, store.ExpireInput{
		FromStatuses: store.AllowedFrom(store.ActionExpire),
		ToStatus:     models.StatusMissed,
		Cutoff:       now.Add(-grace),
		Now:          now,
		SetStartTime: true,
	})
	if err != nil {
		return 0, err
	}
	if changed > 0 {
		log.Printf("expiry sweep skipped=%d grace=%s", changed, grace)
		s.bus.Publish(ctx, events.New(events.TypeQueueUpdated, update{Reason: "expired", Count: changed}))
	}
	return changed, nil
}
