// Package reminder pushes a notice to users shortly before their booking starts.
package reminder

import (
	"context"
	"log"
	"time"

	"gpu-booking-backend/config"
	"gpu-booking-backend/internal/model"
	"gpu-booking-backend/internal/notification"
)

// BookingSource is the part of the store the reminder loop needs.
type BookingSource interface {
	DueReminders(ctx context.Context, from, to time.Time) ([]model.Booking, error)
	MarkReminded(ctx context.Context, ids []int64, at time.Time) error
}

// Dispatcher queues push events.
type Dispatcher interface {
	Dispatch(e notification.Event)
}

// Service periodically reminds users of upcoming bookings.
type Service struct {
	cfg        config.ReminderConfig
	source     BookingSource
	dispatcher Dispatcher
	now        func() time.Time
}

// NewService creates a reminder service.
func NewService(cfg config.ReminderConfig, source BookingSource, dispatcher Dispatcher) *Service {
	return &Service{
		cfg:        cfg,
		source:     source,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Run checks for due reminders every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		log.Println("Reminders are disabled. Not starting.")
		return
	}
	log.Println("Starting reminder service...")

	s.RunOnce(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Reminder service shutting down.")
			return
		case <-timer.C:
			s.RunOnce(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

// RunOnce dispatches one reminder per booking starting within the lead time
// and marks those bookings so they are not reminded again. It returns the
// number of reminders sent.
func (s *Service) RunOnce(ctx context.Context) int {
	now := s.now()
	due, err := s.source.DueReminders(ctx, now, now.Add(s.cfg.Lead))
	if err != nil {
		log.Printf("Error loading due reminders: %v", err)
		return 0
	}
	if len(due) == 0 {
		return 0
	}

	ids := make([]int64, 0, len(due))
	for _, b := range due {
		s.dispatcher.Dispatch(notification.Event{
			Kind:      notification.EventReminder,
			MachineID: b.MachineID,
			Slot:      b.Slot,
			Email:     b.UserEmail,
		})
		ids = append(ids, b.ID)
	}

	if err := s.source.MarkReminded(ctx, ids, now); err != nil {
		log.Printf("Error marking %d bookings reminded: %v", len(ids), err)
	}
	log.Printf("Dispatched %d booking reminders", len(ids))
	return len(ids)
}
