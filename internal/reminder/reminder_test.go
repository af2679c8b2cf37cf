package reminder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpu-booking-backend/config"
	"gpu-booking-backend/internal/model"
	"gpu-booking-backend/internal/notification"
	"gpu-booking-backend/internal/store"
	"gpu-booking-backend/internal/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []notification.Event
}

func (r *recorder) Dispatch(e notification.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestService_RunOnce(t *testing.T) {
	ctx := context.Background()
	st := store.NewGormStore(testutil.NewDB(t))
	clock := testutil.NewClock(time.Date(2025, time.June, 1, 7, 40, 0, 0, time.UTC))

	m := &model.Machine{Name: "GPU-01", Status: model.MachineActive, RestrictionStatus: "none"}
	require.NoError(t, st.CreateMachine(ctx, m))
	for _, b := range []*model.Booking{
		{MachineID: m.ID, UserEmail: "alice@x", Slot: "2025-06-01-16:00", StartsAt: time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC), Status: model.BookingActive},
		{MachineID: m.ID, UserEmail: "bob@x", Slot: "2025-06-01-20:00", StartsAt: time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC), Status: model.BookingActive},
	} {
		require.NoError(t, st.CreateBooking(ctx, b))
	}

	rec := &recorder{}
	svc := NewService(config.ReminderConfig{Enabled: true, Lead: 30 * time.Minute, Interval: time.Minute}, st, rec)
	svc.now = clock.Now

	assert.Equal(t, 1, svc.RunOnce(ctx))
	require.Equal(t, 1, rec.count())
	assert.Equal(t, notification.Event{Kind: notification.EventReminder, MachineID: m.ID, Slot: "2025-06-01-16:00", Email: "alice@x"}, rec.events[0])

	// Already reminded bookings are skipped.
	assert.Equal(t, 0, svc.RunOnce(ctx))

	clock.Set(time.Date(2025, time.June, 1, 11, 45, 0, 0, time.UTC))
	assert.Equal(t, 1, svc.RunOnce(ctx))
	assert.Equal(t, 2, rec.count())
}

func TestService_RunDisabled(t *testing.T) {
	svc := NewService(config.ReminderConfig{Enabled: false}, nil, &recorder{})

	done := make(chan struct{})
	go func() {
		svc.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled reminder service did not return")
	}
}

func TestService_RunStopsOnCancel(t *testing.T) {
	st := store.NewGormStore(testutil.NewDB(t))
	rec := &recorder{}
	svc := NewService(config.ReminderConfig{Enabled: true, Lead: time.Minute, Interval: 10 * time.Millisecond}, st, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reminder service did not stop")
	}
	assert.Zero(t, rec.count())
}
