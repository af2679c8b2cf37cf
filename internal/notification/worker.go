package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"gpu-booking-backend/internal/model"
)

// EventKind selects who is notified and with which message.
type EventKind string

const (
	// EventSlotFreed goes to every subscriber following the machine.
	EventSlotFreed EventKind = "slot_freed"
	// EventReminder goes to the subscriptions of the booking owner.
	EventReminder EventKind = "reminder"
)

// Event is one unit of work for the pool. Slot is the canonical slot text.
// For EventSlotFreed, Email is the user who released the slot and is skipped.
type Event struct {
	Kind      EventKind
	MachineID int64
	Slot      string
	Email     string
}

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// SubscriptionSource is the part of the store the workers read from.
type SubscriptionSource interface {
	MachineSubscriptions(ctx context.Context, machineID int64) ([]model.PushSubscription, error)
	UserSubscriptions(ctx context.Context, email string) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	GetMachine(ctx context.Context, id int64) (*model.Machine, error)
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Event
	source  SubscriptionSource
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool with room for queueSize pending events.
func NewWorkerPool(size, queueSize int, source SubscriptionSource, webpushOptions *webpush.Options) *WorkerPool {
	if queueSize < size {
		queueSize = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Event, queueSize),
		source:  source,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case e := <-wp.jobs:
			log.Printf("Worker %d processing %s for machine %d slot %s", id, e.Kind, e.MachineID, e.Slot)
			wp.handle(ctx, e)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues e without blocking. When the queue is full the event is
// dropped and logged.
func (wp *WorkerPool) Dispatch(e Event) {
	select {
	case wp.jobs <- e:
	default:
		log.Printf("Notification queue full, dropping %s for machine %d slot %s", e.Kind, e.MachineID, e.Slot)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Event {
	return wp.jobs
}

func (wp *WorkerPool) handle(ctx context.Context, e Event) {
	var (
		subs []model.PushSubscription
		err  error
	)
	switch e.Kind {
	case EventSlotFreed:
		subs, err = wp.source.MachineSubscriptions(ctx, e.MachineID)
	case EventReminder:
		subs, err = wp.source.UserSubscriptions(ctx, e.Email)
	default:
		log.Printf("Unknown notification kind %q", e.Kind)
		return
	}
	if err != nil {
		log.Printf("Error fetching subscriptions for %s on machine %d: %v", e.Kind, e.MachineID, err)
		return
	}

	recipients := subs[:0]
	for _, sub := range subs {
		// 釋出時段的人不需要收到通知
		if e.Kind == EventSlotFreed && e.Email != "" && sub.UserEmail == e.Email {
			continue
		}
		recipients = append(recipients, sub)
	}
	if len(recipients) == 0 {
		return
	}

	machineLabel := fmt.Sprintf("%d", e.MachineID)
	if m, err := wp.source.GetMachine(ctx, e.MachineID); err != nil {
		log.Printf("Error fetching machine %d: %v", e.MachineID, err)
	} else if m.Name != "" {
		machineLabel = m.Name
	}

	message := Message(e, machineLabel)
	log.Printf("Sending %d notifications for machine %d", len(recipients), e.MachineID)
	for _, sub := range recipients {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

// Message renders the push text for e.
func Message(e Event, machineLabel string) string {
	if e.Kind == EventReminder {
		return fmt.Sprintf("提醒：您預約的機器 %s 將於 %s 開始", machineLabel, e.Slot)
	}
	return fmt.Sprintf("機器 %s 的 %s 時段已釋出，現在可以預約！", machineLabel, e.Slot)
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.source.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
