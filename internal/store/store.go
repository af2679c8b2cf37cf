package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"gpu-booking-backend/internal/model"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrSlotConflict is returned when the (machine, slot) pair already has an active booking.
	ErrSlotConflict = errors.New("store: time slot already booked")
	// ErrNotActive is returned when cancelling a booking that is no longer active.
	ErrNotActive = errors.New("store: booking is not active")
	// ErrMachineInUse is returned when deleting a machine that still has upcoming bookings.
	ErrMachineInUse = errors.New("store: machine has upcoming bookings")
)

// BookingFilter narrows admin booking listings. Zero values match everything.
type BookingFilter struct {
	Status    model.BookingStatus
	MachineID int64
	UserEmail string
	Limit     int
}

// MachineDeletion reports what was removed along with a machine.
type MachineDeletion struct {
	Name                string `json:"machine_name"`
	CancelledBookings   int64  `json:"cancelled_bookings"`
	DeletedRestrictions int64  `json:"deleted_restrictions"`
}

// Store defines the interface for all database operations.
type Store interface {
	ListMachines(ctx context.Context) ([]model.Machine, error)
	GetMachine(ctx context.Context, id int64) (*model.Machine, error)
	CreateMachine(ctx context.Context, m *model.Machine) error
	UpdateMachine(ctx context.Context, m *model.Machine) error
	DeleteMachine(ctx context.Context, id int64, now time.Time) (*MachineDeletion, error)

	ListRestrictions(ctx context.Context, machineID int64) ([]model.Restriction, error)
	ListAllRestrictions(ctx context.Context) ([]model.Restriction, error)
	UpsertRestriction(ctx context.Context, r *model.Restriction) error
	DeleteRestriction(ctx context.Context, machineID, id int64) error
	MigrateLegacyRules(ctx context.Context) (int, error)

	CreateBooking(ctx context.Context, b *model.Booking) error
	GetBooking(ctx context.Context, id int64) (*model.Booking, error)
	CancelBooking(ctx context.Context, id int64, at time.Time) error
	DeleteBooking(ctx context.Context, id int64) (*model.Booking, error)
	MachineBookings(ctx context.Context, machineID int64, fromSlot, toSlot string) ([]model.Booking, error)
	UserMachineBookings(ctx context.Context, email string, machineID int64) ([]model.Booking, error)
	UserBookings(ctx context.Context, email string) ([]model.Booking, error)
	ListBookings(ctx context.Context, f BookingFilter) ([]model.Booking, error)
	DueReminders(ctx context.Context, from, to time.Time) ([]model.Booking, error)
	MarkReminded(ctx context.Context, ids []int64, at time.Time) error

	EnsureUser(ctx context.Context, email, name string) (*model.User, error)
	GetUser(ctx context.Context, email string) (*model.User, error)
	UsersByEmail(ctx context.Context, emails []string) (map[string]model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateUserRole(ctx context.Context, email string, role model.Role) error

	ListNotifications(ctx context.Context) ([]model.Notification, error)
	ActiveNotifications(ctx context.Context, now time.Time) ([]model.Notification, error)
	CreateNotification(ctx context.Context, n *model.Notification) error
	UpdateNotification(ctx context.Context, n *model.Notification) error
	DeleteNotification(ctx context.Context, id int64) error

	SaveSubscription(ctx context.Context, sub *model.PushSubscription, machineIDs []int64) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	MachineSubscriptions(ctx context.Context, machineID int64) ([]model.PushSubscription, error)
	UserSubscriptions(ctx context.Context, email string) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// notFound maps gorm's missing-row error onto ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// isUniqueViolation recognizes unique-constraint failures from postgres and sqlite,
// with or without gorm's error translation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
