package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/datatypes"

	"gpu-booking-backend/internal/model"
	"gpu-booking-backend/internal/notification"
	"gpu-booking-backend/internal/restriction"
	"gpu-booking-backend/internal/store"
)

// MachineInput is the admin-editable part of a machine.
type MachineInput struct {
	Name              string              `json:"name"`
	Description       string              `json:"description"`
	Status            model.MachineStatus `json:"status"`
	RestrictionStatus restriction.Status  `json:"restriction_status"`
}

func (in *MachineInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Status == "" {
		in.Status = model.MachineActive
	}
	if in.RestrictionStatus == "" {
		in.RestrictionStatus = restriction.StatusNone
	}

	v := &restriction.ValidationError{Fields: map[string]string{}}
	if in.Name == "" {
		v.Fields["name"] = "is required"
	}
	if !in.Status.Valid() {
		v.Fields["status"] = fmt.Sprintf("must be active, maintenance or limited (got %q)", in.Status)
	}
	if !in.RestrictionStatus.Valid() {
		v.Fields["restriction_status"] = fmt.Sprintf("must be none, limited or blocked (got %q)", in.RestrictionStatus)
	}
	if len(v.Fields) > 0 {
		return v
	}
	return nil
}

// CreateMachine adds a machine.
func (s *Service) CreateMachine(ctx context.Context, in MachineInput) (*model.Machine, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	m := &model.Machine{
		Name:              in.Name,
		Description:       in.Description,
		Status:            in.Status,
		RestrictionStatus: in.RestrictionStatus,
	}
	if err := s.store.CreateMachine(ctx, m); err != nil {
		return nil, err
	}
	log.Printf("Machine %d (%s) created", m.ID, m.Name)
	return m, nil
}

// UpdateMachine replaces the editable fields of a machine.
func (s *Service) UpdateMachine(ctx context.Context, id int64, in MachineInput) (*model.Machine, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	m := &model.Machine{
		ID:                id,
		Name:              in.Name,
		Description:       in.Description,
		Status:            in.Status,
		RestrictionStatus: in.RestrictionStatus,
	}
	if err := s.store.UpdateMachine(ctx, m); err != nil {
		return nil, notFoundAs(err, ErrMachineNotFound)
	}
	updated, err := s.store.GetMachine(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, ErrMachineNotFound)
	}
	log.Printf("Machine %d updated: status=%s restriction_status=%s", id, updated.Status, updated.RestrictionStatus)
	return updated, nil
}

// DeleteMachine removes a machine. Only admins may do this, and not while
// the machine has bookings that have not ended.
func (s *Service) DeleteMachine(ctx context.Context, actor model.Role, id int64) (*store.MachineDeletion, error) {
	if actor != model.RoleAdmin {
		return nil, fmt.Errorf("%w: only admins can delete machines", ErrForbidden)
	}
	res, err := s.store.DeleteMachine(ctx, id, s.now())
	if err != nil {
		return nil, notFoundAs(err, ErrMachineNotFound)
	}
	log.Printf("Machine %d (%s) deleted: %d restrictions removed, %d bookings cancelled",
		id, res.Name, res.DeletedRestrictions, res.CancelledBookings)
	return res, nil
}

// RestrictionInput is the admin form for one rule.
type RestrictionInput struct {
	Type      restriction.Type `json:"restriction_type"`
	Rule      json.RawMessage  `json:"restriction_rule"`
	IsActive  *bool            `json:"is_active"`
	StartTime *time.Time       `json:"start_time"`
	EndTime   *time.Time       `json:"end_time"`
}

// SaveRestriction validates the payload and stores it as the machine's rule
// of that type, replacing any previous one. Legacy usage payloads are stored
// in their converted form.
func (s *Service) SaveRestriction(ctx context.Context, actorEmail string, machineID int64, in RestrictionInput) (*model.Restriction, error) {
	if !in.Type.Valid() {
		return nil, &restriction.ValidationError{Fields: map[string]string{
			"restriction_type": fmt.Sprintf("must be year_limit or usage_limit (got %q)", in.Type),
		}}
	}
	if in.StartTime != nil && in.EndTime != nil && in.EndTime.Before(*in.StartTime) {
		return nil, &restriction.ValidationError{Fields: map[string]string{"end_time": "must not be before start_time"}}
	}

	payload, err := restriction.DecodePayload(in.Type, in.Rule)
	if err != nil {
		var v *restriction.ValidationError
		if errors.As(err, &v) {
			return nil, v
		}
		return nil, err
	}
	raw, err := restriction.EncodePayload(payload)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.GetMachine(ctx, machineID); err != nil {
		return nil, notFoundAs(err, ErrMachineNotFound)
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	r := &model.Restriction{
		MachineID: machineID,
		Type:      in.Type,
		Rule:      datatypes.JSON(raw),
		IsActive:  active,
		StartTime: utcPtr(in.StartTime),
		EndTime:   utcPtr(in.EndTime),
		CreatedBy: NormalizeEmail(actorEmail),
	}
	if err := s.store.UpsertRestriction(ctx, r); err != nil {
		return nil, err
	}
	log.Printf("Restriction %d (%s) saved on machine %d by %s: %s", r.ID, r.Type, machineID, r.CreatedBy, raw)
	return r, nil
}

// DeleteRestriction removes one rule from a machine.
func (s *Service) DeleteRestriction(ctx context.Context, machineID, id int64) error {
	if err := s.store.DeleteRestriction(ctx, machineID, id); err != nil {
		return notFoundAs(err, ErrNotFound)
	}
	log.Printf("Restriction %d removed from machine %d", id, machineID)
	return nil
}

// AllRestrictions lists every stored rule.
func (s *Service) AllRestrictions(ctx context.Context) ([]model.Restriction, error) {
	return s.store.ListAllRestrictions(ctx)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// NotificationInput is the admin form for an announcement.
type NotificationInput struct {
	Content   string      `json:"content"`
	Level     model.Level `json:"level"`
	StartTime *time.Time  `json:"start_time"`
	EndTime   *time.Time  `json:"end_time"`
}

func (in *NotificationInput) validate() error {
	in.Content = strings.TrimSpace(in.Content)
	if in.Level == "" {
		in.Level = model.LevelMedium
	}
	v := &restriction.ValidationError{Fields: map[string]string{}}
	if in.Content == "" {
		v.Fields["content"] = "is required"
	}
	if !in.Level.Valid() {
		v.Fields["level"] = fmt.Sprintf("must be 低, 中 or 高 (got %q)", in.Level)
	}
	if in.StartTime != nil && in.EndTime != nil && in.EndTime.Before(*in.StartTime) {
		v.Fields["end_time"] = "must not be before start_time"
	}
	if len(v.Fields) > 0 {
		return v
	}
	return nil
}

// CreateNotification publishes an announcement.
func (s *Service) CreateNotification(ctx context.Context, actorEmail string, in NotificationInput) (*model.Notification, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	n := &model.Notification{
		Content:   in.Content,
		Level:     in.Level,
		StartTime: utcPtr(in.StartTime),
		EndTime:   utcPtr(in.EndTime),
		CreatedBy: NormalizeEmail(actorEmail),
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// UpdateNotification edits an announcement.
func (s *Service) UpdateNotification(ctx context.Context, id int64, in NotificationInput) (*model.Notification, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	n := &model.Notification{
		ID:        id,
		Content:   in.Content,
		Level:     in.Level,
		StartTime: utcPtr(in.StartTime),
		EndTime:   utcPtr(in.EndTime),
	}
	if err := s.store.UpdateNotification(ctx, n); err != nil {
		return nil, notFoundAs(err, ErrNotFound)
	}
	return n, nil
}

// DeleteNotification removes an announcement.
func (s *Service) DeleteNotification(ctx context.Context, id int64) error {
	return notFoundAs(s.store.DeleteNotification(ctx, id), ErrNotFound)
}

// Notifications lists every announcement for admins.
func (s *Service) Notifications(ctx context.Context) ([]model.Notification, error) {
	return s.store.ListNotifications(ctx)
}

// ActiveNotifications lists the announcements visible now.
func (s *Service) ActiveNotifications(ctx context.Context) ([]model.Notification, error) {
	return s.store.ActiveNotifications(ctx, s.now())
}

// EnsureUser registers email on first sight and returns the stored user.
func (s *Service) EnsureUser(ctx context.Context, email, name string) (*model.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, &restriction.ValidationError{Fields: map[string]string{"email": "is required"}}
	}
	return s.store.EnsureUser(ctx, email, strings.TrimSpace(name))
}

// Role returns the stored role of email, or RoleUser for unknown users.
func (s *Service) Role(ctx context.Context, email string) (model.Role, error) {
	u, err := s.store.GetUser(ctx, NormalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return model.RoleUser, nil
	}
	if err != nil {
		return "", err
	}
	return u.Role, nil
}

// Users lists every registered user.
func (s *Service) Users(ctx context.Context) ([]model.User, error) {
	return s.store.ListUsers(ctx)
}

// UpdateRole changes the role of target on behalf of actor.
func (s *Service) UpdateRole(ctx context.Context, actorEmail, targetEmail string, role model.Role) error {
	if !role.Valid() {
		return &restriction.ValidationError{Fields: map[string]string{"role": fmt.Sprintf("must be user, manager or admin (got %q)", role)}}
	}
	actor, err := s.Role(ctx, actorEmail)
	if err != nil {
		return err
	}
	target, err := s.store.GetUser(ctx, NormalizeEmail(targetEmail))
	if err != nil {
		return notFoundAs(err, ErrUserNotFound)
	}
	if err := model.CanAssignRole(actor, target.Role, role); err != nil {
		return fmt.Errorf("%w: %w", ErrForbidden, err)
	}
	if err := s.store.UpdateUserRole(ctx, target.Email, role); err != nil {
		return notFoundAs(err, ErrUserNotFound)
	}
	log.Printf("Role of %s changed from %s to %s by %s", target.Email, target.Role, role, NormalizeEmail(actorEmail))
	return nil
}

// Bookings lists bookings for admins with their owner's name.
func (s *Service) Bookings(ctx context.Context, f store.BookingFilter) ([]BookingView, error) {
	bookings, err := s.store.ListBookings(ctx, f)
	if err != nil {
		return nil, err
	}
	emails := make([]string, 0, len(bookings))
	for _, b := range bookings {
		emails = append(emails, b.UserEmail)
	}
	users, err := s.store.UsersByEmail(ctx, emails)
	if err != nil {
		return nil, err
	}
	names, err := s.machineNames(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]BookingView, 0, len(bookings))
	for _, b := range bookings {
		v := s.view(b, now)
		v.UserName = users[b.UserEmail].Name
		v.MachineName = names[b.MachineID]
		out = append(out, v)
	}
	return out, nil
}

// DeleteBooking removes a booking outright. Followers are told when an
// upcoming slot becomes free.
func (s *Service) DeleteBooking(ctx context.Context, id int64) (*model.Booking, error) {
	b, err := s.store.DeleteBooking(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, ErrBookingNotFound)
	}
	log.Printf("Booking %d (%s on machine %d slot %s) deleted by admin", b.ID, b.UserEmail, b.MachineID, b.Slot)
	if b.Status == model.BookingActive && b.StartsAt.After(s.now()) {
		s.notifier.Dispatch(notification.Event{Kind: notification.EventSlotFreed, MachineID: b.MachineID, Slot: b.Slot})
	}
	return b, nil
}
