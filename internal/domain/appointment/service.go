package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/slotbook/slotbook/internal/domain/organization"
	"github.com/slotbook/slotbook/internal/platform/auth"
	"github.com/slotbook/slotbook/internal/platform/events"
	"github.com/slotbook/slotbook/internal/platform/notification"
)

// Lifecycle event types.
const (
	EventCreated   = "appointment.created"
	EventUpdated   = "appointment.updated"
	EventCancelled = "appointment.cancelled"
	EventCompleted = "appointment.completed"
	EventConfirmed = "appointment.confirmed"
	EventNoShow    = "appointment.no_show"
	EventDeleted   = "appointment.deleted"
)

type Config struct {
	// ClientURL is the base of links placed in emails.
	ClientURL string
	// PhoneRegion is the default region for numbers without a country code.
	PhoneRegion string
	// PublishTimeout bounds each lifecycle event publish.
	PublishTimeout time.Duration
}

const defaultPublishTimeout = 5 * time.Second

// Lifecycle is the only writer of appointment state.
type Lifecycle struct {
	store  Store
	dir    organization.Directory
	avail  *AvailabilityChecker
	query  *QueryGateway
	authz  authorizer
	mail   *mailer
	events events.Publisher
	logger zerolog.Logger
	region string
	now    func() time.Time

	publishTimeout time.Duration
}

func NewLifecycle(store Store, dir organization.Directory, notifier Notifier, publisher events.Publisher, cfg Config, logger zerolog.Logger) *Lifecycle {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if cfg.PhoneRegion == "" {
		cfg.PhoneRegion = "BD"
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	logger = logger.With().Str("component", "appointment").Logger()
	return &Lifecycle{
		store: store,
		dir:   dir,
		avail: NewAvailabilityChecker(store, dir),
		query: NewQueryGateway(store),
		authz: authorizer{dir: dir},
		mail: &mailer{
			notifier:  notifier,
			templates: notification.NewTemplateEngine(),
			clientURL: cfg.ClientURL,
			logger:    logger,
		},
		events: publisher,
		logger: logger,
		region: cfg.PhoneRegion,
		now:    time.Now,

		publishTimeout: cfg.PublishTimeout,
	}
}

func (l *Lifecycle) Availability() *AvailabilityChecker { return l.avail }

// Create books a slot. A nil actor books as a guest.
func (l *Lifecycle) Create(ctx context.Context, in CreateInput, actor *auth.Actor) (*Appointment, error) {
	slot, err := in.Validate(l.region)
	if err != nil {
		return nil, err
	}
	orgID, err := uuid.Parse(in.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid organization id", ErrInvalidInput)
	}
	org, err := l.avail.loadOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	dept, ok := org.Department(in.DepartmentID)
	if !ok {
		return nil, fmt.Errorf("%w: department not found in this organization", ErrNotFound)
	}

	day := DateOf(in.Date.Time)
	if err := l.checkBookingWindow(org, day); err != nil {
		return nil, err
	}

	a := &Appointment{
		OrganizationID:    orgID,
		UserID:            GuestUserID,
		DepartmentID:      dept.ID,
		DepartmentName:    dept.Name,
		ClientName:        in.ClientName,
		ClientEmail:       in.ClientEmail,
		ClientPhoneNumber: in.ClientPhoneNumber,
		Notes:             in.Notes,
		Date:              day,
		Timeslot:          slot,
		Status:            StatusPending,
		PaymentMethod:     PaymentOnline,
		PaymentStatus:     PaymentPending,
	}
	if actor != nil && actor.ID != "" {
		a.UserID = actor.ID
	}
	if in.PaymentAmount != nil {
		a.PaymentAmount = *in.PaymentAmount
	}
	if in.PaymentMethod != "" {
		a.PaymentMethod = in.PaymentMethod
	}

	if err := l.avail.ensureFree(ctx, a.Slot(), uuid.Nil); err != nil {
		return nil, err
	}
	if err := l.store.Create(ctx, a); err != nil {
		return nil, err
	}

	l.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("organization_id", orgID.String()).
		Str("department_id", a.DepartmentID).
		Str("date", a.Date.String()).
		Str("slot", a.Timeslot.StartTime+"-"+a.Timeslot.EndTime).
		Msg("appointment booked")
	l.mail.confirmation(a)
	l.publish(ctx, EventCreated, a)
	return a, nil
}

// checkBookingWindow rejects days before today or beyond the organization's
// advance-booking horizon.
func (l *Lifecycle) checkBookingWindow(org *organization.Organization, day Date) error {
	today := DateOf(l.now())
	if day.Before(today.Time) {
		return fmt.Errorf("%w: date cannot be in the past", ErrInvalidInput)
	}
	window := org.BookingWindowDays()
	if day.After(today.AddDays(window).Time) {
		return fmt.Errorf("%w: appointments can only be booked up to %d days in advance", ErrInvalidInput, window)
	}
	return nil
}

func (l *Lifecycle) load(ctx context.Context, id string) (*Appointment, error) {
	a, err := l.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("%w: appointment not found", ErrNotFound)
	}
	return a, nil
}

// Update applies patch. When the slot tuple changes the booking window is
// re-checked and, for bookings that still hold a slot, so is the conflict.
func (l *Lifecycle) Update(ctx context.Context, id string, patch Patch, actor *auth.Actor) (*Appointment, error) {
	a, err := l.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := l.authz.authorize(ctx, actionModify, actor, a); err != nil {
		return nil, err
	}
	if err := patch.Validate(l.region); err != nil {
		return nil, err
	}

	before := a.Slot()
	var org *organization.Organization
	if patch.DepartmentID != nil || patch.Date != nil || patch.Timeslot != nil {
		if org, err = l.avail.loadOrganization(ctx, a.OrganizationID); err != nil {
			return nil, err
		}
	}

	if patch.DepartmentID != nil && *patch.DepartmentID != a.DepartmentID {
		dept, ok := org.Department(*patch.DepartmentID)
		if !ok {
			return nil, fmt.Errorf("%w: department not found in this organization", ErrNotFound)
		}
		a.DepartmentID, a.DepartmentName = dept.ID, dept.Name
	}
	if patch.ClientName != nil {
		a.ClientName = *patch.ClientName
	}
	if patch.ClientEmail != nil {
		a.ClientEmail = *patch.ClientEmail
	}
	if patch.ClientPhoneNumber != nil {
		a.ClientPhoneNumber = *patch.ClientPhoneNumber
	}
	if patch.Notes != nil {
		a.Notes = *patch.Notes
	}
	if patch.Date != nil {
		a.Date = DateOf(patch.Date.Time)
	}
	if patch.Timeslot != nil {
		slot, _ := patch.Timeslot.normalize()
		a.Timeslot = slot
	}
	if patch.PaymentAmount != nil {
		a.PaymentAmount = *patch.PaymentAmount
	}
	if patch.PaymentMethod != nil && *patch.PaymentMethod != "" {
		a.PaymentMethod = *patch.PaymentMethod
	}

	if after := a.Slot(); !sameSlot(before, after) {
		if err := l.checkBookingWindow(org, a.Date); err != nil {
			return nil, err
		}
		if a.Status.Blocking() {
			if err := l.avail.ensureFree(ctx, after, a.ID); err != nil {
				return nil, err
			}
		}
	}

	updated, err := l.store.Update(ctx, a)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: appointment not found", ErrNotFound)
	}
	l.mail.updated(updated)
	l.publish(ctx, EventUpdated, updated)
	return updated, nil
}

func sameSlot(a, b SlotKey) bool {
	return a.OrganizationID == b.OrganizationID && a.DepartmentID == b.DepartmentID &&
		a.Date.Equal(b.Date) && a.StartTime == b.StartTime && a.EndTime == b.EndTime
}

// transition describes one state change: who may make it, which statuses it
// refuses and why, and what follows a successful write.
type transition struct {
	act     action
	to      Status
	refuse  map[Status]string
	event   string
	notify  func(m *mailer, a *Appointment)
	logVerb string
}

var (
	cancelTransition = transition{
		act: actionModify,
		to:  StatusCancelled,
		refuse: map[Status]string{
			StatusCompleted: "cannot cancel a completed appointment",
			StatusCancelled: "appointment is already cancelled",
			StatusNoShow:    "cannot cancel an appointment marked as no-show",
		},
		event:   EventCancelled,
		notify:  (*mailer).cancelled,
		logVerb: "cancelled",
	}
	completeTransition = transition{
		act: actionManage,
		to:  StatusCompleted,
		refuse: map[Status]string{
			StatusCancelled: "cannot complete a cancelled appointment",
			StatusCompleted: "appointment is already completed",
			StatusNoShow:    "cannot complete an appointment marked as no-show",
		},
		event:   EventCompleted,
		logVerb: "completed",
	}
	confirmTransition = transition{
		act: actionManage,
		to:  StatusConfirmed,
		refuse: map[Status]string{
			StatusConfirmed: "appointment is already confirmed",
			StatusCancelled: "cannot confirm a cancelled appointment",
			StatusCompleted: "cannot confirm a completed appointment",
			StatusNoShow:    "cannot confirm an appointment marked as no-show",
		},
		event:   EventConfirmed,
		notify:  (*mailer).updated,
		logVerb: "confirmed",
	}
	noShowTransition = transition{
		act: actionManage,
		to:  StatusNoShow,
		refuse: map[Status]string{
			StatusCancelled: "cannot mark a cancelled appointment as no-show",
			StatusCompleted: "cannot mark a completed appointment as no-show",
			StatusNoShow:    "appointment is already marked as no-show",
		},
		event:   EventNoShow,
		logVerb: "marked no-show",
	}
)

func (l *Lifecycle) apply(ctx context.Context, id string, actor *auth.Actor, t transition) (*Appointment, error) {
	a, err := l.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := l.authz.authorize(ctx, t.act, actor, a); err != nil {
		return nil, err
	}
	if msg, refused := t.refuse[a.Status]; refused {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, msg)
	}

	from := a.Status
	a.Status = t.to
	updated, err := l.store.Update(ctx, a)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: appointment not found", ErrNotFound)
	}

	l.logger.Info().
		Str("appointment_id", updated.ID.String()).
		Str("from", string(from)).
		Str("to", string(updated.Status)).
		Msg("appointment " + t.logVerb)
	if t.notify != nil {
		t.notify(l.mail, updated)
	}
	l.publish(ctx, t.event, updated)
	return updated, nil
}

// Cancel frees the slot. Open to the booker, the owning organization and admins.
func (l *Lifecycle) Cancel(ctx context.Context, id string, actor *auth.Actor) (*Appointment, error) {
	return l.apply(ctx, id, actor, cancelTransition)
}

// Complete closes the appointment without notifying the client.
func (l *Lifecycle) Complete(ctx context.Context, id string, actor *auth.Actor) (*Appointment, error) {
	return l.apply(ctx, id, actor, completeTransition)
}

// Confirm moves a pending appointment to confirmed.
func (l *Lifecycle) Confirm(ctx context.Context, id string, actor *auth.Actor) (*Appointment, error) {
	return l.apply(ctx, id, actor, confirmTransition)
}

func (l *Lifecycle) MarkNoShow(ctx context.Context, id string, actor *auth.Actor) (*Appointment, error) {
	return l.apply(ctx, id, actor, noShowTransition)
}

// Delete hard-deletes an appointment in any status. Admin only.
func (l *Lifecycle) Delete(ctx context.Context, id string, actor *auth.Actor) error {
	if err := canDelete(actor); err != nil {
		return err
	}
	a, err := l.load(ctx, id)
	if err != nil {
		return err
	}
	deleted, err := l.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: appointment not found", ErrNotFound)
	}
	l.logger.Info().Str("appointment_id", a.ID.String()).Str("actor_id", actor.ID).Msg("appointment deleted")
	l.publish(ctx, EventDeleted, a)
	return nil
}

func (l *Lifecycle) Get(ctx context.Context, id string, actor *auth.Actor) (*Appointment, error) {
	a, err := l.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := l.authz.authorize(ctx, actionView, actor, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (l *Lifecycle) ListForUser(ctx context.Context, actor *auth.Actor) ([]*Appointment, error) {
	if actor == nil || actor.ID == "" {
		return nil, fmt.Errorf("%w: sign in to list your appointments", ErrForbidden)
	}
	if actor.ID == GuestUserID {
		return []*Appointment{}, nil
	}
	return l.store.ListByUser(ctx, actor.ID)
}

func (l *Lifecycle) ListForOrganization(ctx context.Context, orgID string, f OrgFilter, actor *auth.Actor) ([]*Appointment, error) {
	id, err := uuid.Parse(orgID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid organization id", ErrInvalidInput)
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, f.Status)
	}
	if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(f.EndDate.Time) {
		return nil, fmt.Errorf("%w: startDate must not be after endDate", ErrInvalidInput)
	}
	if err := l.authz.authorizeOrg(ctx, actor, id); err != nil {
		return nil, err
	}
	return l.store.ListByOrganization(ctx, id, f)
}

// ListByDateRange lists an organization's appointments with start and end
// both inclusive.
func (l *Lifecycle) ListByDateRange(ctx context.Context, orgID string, start, end Date, actor *auth.Actor) ([]*Appointment, error) {
	if start.IsZero() || end.IsZero() {
		return nil, fmt.Errorf("%w: start and end dates are required", ErrInvalidInput)
	}
	if start.After(end.Time) {
		return nil, fmt.Errorf("%w: start date must not be after end date", ErrInvalidInput)
	}
	return l.ListForOrganization(ctx, orgID, OrgFilter{StartDate: &start, EndDate: &end}, actor)
}

// FindAll is the admin listing over every organization.
func (l *Lifecycle) FindAll(ctx context.Context, q Query, actor *auth.Actor) (*Page, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins can view all appointments", ErrForbidden)
	}
	return l.query.FindAll(ctx, q)
}

// publish is best effort. Failures are logged and never surface to callers.
// The write survives a client disconnect but not a stalled broker: it gets
// its own deadline of publishTimeout.
func (l *Lifecycle) publish(ctx context.Context, eventType string, a *Appointment) {
	evt, err := events.NewEvent(eventType, a.ID.String(), a)
	if err == nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.publishTimeout)
		err = l.events.Publish(pctx, evt)
		cancel()
	}
	if err != nil {
		l.logger.Warn().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", a.ID.String()).
			Msg("publish appointment event")
	}
}

