package appointment

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"

	"github.com/slotbook/slotbook/internal/domain/organization"
)

// GuestUserID is recorded as the booker when nobody is signed in.
const GuestUserID = "guest"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// Terminal statuses admit no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusNoShow
}

// Blocking reports whether an appointment in this status occupies its slot.
// Mirrors the predicate of appointment_active_slot_uq.
func (s Status) Blocking() bool {
	return s != StatusCancelled && s != StatusCompleted
}

type PaymentMethod string

const (
	PaymentOnline PaymentMethod = "online"
	PaymentCash   PaymentMethod = "cash"
)

func (m PaymentMethod) Valid() bool { return m == PaymentOnline || m == PaymentCash }

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// TimeSlot is the booked wall-clock range, both ends HH:MM.
type TimeSlot struct {
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	IsAvailable bool   `json:"isAvailable"`
}

type Appointment struct {
	ID                uuid.UUID     `json:"id"`
	OrganizationID    uuid.UUID     `json:"organizationId"`
	UserID            string        `json:"userId"`
	DepartmentID      string        `json:"departmentId"`
	DepartmentName    string        `json:"departmentName"`
	ClientName        string        `json:"clientName"`
	ClientEmail       string        `json:"clientEmail"`
	ClientPhoneNumber string        `json:"clientPhoneNumber"`
	Notes             string        `json:"notes,omitempty"`
	Date              Date          `json:"date"`
	Timeslot          TimeSlot      `json:"timeslot"`
	Status            Status        `json:"status"`
	PaymentAmount     float64       `json:"paymentAmount"`
	PaymentMethod     PaymentMethod `json:"paymentMethod"`
	PaymentStatus     PaymentStatus `json:"paymentStatus"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// Slot is the tuple guarded by the one-active-booking rule.
func (a *Appointment) Slot() SlotKey {
	return SlotKey{
		OrganizationID: a.OrganizationID,
		DepartmentID:   a.DepartmentID,
		Date:           a.Date,
		StartTime:      a.Timeslot.StartTime,
		EndTime:        a.Timeslot.EndTime,
	}
}

type SlotKey struct {
	OrganizationID uuid.UUID
	DepartmentID   string
	Date           Date
	StartTime      string
	EndTime        string
}

// SlotInput is the timeslot as submitted. IsAvailable defaults to true.
type SlotInput struct {
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	IsAvailable *bool  `json:"isAvailable,omitempty"`
}

// normalize validates both ends and returns them zero-padded to HH:MM.
func (s SlotInput) normalize() (TimeSlot, error) {
	start, err := normalizeClock(s.StartTime)
	if err != nil {
		return TimeSlot{}, fmt.Errorf("timeslot.startTime: %w", err)
	}
	end, err := normalizeClock(s.EndTime)
	if err != nil {
		return TimeSlot{}, fmt.Errorf("timeslot.endTime: %w", err)
	}
	if start >= end {
		return TimeSlot{}, fmt.Errorf("timeslot.startTime must be before endTime")
	}
	avail := true
	if s.IsAvailable != nil {
		avail = *s.IsAvailable
	}
	return TimeSlot{StartTime: start, EndTime: end, IsAvailable: avail}, nil
}

func normalizeClock(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !organization.ClockPattern.MatchString(s) {
		return "", fmt.Errorf("%q is not a valid HH:MM time", s)
	}
	if len(s) == 4 {
		s = "0" + s
	}
	return s, nil
}

// CreateInput is the booking request. Status and payment status are server
// controlled and have no field here.
type CreateInput struct {
	OrganizationID    string        `json:"organizationId"`
	DepartmentID      string        `json:"departmentId"`
	ClientName        string        `json:"clientName"`
	ClientEmail       string        `json:"clientEmail"`
	ClientPhoneNumber string        `json:"clientPhoneNumber"`
	Notes             string        `json:"notes,omitempty"`
	Date              Date          `json:"date"`
	Timeslot          SlotInput     `json:"timeslot"`
	PaymentAmount     *float64      `json:"paymentAmount,omitempty"`
	PaymentMethod     PaymentMethod `json:"paymentMethod,omitempty"`
}

// Patch holds the fields an update may change. Nil means unchanged.
type Patch struct {
	DepartmentID      *string        `json:"departmentId,omitempty"`
	ClientName        *string        `json:"clientName,omitempty"`
	ClientEmail       *string        `json:"clientEmail,omitempty"`
	ClientPhoneNumber *string        `json:"clientPhoneNumber,omitempty"`
	Notes             *string        `json:"notes,omitempty"`
	Date              *Date          `json:"date,omitempty"`
	Timeslot          *SlotInput     `json:"timeslot,omitempty"`
	PaymentAmount     *float64       `json:"paymentAmount,omitempty"`
	PaymentMethod     *PaymentMethod `json:"paymentMethod,omitempty"`
}

// validator checks client contact fields. Phone numbers are parsed against
// region when they carry no country prefix.
type validator struct {
	region   string
	problems []string
}

func (v *validator) add(format string, args ...interface{}) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		v.add("%s is required", field)
		return false
	}
	return true
}

func (v *validator) email(value string) {
	if !v.required("clientEmail", value) {
		return
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != strings.TrimSpace(value) {
		v.add("clientEmail %q is not a valid email address", value)
	}
}

func (v *validator) phone(value string) {
	if !v.required("clientPhoneNumber", value) {
		return
	}
	num, err := phonenumbers.Parse(value, v.region)
	if err != nil || !phonenumbers.IsPossibleNumber(num) {
		v.add("clientPhoneNumber %q is not a valid phone number", value)
	}
}

func (v *validator) payment(amount *float64, method *PaymentMethod) {
	if amount != nil && *amount < 0 {
		v.add("paymentAmount must not be negative")
	}
	if method != nil && *method != "" && !method.Valid() {
		v.add("paymentMethod %q must be online or cash", *method)
	}
}

func (v *validator) err() error {
	if len(v.problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(v.problems, "; "))
}

// Validate checks the shape of a booking request and returns the normalized
// timeslot.
func (in *CreateInput) Validate(region string) (TimeSlot, error) {
	v := &validator{region: region}
	v.required("organizationId", in.OrganizationID)
	v.required("departmentId", in.DepartmentID)
	v.required("clientName", in.ClientName)
	v.email(in.ClientEmail)
	v.phone(in.ClientPhoneNumber)
	if in.Date.IsZero() {
		v.add("date is required")
	}
	slot, err := in.Timeslot.normalize()
	if err != nil {
		v.add("%s", err)
	}
	v.payment(in.PaymentAmount, &in.PaymentMethod)
	return slot, v.err()
}

// Validate checks the fields present in the patch.
func (p *Patch) Validate(region string) error {
	v := &validator{region: region}
	if p.DepartmentID != nil {
		v.required("departmentId", *p.DepartmentID)
	}
	if p.ClientName != nil {
		v.required("clientName", *p.ClientName)
	}
	if p.ClientEmail != nil {
		v.email(*p.ClientEmail)
	}
	if p.ClientPhoneNumber != nil {
		v.phone(*p.ClientPhoneNumber)
	}
	if p.Date != nil && p.Date.IsZero() {
		v.add("date must not be empty")
	}
	if p.Timeslot != nil {
		if _, err := p.Timeslot.normalize(); err != nil {
			v.add("%s", err)
		}
	}
	v.payment(p.PaymentAmount, p.PaymentMethod)
	return v.err()
}

// Query is the admin listing request.
type Query struct {
	Page           int
	Limit          int
	Search         string
	Status         Status
	OrganizationID string
	UserID         string
	StartDate      *Date
	EndDate        *Date
}

type Page struct {
	Appointments []*Appointment `json:"appointments"`
	Total        int            `json:"total"`
	Page         int            `json:"page"`
	Limit        int            `json:"limit"`
	TotalPages   int            `json:"totalPages"`
}

// OrgFilter narrows an organization listing. Zero values are ignored.
type OrgFilter struct {
	Status       Status
	DepartmentID string
	StartDate    *Date
	EndDate      *Date
}
