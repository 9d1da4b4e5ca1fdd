package organization

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("organization not found")
	ErrInvalidInput = errors.New("invalid organization")
	// ErrAlreadyExists is returned when the owning account already has a profile.
	ErrAlreadyExists = errors.New("organization profile already exists for this account")
)

const (
	DefaultAppointmentDuration = 30
	DefaultAdvanceBookingDays  = 7
)

// ClockPattern matches a 24-hour HH:MM wall-clock time. The hour may omit its
// leading zero.
var ClockPattern = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)

// Type is the closed set of organization kinds.
type Type string

const (
	TypeHospital         Type = "hospital"
	TypeClinic           Type = "clinic"
	TypeGovernmentOffice Type = "government_office"
	TypeServiceCenter    Type = "service_center"
	TypeBank             Type = "bank"
	TypeSchool           Type = "school"
	TypeCollege          Type = "college"
	TypeUniversity       Type = "university"
	TypeOthers           Type = "others"
)

func (t Type) Valid() bool {
	switch t {
	case TypeHospital, TypeClinic, TypeGovernmentOffice, TypeServiceCenter,
		TypeBank, TypeSchool, TypeCollege, TypeUniversity, TypeOthers:
		return true
	}
	return false
}

var weekdays = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

type Department struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type WorkingHour struct {
	Day         string `json:"day"`
	OpeningTime string `json:"openingTime"`
	ClosingTime string `json:"closingTime"`
	IsWorking   bool   `json:"isWorking"`
}

// TimeSlot is a template slot offered by the organization.
type TimeSlot struct {
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	IsAvailable bool   `json:"isAvailable"`
}

// Organization maps to the organization table. Departments, working hours and
// time slots are stored as JSONB.
type Organization struct {
	ID                  uuid.UUID     `json:"id"`
	UserID              string        `json:"userId"`
	OrganizationName    string        `json:"organizationName"`
	OrganizationType    Type          `json:"organizationType"`
	Description         string        `json:"description,omitempty"`
	Street              string        `json:"street"`
	City                string        `json:"city"`
	State               string        `json:"state,omitempty"`
	ContactEmail        string        `json:"contactEmail,omitempty"`
	ContactPhone        string        `json:"contactPhone,omitempty"`
	Departments         []Department  `json:"departments"`
	WorkingHours        []WorkingHour `json:"workingHours"`
	TimeSlots           []TimeSlot    `json:"timeSlots"`
	AppointmentDuration int           `json:"appointmentDuration"`
	AdvanceBookingDays  int           `json:"advanceBookingDays"`
	IsActive            bool          `json:"isActive"`
	IsVerified          bool          `json:"isVerified"`
	CreatedAt           time.Time     `json:"createdAt"`
	UpdatedAt           time.Time     `json:"updatedAt"`
}

// Department returns the department with the given id.
func (o *Organization) Department(id string) (Department, bool) {
	for _, d := range o.Departments {
		if d.ID == id {
			return d, true
		}
	}
	return Department{}, false
}

// BookingWindowDays is the advance-booking horizon, falling back to the
// default when unset.
func (o *Organization) BookingWindowDays() int {
	if o.AdvanceBookingDays <= 0 {
		return DefaultAdvanceBookingDays
	}
	return o.AdvanceBookingDays
}

// DefaultWorkingHours is sunday to friday 09:00-17:00 with saturday closed.
func DefaultWorkingHours() []WorkingHour {
	hours := make([]WorkingHour, 0, len(weekdays))
	for _, day := range weekdays {
		if day == "saturday" {
			hours = append(hours, WorkingHour{Day: day, OpeningTime: "00:00", ClosingTime: "00:00"})
			continue
		}
		hours = append(hours, WorkingHour{Day: day, OpeningTime: "09:00", ClosingTime: "17:00", IsWorking: true})
	}
	return hours
}

// DefaultTimeSlots returns 30 minute slots from 09:00 to 17:00 with a lunch
// break between 12:00 and 13:00.
func DefaultTimeSlots() []TimeSlot {
	var slots []TimeSlot
	for m := 9 * 60; m < 17*60; m += 30 {
		if m >= 12*60 && m < 13*60 {
			continue
		}
		slots = append(slots, TimeSlot{StartTime: clock(m), EndTime: clock(m + 30), IsAvailable: true})
	}
	return slots
}

func clock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ApplyDefaults fills unset schedule fields and assigns ids to departments.
func (o *Organization) ApplyDefaults() {
	if len(o.WorkingHours) == 0 {
		o.WorkingHours = DefaultWorkingHours()
	}
	if len(o.TimeSlots) == 0 {
		o.TimeSlots = DefaultTimeSlots()
	}
	if o.Departments == nil {
		o.Departments = []Department{}
	}
	for i := range o.Departments {
		if o.Departments[i].ID == "" {
			o.Departments[i].ID = uuid.NewString()
		}
	}
	if o.AppointmentDuration == 0 {
		o.AppointmentDuration = DefaultAppointmentDuration
	}
	if o.AdvanceBookingDays == 0 {
		o.AdvanceBookingDays = DefaultAdvanceBookingDays
	}
}

// Validate checks a profile after defaults have been applied.
func (o *Organization) Validate() error {
	var problems []string
	if strings.TrimSpace(o.UserID) == "" {
		problems = append(problems, "userId is required")
	}
	if len(strings.TrimSpace(o.OrganizationName)) < 3 {
		problems = append(problems, "organizationName must be at least 3 characters")
	}
	if !o.OrganizationType.Valid() {
		problems = append(problems, fmt.Sprintf("organizationType %q is not supported", o.OrganizationType))
	}
	if strings.TrimSpace(o.Street) == "" {
		problems = append(problems, "street is required")
	}
	if strings.TrimSpace(o.City) == "" {
		problems = append(problems, "city is required")
	}
	if o.ContactEmail != "" {
		if _, err := mail.ParseAddress(o.ContactEmail); err != nil {
			problems = append(problems, "contactEmail is not a valid address")
		}
	}
	if o.AppointmentDuration < 5 {
		problems = append(problems, "appointmentDuration must be at least 5 minutes")
	}
	if o.AdvanceBookingDays < 1 {
		problems = append(problems, "advanceBookingDays must be at least 1")
	}

	seen := make(map[string]bool, len(o.Departments))
	for _, d := range o.Departments {
		if strings.TrimSpace(d.Name) == "" {
			problems = append(problems, "department name is required")
		}
		if seen[d.ID] {
			problems = append(problems, fmt.Sprintf("duplicate department id %q", d.ID))
		}
		seen[d.ID] = true
	}

	if len(o.WorkingHours) != len(weekdays) {
		problems = append(problems, "workingHours must have one entry per day")
	}
	days := make(map[string]bool, len(o.WorkingHours))
	for _, wh := range o.WorkingHours {
		if !isWeekday(wh.Day) || days[wh.Day] {
			problems = append(problems, fmt.Sprintf("workingHours day %q is invalid or repeated", wh.Day))
		}
		days[wh.Day] = true
		if !ClockPattern.MatchString(wh.OpeningTime) || !ClockPattern.MatchString(wh.ClosingTime) {
			problems = append(problems, fmt.Sprintf("workingHours for %s must use HH:MM", wh.Day))
		}
	}

	for _, ts := range o.TimeSlots {
		if !ClockPattern.MatchString(ts.StartTime) || !ClockPattern.MatchString(ts.EndTime) {
			problems = append(problems, fmt.Sprintf("time slot %s-%s must use HH:MM", ts.StartTime, ts.EndTime))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

func isWeekday(s string) bool {
	for _, d := range weekdays {
		if d == s {
			return true
		}
	}
	return false
}
