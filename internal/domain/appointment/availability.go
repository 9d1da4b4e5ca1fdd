package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/slotbook/slotbook/internal/domain/organization"
)

type Availability struct {
	IsAvailable    bool   `json:"isAvailable"`
	BookedCount    int    `json:"bookedCount"`
	DepartmentName string `json:"departmentName,omitempty"`
}

// AvailabilityChecker answers whether a slot is free, either within one
// department or across the whole organization.
type AvailabilityChecker struct {
	store Store
	dir   organization.Directory
}

func NewAvailabilityChecker(store Store, dir organization.Directory) *AvailabilityChecker {
	return &AvailabilityChecker{store: store, dir: dir}
}

// Check reports slot availability. With a department it stops at the first
// blocking booking; without one it counts bookings across all departments.
func (c *AvailabilityChecker) Check(ctx context.Context, orgID string, date Date, startTime, endTime, departmentID string) (*Availability, error) {
	id, err := uuid.Parse(orgID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid organization id", ErrInvalidInput)
	}
	if date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", ErrInvalidInput)
	}
	slot, err := SlotInput{StartTime: startTime, EndTime: endTime}.normalize()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	org, err := c.loadOrganization(ctx, id)
	if err != nil {
		return nil, err
	}
	day := DateOf(date.Time)

	if departmentID == "" {
		n, err := c.store.CountActiveInSlot(ctx, id, day, day, slot.StartTime, slot.EndTime)
		if err != nil {
			return nil, err
		}
		return &Availability{IsAvailable: n == 0, BookedCount: n}, nil
	}

	dept, ok := org.Department(departmentID)
	if !ok {
		return nil, fmt.Errorf("%w: department %q does not belong to this organization", ErrInvalidInput, departmentID)
	}
	existing, err := c.store.FindActiveInSlot(ctx, SlotKey{
		OrganizationID: id,
		DepartmentID:   dept.ID,
		Date:           day,
		StartTime:      slot.StartTime,
		EndTime:        slot.EndTime,
	}, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &Availability{IsAvailable: false, BookedCount: 1, DepartmentName: dept.Name}, nil
	}
	return &Availability{IsAvailable: true, DepartmentName: dept.Name}, nil
}

// ensureFree returns ErrConflict when another blocking booking holds key.
func (c *AvailabilityChecker) ensureFree(ctx context.Context, key SlotKey, self uuid.UUID) error {
	existing, err := c.store.FindActiveInSlot(ctx, key, self)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s %s-%s is already booked in this department",
			ErrConflict, key.Date, key.StartTime, key.EndTime)
	}
	return nil
}

func (c *AvailabilityChecker) loadOrganization(ctx context.Context, id uuid.UUID) (*organization.Organization, error) {
	org, err := c.dir.GetByID(ctx, id)
	if errors.Is(err, organization.ErrNotFound) {
		return nil, fmt.Errorf("%w: organization not found", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load organization: %w", err)
	}
	return org, nil
}
