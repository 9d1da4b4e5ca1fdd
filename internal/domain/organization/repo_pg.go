package organization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/slotbook/slotbook/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const orgColumns = `id, user_id, organization_name, organization_type, description,
	street, city, state, contact_email, contact_phone,
	departments, working_hours, time_slots,
	appointment_duration, advance_booking_days, is_active, is_verified,
	created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, org *Organization) error {
	depts, hours, slots, err := encodeSchedule(org)
	if err != nil {
		return err
	}
	org.ID = uuid.New()
	now := time.Now().UTC()
	org.CreatedAt, org.UpdatedAt = now, now

	_, err = r.pool.Exec(ctx, `
		INSERT INTO organization (
			id, user_id, organization_name, organization_type, description,
			street, city, state, contact_email, contact_phone,
			departments, working_hours, time_slots,
			appointment_duration, advance_booking_days, is_active, is_verified,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		org.ID, org.UserID, org.OrganizationName, string(org.OrganizationType), nullable(org.Description),
		org.Street, org.City, nullable(org.State), nullable(org.ContactEmail), nullable(org.ContactPhone),
		depts, hours, slots,
		org.AppointmentDuration, org.AdvanceBookingDays, org.IsActive, org.IsVerified,
		org.CreatedAt, org.UpdatedAt,
	)
	if db.IsUniqueViolation(err, "organization_user_id_key") {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return scanOrg(r.pool.QueryRow(ctx, `SELECT `+orgColumns+` FROM organization WHERE id = $1`, id))
}

func (r *repoPG) GetByOwner(ctx context.Context, accountID string) (*Organization, error) {
	return scanOrg(r.pool.QueryRow(ctx, `SELECT `+orgColumns+` FROM organization WHERE user_id = $1`, accountID))
}

func (r *repoPG) Update(ctx context.Context, org *Organization) error {
	depts, hours, slots, err := encodeSchedule(org)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE organization SET
			organization_name = $2, organization_type = $3, description = $4,
			street = $5, city = $6, state = $7, contact_email = $8, contact_phone = $9,
			departments = $10, working_hours = $11, time_slots = $12,
			appointment_duration = $13, advance_booking_days = $14, is_active = $15,
			updated_at = NOW()
		WHERE id = $1`,
		org.ID, org.OrganizationName, string(org.OrganizationType), nullable(org.Description),
		org.Street, org.City, nullable(org.State), nullable(org.ContactEmail), nullable(org.ContactPhone),
		depts, hours, slots,
		org.AppointmentDuration, org.AdvanceBookingDays, org.IsActive,
	)
	if err != nil {
		return fmt.Errorf("update organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Organization, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM organization WHERE is_active`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count organizations: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+orgColumns+` FROM organization WHERE is_active ORDER BY organization_name LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*Organization
	for rows.Next() {
		o, err := scanOrg(rows)
		if err != nil {
			return nil, 0, err
		}
		orgs = append(orgs, o)
	}
	return orgs, total, rows.Err()
}

func scanOrg(row pgx.Row) (*Organization, error) {
	var (
		o                            Organization
		orgType                      string
		desc, state, email, phone    *string
		rawDepts, rawHours, rawSlots []byte
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.OrganizationName, &orgType, &desc,
		&o.Street, &o.City, &state, &email, &phone,
		&rawDepts, &rawHours, &rawSlots,
		&o.AppointmentDuration, &o.AdvanceBookingDays, &o.IsActive, &o.IsVerified,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan organization: %w", err)
	}

	o.OrganizationType = Type(orgType)
	o.Description, o.State, o.ContactEmail, o.ContactPhone = deref(desc), deref(state), deref(email), deref(phone)
	if err := json.Unmarshal(rawDepts, &o.Departments); err != nil {
		return nil, fmt.Errorf("decode departments: %w", err)
	}
	if err := json.Unmarshal(rawHours, &o.WorkingHours); err != nil {
		return nil, fmt.Errorf("decode working hours: %w", err)
	}
	if err := json.Unmarshal(rawSlots, &o.TimeSlots); err != nil {
		return nil, fmt.Errorf("decode time slots: %w", err)
	}
	return &o, nil
}

func encodeSchedule(org *Organization) (depts, hours, slots []byte, err error) {
	if depts, err = json.Marshal(org.Departments); err != nil {
		return nil, nil, nil, fmt.Errorf("encode departments: %w", err)
	}
	if hours, err = json.Marshal(org.WorkingHours); err != nil {
		return nil, nil, nil, fmt.Errorf("encode working hours: %w", err)
	}
	if slots, err = json.Marshal(org.TimeSlots); err != nil {
		return nil, nil, nil, fmt.Errorf("encode time slots: %w", err)
	}
	return depts, hours, slots, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
