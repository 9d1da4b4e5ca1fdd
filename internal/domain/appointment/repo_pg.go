package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/slotbook/slotbook/internal/platform/db"
	"github.com/slotbook/slotbook/pkg/pagination"
)

const activeSlotIndex = "appointment_active_slot_uq"

type storePG struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) Store {
	return &storePG{pool: pool}
}

const apptColumns = `id, organization_id, user_id, department_id, department_name,
	client_name, client_email, client_phone_number, notes,
	date, start_time, end_time, slot_is_available, status,
	payment_amount, payment_method, payment_status, created_at, updated_at`

const newestFirst = ` ORDER BY date DESC, start_time DESC`

// blocking mirrors the predicate of appointment_active_slot_uq.
const blocking = `status NOT IN ('cancelled', 'completed')`

func (s *storePG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO appointment (`+apptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		a.ID, a.OrganizationID, a.UserID, a.DepartmentID, a.DepartmentName,
		a.ClientName, a.ClientEmail, a.ClientPhoneNumber, nullable(a.Notes),
		a.Date.Time, a.Timeslot.StartTime, a.Timeslot.EndTime, a.Timeslot.IsAvailable, string(a.Status),
		a.PaymentAmount, string(a.PaymentMethod), string(a.PaymentStatus), a.CreatedAt, a.UpdatedAt,
	)
	if db.IsUniqueViolation(err, activeSlotIndex) {
		return fmt.Errorf("insert appointment: %w", ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (s *storePG) GetByID(ctx context.Context, id string) (*Appointment, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, nil
	}
	a, err := scanAppointment(s.pool.QueryRow(ctx, `SELECT `+apptColumns+` FROM appointment WHERE id = $1`, uid))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment %s: %w", id, err)
	}
	return a, nil
}

func (s *storePG) ListByUser(ctx context.Context, userID string) ([]*Appointment, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+apptColumns+` FROM appointment WHERE user_id = $1`+newestFirst, userID)
	if err != nil {
		return nil, fmt.Errorf("list appointments for user: %w", err)
	}
	return collect(rows)
}

func (s *storePG) ListByOrganization(ctx context.Context, orgID uuid.UUID, f OrgFilter) ([]*Appointment, error) {
	w := &where{}
	w.add("organization_id = $%d", orgID)
	if f.Status != "" {
		w.add("status = $%d", string(f.Status))
	}
	if f.DepartmentID != "" {
		w.add("department_id = $%d", f.DepartmentID)
	}
	if f.StartDate != nil {
		w.add("date >= $%d", f.StartDate.Time)
	}
	if f.EndDate != nil {
		w.add("date <= $%d", f.EndDate.Time)
	}

	rows, err := s.pool.Query(ctx, `SELECT `+apptColumns+` FROM appointment`+w.sql()+newestFirst, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments for organization: %w", err)
	}
	return collect(rows)
}

func (s *storePG) Update(ctx context.Context, a *Appointment) (*Appointment, error) {
	updated, err := scanAppointment(s.pool.QueryRow(ctx, `
		UPDATE appointment SET
			department_id = $2, department_name = $3,
			client_name = $4, client_email = $5, client_phone_number = $6, notes = $7,
			date = $8, start_time = $9, end_time = $10, slot_is_available = $11,
			status = $12, payment_amount = $13, payment_method = $14, payment_status = $15,
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+apptColumns,
		a.ID, a.DepartmentID, a.DepartmentName,
		a.ClientName, a.ClientEmail, a.ClientPhoneNumber, nullable(a.Notes),
		a.Date.Time, a.Timeslot.StartTime, a.Timeslot.EndTime, a.Timeslot.IsAvailable,
		string(a.Status), a.PaymentAmount, string(a.PaymentMethod), string(a.PaymentStatus),
	))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, nil
	case db.IsUniqueViolation(err, activeSlotIndex):
		return nil, fmt.Errorf("update appointment %s: %w", a.ID, ErrConflict)
	case err != nil:
		return nil, fmt.Errorf("update appointment %s: %w", a.ID, err)
	}
	return updated, nil
}

func (s *storePG) Delete(ctx context.Context, id string) (bool, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return false, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM appointment WHERE id = $1`, uid)
	if err != nil {
		return false, fmt.Errorf("delete appointment %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *storePG) FindActiveInSlot(ctx context.Context, key SlotKey, excludeID uuid.UUID) (*Appointment, error) {
	w := &where{}
	w.add("organization_id = $%d", key.OrganizationID)
	w.add("department_id = $%d", key.DepartmentID)
	w.add("date = $%d", key.Date.Time)
	w.add("start_time = $%d", key.StartTime)
	w.add("end_time = $%d", key.EndTime)
	w.raw(blocking)
	if excludeID != uuid.Nil {
		w.add("id <> $%d", excludeID)
	}

	a, err := scanAppointment(s.pool.QueryRow(ctx, `SELECT `+apptColumns+` FROM appointment`+w.sql()+` LIMIT 1`, w.args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active appointment in slot: %w", err)
	}
	return a, nil
}

func (s *storePG) CountActiveInSlot(ctx context.Context, orgID uuid.UUID, dayStart, dayEnd Date, startTime, endTime string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM appointment
		WHERE organization_id = $1 AND date BETWEEN $2 AND $3
			AND start_time = $4 AND end_time = $5 AND `+blocking,
		orgID, dayStart.Time, dayEnd.Time, startTime, endTime,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active appointments in slot: %w", err)
	}
	return n, nil
}

// Search runs the count and the page query concurrently. Page and limit are
// clamped before the offset is computed.
func (s *storePG) Search(ctx context.Context, q Query) ([]*Appointment, int, error) {
	w := &where{}
	if q.Status != "" {
		w.add("status = $%d", string(q.Status))
	}
	if id, err := uuid.Parse(q.OrganizationID); err == nil {
		w.add("organization_id = $%d", id)
	}
	if validAccountID(q.UserID) {
		w.add("user_id = $%d", q.UserID)
	}
	if q.StartDate != nil {
		w.add("date >= $%d", q.StartDate.Time)
	}
	if q.EndDate != nil {
		w.add("date <= $%d", q.EndDate.Time)
	}
	if term := strings.TrimSpace(q.Search); term != "" {
		n := w.next(likePattern(term))
		w.raw(fmt.Sprintf(`(client_name ILIKE $%[1]d OR client_email ILIKE $%[1]d
			OR client_phone_number ILIKE $%[1]d OR department_name ILIKE $%[1]d)`, n))
	}

	var (
		total int
		page  []*Appointment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.pool.QueryRow(gctx, `SELECT COUNT(*) FROM appointment`+w.sql(), w.args...).Scan(&total); err != nil {
			return fmt.Errorf("count appointments: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		p := pagination.Normalize(q.Page, q.Limit)
		args := append(append([]interface{}{}, w.args...), p.Limit, p.Offset())
		sql := `SELECT ` + apptColumns + ` FROM appointment` + w.sql() +
			fmt.Sprintf(` ORDER BY date DESC, created_at DESC LIMIT $%d OFFSET $%d`, len(w.args)+1, len(w.args)+2)
		rows, err := s.pool.Query(gctx, sql, args...)
		if err != nil {
			return fmt.Errorf("search appointments: %w", err)
		}
		page, err = collect(rows)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return page, total, nil
}

// where accumulates AND-ed predicates with positional arguments.
type where struct {
	clauses []string
	args    []interface{}
}

// next registers arg and returns its placeholder number.
func (w *where) next(arg interface{}) int {
	w.args = append(w.args, arg)
	return len(w.args)
}

func (w *where) add(format string, arg interface{}) {
	w.clauses = append(w.clauses, fmt.Sprintf(format, w.next(arg)))
}

func (w *where) raw(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *where) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern wraps term for a substring ILIKE with wildcards escaped.
func likePattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}

// validAccountID rejects ids that cannot have come from a token subject.
func validAccountID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, r := range id {
		if r <= ' ' || r == 0x7f {
			return false
		}
	}
	return true
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a                       Appointment
		notes                   *string
		day                     time.Time
		status, method, payment string
	)
	err := row.Scan(
		&a.ID, &a.OrganizationID, &a.UserID, &a.DepartmentID, &a.DepartmentName,
		&a.ClientName, &a.ClientEmail, &a.ClientPhoneNumber, &notes,
		&day, &a.Timeslot.StartTime, &a.Timeslot.EndTime, &a.Timeslot.IsAvailable, &status,
		&a.PaymentAmount, &method, &payment, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if notes != nil {
		a.Notes = *notes
	}
	a.Date = DateOf(day)
	a.Status = Status(status)
	a.PaymentMethod = PaymentMethod(method)
	a.PaymentStatus = PaymentStatus(payment)
	return &a, nil
}

func collect(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	out := []*Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
