package appointment

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/slotbook/slotbook/internal/domain/organization"
	"github.com/slotbook/slotbook/internal/platform/auth"
	"github.com/slotbook/slotbook/internal/platform/events"
	"github.com/slotbook/slotbook/internal/platform/notification"
)

// memStore is a map-backed Store that enforces the same one-active-booking
// rule as the partial unique index.
type memStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*Appointment
	seq  int
	now  func() time.Time
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[uuid.UUID]*Appointment), now: time.Now}
}

func clone(a *Appointment) *Appointment {
	cp := *a
	return &cp
}

func (s *memStore) holder(key SlotKey, excludeID uuid.UUID) *Appointment {
	for _, a := range s.rows {
		if a.ID != excludeID && a.Status.Blocking() && sameSlot(a.Slot(), key) {
			return a
		}
	}
	return nil
}

func (s *memStore) Create(_ context.Context, a *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Status.Blocking() && s.holder(a.Slot(), uuid.Nil) != nil {
		return fmt.Errorf("insert appointment: %w", ErrConflict)
	}
	s.seq++
	a.ID = uuid.New()
	// distinct, increasing timestamps keep newest-first ordering stable
	a.CreatedAt = s.now().Add(time.Duration(s.seq) * time.Millisecond)
	a.UpdatedAt = a.CreatedAt
	s.rows[a.ID] = clone(a)
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*Appointment, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.rows[uid]; ok {
		return clone(a), nil
	}
	return nil, nil
}

func (s *memStore) ListByUser(_ context.Context, userID string) ([]*Appointment, error) {
	return s.filter(func(a *Appointment) bool { return a.UserID == userID }), nil
}

func (s *memStore) ListByOrganization(_ context.Context, orgID uuid.UUID, f OrgFilter) ([]*Appointment, error) {
	return s.filter(func(a *Appointment) bool {
		return a.OrganizationID == orgID &&
			(f.Status == "" || a.Status == f.Status) &&
			(f.DepartmentID == "" || a.DepartmentID == f.DepartmentID) &&
			(f.StartDate == nil || !a.Date.Before(f.StartDate.Time)) &&
			(f.EndDate == nil || !a.Date.After(f.EndDate.Time))
	}), nil
}

func (s *memStore) Update(_ context.Context, a *Appointment) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rows[a.ID]
	if !ok {
		return nil, nil
	}
	if a.Status.Blocking() && s.holder(a.Slot(), a.ID) != nil {
		return nil, fmt.Errorf("update appointment: %w", ErrConflict)
	}
	next := clone(a)
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = s.now()
	s.rows[a.ID] = next
	return clone(next), nil
}

func (s *memStore) Delete(_ context.Context, id string) (bool, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[uid]; !ok {
		return false, nil
	}
	delete(s.rows, uid)
	return true, nil
}

func (s *memStore) FindActiveInSlot(_ context.Context, key SlotKey, excludeID uuid.UUID) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a := s.holder(key, excludeID); a != nil {
		return clone(a), nil
	}
	return nil, nil
}

func (s *memStore) CountActiveInSlot(_ context.Context, orgID uuid.UUID, dayStart, dayEnd Date, startTime, endTime string) (int, error) {
	n := len(s.filter(func(a *Appointment) bool {
		return a.OrganizationID == orgID && a.Status.Blocking() &&
			!a.Date.Before(dayStart.Time) && !a.Date.After(dayEnd.Time) &&
			a.Timeslot.StartTime == startTime && a.Timeslot.EndTime == endTime
	}))
	return n, nil
}

func (s *memStore) Search(_ context.Context, q Query) ([]*Appointment, int, error) {
	orgID, orgErr := uuid.Parse(q.OrganizationID)
	term := strings.ToLower(strings.TrimSpace(q.Search))
	all := s.filter(func(a *Appointment) bool {
		if q.Status != "" && a.Status != q.Status {
			return false
		}
		if orgErr == nil && a.OrganizationID != orgID {
			return false
		}
		if validAccountID(q.UserID) && a.UserID != q.UserID {
			return false
		}
		if q.StartDate != nil && a.Date.Before(q.StartDate.Time) {
			return false
		}
		if q.EndDate != nil && a.Date.After(q.EndDate.Time) {
			return false
		}
		if term == "" {
			return true
		}
		for _, f := range []string{a.ClientName, a.ClientEmail, a.ClientPhoneNumber, a.DepartmentName} {
			if strings.Contains(strings.ToLower(f), term) {
				return true
			}
		}
		return false
	})
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].Date.Equal(all[j].Date) {
			return all[i].Date.After(all[j].Date.Time)
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	start := (q.Page - 1) * q.Limit
	if start > len(all) {
		start = len(all)
	}
	end := start + q.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (s *memStore) filter(keep func(*Appointment) bool) []*Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Appointment
	for _, a := range s.rows {
		if keep(a) {
			out = append(out, clone(a))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].Timeslot.StartTime > out[j].Timeslot.StartTime
	})
	return out
}

// fakeDirectory serves organizations from memory.
type fakeDirectory struct {
	mu   sync.Mutex
	orgs map[uuid.UUID]*organization.Organization
}

func newFakeDirectory(orgs ...*organization.Organization) *fakeDirectory {
	d := &fakeDirectory{orgs: make(map[uuid.UUID]*organization.Organization)}
	for _, o := range orgs {
		d.orgs[o.ID] = o
	}
	return d
}

func (d *fakeDirectory) GetByID(_ context.Context, id uuid.UUID) (*organization.Organization, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.orgs[id]
	if !ok {
		return nil, organization.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (d *fakeDirectory) GetByOwner(_ context.Context, accountID string) (*organization.Organization, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, o := range d.orgs {
		if o.UserID == accountID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, organization.ErrNotFound
}

func (d *fakeDirectory) renameDepartment(orgID uuid.UUID, deptID, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o := d.orgs[orgID]
	depts := make([]organization.Department, len(o.Departments))
	copy(depts, o.Departments)
	for i := range depts {
		if depts[i].ID == deptID {
			depts[i].Name = name
		}
	}
	o.Departments = depts
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notification.Message
}

func (n *recordingNotifier) Enqueue(m notification.Message) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, m)
	return true
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.msgs))
	for i, m := range n.msgs {
		out[i] = m.Kind
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

// stallingPublisher models an unreachable broker: it holds every publish
// until the context gives up.
type stallingPublisher struct {
	mu          sync.Mutex
	hadDeadline []bool
}

func (p *stallingPublisher) Publish(ctx context.Context, _ events.Event) error {
	_, ok := ctx.Deadline()
	p.mu.Lock()
	p.hadDeadline = append(p.hadDeadline, ok)
	p.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (p *stallingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

const (
	cardiology  = "dept-cardiology"
	dermatology = "dept-dermatology"
	ownerID     = "acct-org-owner"
	bookerID    = "acct-booker"
)

var (
	adminActor  = &auth.Actor{ID: "acct-admin", Role: auth.RoleAdmin}
	ownerActor  = &auth.Actor{ID: ownerID, Role: auth.RoleOrganization}
	bookerActor = &auth.Actor{ID: bookerID, Role: auth.RoleUser}
	otherUser   = &auth.Actor{ID: "acct-other", Role: auth.RoleUser}
	otherOrg    = &auth.Actor{ID: "acct-other-org", Role: auth.RoleOrganization}

	// an account whose id collides with the guest booker marker
	guestNamedAccount = &auth.Actor{ID: GuestUserID, Role: auth.RoleUser}
)

// fixedNow is mid-morning so day arithmetic never crosses midnight.
var fixedNow = time.Date(2026, time.March, 10, 10, 30, 0, 0, time.Local)

func testOrganization(advanceDays int) *organization.Organization {
	return &organization.Organization{
		ID:               uuid.New(),
		UserID:           ownerID,
		OrganizationName: "Green Life Hospital",
		OrganizationType: organization.TypeHospital,
		Street:           "32 Bir Uttam Road",
		City:             "Dhaka",
		Departments: []organization.Department{
			{ID: cardiology, Name: "Cardiology"},
			{ID: dermatology, Name: "Dermatology"},
		},
		AppointmentDuration: 30,
		AdvanceBookingDays:  advanceDays,
		IsActive:            true,
	}
}

type fixture struct {
	life     *Lifecycle
	store    *memStore
	dir      *fakeDirectory
	org      *organization.Organization
	notifier *recordingNotifier
	events   *recordingPublisher
}

func newFixture(t *testing.T, advanceDays int) *fixture {
	t.Helper()
	org := testOrganization(advanceDays)
	f := &fixture{
		store:    newMemStore(),
		dir:      newFakeDirectory(org),
		org:      org,
		notifier: &recordingNotifier{},
		events:   &recordingPublisher{},
	}
	f.store.now = func() time.Time { return fixedNow }
	f.life = NewLifecycle(f.store, f.dir, f.notifier, f.events,
		Config{ClientURL: "https://slotbook.test", PhoneRegion: "BD"}, zerolog.Nop())
	f.life.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) day(offset int) Date {
	return DateOf(fixedNow).AddDays(offset)
}

func (f *fixture) input(dept string, offset int, start, end string) CreateInput {
	return CreateInput{
		OrganizationID:    f.org.ID.String(),
		DepartmentID:      dept,
		ClientName:        "Rahim Uddin",
		ClientEmail:       "rahim@example.com",
		ClientPhoneNumber: "+8801712345678",
		Date:              f.day(offset),
		Timeslot:          SlotInput{StartTime: start, EndTime: end},
	}
}

func (f *fixture) book(t *testing.T, in CreateInput, actor *auth.Actor) *Appointment {
	t.Helper()
	a, err := f.life.Create(context.Background(), in, actor)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return a
}
