package appointment

import (
	"context"
	"fmt"

	"github.com/slotbook/slotbook/pkg/pagination"
)

// QueryGateway serves the paginated, filterable listing across every
// organization. Authorization happens in the caller.
type QueryGateway struct {
	store Store
}

func NewQueryGateway(store Store) *QueryGateway {
	return &QueryGateway{store: store}
}

// FindAll clamps page and limit, then returns one page plus totals.
func (g *QueryGateway) FindAll(ctx context.Context, q Query) (*Page, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, q.Status)
	}
	p := pagination.Normalize(q.Page, q.Limit)
	q.Page, q.Limit = p.Page, p.Limit

	items, total, err := g.store.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Appointment{}
	}
	return &Page{
		Appointments: items,
		Total:        total,
		Page:         p.Page,
		Limit:        p.Limit,
		TotalPages:   pagination.TotalPages(total, p.Limit),
	}, nil
}
