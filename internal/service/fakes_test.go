package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

type fakeTicketRepo struct {
	tickets map[string]*domain.Ticket
	nextID  int
	now     func() time.Time

	// codeExistsFirstN makes the first N uniqueness probes report a
	// collision, to exercise the retry loop.
	codeExistsFirstN int
	codeProbes       int

	// afterGet runs after a successful load, before the caller sees the
	// ticket. Used to slip a concurrent writer between load and write.
	afterGet func()
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[string]*domain.Ticket), now: time.Now}
}

func (r *fakeTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.nextID++
	ticket.ID = fmt.Sprintf("ticket-%d", r.nextID)
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = r.now()
	}
	r.tickets[ticket.ID] = cloneTicket(ticket)
	return nil
}

func (r *fakeTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := cloneTicket(ticket)
	if r.afterGet != nil {
		r.afterGet()
	}
	return clone, nil
}

func (r *fakeTicketRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	r.codeProbes++
	if r.codeProbes <= r.codeExistsFirstN {
		return true, nil
	}
	for _, ticket := range r.tickets {
		if ticket.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeTicketRepo) UpdateStatusFrom(ctx context.Context, ticket *domain.Ticket, expected domain.TicketStatus) error {
	stored, ok := r.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if stored.Status != expected {
		return repository.ErrStatusChanged
	}
	r.tickets[ticket.ID] = cloneTicket(ticket)
	return nil
}

func (r *fakeTicketRepo) UpdateTechnician(ctx context.Context, ticketID string, technicianID *string, at time.Time) error {
	stored, ok := r.tickets[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.TechnicianID = technicianID
	stored.LastUpdatedAt = &at
	return nil
}

func (r *fakeTicketRepo) TouchLastUpdated(ctx context.Context, ticketID string, at time.Time) error {
	stored, ok := r.tickets[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.LastUpdatedAt = &at
	return nil
}

func (r *fakeTicketRepo) ListByCreator(ctx context.Context, creatorID string, limit, offset int) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.CreatorID == creatorID {
			result = append(result, *cloneTicket(ticket))
		}
	}
	return result, nil
}

func (r *fakeTicketRepo) ListByTechnician(ctx context.Context, technicianID string, limit, offset int) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.TechnicianID != nil && *ticket.TechnicianID == technicianID {
			result = append(result, *cloneTicket(ticket))
		}
	}
	return result, nil
}

func (r *fakeTicketRepo) Delete(ctx context.Context, id string) error {
	if _, ok := r.tickets[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.tickets, id)
	return nil
}

func cloneTicket(ticket *domain.Ticket) *domain.Ticket {
	clone := *ticket
	if ticket.TechnicianID != nil {
		v := *ticket.TechnicianID
		clone.TechnicianID = &v
	}
	if ticket.LastUpdatedAt != nil {
		v := *ticket.LastUpdatedAt
		clone.LastUpdatedAt = &v
	}
	if ticket.ClosedAt != nil {
		v := *ticket.ClosedAt
		clone.ClosedAt = &v
	}
	if ticket.ClosureDescription != nil {
		v := *ticket.ClosureDescription
		clone.ClosureDescription = &v
	}
	clone.ServiceItemIDs = append([]string(nil), ticket.ServiceItemIDs...)
	return &clone
}

type fakeLedger struct {
	records  map[string][]domain.HistoryRecord
	failNext bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: make(map[string][]domain.HistoryRecord)}
}

func (l *fakeLedger) Append(ctx context.Context, record *domain.HistoryRecord) error {
	if l.failNext {
		l.failNext = false
		return errors.New("ledger unavailable")
	}
	existing := l.records[record.TicketID]
	for i := range existing {
		if existing[i].ID == record.ID {
			existing[i] = *record
			return nil
		}
	}
	l.records[record.TicketID] = append(existing, *record)
	return nil
}

func (l *fakeLedger) ListByTicket(ctx context.Context, ticketID string) ([]domain.HistoryRecord, error) {
	records := append([]domain.HistoryRecord(nil), l.records[ticketID]...)
	sort.Slice(records, func(i, j int) bool {
		return records[i].OccurredAt.Before(records[j].OccurredAt)
	})
	return records, nil
}

func (l *fakeLedger) LatestMatching(ctx context.Context, ticketID string, match func(domain.HistoryRecord) bool) (*domain.HistoryRecord, error) {
	records, _ := l.ListByTicket(ctx, ticketID)
	for i := len(records) - 1; i >= 0; i-- {
		if match(records[i]) {
			record := records[i]
			return &record, nil
		}
	}
	return nil, nil
}

type fakeCatalogRepo struct {
	items map[string]domain.ServiceItem
}

func newFakeCatalogRepo(items ...domain.ServiceItem) *fakeCatalogRepo {
	repo := &fakeCatalogRepo{items: make(map[string]domain.ServiceItem)}
	for _, item := range items {
		repo.items[item.ID] = item
	}
	return repo
}

func (r *fakeCatalogRepo) GetByIDs(ctx context.Context, ids []string) ([]domain.ServiceItem, error) {
	var result []domain.ServiceItem
	for _, id := range ids {
		if item, ok := r.items[id]; ok {
			result = append(result, item)
		}
	}
	return result, nil
}

type fakeUserRepo struct {
	users map[string]*domain.User
}

func newFakeUserRepo(users ...*domain.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[string]*domain.User)}
	for _, user := range users {
		repo.users[user.ID] = user
	}
	return repo
}

func (r *fakeUserRepo) Create(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = fmt.Sprintf("user-%d", len(r.users)+1)
	}
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) Update(ctx context.Context, user *domain.User) error {
	if _, ok := r.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, ok := r.users[id]
	if !ok || user.DeletedAt != nil {
		return nil, pgx.ErrNoRows
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	for _, user := range r.users {
		if user.Email == email && user.DeletedAt == nil {
			return user, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) SoftDelete(ctx context.Context, id string) error {
	user, ok := r.users[id]
	if !ok || user.DeletedAt != nil {
		return pgx.ErrNoRows
	}
	now := time.Now()
	user.DeletedAt = &now
	return nil
}

type fakeShiftRepo struct {
	windows map[string][]domain.ShiftWindow
}

func newFakeShiftRepo() *fakeShiftRepo {
	return &fakeShiftRepo{windows: make(map[string][]domain.ShiftWindow)}
}

func (r *fakeShiftRepo) Create(ctx context.Context, window *domain.ShiftWindow) error {
	window.ID = fmt.Sprintf("shift-%d", len(r.windows[window.TechnicianID])+1)
	r.windows[window.TechnicianID] = append(r.windows[window.TechnicianID], *window)
	return nil
}

func (r *fakeShiftRepo) WindowsFor(ctx context.Context, technicianID string) ([]domain.ShiftWindow, error) {
	return append([]domain.ShiftWindow(nil), r.windows[technicianID]...), nil
}

func (r *fakeShiftRepo) Delete(ctx context.Context, id string) error {
	for technicianID, windows := range r.windows {
		for i, window := range windows {
			if window.ID == id {
				r.windows[technicianID] = append(windows[:i], windows[i+1:]...)
				return nil
			}
		}
	}
	return pgx.ErrNoRows
}
