package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

var (
	creator = domain.Actor{ID: "u1", Name: "Alice", Email: "alice@example.com", Role: domain.RoleUser}
	tech    = domain.Actor{ID: "t1", Name: "Bruno", Email: "bruno@example.com", Role: domain.RoleTechnician}
	admin   = domain.Actor{ID: "a1", Name: "Carla", Email: "carla@example.com", Role: domain.RoleAdmin}
)

type fakeClock struct {
	cur time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.cur
}

type engineFixture struct {
	svc     *LifecycleService
	tickets *fakeTicketRepo
	ledger  *fakeLedger
	shifts  *fakeShiftRepo
	users   *fakeUserRepo
	clock   *fakeClock
}

func newEngine(t *testing.T) *engineFixture {
	t.Helper()
	tickets := newFakeTicketRepo()
	ledger := newFakeLedger()
	shifts := newFakeShiftRepo()
	users := newFakeUserRepo(
		&domain.User{ID: "t1", Name: "Bruno", Email: "bruno@example.com", Role: domain.RoleTechnician},
		&domain.User{ID: "u1", Name: "Alice", Email: "alice@example.com", Role: domain.RoleUser},
	)
	clock := &fakeClock{cur: time.Date(2024, 3, 11, 10, 0, 0, 0, time.UTC)}
	tickets.now = clock.Now

	svc := NewLifecycleService(LifecycleDependencies{
		TicketRepo:  tickets,
		CatalogRepo: newFakeCatalogRepo(domain.ServiceItem{ID: "svc-1", Name: "Printer support", Active: true}),
		UserRepo:    users,
		Ledger:      ledger,
		Shifts:      NewShiftChecker(shifts),
	}).WithClock(clock.Now)

	return &engineFixture{svc: svc, tickets: tickets, ledger: ledger, shifts: shifts, users: users, clock: clock}
}

func (f *engineFixture) seedTicket(status domain.TicketStatus, mutate ...func(*domain.Ticket)) *domain.Ticket {
	ticket := &domain.Ticket{
		Code:      "HD-2024-000001",
		Status:    status,
		CreatorID: creator.ID,
		CreatedAt: f.clock.cur.Add(-time.Hour),
	}
	for _, fn := range mutate {
		fn(ticket)
	}
	_ = f.tickets.Create(context.Background(), ticket)
	return ticket
}

func (f *engineFixture) giveShift(technicianID string, startMinute, endMinute int) {
	_ = f.shifts.Create(context.Background(), &domain.ShiftWindow{
		TechnicianID: technicianID,
		StartMinute:  startMinute,
		EndMinute:    endMinute,
	})
}

func assertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, domainErr.Code, domainErr.Message)
	}
}

func TestCreateTicketOpensWithCodeAndCreationRecord(t *testing.T) {
	f := newEngine(t)

	result, err := f.svc.CreateTicket(context.Background(), creator, "printer on fire", []string{"svc-1"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	ticket := result.Ticket
	if ticket.Status != domain.TicketStatusOpen {
		t.Fatalf("expected ABERTO, got %s", ticket.Status)
	}
	if ticket.Code == "" {
		t.Fatal("expected a generated code")
	}
	if ticket.TechnicianID != nil {
		t.Fatal("new ticket must not have a technician")
	}
	if !result.AuditRecorded {
		t.Fatal("expected audit record")
	}

	records, _ := f.ledger.ListByTicket(context.Background(), ticket.ID)
	if len(records) != 1 || records[0].Kind != domain.HistoryKindCreation {
		t.Fatalf("expected one CREATION record, got %+v", records)
	}
}

func TestCreateTicketRetriesCodeCollisions(t *testing.T) {
	f := newEngine(t)
	f.tickets.codeExistsFirstN = 2

	result, err := f.svc.CreateTicket(context.Background(), creator, "broken keyboard", nil)
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if f.tickets.codeProbes != 3 {
		t.Fatalf("expected 3 uniqueness probes, got %d", f.tickets.codeProbes)
	}
	if result.Ticket.Code == "" {
		t.Fatal("expected a code after retries")
	}
}

func TestCreateTicketExhaustsCodeRetries(t *testing.T) {
	f := newEngine(t)
	f.tickets.codeExistsFirstN = 100

	_, err := f.svc.CreateTicket(context.Background(), creator, "broken keyboard", nil)
	assertErrorCode(t, err, "CONFLICT")
	if f.tickets.codeProbes != maxCodeAttempts {
		t.Fatalf("expected %d probes, got %d", maxCodeAttempts, f.tickets.codeProbes)
	}
}

func TestCreateTicketValidation(t *testing.T) {
	f := newEngine(t)

	_, err := f.svc.CreateTicket(context.Background(), creator, "   ", nil)
	assertErrorCode(t, err, "VALIDATION_FAILED")

	_, err = f.svc.CreateTicket(context.Background(), creator, "desc", []string{"missing"})
	assertErrorCode(t, err, "NOT_FOUND")
}

func TestChangeStatusRejectsUnknownStatus(t *testing.T) {
	f := newEngine(t)
	ticket := f.seedTicket(domain.TicketStatusOpen)

	_, err := f.svc.ChangeStatus(context.Background(), ticket.ID, admin, "", StatusPayload{})
	assertErrorCode(t, err, "VALIDATION_FAILED")

	_, err = f.svc.ChangeStatus(context.Background(), ticket.ID, admin, "BOGUS", StatusPayload{})
	assertErrorCode(t, err, "VALIDATION_FAILED")
}

func TestChangeStatusUnknownTicket(t *testing.T) {
	f := newEngine(t)
	_, err := f.svc.ChangeStatus(context.Background(), "nope", admin, domain.TicketStatusInProgress, StatusPayload{})
	assertErrorCode(t, err, "NOT_FOUND")
}

func TestCancelledTicketRejectsEveryChange(t *testing.T) {
	f := newEngine(t)
	ticket := f.seedTicket(domain.TicketStatusCancelled, func(tk *domain.Ticket) {
		closed := f.clock.cur.Add(-time.Hour)
		tk.ClosedAt = &closed
	})

	for _, actor := range []domain.Actor{creator, tech, admin} {
		for _, status := range []domain.TicketStatus{
			domain.TicketStatusOpen, domain.TicketStatusInProgress,
			domain.TicketStatusClosed, domain.TicketStatusReopened,
		} {
			_, err := f.svc.ChangeStatus(context.Background(), ticket.ID, actor, status, StatusPayload{ClosureDescription: "x"})
			assertErrorCode(t, err, "CONFLICT")
		}
	}
}

func TestTechnicianCannotTouchClosedTicket(t *testing.T) {
	f := newEngine(t)
	ticket := f.seedTicket(domain.TicketStatusClosed, func(tk *domain.Ticket) {
		closed := f.clock.cur.Add(-time.Hour)
		tk.ClosedAt = &closed
	})

	_, err := f.svc.ChangeStatus(context.Background(), ticket.ID, tech, domain.TicketStatusInProgress, StatusPayload{})
	assertErrorCode(t, err, "FORBIDDEN")
}

func TestTechnicianCanNeverCancel(t *testing.T) {
	f := newEngine(t)
	for _, status := range []domain.TicketStatus{
		domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusReopened,
	} {
		ticket := f.seedTicket(status)
		_, err := f.svc.ChangeStatus(context.Background(), ticket.ID, tech, domain.TicketStatusCancelled, StatusPayload{})
		assertErrorCode(t, err, "FORBIDDEN")
	}
}

func TestTechnicianClaimChecksShiftAndAssigns(t *testing.T) {
	f := newEngine(t)
	f.giveShift(tech.ID, 8*60, 17*60)
	ticket := f.seedTicket(domain.TicketStatusOpen)
	f.clock.cur = time.Date(2024, 3, 11, 9, 30, 0, 0, time.UTC)

	result, err := f.svc.ChangeStatus(context.Background(), ticket.ID, tech, domain.TicketStatusInProgress, StatusPayload{})
	if err != nil {
		t.Fatalf("claim inside shift: %v", err)
	}
	if result.Ticket.TechnicianID == nil || *result.Ticket.TechnicianID != tech.ID {
		t.Fatal("expected technician assigned on claim")
	}
	if result.Ticket.Status != domain.TicketStatusInProgress {
		t.Fatalf("expected EM_ATENDIMENTO, got %s", result.Ticket.Status)
	}

	records, _ := f.ledger.ListByTicket(context.Background(), ticket.ID)
	if len(records) != 1 || records[0].Kind != domain.HistoryKindStatus {
		t.Fatalf("expected exactly one STATUS record, got %+v", records)
	}
}

func TestTechnicianClaimShiftBoundaries(t *testing.T) {
	cases := []struct {
		name    string
		hour    int
		minute  int
		allowed bool
	}{
		{"exactly at shift start", 8, 0, true},
		{"exactly at shift end", 17, 0, true},
		{"one minute before start", 7, 59, false},
		{"one minute after end", 17, 1, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newEngine(t)
			f.giveShift(tech.ID, 8*60, 17*60)
			ticket := f.seedTicket(domain.TicketStatusOpen)
			f.clock.cur = time.Date(2024, 3, 11, tc.hour, tc.minute, 0, 0, time.UTC)

			_, err := f.svc.ChangeStatus(context.Background(), ticket.ID, tech, domain.TicketStatusInProgress, StatusPayload{})
			if tc.allowed && err != nil {
				t.Fatalf("expected admission, got %v", err)
			}
			if !tc.allowed {
				assertErrorCode(t, err, "FORBIDDEN")
			}
		})
	}
}

func TestTechnicianClaimWithoutShiftConfigured(t *testing.T) {
	f := newEngine(t)
	ticket := f.seedTicket(domain.TicketStatusOpen)

	_, err := f.svc.ChangeStatus(context.Background(), ticket.ID, tech, domain.TicketStatusInProgress, StatusPayload{})
	assertErrorCode(t, err, "FORBIDDEN")
}

func TestSplitShiftAnyWindowAdmits(t *testing.T) {
	f := newEngine(t)
	f.giveShift(tech.ID, 8*60, 12*60)
	f.giveShift(tech.ID, 14*60, 18*60)
	ticket := f.seedTicket(domain.TicketStatusOpen)
	f.clock.cur = time.Date(2024, 3, 11, 15, 0, 0, 0, time.UTC)

	if _, err := f.svc.ChangeStatus(context.Background(), ticket.ID, tech, domain.TicketStatusInProgress, StatusPayload{}); err != nil {
		t.Fatalf("expected second window to admit: %v", err)
	}
}

func TestReopenedTicketClaimRunsShiftAdmission(t *testing.T) {
	reopened := func(f *engineFixture) *domain.Ticket {
		return f.seedTicket(domain.TicketStatusReopened)
	}

	t.Run("outside shift denied", func(t *testing.T) {
		f := newEngine(t)
		f.giveShift(tech.ID, 8*60, 17*60)
		ticket := reopened(f)
		f.clock.cur = time.Date(2024, 3, 11, 19, 0, 0, 0, time.UTC)

		_, err := f.svc.ChangeStatus(context.Background(), ticket.ID, tech, domain.TicketStatusInProgress, StatusPayload{})
		assertErrorCode(t, err, "FORBIDDEN")
	})

	t.Run("inside shift assigns the claimer", func(t *testing.T) {
		f := newEngine(t)
		f.giveShift(tech.ID, 8*60, 17*60)
		ticket := reopened(f)
		f.clock.cur = time.Date(2024, 3, 11, 9, 30, 0, 0, time.UTC)

		result, err := f.svc.ChangeStatus(context.Background(), ticket.ID, tech, domain.TicketStatusInProgress, StatusPayload{})
		if err != nil {
			t.Fatalf("claim reopened ticket: %v", err)
		}
		if result.Ticket.Status != domain.TicketStatusInProgress {
			t.Fatalf("expected EM_ATENDIMENTO, got %s", result.Ticket.Status)
		}
		if result.Ticket.TechnicianID == nil || *result.Ticket.TechnicianID != tech.ID {
			t.Fatal("expected technician set when claiming a reopened ticket")
		}
	})
}

func TestListTicketsScopedToActor(t *testing.T) {
	f := newEngine(t)
	f.seedTicket(domain.TicketStatusOpen)
	f.seedTicket(domain.TicketStatusInProgress, func(tk *domain.Ticket) {
		technicianID := tech.ID
		tk.TechnicianID = &technicianID
	})
	f.seedTicket(domain.TicketStatusOpen, func(tk *domain.Ticket) {
		tk.CreatorID = "u2"
	})

	creatorTickets, err := f.svc.ListTickets(context.Background(), creator, 20, 0)
	if err != nil {
		t.Fatalf("successful list must return nil error, got %v", err)
	}
	if len(creatorTickets) != 2 {
		t.Fatalf("expected 2 tickets for the creator, got %d", len(creatorTickets))
	}

	techTickets, err := f.svc.ListTickets(context.Background(), tech, 20, 0)
	if err != nil {
		t.Fatalf("successful list must return nil error, got %v", err)
	}
	if len(techTickets) != 1 {
		t.Fatalf("expected 1 ticket for the technician, got %d", len(techTickets))
	}

	empty, err := f.svc.ListTickets(context.Background(), domain.Actor{ID: "u9", Role: domain.RoleUser}, 20, 0)
	if err != nil {
		t.Fatalf("empty list must return nil error, got %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no tickets, got %d", len(empty))
	}
}

func TestCloseRequiresClosureDescription(t *testing.T) {
	f := newEngine(t)
	ticket := f.seedTicket(domain.TicketStatusInProgress)

	_, err := f.svc.ChangeStatus(context.Background(), ticket.ID, admin, domain.TicketStatusClosed, StatusPayload{})
	assertErrorCode(t, err, "VALIDATION_FAILED")

	result, err := f.svc.ChangeStatus(context.Background(), ticket.ID, admin, domain.TicketStatusClosed, StatusPayload{ClosureDescription: "fixed"})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if result.Ticket.ClosedAt == nil || result.Ticket.ClosureDescription == nil {
		t.Fatal("expected closedAt and closureDescription set")
	}
}

func TestAdminMayCancelDirectlyThroughChangeStatus(t *testing.T) {
	f := newEngine(t)
	ticket := f.seedTicket(domain.TicketStatusOpen)

	result, err := f.svc.ChangeStatus(context.Background(), ticket.ID, admin, domain.TicketStatusCancelled, StatusPayload{Note: "duplicate request"})
	if err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
	if result.Ticket.Status != domain.TicketStatusCancelled || result.Ticket.ClosedAt == nil {
		t.Fatal("expected CANCELADO with closedAt")
	}
}

func TestClosedAtHoldsOnlyForTerminalStates(t *testing.T) {
	f := newEngine(t)
	ticket := f.seedTicket(domain.TicketStatusClosed, func(tk *domain.Ticket) {
		closed := f.clock.cur.Add(-time.Hour)
		desc := "fixed"
		tk.ClosedAt = &closed
		tk.ClosureDescription = &desc
	})

	// An admin pulling a closed ticket back to open clears closedAt but
	// keeps the closure text for history.
	result, err := f.svc.ChangeStatus(context.Background(), ticket.ID, admin, domain.TicketStatusOpen, StatusPayload{})
	if err != nil {
		t.Fatalf("reopen via admin: %v", err)
	}
	if result.Ticket.ClosedAt != nil {
		t.Fatal("closedAt must be nil outside terminal states")
	}
	if result.Ticket.ClosureDescription == nil {
		t.Fatal("closure description should be retained")
	}
}

func TestConcurrentStatusRaceSurfacesConflict(t *testing.T) {
	f := newEngine(t)
	ticket := f.seedTicket(domain.TicketStatusOpen)

	// A racing writer cancels the ticket between our load and our
	// conditional write. The guard saw ABERTO, the write must not land.
	f.tickets.afterGet = func() {
		f.tickets.afterGet = nil
		stored := f.tickets.tickets[ticket.ID]
		stored.Status = domain.TicketStatusCancelled
		closed := f.clock.cur
		stored.ClosedAt = &closed
	}

	_, err := f.svc.ChangeStatus(context.Background(), ticket.ID, admin, domain.TicketStatusInProgress, StatusPayload{})
	assertErrorCode(t, err, "CONFLICT")

	stored, _ := f.tickets.GetByID(context.Background(), ticket.ID)
	if stored.Status != domain.TicketStatusCancelled {
		t.Fatalf("racing writer's state must stand, got %s", stored.Status)
	}
}

func TestStatusWriteConflictMapsToConflictError(t *testing.T) {
	mapped := mapStatusWriteError(repository.ErrStatusChanged)
	assertErrorCode(t, mapped, "CONFLICT")

	infra := mapStatusWriteError(errors.New("connection reset"))
	assertErrorCode(t, infra, "INFRASTRUCTURE")
}

func TestLedgerFailureIsDegradedSuccess(t *testing.T) {
	f := newEngine(t)
	ticket := f.seedTicket(domain.TicketStatusInProgress)
	f.ledger.failNext = true

	result, err := f.svc.ChangeStatus(context.Background(), ticket.ID, admin, domain.TicketStatusClosed, StatusPayload{ClosureDescription: "done"})
	if err != nil {
		t.Fatalf("expected degraded success, got %v", err)
	}
	if result.AuditRecorded {
		t.Fatal("expected AuditRecorded=false")
	}
	stored, _ := f.tickets.GetByID(context.Background(), ticket.ID)
	if stored.Status != domain.TicketStatusClosed {
		t.Fatal("ticket mutation must stand despite ledger failure")
	}
}

func TestReopenRules(t *testing.T) {
	closedAgo := func(f *engineFixture, ago time.Duration) *domain.Ticket {
		return f.seedTicket(domain.TicketStatusClosed, func(tk *domain.Ticket) {
			closed := f.clock.cur.Add(-ago)
			desc := "fixed"
			tk.ClosedAt = &closed
			tk.ClosureDescription = &desc
		})
	}

	t.Run("only creator may reopen", func(t *testing.T) {
		f := newEngine(t)
		ticket := closedAgo(f, time.Minute)
		_, err := f.svc.ReopenTicket(context.Background(), ticket.ID, admin, "")
		assertErrorCode(t, err, "FORBIDDEN")
	})

	t.Run("only closed tickets reopen", func(t *testing.T) {
		f := newEngine(t)
		for _, status := range []domain.TicketStatus{
			domain.TicketStatusOpen, domain.TicketStatusInProgress,
			domain.TicketStatusReopened, domain.TicketStatusCancelled,
		} {
			ticket := f.seedTicket(status)
			_, err := f.svc.ReopenTicket(context.Background(), ticket.ID, creator, "")
			assertErrorCode(t, err, "CONFLICT")
		}
	})

	t.Run("missing closedAt is rejected", func(t *testing.T) {
		f := newEngine(t)
		ticket := f.seedTicket(domain.TicketStatusClosed)
		_, err := f.svc.ReopenTicket(context.Background(), ticket.ID, creator, "")
		assertErrorCode(t, err, "CONFLICT")
	})

	t.Run("exactly 48h is inside the window", func(t *testing.T) {
		f := newEngine(t)
		ticket := closedAgo(f, 48*time.Hour)
		result, err := f.svc.ReopenTicket(context.Background(), ticket.ID, creator, "")
		if err != nil {
			t.Fatalf("reopen at exactly 48h: %v", err)
		}
		if result.Ticket.Status != domain.TicketStatusReopened || result.Ticket.ClosedAt != nil {
			t.Fatal("expected REABERTO with closedAt cleared")
		}
	})

	t.Run("one second past 48h is expired", func(t *testing.T) {
		f := newEngine(t)
		ticket := closedAgo(f, 48*time.Hour+time.Second)
		_, err := f.svc.ReopenTicket(context.Background(), ticket.ID, creator, "")
		assertErrorCode(t, err, "FORBIDDEN")
	})

	t.Run("technician recovered from ledger", func(t *testing.T) {
		f := newEngine(t)
		ticket := closedAgo(f, time.Minute)
		from := domain.TicketStatusOpen
		to := domain.TicketStatusInProgress
		_ = f.ledger.Append(context.Background(), &domain.HistoryRecord{
			ID: "rec-1", TicketID: ticket.ID, Kind: domain.HistoryKindStatus,
			FromStatus: &from, ToStatus: &to,
			ActorID: tech.ID, ActorName: tech.Name, ActorEmail: tech.Email,
			OccurredAt: f.clock.cur.Add(-2 * time.Hour),
		})

		result, err := f.svc.ReopenTicket(context.Background(), ticket.ID, creator, "")
		if err != nil {
			t.Fatalf("reopen: %v", err)
		}
		if result.Ticket.TechnicianID == nil || *result.Ticket.TechnicianID != tech.ID {
			t.Fatal("expected technician re-resolved from the ledger")
		}
	})

	t.Run("no claim record leaves ticket unassigned", func(t *testing.T) {
		f := newEngine(t)
		ticket := closedAgo(f, time.Minute)
		result, err := f.svc.ReopenTicket(context.Background(), ticket.ID, creator, "")
		if err != nil {
			t.Fatalf("reopen: %v", err)
		}
		if result.Ticket.TechnicianID != nil {
			t.Fatal("expected no technician without a prior claim record")
		}
	})
}

func TestCancelTicketPolicy(t *testing.T) {
	t.Run("justification required", func(t *testing.T) {
		f := newEngine(t)
		ticket := f.seedTicket(domain.TicketStatusOpen)
		_, err := f.svc.CancelTicket(context.Background(), ticket.ID, admin, "  ")
		assertErrorCode(t, err, "VALIDATION_FAILED")
	})

	t.Run("terminal tickets cannot cancel", func(t *testing.T) {
		f := newEngine(t)
		for _, status := range []domain.TicketStatus{domain.TicketStatusClosed, domain.TicketStatusCancelled} {
			ticket := f.seedTicket(status, func(tk *domain.Ticket) {
				closed := f.clock.cur.Add(-time.Hour)
				tk.ClosedAt = &closed
			})
			_, err := f.svc.CancelTicket(context.Background(), ticket.ID, admin, "because")
			assertErrorCode(t, err, "CONFLICT")
		}
	})

	t.Run("technician never cancels", func(t *testing.T) {
		f := newEngine(t)
		ticket := f.seedTicket(domain.TicketStatusOpen)
		_, err := f.svc.CancelTicket(context.Background(), ticket.ID, tech, "because")
		assertErrorCode(t, err, "FORBIDDEN")
	})

	t.Run("creator cancels own ticket only", func(t *testing.T) {
		f := newEngine(t)
		ticket := f.seedTicket(domain.TicketStatusOpen)
		other := domain.Actor{ID: "u2", Role: domain.RoleUser}
		_, err := f.svc.CancelTicket(context.Background(), ticket.ID, other, "because")
		assertErrorCode(t, err, "FORBIDDEN")

		result, err := f.svc.CancelTicket(context.Background(), ticket.ID, creator, "no longer needed")
		if err != nil {
			t.Fatalf("creator cancel: %v", err)
		}
		if result.Ticket.Status != domain.TicketStatusCancelled {
			t.Fatal("expected CANCELADO")
		}
		if result.Ticket.ClosedAt == nil || result.Ticket.ClosureDescription == nil {
			t.Fatal("expected closedAt and justification recorded")
		}
	})

	t.Run("admin cancels any eligible ticket", func(t *testing.T) {
		f := newEngine(t)
		ticket := f.seedTicket(domain.TicketStatusInProgress)
		if _, err := f.svc.CancelTicket(context.Background(), ticket.ID, admin, "stale"); err != nil {
			t.Fatalf("admin cancel: %v", err)
		}
	})
}

func TestAssignTechnician(t *testing.T) {
	f := newEngine(t)
	ticket := f.seedTicket(domain.TicketStatusOpen)

	_, err := f.svc.AssignTechnician(context.Background(), ticket.ID, tech, tech.ID)
	assertErrorCode(t, err, "FORBIDDEN")

	_, err = f.svc.AssignTechnician(context.Background(), ticket.ID, admin, "missing")
	assertErrorCode(t, err, "NOT_FOUND")

	_, err = f.svc.AssignTechnician(context.Background(), ticket.ID, admin, creator.ID)
	assertErrorCode(t, err, "VALIDATION_FAILED")

	result, err := f.svc.AssignTechnician(context.Background(), ticket.ID, admin, tech.ID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if result.Ticket.TechnicianID == nil || *result.Ticket.TechnicianID != tech.ID {
		t.Fatal("expected technician set")
	}

	records, _ := f.ledger.ListByTicket(context.Background(), ticket.ID)
	if len(records) != 1 || records[0].Kind != domain.HistoryKindAssignment {
		t.Fatalf("expected one ASSIGNMENT record, got %+v", records)
	}
}

func TestAddComment(t *testing.T) {
	f := newEngine(t)
	ticket := f.seedTicket(domain.TicketStatusInProgress)

	_, err := f.svc.AddComment(context.Background(), ticket.ID, creator, " ")
	assertErrorCode(t, err, "VALIDATION_FAILED")

	outsider := domain.Actor{ID: "u9", Role: domain.RoleUser}
	_, err = f.svc.AddComment(context.Background(), ticket.ID, outsider, "hello")
	assertErrorCode(t, err, "FORBIDDEN")

	result, err := f.svc.AddComment(context.Background(), ticket.ID, creator, "any update?")
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	if result.Ticket.LastUpdatedAt == nil {
		t.Fatal("expected lastUpdatedAt touched")
	}
	records, _ := f.ledger.ListByTicket(context.Background(), ticket.ID)
	if len(records) != 1 || records[0].Kind != domain.HistoryKindComment {
		t.Fatalf("expected one COMMENT record, got %+v", records)
	}
}

func TestDeleteTicketAdminOnly(t *testing.T) {
	f := newEngine(t)
	ticket := f.seedTicket(domain.TicketStatusOpen)

	if err := f.svc.DeleteTicket(context.Background(), ticket.ID, creator); err == nil {
		t.Fatal("expected forbidden for non-admin")
	}
	if err := f.svc.DeleteTicket(context.Background(), ticket.ID, admin); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if err := f.svc.DeleteTicket(context.Background(), ticket.ID, admin); err == nil {
		t.Fatal("expected not found on second delete")
	}
}

func TestRecordIDsAreDeterministicPerOperation(t *testing.T) {
	f := newEngine(t)
	from := domain.TicketStatusClosed
	to := domain.TicketStatusReopened
	at := f.clock.cur

	first := f.svc.newRecord("ticket-1", domain.HistoryKindStatus, &from, &to, "a", creator, at)
	retry := f.svc.newRecord("ticket-1", domain.HistoryKindStatus, &from, &to, "a", creator, at)
	if first.ID != retry.ID {
		t.Fatal("retried operation must produce the same record id")
	}

	later := f.svc.newRecord("ticket-1", domain.HistoryKindStatus, &from, &to, "a", creator, at.Add(time.Second))
	if first.ID == later.ID {
		t.Fatal("distinct operations must produce distinct record ids")
	}
}

func TestFullLifecycleScenario(t *testing.T) {
	f := newEngine(t)
	f.giveShift(tech.ID, 8*60, 17*60)
	ctx := context.Background()

	f.clock.cur = time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
	created, err := f.svc.CreateTicket(ctx, creator, "laptop will not boot", []string{"svc-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ticketID := created.Ticket.ID

	f.clock.cur = f.clock.cur.Add(10 * time.Minute)
	claimed, err := f.svc.ChangeStatus(ctx, ticketID, tech, domain.TicketStatusInProgress, StatusPayload{})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Ticket.TechnicianID == nil || *claimed.Ticket.TechnicianID != tech.ID {
		t.Fatal("expected technician set on claim")
	}

	f.clock.cur = f.clock.cur.Add(time.Hour)
	closed, err := f.svc.ChangeStatus(ctx, ticketID, admin, domain.TicketStatusClosed, StatusPayload{ClosureDescription: "fixed"})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Ticket.ClosedAt == nil {
		t.Fatal("expected closedAt")
	}

	// The aggregate loses its technician; the ledger remembers.
	f.tickets.tickets[ticketID].TechnicianID = nil

	f.clock.cur = f.clock.cur.Add(10 * time.Minute)
	reopened, err := f.svc.ReopenTicket(ctx, ticketID, creator, "")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Ticket.Status != domain.TicketStatusReopened || reopened.Ticket.ClosedAt != nil {
		t.Fatal("expected REABERTO with closedAt cleared")
	}
	if reopened.Ticket.TechnicianID == nil || *reopened.Ticket.TechnicianID != tech.ID {
		t.Fatal("expected technician re-resolved from the claim record")
	}

	// Close again, then try to reopen 49 hours after that closure.
	f.clock.cur = f.clock.cur.Add(time.Hour)
	if _, err := f.svc.ChangeStatus(ctx, ticketID, admin, domain.TicketStatusClosed, StatusPayload{ClosureDescription: "fixed again"}); err != nil {
		t.Fatalf("second close: %v", err)
	}
	f.clock.cur = f.clock.cur.Add(49 * time.Hour)
	_, err = f.svc.ReopenTicket(ctx, ticketID, creator, "")
	assertErrorCode(t, err, "FORBIDDEN")

	// One record per successful operation, strictly ordered.
	records, _ := f.ledger.ListByTicket(ctx, ticketID)
	if len(records) != 5 {
		t.Fatalf("expected 5 records (create, claim, close, reopen, close), got %d", len(records))
	}
	for i := 1; i < len(records); i++ {
		if !records[i].OccurredAt.After(records[i-1].OccurredAt) {
			t.Fatalf("records not strictly ordered at %d", i)
		}
	}
}
