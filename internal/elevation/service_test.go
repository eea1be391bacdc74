package elevation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"elevate.org/internal/dates"
	"elevate.org/internal/identity"
)

func TestCreateSnapshotsPermanentIdentity(t *testing.T) {
	f := newFixture("2024-01-30")
	g, err := f.svc.Create(context.Background(), managerGrant("u1"), "admin")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if g.Status != StatusActive || g.ID == "" {
		t.Fatalf("unexpected grant %+v", g)
	}
	if g.OriginalRoleID != "officer" || g.OriginalRoleName != "Loan officer" || g.OriginalBranchID != "B0" {
		t.Fatalf("snapshot not captured: %+v", g)
	}
	if g.StaffID != "S1" || g.StaffName != "Aigerim" || g.CreatedBy != "admin" {
		t.Fatalf("unexpected staff fields: %+v", g)
	}
	if kinds := f.pub.kinds(); len(kinds) != 1 || kinds[0] != "created" {
		t.Fatalf("unexpected events %v", kinds)
	}
}

func TestCreateRejectsSecondActiveGrant(t *testing.T) {
	f := newFixture("2024-01-30")
	ctx := context.Background()
	if _, err := f.svc.Create(ctx, managerGrant("u1"), "admin"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	later := managerGrant("u1")
	later.StartDate = dates.MustParse("2024-03-01")
	later.EndDate = dates.MustParse("2024-03-05")
	if _, err := f.svc.Create(ctx, later, "admin"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	stats, _ := f.svc.Stats(ctx)
	if stats.Total != 1 {
		t.Fatalf("failed create must not persist, total=%d", stats.Total)
	}
}

func TestConcurrentCreateKeepsOneActive(t *testing.T) {
	f := newFixture("2024-01-30")
	ctx := context.Background()

	const workers = 24
	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, conflicts int
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(ctx, managerGrant("u1"), "admin")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 1 || conflicts != workers-1 {
		t.Fatalf("expected exactly one success, got ok=%d conflicts=%d", ok, conflicts)
	}
	active, err := f.svc.List(ctx, ListFilter{Status: StatusActive, UserID: "u1"})
	if err != nil || len(active) != 1 {
		t.Fatalf("expected one active grant, got %d (%v)", len(active), err)
	}
}

func TestCreateValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"end before start", func(in *CreateInput) { in.EndDate = dates.MustParse("2024-01-31") }},
		{"missing dates", func(in *CreateInput) { in.StartDate = dates.Date{} }},
		{"blank reason", func(in *CreateInput) { in.Reason = "   " }},
		{"unknown role", func(in *CreateInput) { in.TargetRoleID = "ghost" }},
		{"unknown branch", func(in *CreateInput) { in.TargetBranchID = "B9" }},
		{"unknown user", func(in *CreateInput) { in.UserID = "nobody" }},
		{"no change", func(in *CreateInput) { in.TargetRoleID = "officer"; in.TargetBranchID = "" }},
		{"no change same branch", func(in *CreateInput) { in.TargetRoleID = "officer"; in.TargetBranchID = "B0" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture("2024-01-30")
			in := managerGrant("u1")
			tc.mutate(&in)
			if _, err := f.svc.Create(context.Background(), in, "admin"); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestCreateBranchOnlyGrant(t *testing.T) {
	f := newFixture("2024-01-30")
	in := managerGrant("u1")
	in.TargetRoleID = "officer"
	in.TargetBranchID = "B1"
	if _, err := f.svc.Create(context.Background(), in, "admin"); err != nil {
		t.Fatalf("branch-only grant should be accepted: %v", err)
	}
}

func TestUpdateKeepsSnapshot(t *testing.T) {
	f := newFixture("2024-01-30")
	ctx := context.Background()
	g, err := f.svc.Create(ctx, managerGrant("u1"), "admin")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// permanent role changes after the grant was created
	f.dir.PutStaff(identity.StaffIdentity{StaffID: "S1", UserID: "u1", Name: "Aigerim", PermanentRoleID: "branch_manager", PermanentBranchID: "B0"})

	end := dates.MustParse("2024-02-15")
	updated, err := f.svc.Update(ctx, g.ID, UpdateInput{EndDate: &end, ClearBranch: true}, "admin2")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !updated.EndDate.Equal(end) || updated.TargetBranchID != "" {
		t.Fatalf("update not applied: %+v", updated)
	}
	if updated.OriginalRoleID != "officer" {
		t.Fatalf("snapshot must not be refreshed, got %s", updated.OriginalRoleID)
	}
	if updated.UpdatedBy != "admin2" || updated.UpdatedAt == nil {
		t.Fatalf("update audit fields missing: %+v", updated)
	}
}

func TestUpdateRejectsBadWindowWithoutWriting(t *testing.T) {
	f := newFixture("2024-01-30")
	ctx := context.Background()
	g, _ := f.svc.Create(ctx, managerGrant("u1"), "admin")

	end := dates.MustParse("2024-01-15")
	if _, err := f.svc.Update(ctx, g.ID, UpdateInput{EndDate: &end}, "admin"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	stored, _ := f.svc.Get(ctx, g.ID)
	if !stored.EndDate.Equal(g.EndDate) || stored.UpdatedAt != nil {
		t.Fatalf("failed update modified the grant: %+v", stored)
	}
}

func TestUpdateUnknownAndTerminal(t *testing.T) {
	f := newFixture("2024-01-30")
	ctx := context.Background()
	reason := "extended cover"
	if _, err := f.svc.Update(ctx, "elv_missing", UpdateInput{Reason: &reason}, "admin"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	g, _ := f.svc.Create(ctx, managerGrant("u1"), "admin")
	if _, err := f.svc.Complete(ctx, g.ID, "admin"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := f.svc.Update(ctx, g.ID, UpdateInput{Reason: &reason}, "admin"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestCancelRules(t *testing.T) {
	f := newFixture("2024-01-30")
	ctx := context.Background()
	g, _ := f.svc.Create(ctx, managerGrant("u1"), "admin")

	if _, err := f.svc.Cancel(ctx, g.ID, "  no ", "admin"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for short reason, got %v", err)
	}
	cancelled, err := f.svc.Cancel(ctx, g.ID, "Staff returned early", "admin")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled || cancelled.CancelledBy != "admin" || cancelled.CancelledAt == nil {
		t.Fatalf("cancel fields not set: %+v", cancelled)
	}
	if cancelled.CancellationReason != "Staff returned early" {
		t.Fatalf("unexpected reason %q", cancelled.CancellationReason)
	}
	if _, err := f.svc.Cancel(ctx, g.ID, "second attempt", "admin"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if _, err := f.svc.Complete(ctx, g.ID, "admin"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	for _, reason := range []string{"", "no"} {
		if _, err := f.svc.Cancel(ctx, g.ID, reason, "admin"); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("terminal grant with reason %q: expected ErrInvalidState, got %v", reason, err)
		}
	}

	other, _ := f.svc.Create(ctx, managerGrant("u2"), "admin")
	if _, err := f.svc.Complete(ctx, other.ID, "admin"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := f.svc.Cancel(ctx, other.ID, "", "admin"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("completed grant: expected ErrInvalidState, got %v", err)
	}
}

func TestCompleteEarlyFreesUser(t *testing.T) {
	f := newFixture("2024-02-03")
	ctx := context.Background()
	g, _ := f.svc.Create(ctx, managerGrant("u1"), "admin")

	done, err := f.svc.Complete(ctx, g.ID, "admin")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != StatusCompleted || done.CompletedBy != "admin" {
		t.Fatalf("unexpected completion: %+v", done)
	}
	if _, err := f.svc.Create(ctx, managerGrant("u1"), "admin"); err != nil {
		t.Fatalf("user should accept a new grant after completion: %v", err)
	}
	want := []string{"created", "completed", "created"}
	got := f.pub.kinds()
	if len(got) != len(want) {
		t.Fatalf("events %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events %v, want %v", got, want)
		}
	}
}

func TestListAndStats(t *testing.T) {
	f := newFixture("2024-01-30")
	ctx := context.Background()
	a, _ := f.svc.Create(ctx, managerGrant("u1"), "admin")
	b := managerGrant("u2")
	b.TargetBranchID = "B0"
	b.StartDate = dates.MustParse("2024-03-01")
	b.EndDate = dates.MustParse("2024-03-31")
	b.Reason = "Audit season"
	if _, err := f.svc.Create(ctx, b, "admin"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.svc.Cancel(ctx, a.ID, "Plans changed", "admin"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	stats, err := f.svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats != (Stats{CurrentlyActive: 1, Cancelled: 1, Total: 2}) {
		t.Fatalf("unexpected stats %+v", stats)
	}

	march, _ := f.svc.List(ctx, ListFilter{From: dates.MustParse("2024-03-10"), To: dates.MustParse("2024-03-12")})
	if len(march) != 1 || march[0].UserID != "u2" {
		t.Fatalf("unexpected date-range result %+v", march)
	}
	bySearch, _ := f.svc.List(ctx, ListFilter{Search: "aigerim"})
	if len(bySearch) != 1 || bySearch[0].ID != a.ID {
		t.Fatalf("unexpected search result %+v", bySearch)
	}
	if _, err := f.svc.List(ctx, ListFilter{From: dates.MustParse("2024-03-10"), To: dates.MustParse("2024-03-01")}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for inverted range, got %v", err)
	}
}

func TestEligibleDelegatesExcludesActive(t *testing.T) {
	f := newFixture("2024-01-30")
	ctx := context.Background()
	if _, err := f.svc.Create(ctx, managerGrant("u1"), "admin"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	staff, err := f.svc.EligibleDelegates(ctx, identity.DelegateFilter{})
	if err != nil {
		t.Fatalf("EligibleDelegates: %v", err)
	}
	if len(staff) != 1 || staff[0].UserID != "u2" {
		t.Fatalf("unexpected delegates %+v", staff)
	}
}
