package elevation

import (
	"sync"
	"time"

	"elevate.org/internal/dates"
	"elevate.org/internal/identity"
	"elevate.org/internal/stream"
)

type recorder struct {
	mu     sync.Mutex
	events []stream.Event
}

func (r *recorder) Publish(evt stream.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func fixedClock(day string) func() time.Time {
	t := dates.MustParse(day).Time().Add(10 * time.Hour)
	return func() time.Time { return t }
}

func newDirectory() *identity.InMemory {
	d := identity.NewInMemory()
	d.PutRole(identity.Role{ID: "officer", Name: "Loan officer"}, "schedule.view")
	d.PutRole(identity.Role{ID: "branch_manager", Name: "Branch manager"}, "elevation.view", "schedule.view", "schedule.adjust")
	d.PutBranch(identity.Branch{ID: "B0", Name: "Head office"})
	d.PutBranch(identity.Branch{ID: "B1", Name: "North"})
	d.PutStaff(identity.StaffIdentity{StaffID: "S1", UserID: "u1", Name: "Aigerim", PermanentRoleID: "officer", PermanentBranchID: "B0"})
	d.PutStaff(identity.StaffIdentity{StaffID: "S2", UserID: "u2", Name: "Bolat", PermanentRoleID: "officer", PermanentBranchID: "B1"})
	return d
}

type fixture struct {
	store *InMemory
	dir   *identity.InMemory
	svc   *Service
	pub   *recorder
}

func newFixture(today string) fixture {
	store := NewInMemory()
	dir := newDirectory()
	pub := &recorder{}
	svc := NewService(store, dir, WithClock(fixedClock(today)), WithPublisher(pub))
	return fixture{store: store, dir: dir, svc: svc, pub: pub}
}

func managerGrant(userID string) CreateInput {
	return CreateInput{
		UserID:         userID,
		TargetRoleID:   "branch_manager",
		TargetBranchID: "B1",
		StartDate:      dates.MustParse("2024-02-01"),
		EndDate:        dates.MustParse("2024-02-10"),
		Reason:         "Cover for annual leave",
	}
}
