package elevation

import (
	"context"
	"errors"
	"testing"

	"elevate.org/internal/dates"
)

func TestResolveScenarios(t *testing.T) {
	f := newFixture("2024-01-30")
	ctx := context.Background()
	g, err := f.svc.Create(ctx, managerGrant("u1"), "admin")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	r := NewResolver(f.store, f.dir, nil)

	cases := []struct {
		day       string
		role      string
		branch    string
		temporary bool
		remaining int
	}{
		{"2024-01-31", "officer", "B0", false, 0},
		{"2024-02-01", "branch_manager", "B1", true, 9},
		{"2024-02-05", "branch_manager", "B1", true, 5},
		{"2024-02-10", "branch_manager", "B1", true, 0},
		{"2024-02-11", "officer", "B0", false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.day, func(t *testing.T) {
			eff, err := r.ResolveAt(ctx, "u1", dates.MustParse(tc.day))
			if err != nil {
				t.Fatalf("ResolveAt: %v", err)
			}
			if eff.RoleID != tc.role || eff.BranchID != tc.branch || eff.IsTemporary != tc.temporary || eff.RemainingDays != tc.remaining {
				t.Fatalf("unexpected identity %+v", eff)
			}
			if tc.temporary && eff.GrantID != g.ID {
				t.Fatalf("grant id missing: %+v", eff)
			}
		})
	}
}

func TestResolveKeepsPermanentBranchWhenTargetEmpty(t *testing.T) {
	f := newFixture("2024-01-30")
	ctx := context.Background()
	in := managerGrant("u1")
	in.TargetBranchID = ""
	if _, err := f.svc.Create(ctx, in, "admin"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	r := NewResolver(f.store, f.dir, fixedClock("2024-02-05"))
	eff, err := r.Resolve(ctx, "u1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if eff.RoleID != "branch_manager" || eff.BranchID != "B0" || !eff.IsTemporary {
		t.Fatalf("unexpected identity %+v", eff)
	}
	branches, _ := r.EffectiveBranches(ctx, "u1")
	if len(branches) != 1 || branches[0].Type != BranchOriginal {
		t.Fatalf("unexpected branches %+v", branches)
	}
}

func TestEffectiveBranches(t *testing.T) {
	f := newFixture("2024-01-30")
	ctx := context.Background()
	if _, err := f.svc.Create(ctx, managerGrant("u1"), "admin"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	r := NewResolver(f.store, f.dir, nil)

	in, _ := r.EffectiveBranchesAt(ctx, "u1", dates.MustParse("2024-02-05"))
	if len(in) != 2 || in[0].BranchID != "B0" || in[1].BranchID != "B1" || in[1].Type != BranchTemporary {
		t.Fatalf("unexpected in-window branches %+v", in)
	}
	out, _ := r.EffectiveBranchesAt(ctx, "u1", dates.MustParse("2024-02-11"))
	if len(out) != 1 || out[0].BranchID != "B0" {
		t.Fatalf("unexpected out-of-window branches %+v", out)
	}
}

func TestResolveUnknownUser(t *testing.T) {
	f := newFixture("2024-01-30")
	r := NewResolver(f.store, f.dir, nil)
	if _, err := r.Resolve(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
