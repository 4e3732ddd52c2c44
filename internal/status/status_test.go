package status

import (
	"testing"

	"helpline/internal/domain"
)

func TestSelfTransitionsAlwaysLegal(t *testing.T) {
	for _, s := range domain.Statuses() {
		if !IsValidTransition(s, s) {
			t.Errorf("self-transition %s rejected", s)
		}
	}
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from domain.Status
		to   domain.Status
		want bool
	}{
		{domain.StatusNew, domain.StatusWorking, true},
		{domain.StatusNew, domain.StatusResolved, false},
		{domain.StatusNew, domain.StatusPending, false},
		{domain.StatusWorking, domain.StatusPending, true},
		{domain.StatusWorking, domain.StatusResolved, true},
		{domain.StatusPending, domain.StatusWorking, true},
		{domain.StatusPending, domain.StatusNoActionNeeded, false},
		{domain.StatusResolved, domain.StatusWorking, true},
		{domain.StatusResolved, domain.StatusNew, false},
		{domain.StatusClosed, domain.StatusWorking, true},
		{domain.StatusClosed, domain.StatusResolved, false},
		{domain.StatusClosed, domain.StatusNew, false},
		{domain.StatusNoActionNeeded, domain.StatusWorking, true},
		{domain.StatusNoActionNeeded, domain.StatusResolved, false},
	}
	for _, tc := range cases {
		if got := IsValidTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("IsValidTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestAvailableTransitionsIncludesCurrent(t *testing.T) {
	got := AvailableTransitions(domain.StatusClosed)
	want := map[domain.Status]bool{domain.StatusWorking: true, domain.StatusClosed: true}
	if len(got) != len(want) {
		t.Fatalf("transitions from CLOSED = %v", got)
	}
	for _, s := range got {
		if !want[s] {
			t.Fatalf("unexpected transition CLOSED→%s", s)
		}
	}
}

func TestDisplayNameAndColor(t *testing.T) {
	for _, s := range domain.Statuses() {
		if DisplayName(s) == string(s) {
			t.Errorf("missing display name for %s", s)
		}
		if c := Color(s); len(c) != 7 || c[0] != '#' {
			t.Errorf("bad color %q for %s", c, s)
		}
	}
	if DisplayName(domain.StatusNew) != "新規" {
		t.Errorf("DisplayName(NEW) = %q", DisplayName(domain.StatusNew))
	}
}
