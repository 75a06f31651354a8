package core

import "testing"

func TestWorktreesActive(t *testing.T) {
	cases := []struct {
		env  map[string]string
		want bool
	}{
		{map[string]string{}, false},
		{map[string]string{"WORKTREES_ENABLED": "1"}, true},
		{map[string]string{"WORKTREES_ENABLED": "true"}, true},
		{map[string]string{"WORKTREES_ENABLED": "no"}, false},
		{map[string]string{"GIT_IDENTITY_ENABLED": "yes"}, true},
		{map[string]string{"WORKTREES_ENABLED": "0", "GIT_IDENTITY_ENABLED": "0"}, false},
	}
	for _, c := range cases {
		if got := WorktreesActive(c.env); got != c.want {
			t.Errorf("WorktreesActive(%v) = %v, want %v", c.env, got, c.want)
		}
	}
}

func TestPrecommitGuardBMC_CheckReservations_NoViolationsByDesign(t *testing.T) {
	mm := newTestModelManager(t)
	b := NewPrecommitGuardBMC(mm)

	active := map[string]string{"WORKTREES_ENABLED": "1"}
	if got := b.CheckReservations(active, []string{"internal/core/message.go"}); got != nil {
		t.Fatalf("CheckReservations(active gate) = %v, want nil", got)
	}

	inactive := map[string]string{}
	if got := b.CheckReservations(inactive, []string{"internal/core/message.go"}); got != nil {
		t.Fatalf("CheckReservations(inactive gate) = %v, want nil", got)
	}
}
