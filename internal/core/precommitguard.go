package core

import "strings"

// PrecommitGuardBMC is the install/uninstall and gate-check surface for an
// agent's local pre-commit hook. The actual reservation check is a
// deliberate placeholder, matching original_source's
// precommit_guard.rs::check_reservations, which returns "no violations"
// whenever the gate is active: there is no reservation-vs-staged-files
// cross-check implemented yet.
type PrecommitGuardBMC struct {
	mm *ModelManager
}

func NewPrecommitGuardBMC(mm *ModelManager) *PrecommitGuardBMC { return &PrecommitGuardBMC{mm: mm} }

// WorktreesActive reports whether the precommit gate should run at all,
// mirroring precommit_guard.rs's worktrees_active(): either
// WORKTREES_ENABLED or GIT_IDENTITY_ENABLED must be truthy.
func WorktreesActive(env map[string]string) bool {
	return parseBoolEnv(env["WORKTREES_ENABLED"]) || parseBoolEnv(env["GIT_IDENTITY_ENABLED"])
}

func parseBoolEnv(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "t", "y":
		return true
	default:
		return false
	}
}

// CheckReservations is a placeholder: when the gate is active it always
// reports no violations. TODO: cross-check staged files against active
// exclusive reservations held by other agents before allowing a commit.
func (b *PrecommitGuardBMC) CheckReservations(env map[string]string, stagedPaths []string) []ReservationConflict {
	if !WorktreesActive(env) {
		return nil
	}
	return nil
}
