package core

import (
	"regexp"
	"strings"
	"time"
)

// ThreadState is the lifecycle stage the orchestration engine derives from
// the latest bracketed tag seen in a thread's subjects. There is no stored
// state machine: state is recomputed on every read from message history,
// per spec.md's lenient "latest tag wins" design.
type ThreadState string

const (
	StateUnknown       ThreadState = "unknown"
	StateTaskStarted   ThreadState = "task_started"
	StateCompletion    ThreadState = "completion"
	StateReviewing     ThreadState = "reviewing"
	StateApproved      ThreadState = "approved"
	StateRejected      ThreadState = "rejected"
	StateFixed         ThreadState = "fixed"
	StateAcknowledged  ThreadState = "acknowledged"
)

var subjectTagRe = regexp.MustCompile(`\[([A-Z_]+)\]`)

var tagToState = map[string]ThreadState{
	"TASK_STARTED": StateTaskStarted,
	"COMPLETION":   StateCompletion,
	"REVIEWING":    StateReviewing,
	"APPROVED":     StateApproved,
	"REJECTED":     StateRejected,
	"FIXED":        StateFixed,
	"ACK":          StateAcknowledged,
}

// ThreadEvent is the minimal slice of a Message the orchestration engine
// needs: enough to order tags chronologically and report who sent them.
type ThreadEvent struct {
	Subject   string
	From      string
	CreatedTS time.Time
}

// ThreadStatus is the derived summary of a thread's lifecycle.
type ThreadStatus struct {
	State         ThreadState
	LastTag       string
	LastActor     string
	LastUpdatedTS time.Time
	TagHistory    []string
}

// DeriveThreadState scans events (assumed already sorted oldest-first by
// CreatedTS) and returns the state implied by the last recognized tag.
// Unrecognized or absent tags leave the state at StateUnknown; no strict
// transition validation is performed — any tag may follow any other.
func DeriveThreadState(events []ThreadEvent) ThreadStatus {
	status := ThreadStatus{State: StateUnknown}
	for _, ev := range events {
		tag, ok := extractLatestTag(ev.Subject)
		if !ok {
			continue
		}
		state, known := tagToState[tag]
		if !known {
			continue
		}
		status.State = state
		status.LastTag = tag
		status.LastActor = ev.From
		status.LastUpdatedTS = ev.CreatedTS
		status.TagHistory = append(status.TagHistory, tag)
	}
	return status
}

// extractLatestTag returns the last bracketed [TAG] found in subject, since
// a subject may carry more than one (e.g. forwarded "Re: [FIXED] [REVIEWING] ...").
func extractLatestTag(subject string) (string, bool) {
	matches := subjectTagRe.FindAllStringSubmatch(subject, -1)
	if len(matches) == 0 {
		return "", false
	}
	return matches[len(matches)-1][1], true
}

// AbandonedThreshold is how long a thread can sit in StateTaskStarted or
// StateCompletion before IsAbandoned considers it abandoned.
const AbandonedThreshold = 24 * time.Hour

// isAbandonable reports whether state is one find_abandoned_tasks ever
// flags: a task that was started or declared done and never picked up for
// review. StateReviewing has already moved forward and is excluded.
func isAbandonable(state ThreadState) bool {
	return state == StateTaskStarted || state == StateCompletion
}

// IsAbandoned reports whether status represents a task that was started or
// completed and then never moved forward, using the fixed 24h threshold.
func IsAbandoned(status ThreadStatus, now time.Time) bool {
	if !isAbandonable(status.State) {
		return false
	}
	return now.Sub(status.LastUpdatedTS) > AbandonedThreshold
}

// AbandonedThread is one thread flagged by find_abandoned_tasks.
type AbandonedThread struct {
	ThreadID      string
	State         ThreadState
	LastTag       string
	LastActor     string
	LastUpdatedTS time.Time
}

// FindAbandonedTasks filters a project's derived thread statuses down to
// those whose latest tag is Started or Completed and whose latest message
// is older than maxAge, honoring the caller-supplied age rather than the
// fixed AbandonedThreshold IsAbandoned uses.
func FindAbandonedTasks(statuses map[string]ThreadStatus, maxAge time.Duration, now time.Time) []AbandonedThread {
	var out []AbandonedThread
	for threadID, status := range statuses {
		if !isAbandonable(status.State) {
			continue
		}
		if now.Sub(status.LastUpdatedTS) < maxAge {
			continue
		}
		out = append(out, AbandonedThread{
			ThreadID: threadID, State: status.State, LastTag: status.LastTag,
			LastActor: status.LastActor, LastUpdatedTS: status.LastUpdatedTS,
		})
	}
	return out
}

// TagSubject trims subject and prefixes it with "[tag] ", e.g.
// "[REVIEWING] fix the thing". A tag already present at the start of the
// subject is kept, not replaced.
func TagSubject(tag, subject string) string {
	trimmed := strings.TrimSpace(subject)
	return "[" + tag + "] " + trimmed
}
