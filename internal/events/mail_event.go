package events

import "time"

// Event type constants published by the internal/jsonrpc tool handlers as
// mail state changes.
const (
	EventMessageDelivered = "message_delivered"
	EventThreadStateChanged = "thread_state_changed"
	EventReservationConflict = "reservation_conflict"
	EventAgentRegistered = "agent_registered"
)

// MailEvent is the one BusEvent implementation the server publishes. A
// single shape covers every event type above; subscribers switch on
// EventType() and read the fields relevant to that type.
type MailEvent struct {
	Type        string
	ProjectSlug string
	ThreadID    string
	AgentName   string
	Summary     string
	Meta        map[string]any
	OccurredAt  time.Time
}

func (e MailEvent) EventType() string { return e.Type }

// NewMailEvent builds a MailEvent for immediate publish via an EventEmitter.
func NewMailEvent(eventType, projectSlug, threadID, agentName, summary string, meta map[string]any) MailEvent {
	return MailEvent{
		Type:        eventType,
		ProjectSlug: projectSlug,
		ThreadID:    threadID,
		AgentName:   agentName,
		Summary:     summary,
		Meta:        meta,
		OccurredAt:  time.Now().UTC(),
	}
}
