package core

import "time"

// Product groups sibling projects under one label (e.g. a mono-repo's
// services). Supplemented from original_source's project.rs::list_siblings,
// which joins through a product_projects table the distilled spec omits.
type Product struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Project is a coordination namespace rooted at a stable identity (see
// ResolveIdentity) with its own Git archive under projects/<slug>/.
type Project struct {
	ID        int       `json:"id"`
	Slug      string    `json:"slug"`
	HumanKey  string    `json:"human_key"`
	CreatedAt time.Time `json:"created_at"`
}

// Agent is a registered participant within a Project.
type Agent struct {
	ID              int       `json:"id"`
	ProjectID       int       `json:"project_id"`
	Name            string    `json:"name"`
	Program         string    `json:"program"`
	Model           string    `json:"model"`
	TaskDescription string    `json:"task_description"`
	ContactPolicy   string    `json:"contact_policy"` // "manual", "auto_accept", "blocked"
	InceptionTS     time.Time `json:"inception_ts"`
	LastActiveTS    time.Time `json:"last_active_ts"`
}

// Message is a single mail item, possibly with CC/BCC recipients and a
// thread identifier the orchestration engine reads tags from.
type Message struct {
	ID          int       `json:"id"`
	ProjectID   int       `json:"project_id"`
	SenderID    int       `json:"sender_id"`
	From        string    `json:"from"`
	ThreadID    string    `json:"thread_id,omitempty"`
	Subject     string    `json:"subject"`
	BodyMD      string    `json:"body_md"`
	To          []string  `json:"to"`
	CC          []string  `json:"cc,omitempty"`
	BCC         []string  `json:"bcc,omitempty"`
	Importance  string    `json:"importance"`
	AckRequired bool      `json:"ack_required"`
	CreatedTS   time.Time `json:"created_ts"`
}

// InboxMessage is a Message as seen from one recipient's point of view.
type InboxMessage struct {
	ID          int       `json:"id"`
	Subject     string    `json:"subject"`
	From        string    `json:"from"`
	ThreadID    string    `json:"thread_id,omitempty"`
	Importance  string    `json:"importance"`
	AckRequired bool      `json:"ack_required"`
	Kind        string    `json:"kind"` // to, cc, bcc
	ReadTS      *time.Time `json:"read_ts,omitempty"`
	AckTS       *time.Time `json:"ack_ts,omitempty"`
	CreatedTS   time.Time `json:"created_ts"`
	BodyMD      string    `json:"body_md,omitempty"`
}

// FileReservation is an advisory, TTL-bounded lock over a path or glob.
type FileReservation struct {
	ID          int        `json:"id"`
	ProjectID   int        `json:"project_id"`
	AgentID     int        `json:"agent_id"`
	AgentName   string     `json:"agent_name"`
	PathPattern string     `json:"path_pattern"`
	Exclusive   bool       `json:"exclusive"`
	Reason      string     `json:"reason"`
	CreatedTS   time.Time  `json:"created_ts"`
	ExpiresTS   time.Time  `json:"expires_ts"`
	ReleasedTS  *time.Time `json:"released_ts,omitempty"`
}

// ReservationConflict describes one requested path that collided with
// another agent's active reservation(s). The reservation is still granted
// under the advisory model — a conflict is reported, never blocked.
type ReservationConflict struct {
	Path    string            `json:"path"`
	Holders []string          `json:"holders"`
	Others  []ConflictingHold `json:"others"`
}

// ConflictingHold names the other pattern/agent/expiry behind one entry in
// ReservationConflict.Holders.
type ConflictingHold struct {
	OtherAgent   string    `json:"other_agent"`
	OtherPattern string    `json:"other_pattern"`
	Expires      time.Time `json:"expires"`
}

// AgentLink is a directional contact relationship, approved or pending.
type AgentLink struct {
	ID          int        `json:"id"`
	FromAgentID int        `json:"from_agent_id"`
	ToAgentID   int        `json:"to_agent_id"`
	FromAgent   string     `json:"from_agent"`
	ToAgent     string     `json:"to_agent"`
	Approved    bool       `json:"approved"`
	RequestedTS time.Time  `json:"requested_ts"`
	ExpiresTS   *time.Time `json:"expires_ts,omitempty"`
}

// AgentCapability bounds how much of the quota an agent may consume.
type AgentCapability struct {
	AgentID             int  `json:"agent_id"`
	MaxInboxMessages    int  `json:"max_inbox_messages"`
	MaxAttachmentBytes  int  `json:"max_attachment_bytes"`
	CanBroadcast        bool `json:"can_broadcast"`
}

// MacroDef is a named, replayable sequence of tool calls.
type MacroDef struct {
	ID          int      `json:"id"`
	ProjectID   int      `json:"project_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
	Builtin     bool     `json:"builtin"`
}

// Attachment is a quota-limited binary artifact attached to a Message.
// Content lives in the Git archive; the row tracks its metadata.
type Attachment struct {
	ID          int       `json:"id"`
	MessageID   int       `json:"message_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	SHA256      string    `json:"sha256"`
	CreatedTS   time.Time `json:"created_ts"`
}

// BuildSlot tracks one agent's exclusive claim on a build/test run.
type BuildSlot struct {
	ID         int        `json:"id"`
	ProjectID  int        `json:"project_id"`
	AgentID    int        `json:"agent_id"`
	Label      string     `json:"label"`
	StartedTS  time.Time  `json:"started_ts"`
	FinishedTS *time.Time `json:"finished_ts,omitempty"`
	Status     string     `json:"status"` // running, finished, failed
}

// ToolMetric records one tool invocation's timing for later analysis.
type ToolMetric struct {
	ID         int       `json:"id"`
	ProjectID  int       `json:"project_id"`
	ToolName   string    `json:"tool_name"`
	AgentID    int       `json:"agent_id"`
	DurationMS int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	RecordedTS time.Time `json:"recorded_ts"`
}
