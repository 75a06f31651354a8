package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MessageBMC owns Message persistence, delivery fan-out to recipients, and
// the archive write for each message (projects/<slug>/messages/<id>.json),
// mirroring the dual-store write the original ProjectBmc::sync_to_archive
// performs for the mailbox as a whole but applied per-message so a single
// send is one archive commit.
type MessageBMC struct {
	mm *ModelManager
}

func NewMessageBMC(mm *ModelManager) *MessageBMC { return &MessageBMC{mm: mm} }

// SendOptions bundles everything Send needs; kept as a struct (not
// positional args) the way the client SDK's SendMessageOptions does, for
// the same reason: too many string params otherwise.
type SendOptions struct {
	ProjectID   int
	SenderID    int
	SenderName  string
	ProjectSlug string
	To          []string
	CC          []string
	BCC         []string
	Subject     string
	BodyMD      string
	Importance  string
	AckRequired bool
	ThreadID    string
}

// Send resolves recipients, checks each recipient's inbox quota, inserts
// the message and its recipient fan-out rows in one SQL transaction, then
// commits the message JSON to the archive.
func (b *MessageBMC) Send(ctx context.Context, opts SendOptions) (*Message, error) {
	if opts.Importance == "" {
		opts.Importance = "normal"
	}

	if len(opts.To) == 0 && len(opts.CC) == 0 && len(opts.BCC) == 0 {
		return nil, Validation("recipients", "", "a message requires at least one recipient (to, cc, or bcc)", "")
	}

	recipients, err := b.resolveRecipients(ctx, opts.ProjectID, opts.To, opts.CC, opts.BCC)
	if err != nil {
		return nil, err
	}

	capBMC := NewCapabilityBMC(b.mm)
	for _, r := range recipients {
		count, err := b.inboxCount(ctx, r.id)
		if err != nil {
			return nil, err
		}
		cap, err := capBMC.Get(ctx, r.id)
		if err != nil {
			return nil, err
		}
		if verr := CheckInboxQuota(count, cap.MaxInboxMessages); verr != nil {
			return nil, verr
		}
	}

	var msgID int64
	createdTS := time.Now().UTC()
	err = b.mm.DB.Transaction(func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO messages (project_id, sender_id, thread_id, subject, body_md, importance, ack_required, created_ts)
			VALUES (?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?)`,
			opts.ProjectID, opts.SenderID, opts.ThreadID, opts.Subject, opts.BodyMD, opts.Importance, opts.AckRequired, createdTS)
		if err != nil {
			return Internal(err)
		}
		msgID, err = res.LastInsertId()
		if err != nil {
			return Internal(err)
		}
		for _, r := range recipients {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO message_recipients (message_id, agent_id, kind) VALUES (?, ?, ?)`, msgID, r.id, r.kind); err != nil {
				return Internal(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	msg := &Message{
		ID: int(msgID), ProjectID: opts.ProjectID, SenderID: opts.SenderID, From: opts.SenderName,
		ThreadID: opts.ThreadID, Subject: opts.Subject, BodyMD: opts.BodyMD,
		To: opts.To, CC: opts.CC, BCC: opts.BCC, Importance: opts.Importance,
		AckRequired: opts.AckRequired, CreatedTS: createdTS,
	}

	if err := b.commitToArchive(ctx, opts.ProjectSlug, opts.SenderName, msg); err != nil {
		return nil, err
	}

	return msg, nil
}

// Reply sends a new message in the same thread, defaulting recipients to
// the original sender plus original recipients minus the replier, and
// prefixing the subject with "Re: " unless already present.
func (b *MessageBMC) Reply(ctx context.Context, original *Message, opts SendOptions) (*Message, error) {
	if opts.ThreadID == "" {
		opts.ThreadID = original.ThreadID
		if opts.ThreadID == "" {
			opts.ThreadID = fmt.Sprintf("thread-%d", original.ID)
		}
	}
	if len(opts.To) == 0 {
		opts.To = []string{original.From}
	}
	if opts.Subject == "" {
		if strings.HasPrefix(strings.ToLower(original.Subject), "re:") {
			opts.Subject = original.Subject
		} else {
			opts.Subject = "Re: " + original.Subject
		}
	}
	return b.Send(ctx, opts)
}

type recipientRef struct {
	id   int
	kind string
}

func (b *MessageBMC) resolveRecipients(ctx context.Context, projectID int, to, cc, bcc []string) ([]recipientRef, error) {
	var out []recipientRef
	agentBMC := NewAgentBMC(b.mm)
	add := func(names []string, kind string) error {
		for _, name := range names {
			a, err := agentBMC.GetByName(ctx, projectID, name)
			if err != nil {
				return err
			}
			out = append(out, recipientRef{id: a.ID, kind: kind})
		}
		return nil
	}
	if err := add(to, "to"); err != nil {
		return nil, err
	}
	if err := add(cc, "cc"); err != nil {
		return nil, err
	}
	if err := add(bcc, "bcc"); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *MessageBMC) inboxCount(ctx context.Context, agentID int) (int, error) {
	var n int
	err := b.mm.DB.Conn().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM message_recipients WHERE agent_id = ? AND read_ts IS NULL`, agentID).Scan(&n)
	if err != nil {
		return 0, Internal(err)
	}
	return n, nil
}

func (b *MessageBMC) commitToArchive(ctx context.Context, slug, senderName string, msg *Message) error {
	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return Internal(err)
	}
	relPath := fmt.Sprintf("messages/%d.json", msg.ID)
	return b.mm.WithArchive(ctx, slug, senderName, func(archive *GitArchive) error {
		if err := archive.WriteJSON(relPath, data); err != nil {
			return err
		}
		return archive.CommitPaths(ctx, []string{relPath}, fmt.Sprintf("message: %s -> %s", senderName, strings.Join(msg.To, ",")))
	})
}

// FetchInboxOptions filters a FetchInbox call.
type FetchInboxOptions struct {
	AgentID       int
	UrgentOnly    bool
	SinceTS       *time.Time
	Limit         int
	IncludeBodies bool
}

// FetchInbox returns messages addressed to (to/cc/bcc) an agent, newest
// first.
func (b *MessageBMC) FetchInbox(ctx context.Context, opts FetchInboxOptions) ([]InboxMessage, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT m.id, m.subject, sender.name, COALESCE(m.thread_id,''), m.importance, m.ack_required,
		       mr.kind, mr.read_ts, mr.ack_ts, m.created_ts, m.body_md
		FROM messages m
		JOIN message_recipients mr ON mr.message_id = m.id
		JOIN agents sender ON sender.id = m.sender_id
		WHERE mr.agent_id = ?`
	args := []any{opts.AgentID}

	if opts.UrgentOnly {
		query += ` AND m.importance IN ('high', 'urgent')`
	}
	if opts.SinceTS != nil {
		query += ` AND m.created_ts >= ?`
		args = append(args, *opts.SinceTS)
	}
	query += ` ORDER BY m.created_ts DESC LIMIT ?`
	args = append(args, limit)

	rows, err := b.mm.DB.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Internal(err)
	}
	defer rows.Close()

	var out []InboxMessage
	for rows.Next() {
		var im InboxMessage
		var threadID, body string
		if err := rows.Scan(&im.ID, &im.Subject, &im.From, &threadID, &im.Importance, &im.AckRequired,
			&im.Kind, &im.ReadTS, &im.AckTS, &im.CreatedTS, &body); err != nil {
			return nil, Internal(err)
		}
		im.ThreadID = threadID
		if opts.IncludeBodies {
			im.BodyMD = body
		}
		out = append(out, im)
	}
	return out, nil
}

func (b *MessageBMC) MarkRead(ctx context.Context, messageID, agentID int) error {
	res, err := b.mm.DB.Conn().ExecContext(ctx, `
		UPDATE message_recipients SET read_ts = ? WHERE message_id = ? AND agent_id = ? AND read_ts IS NULL`,
		time.Now().UTC(), messageID, agentID)
	if err != nil {
		return Internal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFound("message_recipient", fmt.Sprintf("%d/%d", messageID, agentID))
	}
	return nil
}

// Acknowledge records an agent's ack on a message. It rejects agents that
// are not a direct ("to") recipient of an ack_required message, matching
// the dual-store write's other guards: the row exists but acking it isn't
// meaningful unless the message actually demanded one.
func (b *MessageBMC) Acknowledge(ctx context.Context, messageID, agentID int) error {
	var kind string
	var ackRequired bool
	err := b.mm.DB.Conn().QueryRowContext(ctx, `
		SELECT mr.kind, m.ack_required
		FROM message_recipients mr JOIN messages m ON m.id = mr.message_id
		WHERE mr.message_id = ? AND mr.agent_id = ?`, messageID, agentID).Scan(&kind, &ackRequired)
	if err != nil {
		if err == sql.ErrNoRows {
			return NotFound("message_recipient", fmt.Sprintf("%d/%d", messageID, agentID))
		}
		return Internal(err)
	}
	if kind != "to" || !ackRequired {
		return AuthError("agent is not a direct recipient of an ack_required message")
	}

	res, err := b.mm.DB.Conn().ExecContext(ctx, `
		UPDATE message_recipients SET ack_ts = ? WHERE message_id = ? AND agent_id = ?`,
		time.Now().UTC(), messageID, agentID)
	if err != nil {
		return Internal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFound("message_recipient", fmt.Sprintf("%d/%d", messageID, agentID))
	}
	return nil
}

func (b *MessageBMC) Get(ctx context.Context, projectID, messageID int) (*Message, error) {
	row := b.mm.DB.Conn().QueryRowContext(ctx, `
		SELECT m.id, m.project_id, m.sender_id, sender.name, COALESCE(m.thread_id,''), m.subject, m.body_md,
		       m.importance, m.ack_required, m.created_ts
		FROM messages m JOIN agents sender ON sender.id = m.sender_id
		WHERE m.id = ? AND m.project_id = ?`, messageID, projectID)

	var m Message
	if err := row.Scan(&m.ID, &m.ProjectID, &m.SenderID, &m.From, &m.ThreadID, &m.Subject, &m.BodyMD,
		&m.Importance, &m.AckRequired, &m.CreatedTS); err != nil {
		if err == sql.ErrNoRows {
			return nil, NotFound("message", fmt.Sprintf("%d", messageID))
		}
		return nil, Internal(err)
	}
	m.To, m.CC, m.BCC = b.recipientsByKind(ctx, messageID)
	return &m, nil
}

func (b *MessageBMC) recipientsByKind(ctx context.Context, messageID int) (to, cc, bcc []string) {
	rows, err := b.mm.DB.Conn().QueryContext(ctx, `
		SELECT a.name, mr.kind FROM message_recipients mr JOIN agents a ON a.id = mr.agent_id
		WHERE mr.message_id = ?`, messageID)
	if err != nil {
		return nil, nil, nil
	}
	defer rows.Close()
	for rows.Next() {
		var name, kind string
		if rows.Scan(&name, &kind) != nil {
			continue
		}
		switch kind {
		case "to":
			to = append(to, name)
		case "cc":
			cc = append(cc, name)
		case "bcc":
			bcc = append(bcc, name)
		}
	}
	return
}

// SearchResult is a trimmed Message row for search_messages.
type SearchResult struct {
	ID          int       `json:"id"`
	Subject     string    `json:"subject"`
	From        string    `json:"from"`
	Importance  string    `json:"importance"`
	AckRequired bool      `json:"ack_required"`
	ThreadID    string    `json:"thread_id,omitempty"`
	CreatedTS   time.Time `json:"created_ts"`
}

// Search does a simple substring match over subject and body, newest
// first. A FTS5 virtual table would be the natural upgrade but no example
// in the pack wires SQLite FTS, so LIKE is the grounded choice here.
func (b *MessageBMC) Search(ctx context.Context, projectID int, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	like := "%" + query + "%"
	rows, err := b.mm.DB.Conn().QueryContext(ctx, `
		SELECT m.id, m.subject, sender.name, m.importance, m.ack_required, COALESCE(m.thread_id,''), m.created_ts
		FROM messages m JOIN agents sender ON sender.id = m.sender_id
		WHERE m.project_id = ? AND (m.subject LIKE ? OR m.body_md LIKE ?)
		ORDER BY m.created_ts DESC LIMIT ?`, projectID, like, like, limit)
	if err != nil {
		return nil, Internal(err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.Subject, &r.From, &r.Importance, &r.AckRequired, &r.ThreadID, &r.CreatedTS); err != nil {
			return nil, Internal(err)
		}
		out = append(out, r)
	}
	return out, nil
}

// ListSince returns up to limit messages for a project created at or after
// since (or all of them, newest first, if since is nil), for export_mailbox.
func (b *MessageBMC) ListSince(ctx context.Context, projectID int, since *time.Time, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `
		SELECT m.id, m.project_id, m.sender_id, a.name, COALESCE(m.thread_id,''), m.subject, m.body_md,
		       m.importance, m.ack_required, m.created_ts
		FROM messages m JOIN agents a ON a.id = m.sender_id
		WHERE m.project_id = ?`
	args := []any{projectID}
	if since != nil {
		query += ` AND m.created_ts >= ?`
		args = append(args, *since)
	}
	query += ` ORDER BY m.created_ts DESC LIMIT ?`
	args = append(args, limit)

	rows, err := b.mm.DB.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Internal(err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.SenderID, &m.From, &m.ThreadID, &m.Subject, &m.BodyMD,
			&m.Importance, &m.AckRequired, &m.CreatedTS); err != nil {
			return nil, Internal(err)
		}
		m.To, m.CC, m.BCC = b.recipientsByKind(ctx, m.ID)
		out = append(out, m)
	}
	return out, nil
}

// ThreadIDs returns every distinct non-empty thread_id in the project.
func (b *MessageBMC) ThreadIDs(ctx context.Context, projectID int) ([]string, error) {
	rows, err := b.mm.DB.Conn().QueryContext(ctx, `
		SELECT DISTINCT thread_id FROM messages
		WHERE project_id = ? AND thread_id IS NOT NULL AND thread_id != ''`, projectID)
	if err != nil {
		return nil, Internal(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, Internal(err)
		}
		out = append(out, id)
	}
	return out, nil
}

// FindAbandonedTasks derives every thread's state and reports those whose
// latest tag is Started or Completed and have sat idle longer than maxAge.
func (b *MessageBMC) FindAbandonedTasks(ctx context.Context, projectID int, maxAge time.Duration, now time.Time) ([]AbandonedThread, error) {
	threadIDs, err := b.ThreadIDs(ctx, projectID)
	if err != nil {
		return nil, err
	}

	statuses := make(map[string]ThreadStatus, len(threadIDs))
	for _, threadID := range threadIDs {
		events, err := b.ThreadEvents(ctx, projectID, threadID)
		if err != nil {
			return nil, err
		}
		statuses[threadID] = DeriveThreadState(events)
	}

	return FindAbandonedTasks(statuses, maxAge, now), nil
}

// ThreadEvents loads a thread's messages in chronological order for the
// orchestration engine to derive state from.
func (b *MessageBMC) ThreadEvents(ctx context.Context, projectID int, threadID string) ([]ThreadEvent, error) {
	rows, err := b.mm.DB.Conn().QueryContext(ctx, `
		SELECT m.subject, sender.name, m.created_ts FROM messages m JOIN agents sender ON sender.id = m.sender_id
		WHERE m.project_id = ? AND m.thread_id = ? ORDER BY m.created_ts ASC`, projectID, threadID)
	if err != nil {
		return nil, Internal(err)
	}
	defer rows.Close()

	var out []ThreadEvent
	for rows.Next() {
		var ev ThreadEvent
		if err := rows.Scan(&ev.Subject, &ev.From, &ev.CreatedTS); err != nil {
			return nil, Internal(err)
		}
		out = append(out, ev)
	}
	return out, nil
}
