package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AgentLinkBMC owns contact request/approval state between agents, plus
// the macro_contact_handshake compound operation layered on top of it.
type AgentLinkBMC struct {
	mm *ModelManager
}

func NewAgentLinkBMC(mm *ModelManager) *AgentLinkBMC { return &AgentLinkBMC{mm: mm} }

// RequestContact creates (or returns the existing) pending link from-to. If
// the target agent's contact policy is "auto_accept", the link is approved
// immediately.
func (b *AgentLinkBMC) RequestContact(ctx context.Context, fromID, toID int, ttlSeconds int) (*AgentLink, error) {
	if existing, err := b.get(ctx, fromID, toID); err == nil {
		return existing, nil
	}

	var expires *time.Time
	if ttlSeconds > 0 {
		t := time.Now().UTC().Add(time.Duration(ttlSeconds) * time.Second)
		expires = &t
	}

	toAgent, err := NewAgentBMC(b.mm).Get(ctx, toID)
	if err != nil {
		return nil, err
	}
	approved := toAgent.ContactPolicy == "auto_accept"

	var id int64
	err = b.mm.DB.Transaction(func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO agent_links (from_agent_id, to_agent_id, approved, expires_ts) VALUES (?, ?, ?, ?)`,
			fromID, toID, approved, expires)
		if err != nil {
			return Internal(err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return b.Get(ctx, int(id))
}

// RespondContact approves or denies a pending request. Denial deletes the
// link row outright (a denied request leaves no lingering state to query).
func (b *AgentLinkBMC) RespondContact(ctx context.Context, fromID, toID int, accept bool, ttlSeconds int) error {
	if !accept {
		_, err := b.mm.DB.Conn().ExecContext(ctx, `DELETE FROM agent_links WHERE from_agent_id = ? AND to_agent_id = ?`, fromID, toID)
		if err != nil {
			return Internal(err)
		}
		return nil
	}

	var expires *time.Time
	if ttlSeconds > 0 {
		t := time.Now().UTC().Add(time.Duration(ttlSeconds) * time.Second)
		expires = &t
	}
	res, err := b.mm.DB.Conn().ExecContext(ctx, `
		UPDATE agent_links SET approved = 1, expires_ts = COALESCE(?, expires_ts) WHERE from_agent_id = ? AND to_agent_id = ?`,
		expires, fromID, toID)
	if err != nil {
		return Internal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFound("agent_link", fmt.Sprintf("%d->%d", fromID, toID))
	}
	return nil
}

func (b *AgentLinkBMC) get(ctx context.Context, fromID, toID int) (*AgentLink, error) {
	row := b.mm.DB.Conn().QueryRowContext(ctx, `
		SELECT al.id, al.from_agent_id, al.to_agent_id, fa.name, ta.name, al.approved, al.requested_ts, al.expires_ts
		FROM agent_links al JOIN agents fa ON fa.id = al.from_agent_id JOIN agents ta ON ta.id = al.to_agent_id
		WHERE al.from_agent_id = ? AND al.to_agent_id = ?`, fromID, toID)
	return scanAgentLink(row)
}

func (b *AgentLinkBMC) Get(ctx context.Context, id int) (*AgentLink, error) {
	row := b.mm.DB.Conn().QueryRowContext(ctx, `
		SELECT al.id, al.from_agent_id, al.to_agent_id, fa.name, ta.name, al.approved, al.requested_ts, al.expires_ts
		FROM agent_links al JOIN agents fa ON fa.id = al.from_agent_id JOIN agents ta ON ta.id = al.to_agent_id
		WHERE al.id = ?`, id)
	return scanAgentLink(row)
}

// ListForAgent returns every link an agent participates in, either side.
func (b *AgentLinkBMC) ListForAgent(ctx context.Context, agentID int) ([]AgentLink, error) {
	rows, err := b.mm.DB.Conn().QueryContext(ctx, `
		SELECT al.id, al.from_agent_id, al.to_agent_id, fa.name, ta.name, al.approved, al.requested_ts, al.expires_ts
		FROM agent_links al JOIN agents fa ON fa.id = al.from_agent_id JOIN agents ta ON ta.id = al.to_agent_id
		WHERE al.from_agent_id = ? OR al.to_agent_id = ?
		ORDER BY al.requested_ts DESC`, agentID, agentID)
	if err != nil {
		return nil, Internal(err)
	}
	defer rows.Close()

	var out []AgentLink
	for rows.Next() {
		l, err := scanAgentLinkRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, nil
}

// IsApproved reports whether fromID may message toID: either a live
// approved link exists, or toID's contact policy is auto_accept.
func (b *AgentLinkBMC) IsApproved(ctx context.Context, fromID, toID int) (bool, error) {
	link, err := b.get(ctx, fromID, toID)
	if err == nil && link.Approved {
		if link.ExpiresTS == nil || link.ExpiresTS.After(time.Now().UTC()) {
			return true, nil
		}
	}
	toAgent, err := NewAgentBMC(b.mm).Get(ctx, toID)
	if err != nil {
		return false, err
	}
	return toAgent.ContactPolicy == "auto_accept", nil
}

func scanAgentLink(row *sql.Row) (*AgentLink, error) {
	var l AgentLink
	if err := row.Scan(&l.ID, &l.FromAgentID, &l.ToAgentID, &l.FromAgent, &l.ToAgent, &l.Approved, &l.RequestedTS, &l.ExpiresTS); err != nil {
		if err == sql.ErrNoRows {
			return nil, NotFound("agent_link", "")
		}
		return nil, Internal(err)
	}
	return &l, nil
}

func scanAgentLinkRows(rows *sql.Rows) (*AgentLink, error) {
	var l AgentLink
	if err := rows.Scan(&l.ID, &l.FromAgentID, &l.ToAgentID, &l.FromAgent, &l.ToAgent, &l.Approved, &l.RequestedTS, &l.ExpiresTS); err != nil {
		return nil, Internal(err)
	}
	return &l, nil
}

// ContactHandshakeOptions drives the compound macro_contact_handshake
// operation: request (or auto-accept) a link, then optionally send a
// welcome message. Supplemented from the teacher's tool inventory.
type ContactHandshakeOptions struct {
	ProjectID   int
	ProjectSlug string
	FromID      int
	FromName    string
	ToID        int
	ToName      string
	AutoAccept  bool
	TTLSeconds  int
	WelcomeSubject string
	WelcomeBody    string
}

// ContactHandshakeResult reports the outcome.
type ContactHandshakeResult struct {
	Status  string // approved, pending
	Link    *AgentLink
	Welcome *Message
}

// ContactHandshake performs RequestContact, and if AutoAccept is set and the
// link is still pending, immediately approves it. Whenever the link ends up
// approved (by AutoAccept or already by the target's policy) and WelcomeBody
// is non-empty, it sends the welcome message (subject defaults to "Welcome").
func (b *AgentLinkBMC) ContactHandshake(ctx context.Context, opts ContactHandshakeOptions) (*ContactHandshakeResult, error) {
	link, err := b.RequestContact(ctx, opts.FromID, opts.ToID, opts.TTLSeconds)
	if err != nil {
		return nil, err
	}

	result := &ContactHandshakeResult{Status: "pending", Link: link}
	if link.Approved {
		result.Status = "approved"
	}

	if opts.AutoAccept && !link.Approved {
		if err := b.RespondContact(ctx, opts.FromID, opts.ToID, true, opts.TTLSeconds); err != nil {
			return nil, err
		}
		link, err = b.get(ctx, opts.FromID, opts.ToID)
		if err != nil {
			return nil, err
		}
		result.Link = link
		result.Status = "approved"
	}

	if result.Status == "approved" && opts.WelcomeBody != "" {
		subject := opts.WelcomeSubject
		if subject == "" {
			subject = "Welcome"
		}
		msg, err := NewMessageBMC(b.mm).Send(ctx, SendOptions{
			ProjectID: opts.ProjectID, ProjectSlug: opts.ProjectSlug,
			SenderID: opts.FromID, SenderName: opts.FromName,
			To: []string{opts.ToName}, Subject: subject, BodyMD: opts.WelcomeBody,
		})
		if err != nil {
			return nil, err
		}
		result.Welcome = msg
	}

	return result, nil
}
