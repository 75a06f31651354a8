package core

import (
	"context"
	"database/sql"
)

// CapabilityBMC owns per-agent quota/capability rows. An agent with no row
// gets the package defaults (see quota.go).
type CapabilityBMC struct {
	mm *ModelManager
}

func NewCapabilityBMC(mm *ModelManager) *CapabilityBMC { return &CapabilityBMC{mm: mm} }

func (b *CapabilityBMC) Get(ctx context.Context, agentID int) (AgentCapability, error) {
	row := b.mm.DB.Conn().QueryRowContext(ctx, `
		SELECT agent_id, max_inbox_messages, max_attachment_bytes, can_broadcast
		FROM agent_capabilities WHERE agent_id = ?`, agentID)
	var c AgentCapability
	if err := row.Scan(&c.AgentID, &c.MaxInboxMessages, &c.MaxAttachmentBytes, &c.CanBroadcast); err != nil {
		if err == sql.ErrNoRows {
			return CapabilityFor(nil), nil
		}
		return AgentCapability{}, Internal(err)
	}
	return c, nil
}

// Set upserts an agent's capability row.
func (b *CapabilityBMC) Set(ctx context.Context, c AgentCapability) error {
	_, err := b.mm.DB.Conn().ExecContext(ctx, `
		INSERT INTO agent_capabilities (agent_id, max_inbox_messages, max_attachment_bytes, can_broadcast)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			max_inbox_messages = excluded.max_inbox_messages,
			max_attachment_bytes = excluded.max_attachment_bytes,
			can_broadcast = excluded.can_broadcast`,
		c.AgentID, c.MaxInboxMessages, c.MaxAttachmentBytes, c.CanBroadcast)
	if err != nil {
		return Internal(err)
	}
	return nil
}
