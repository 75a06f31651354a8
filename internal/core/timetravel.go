package core

import (
	"context"
	"encoding/json"
	"time"
)

// TimeTravelReader reconstructs a historical inbox view by walking the
// project's Git archive history instead of the live relational store.
type TimeTravelReader struct {
	mm *ModelManager
}

func NewTimeTravelReader(mm *ModelManager) *TimeTravelReader { return &TimeTravelReader{mm: mm} }

// InboxAt returns agentName's inbox as mailbox.json recorded it at the last
// commit at or before asOf, filtered to the messages addressed to
// agentName. Reads are unauthenticated with respect to the live
// relational store entirely; the archive is the only source of truth here.
func (r *TimeTravelReader) InboxAt(ctx context.Context, slug, agentName string, asOf time.Time) ([]InboxMessage, error) {
	archive, err := OpenGitArchive(ctx, r.mm.ProjectArchiveDir(slug))
	if err != nil {
		return nil, err
	}

	oid, err := archive.FindCommitBefore(ctx, asOf)
	if err != nil {
		return nil, err
	}

	data, err := archive.ShowFileAt(ctx, oid, "mailbox.json")
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var messages []Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, Internal(err)
	}

	var out []InboxMessage
	for _, m := range messages {
		kind := recipientKind(m, agentName)
		if kind == "" {
			continue
		}
		out = append(out, InboxMessage{
			ID: m.ID, Subject: m.Subject, From: m.From, ThreadID: m.ThreadID,
			Importance: m.Importance, AckRequired: m.AckRequired, Kind: kind,
			CreatedTS: m.CreatedTS, BodyMD: m.BodyMD,
		})
	}
	return out, nil
}

func recipientKind(m Message, agentName string) string {
	for _, n := range m.To {
		if n == agentName {
			return "to"
		}
	}
	for _, n := range m.CC {
		if n == agentName {
			return "cc"
		}
	}
	for _, n := range m.BCC {
		if n == agentName {
			return "bcc"
		}
	}
	return ""
}
