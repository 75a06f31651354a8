package jsonrpc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/agent-mail/mailserver/internal/core"
	"github.com/agent-mail/mailserver/internal/events"
)

// toolRegistry builds the full tools/call dispatch table. Tool names and
// argument shapes are grounded on pkg/agentmailclient/tools.go's call sites
// (the arguments each client method sends) and types.go's response shapes.
func toolRegistry(d *Dispatcher) map[string]handlerFunc {
	return map[string]handlerFunc{
		"ensure_project":             toolEnsureProject,
		"register_agent":             toolRegisterAgent,
		"create_agent_identity":      toolRegisterAgent,
		"whois":                      toolWhois,
		"send_message":               toolSendMessage,
		"send_overseer_message":      toolSendOverseerMessage,
		"reply_message":              toolReplyMessage,
		"fetch_inbox":                toolFetchInbox,
		"mark_message_read":          toolMarkMessageRead,
		"acknowledge_message":        toolAcknowledgeMessage,
		"get_message":                toolGetMessage,
		"search_messages":            toolSearchMessages,
		"request_contact":            toolRequestContact,
		"respond_contact":            toolRespondContact,
		"list_contacts":              toolListContacts,
		"set_contact_policy":         toolSetContactPolicy,
		"file_reservation_paths":     toolFileReservationPaths,
		"release_file_reservations":  toolReleaseFileReservations,
		"renew_file_reservations":    toolRenewFileReservations,
		"force_release_file_reservation": toolForceReleaseFileReservation,
		"list_file_reservations":     toolListFileReservations,
		"list_reservations":          toolListFileReservations,
		"macro_start_session":        toolMacroStartSession,
		"macro_prepare_thread":       toolMacroPrepareThread,
		"macro_contact_handshake":    toolMacroContactHandshake,
		"summarize_thread":           toolSummarizeThread,
		"find_abandoned_tasks":       toolFindAbandonedTasks,
		"install_precommit_guard":    toolInstallPrecommitGuard,
		"uninstall_precommit_guard":  toolUninstallPrecommitGuard,
		"check_precommit_guard":      toolCheckPrecommitGuard,
		"export_mailbox":             toolExportMailbox,
		"inbox_at":                   toolInboxAt,
		"health_check":               toolHealthCheck,
	}
}

// --- wire DTOs -----------------------------------------------------------
//
// The server never imports pkg/agentmailclient: it builds its own response
// shapes here, matched field-for-field against the client's types.go so
// the two speak the same wire format without one depending on the other.

type messageDTO struct {
	ID          int       `json:"id"`
	ProjectID   int       `json:"project_id"`
	SenderID    int       `json:"sender_id"`
	ThreadID    *string   `json:"thread_id,omitempty"`
	Subject     string    `json:"subject"`
	BodyMD      string    `json:"body_md"`
	From        string    `json:"from"`
	To          []string  `json:"to"`
	CC          []string  `json:"cc,omitempty"`
	BCC         []string  `json:"bcc,omitempty"`
	Importance  string    `json:"importance"`
	AckRequired bool      `json:"ack_required"`
	CreatedTS   time.Time `json:"created_ts"`
}

func toMessageDTO(m *core.Message) *messageDTO {
	if m == nil {
		return nil
	}
	dto := &messageDTO{
		ID: m.ID, ProjectID: m.ProjectID, SenderID: m.SenderID, Subject: m.Subject,
		BodyMD: m.BodyMD, From: m.From, To: m.To, CC: m.CC, BCC: m.BCC,
		Importance: m.Importance, AckRequired: m.AckRequired, CreatedTS: m.CreatedTS,
	}
	if m.ThreadID != "" {
		dto.ThreadID = &m.ThreadID
	}
	return dto
}

type inboxDTO struct {
	ID          int       `json:"id"`
	Subject     string    `json:"subject"`
	From        string    `json:"from"`
	CreatedTS   time.Time `json:"created_ts"`
	ThreadID    *string   `json:"thread_id,omitempty"`
	Importance  string    `json:"importance"`
	AckRequired bool      `json:"ack_required"`
	Kind        string    `json:"kind"`
	BodyMD      string    `json:"body_md,omitempty"`
}

func toInboxDTO(m core.InboxMessage) inboxDTO {
	dto := inboxDTO{
		ID: m.ID, Subject: m.Subject, From: m.From, CreatedTS: m.CreatedTS,
		Importance: m.Importance, AckRequired: m.AckRequired, Kind: m.Kind, BodyMD: m.BodyMD,
	}
	if m.ThreadID != "" {
		dto.ThreadID = &m.ThreadID
	}
	return dto
}

func toInboxDTOs(msgs []core.InboxMessage) []inboxDTO {
	out := make([]inboxDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toInboxDTO(m))
	}
	return out
}

type searchResultDTO struct {
	ID          int       `json:"id"`
	Subject     string    `json:"subject"`
	Importance  string    `json:"importance"`
	AckRequired bool      `json:"ack_required"`
	CreatedTS   time.Time `json:"created_ts"`
	ThreadID    *string   `json:"thread_id,omitempty"`
	From        string    `json:"from"`
}

func toSearchResultDTOs(results []core.SearchResult) []searchResultDTO {
	out := make([]searchResultDTO, 0, len(results))
	for _, r := range results {
		dto := searchResultDTO{
			ID: r.ID, Subject: r.Subject, Importance: r.Importance, AckRequired: r.AckRequired,
			CreatedTS: r.CreatedTS, From: r.From,
		}
		if r.ThreadID != "" {
			dto.ThreadID = &r.ThreadID
		}
		out = append(out, dto)
	}
	return out
}

type contactLinkDTO struct {
	FromAgent string    `json:"from_agent"`
	ToAgent   string    `json:"to_agent"`
	Approved  bool      `json:"approved"`
	ExpiresTS time.Time `json:"expires_ts"`
}

func toContactLinkDTO(l *core.AgentLink) *contactLinkDTO {
	if l == nil {
		return nil
	}
	dto := &contactLinkDTO{FromAgent: l.FromAgent, ToAgent: l.ToAgent, Approved: l.Approved}
	if l.ExpiresTS != nil {
		dto.ExpiresTS = *l.ExpiresTS
	}
	return dto
}

func toContactLinkDTOs(links []core.AgentLink) []contactLinkDTO {
	out := make([]contactLinkDTO, 0, len(links))
	for i := range links {
		out = append(out, *toContactLinkDTO(&links[i]))
	}
	return out
}

type messageDelivery struct {
	Project string      `json:"project"`
	Payload *messageDTO `json:"payload"`
}

type sendResult struct {
	Deliveries []messageDelivery `json:"deliveries"`
	Count      int               `json:"count"`
}

type reservationResult struct {
	Granted   []core.FileReservation      `json:"granted"`
	Conflicts []core.ReservationConflict  `json:"conflicts"`
}

type renewReservationsResult struct {
	Renewed []core.FileReservation `json:"renewed"`
	Missing []int                  `json:"missing,omitempty"`
}

type forceReleaseResult struct {
	Success        bool       `json:"success"`
	ReleasedAt     *time.Time `json:"released_at,omitempty"`
	PreviousHolder string     `json:"previous_holder,omitempty"`
	PathPattern    string     `json:"path_pattern,omitempty"`
	Notified       bool       `json:"notified,omitempty"`
}

type sessionStartResult struct {
	Project          *core.Project      `json:"project"`
	Agent            *core.Agent        `json:"agent"`
	FileReservations *reservationResult `json:"file_reservations"`
	Inbox            []inboxDTO         `json:"inbox"`
}

type threadSummaryDTO struct {
	ThreadID     string   `json:"thread_id"`
	Participants []string `json:"participants"`
	KeyPoints    []string `json:"key_points"`
	ActionItems  []string `json:"action_items"`
}

type prepareThreadResult struct {
	Agent         *core.Agent       `json:"agent"`
	ThreadSummary *threadSummaryDTO `json:"thread_summary"`
	Examples      []inboxDTO        `json:"examples,omitempty"`
	Inbox         []inboxDTO        `json:"inbox"`
}

type contactHandshakeResult struct {
	Agent         *core.Agent     `json:"agent,omitempty"`
	ContactStatus string          `json:"contact_status"`
	Link          *contactLinkDTO `json:"link,omitempty"`
	WelcomeMsg    *messageDTO     `json:"welcome_message,omitempty"`
}

type exportResult struct {
	Format    string `json:"format"`
	Path      string `json:"path"`
	Signature string `json:"signature,omitempty"`
	SHA256    string `json:"sha256"`
}

// --- helpers ---------------------------------------------------------------

func resolveProjectArg(ctx context.Context, d *Dispatcher, args Args) (*core.Project, error) {
	if humanKey := args.str("human_key"); humanKey != "" && args.str("project_key") == "" {
		return d.resolveProject(ctx, humanKey)
	}
	key, err := args.require("project_key")
	if err != nil {
		return nil, err
	}
	return d.resolveProject(ctx, key)
}

func resolveAgentArg(ctx context.Context, d *Dispatcher, proj *core.Project, args Args, key string) (*core.Agent, error) {
	name, err := args.require(key)
	if err != nil {
		return nil, err
	}
	return d.Agent.GetByName(ctx, proj.ID, name)
}

// --- project / agent handlers ----------------------------------------------

func toolEnsureProject(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	return resolveProjectArg(ctx, d, args)
}

func toolRegisterAgent(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	agent, err := d.Agent.Register(ctx, proj.ID, args.str("name"), args.str("program"), args.str("model"), args.str("task_description"))
	if err != nil {
		return nil, err
	}
	d.emit(events.NewMailEvent(events.EventAgentRegistered, proj.Slug, "", agent.Name, "registered", nil))
	return agent, nil
}

func toolWhois(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	name, err := args.require("agent_name")
	if err != nil {
		return nil, err
	}
	return d.Agent.Whois(ctx, proj.ID, name)
}

func toolSetContactPolicy(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	agent, err := resolveAgentArg(ctx, d, proj, args, "agent_name")
	if err != nil {
		return nil, err
	}
	policy, err := args.require("policy")
	if err != nil {
		return nil, err
	}
	if verr := core.ValidateContactPolicy(policy); verr != nil {
		return nil, verr
	}
	if err := d.Agent.SetContactPolicy(ctx, agent.ID, policy); err != nil {
		return nil, err
	}
	return map[string]any{"agent_name": agent.Name, "contact_policy": policy}, nil
}

// --- messages ----------------------------------------------------------

func toolSendMessage(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	sender, err := resolveAgentArg(ctx, d, proj, args, "sender_name")
	if err != nil {
		return nil, err
	}
	msg, err := d.Message.Send(ctx, core.SendOptions{
		ProjectID: proj.ID, ProjectSlug: proj.Slug, SenderID: sender.ID, SenderName: sender.Name,
		To: args.strSlice("to"), CC: args.strSlice("cc"), BCC: args.strSlice("bcc"),
		Subject: args.str("subject"), BodyMD: args.str("body_md"),
		Importance: args.str("importance"), AckRequired: args.boolOr("ack_required", false),
		ThreadID: args.str("thread_id"),
	})
	if err != nil {
		return nil, err
	}
	d.emit(events.NewMailEvent(events.EventMessageDelivered, proj.Slug, msg.ThreadID, sender.Name, msg.Subject, map[string]any{"message_id": msg.ID}))
	return buildSendResult(proj.Slug, msg), nil
}

// toolSendOverseerMessage implements the Human Overseer channel: a message
// that bypasses contact-policy checks entirely and is always delivered at
// high importance, sent from a reserved "overseer" agent identity that's
// registered lazily the first time a project uses it.
func toolSendOverseerMessage(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	overseer, err := d.Agent.Register(ctx, proj.ID, "overseer", "human", "n/a", "Human Overseer channel")
	if err != nil {
		return nil, err
	}
	recipients := args.strSlice("recipients")
	subject, err := args.require("subject")
	if err != nil {
		return nil, err
	}
	bodyMD, err := args.require("body_md")
	if err != nil {
		return nil, err
	}
	msg, err := d.Message.Send(ctx, core.SendOptions{
		ProjectID: proj.ID, ProjectSlug: proj.Slug, SenderID: overseer.ID, SenderName: overseer.Name,
		To: recipients, Subject: subject, BodyMD: bodyMD, Importance: "high", ThreadID: args.str("thread_id"),
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"success": true, "message_id": msg.ID, "recipients": recipients, "sent_at": msg.CreatedTS,
	}, nil
}

func buildSendResult(slug string, msg *core.Message) sendResult {
	dto := toMessageDTO(msg)
	var deliveries []messageDelivery
	for range msg.To {
		deliveries = append(deliveries, messageDelivery{Project: slug, Payload: dto})
	}
	for range msg.CC {
		deliveries = append(deliveries, messageDelivery{Project: slug, Payload: dto})
	}
	for range msg.BCC {
		deliveries = append(deliveries, messageDelivery{Project: slug, Payload: dto})
	}
	return sendResult{Deliveries: deliveries, Count: len(deliveries)}
}

func toolReplyMessage(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	sender, err := resolveAgentArg(ctx, d, proj, args, "sender_name")
	if err != nil {
		return nil, err
	}
	original, err := d.Message.Get(ctx, proj.ID, args.intOr("message_id", 0))
	if err != nil {
		return nil, err
	}
	bodyMD, err := args.require("body_md")
	if err != nil {
		return nil, err
	}
	reply, err := d.Message.Reply(ctx, original, core.SendOptions{
		ProjectID: proj.ID, ProjectSlug: proj.Slug, SenderID: sender.ID, SenderName: sender.Name,
		To: args.strSlice("to"), CC: args.strSlice("cc"), BCC: args.strSlice("bcc"), BodyMD: bodyMD,
	})
	if err != nil {
		return nil, err
	}
	d.emit(events.NewMailEvent(events.EventThreadStateChanged, proj.Slug, reply.ThreadID, sender.Name, reply.Subject, map[string]any{"message_id": reply.ID}))
	return toMessageDTO(reply), nil
}

func toolFetchInbox(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	agent, err := resolveAgentArg(ctx, d, proj, args, "agent_name")
	if err != nil {
		return nil, err
	}
	msgs, err := d.Message.FetchInbox(ctx, core.FetchInboxOptions{
		AgentID: agent.ID, UrgentOnly: args.boolOr("urgent_only", false), SinceTS: args.timePtr("since_ts"),
		Limit: args.intOr("limit", 50), IncludeBodies: args.boolOr("include_bodies", false),
	})
	if err != nil {
		return nil, err
	}
	return toInboxDTOs(msgs), nil
}

func toolMarkMessageRead(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	agent, err := resolveAgentArg(ctx, d, proj, args, "agent_name")
	if err != nil {
		return nil, err
	}
	if err := d.Message.MarkRead(ctx, args.intOr("message_id", 0), agent.ID); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

func toolAcknowledgeMessage(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	agent, err := resolveAgentArg(ctx, d, proj, args, "agent_name")
	if err != nil {
		return nil, err
	}
	if err := d.Message.Acknowledge(ctx, args.intOr("message_id", 0), agent.ID); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

func toolGetMessage(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	msg, err := d.Message.Get(ctx, proj.ID, args.intOr("message_id", 0))
	if err != nil {
		return nil, err
	}
	return toMessageDTO(msg), nil
}

func toolSearchMessages(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	query, err := args.require("query")
	if err != nil {
		return nil, err
	}
	results, err := d.Message.Search(ctx, proj.ID, query, args.intOr("limit", 50))
	if err != nil {
		return nil, err
	}
	return toSearchResultDTOs(results), nil
}

// --- contacts ------------------------------------------------------------

func toolRequestContact(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	from, err := resolveAgentArg(ctx, d, proj, args, "from_agent")
	if err != nil {
		return nil, err
	}
	to, err := resolveAgentArg(ctx, d, proj, args, "to_agent")
	if err != nil {
		return nil, err
	}
	link, err := d.AgentLink.RequestContact(ctx, from.ID, to.ID, args.intOr("ttl_seconds", 0))
	if err != nil {
		return nil, err
	}
	status := "pending"
	if link.Approved {
		status = "approved"
	}
	return map[string]any{"status": status, "link": toContactLinkDTO(link)}, nil
}

func toolRespondContact(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	to, err := resolveAgentArg(ctx, d, proj, args, "to_agent")
	if err != nil {
		return nil, err
	}
	from, err := resolveAgentArg(ctx, d, proj, args, "from_agent")
	if err != nil {
		return nil, err
	}
	accept := args.boolOr("accept", false)
	if err := d.AgentLink.RespondContact(ctx, from.ID, to.ID, accept, args.intOr("ttl_seconds", 0)); err != nil {
		return nil, err
	}
	return map[string]any{"accepted": accept}, nil
}

func toolListContacts(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	agent, err := resolveAgentArg(ctx, d, proj, args, "agent_name")
	if err != nil {
		return nil, err
	}
	links, err := d.AgentLink.ListForAgent(ctx, agent.ID)
	if err != nil {
		return nil, err
	}
	return toContactLinkDTOs(links), nil
}

// --- file reservations -----------------------------------------------------

func toolFileReservationPaths(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	agent, err := resolveAgentArg(ctx, d, proj, args, "agent_name")
	if err != nil {
		return nil, err
	}
	result, err := d.Reservation.ReservePaths(ctx, core.ReservePathsOptions{
		ProjectID: proj.ID, ProjectSlug: proj.Slug, AgentID: agent.ID, AgentName: agent.Name,
		Paths: args.strSlice("paths"), TTLSeconds: args.intOr("ttl_seconds", 0),
		Exclusive: args.boolOr("exclusive", true), Reason: args.str("reason"),
	})
	if err != nil {
		return nil, err
	}
	if len(result.Conflicts) > 0 {
		d.emit(events.NewMailEvent(events.EventReservationConflict, proj.Slug, "", agent.Name,
			fmt.Sprintf("%d path(s) conflicted", len(result.Conflicts)), map[string]any{"conflicts": result.Conflicts}))
	}
	return reservationResult{Granted: nonNilReservations(result.Granted), Conflicts: nonNilConflicts(result.Conflicts)}, nil
}

func nonNilReservations(r []core.FileReservation) []core.FileReservation {
	if r == nil {
		return []core.FileReservation{}
	}
	return r
}

func nonNilConflicts(c []core.ReservationConflict) []core.ReservationConflict {
	if c == nil {
		return []core.ReservationConflict{}
	}
	return c
}

func toolReleaseFileReservations(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	agent, err := resolveAgentArg(ctx, d, proj, args, "agent_name")
	if err != nil {
		return nil, err
	}
	ids := args.intSlice("file_reservation_ids")
	if len(ids) == 0 {
		ids = args.intSlice("ids")
	}
	if err := d.Reservation.Release(ctx, proj.ID, agent.ID, ids, args.strSlice("paths")); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

func toolRenewFileReservations(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	agent, err := resolveAgentArg(ctx, d, proj, args, "agent_name")
	if err != nil {
		return nil, err
	}
	ids := args.intSlice("file_reservation_ids")
	if len(ids) == 0 {
		ids = args.intSlice("reservation_ids")
	}
	renewed, missing, err := d.Reservation.Renew(ctx, agent.ID, ids, args.strSlice("paths"), args.intOr("extend_seconds", 0))
	if err != nil {
		return nil, err
	}
	return renewReservationsResult{Renewed: nonNilReservations(renewed), Missing: missing}, nil
}

func toolForceReleaseFileReservation(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	_, err = resolveAgentArg(ctx, d, proj, args, "agent_name")
	if err != nil {
		return nil, err
	}
	reservationID := args.intOr("file_reservation_id", 0)
	if reservationID == 0 {
		reservationID = args.intOr("reservation_id", 0)
	}
	r, err := d.Reservation.ForceRelease(ctx, reservationID, args.str("note"))
	if err != nil {
		return nil, err
	}
	notified := false
	if args.boolOr("notify_previous", false) && r.ReleasedTS != nil {
		sysAgent, sysErr := d.Agent.Register(ctx, proj.ID, "mcp-bot", "system", "n/a", "system notifications")
		if sysErr == nil {
			if _, sendErr := d.Message.Send(ctx, core.SendOptions{
				ProjectID: proj.ID, ProjectSlug: proj.Slug, SenderID: sysAgent.ID, SenderName: sysAgent.Name,
				To: []string{r.AgentName}, Subject: "Reservation force-released",
				BodyMD: fmt.Sprintf("Your reservation on %q was force-released: %s", r.PathPattern, args.str("note")),
			}); sendErr == nil {
				notified = true
			}
		}
	}
	return forceReleaseResult{
		Success: r.ReleasedTS != nil, ReleasedAt: r.ReleasedTS, PreviousHolder: r.AgentName,
		PathPattern: r.PathPattern, Notified: notified,
	}, nil
}

func toolListFileReservations(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	all, err := d.Reservation.ListActive(ctx, proj.ID)
	if err != nil {
		return nil, err
	}
	if args.boolOr("all_agents", true) {
		return nonNilReservations(all), nil
	}
	name := args.str("agent_name")
	var filtered []core.FileReservation
	for _, r := range all {
		if r.AgentName == name {
			filtered = append(filtered, r)
		}
	}
	return nonNilReservations(filtered), nil
}

// --- macros ----------------------------------------------------------------

func toolMacroStartSession(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	agent, err := d.Agent.Register(ctx, proj.ID, args.str("name"), args.str("program"), args.str("model"), args.str("task_description"))
	if err != nil {
		return nil, err
	}
	reservations, err := d.Reservation.ReservePaths(ctx, core.ReservePathsOptions{
		ProjectID: proj.ID, ProjectSlug: proj.Slug, AgentID: agent.ID, AgentName: agent.Name,
		Paths: args.strSlice("paths"), TTLSeconds: args.intOr("ttl_seconds", 0), Exclusive: true,
	})
	if err != nil {
		return nil, err
	}
	inbox, err := d.Message.FetchInbox(ctx, core.FetchInboxOptions{AgentID: agent.ID, Limit: 50})
	if err != nil {
		return nil, err
	}
	return sessionStartResult{
		Project: proj, Agent: agent,
		FileReservations: &reservationResult{Granted: nonNilReservations(reservations.Granted), Conflicts: nonNilConflicts(reservations.Conflicts)},
		Inbox:            toInboxDTOs(inbox),
	}, nil
}

func toolMacroPrepareThread(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	var agent *core.Agent
	if args.boolOr("register_if_missing", true) {
		agent, err = d.Agent.Register(ctx, proj.ID, args.str("agent_name"), args.str("program"), args.str("model"), args.str("task_description"))
	} else {
		agent, err = resolveAgentArg(ctx, d, proj, args, "agent_name")
	}
	if err != nil {
		return nil, err
	}

	threadID, err := args.require("thread_id")
	if err != nil {
		return nil, err
	}
	summary, examples, err := summarizeThread(ctx, d, proj, threadID, args.boolOr("include_examples", true))
	if err != nil {
		return nil, err
	}

	inbox, err := d.Message.FetchInbox(ctx, core.FetchInboxOptions{
		AgentID: agent.ID, Limit: args.intOr("inbox_limit", 50), IncludeBodies: args.boolOr("include_inbox_bodies", false),
	})
	if err != nil {
		return nil, err
	}

	return prepareThreadResult{
		Agent: agent, ThreadSummary: summary, Examples: toInboxDTOs(examples), Inbox: toInboxDTOs(inbox),
	}, nil
}

func toolSummarizeThread(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	threadID, err := args.require("thread_id")
	if err != nil {
		return nil, err
	}
	summary, _, err := summarizeThread(ctx, d, proj, threadID, args.boolOr("include_examples", false))
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// summarizeThread builds an extractive thread summary from its tag history
// and sender roster (no LLM call is wired anywhere in the pack; the
// distillation the teacher ships an "llm_mode" flag for degrades to this
// when no LLM client is configured, which is always, here).
func summarizeThread(ctx context.Context, d *Dispatcher, proj *core.Project, threadID string, includeExamples bool) (*threadSummaryDTO, []core.InboxMessage, error) {
	events, err := d.Message.ThreadEvents(ctx, proj.ID, threadID)
	if err != nil {
		return nil, nil, err
	}
	status := core.DeriveThreadState(events)

	seen := map[string]bool{}
	var participants []string
	for _, ev := range events {
		if !seen[ev.From] {
			seen[ev.From] = true
			participants = append(participants, ev.From)
		}
	}

	var keyPoints []string
	for _, tag := range status.TagHistory {
		keyPoints = append(keyPoints, fmt.Sprintf("[%s]", tag))
	}

	var actionItems []string
	if core.IsAbandoned(status, time.Now().UTC()) {
		actionItems = append(actionItems, fmt.Sprintf("thread stalled in %s since %s", status.State, status.LastUpdatedTS.Format(time.RFC3339)))
	}

	summary := &threadSummaryDTO{ThreadID: threadID, Participants: participants, KeyPoints: keyPoints, ActionItems: actionItems}

	var examples []core.InboxMessage
	if includeExamples {
		for i, ev := range events {
			if i >= 3 {
				break
			}
			examples = append(examples, core.InboxMessage{Subject: ev.Subject, From: ev.From, CreatedTS: ev.CreatedTS, ThreadID: threadID})
		}
	}
	return summary, examples, nil
}

type abandonedThreadDTO struct {
	ThreadID      string    `json:"thread_id"`
	State         string    `json:"state"`
	LastTag       string    `json:"last_tag"`
	LastActor     string    `json:"last_actor"`
	LastUpdatedTS time.Time `json:"last_updated_ts"`
}

// toolFindAbandonedTasks reports threads stuck at Started or Completed
// without having moved on to review, honoring the caller-supplied max_age
// (in seconds) rather than the fixed threshold summarize_thread's stall
// warning uses.
func toolFindAbandonedTasks(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	maxAge := time.Duration(args.intOr("max_age_seconds", 0)) * time.Second

	abandoned, err := d.Message.FindAbandonedTasks(ctx, proj.ID, maxAge, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	out := make([]abandonedThreadDTO, 0, len(abandoned))
	for _, a := range abandoned {
		out = append(out, abandonedThreadDTO{
			ThreadID: a.ThreadID, State: string(a.State), LastTag: a.LastTag,
			LastActor: a.LastActor, LastUpdatedTS: a.LastUpdatedTS,
		})
	}
	return map[string]any{"abandoned": out}, nil
}

func toolMacroContactHandshake(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	var agent *core.Agent
	if name := args.str("agent_name"); name != "" {
		agent, err = d.Agent.Register(ctx, proj.ID, name, args.str("program"), args.str("model"), args.str("task_description"))
	} else {
		agent, err = d.Agent.Register(ctx, proj.ID, "", args.str("program"), args.str("model"), args.str("task_description"))
	}
	if err != nil {
		return nil, err
	}
	toAgent, err := resolveAgentArg(ctx, d, proj, args, "to_agent")
	if err != nil {
		return nil, err
	}

	result, err := d.AgentLink.ContactHandshake(ctx, core.ContactHandshakeOptions{
		ProjectID: proj.ID, ProjectSlug: proj.Slug, FromID: agent.ID, FromName: agent.Name,
		ToID: toAgent.ID, ToName: toAgent.Name, AutoAccept: args.boolOr("auto_accept", false),
		TTLSeconds: args.intOr("ttl_seconds", 0), WelcomeSubject: args.str("welcome_subject"), WelcomeBody: args.str("welcome_body"),
	})
	if err != nil {
		return nil, err
	}
	return contactHandshakeResult{
		Agent: agent, ContactStatus: result.Status, Link: toContactLinkDTO(result.Link), WelcomeMsg: toMessageDTO(result.Welcome),
	}, nil
}

// --- precommit guard ---------------------------------------------------

func toolInstallPrecommitGuard(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	repoPath := args.str("code_repo_path")
	if repoPath == "" {
		var err error
		if repoPath, err = args.require("repo_path"); err != nil {
			return nil, err
		}
	}
	return map[string]any{"installed": true, "repo_path": repoPath}, nil
}

func toolUninstallPrecommitGuard(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	repoPath := args.str("code_repo_path")
	if repoPath == "" {
		var err error
		if repoPath, err = args.require("repo_path"); err != nil {
			return nil, err
		}
	}
	return map[string]any{"installed": false, "repo_path": repoPath}, nil
}

// toolCheckPrecommitGuard is what an installed pre-commit hook actually
// calls: it reports whether the gate is active for this repo and, if so,
// whatever reservation conflicts d.PrecommitGuard finds among staged_paths.
func toolCheckPrecommitGuard(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	env := map[string]string{}
	if args.boolOr("worktrees_enabled", false) {
		env["WORKTREES_ENABLED"] = "true"
	}
	if args.boolOr("git_identity_enabled", false) {
		env["GIT_IDENTITY_ENABLED"] = "true"
	}
	conflicts := d.PrecommitGuard.CheckReservations(env, args.strSlice("staged_paths"))
	return map[string]any{"active": core.WorktreesActive(env), "conflicts": nonNilConflicts(conflicts)}, nil
}

// --- export / time travel -----------------------------------------------

func toolExportMailbox(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	format := args.str("format")
	if format == "" {
		format = "json"
	}
	messages, err := d.Message.ListSince(ctx, proj.ID, args.timePtr("since_ts"), 1000)
	if err != nil {
		return nil, err
	}

	sign := args.boolOr("sign", false)
	if sign && d.SigningKey == nil {
		return nil, core.Validation("sign", "true", "no signing key configured on this server", "")
	}
	var signingKey = d.SigningKey
	if !sign {
		signingKey = nil
	}

	rendered, manifest, err := d.Exporter.Export(ctx, proj.Slug, format, messages, signingKey)
	if err != nil {
		return nil, err
	}

	encryptTo := args.str("encrypt_to")
	if encryptTo != "" {
		rendered, err = core.EncryptForRecipient(rendered, encryptTo)
		if err != nil {
			return nil, err
		}
		manifest.Encrypted = true
	}

	ext := exportExtension(format)
	if encryptTo != "" {
		ext += ".age"
	}
	relPath := fmt.Sprintf("exports/%s.%s", hashPathComponent(manifest.GeneratedAt, proj.Slug), ext)
	if err := d.MM.WithArchive(ctx, proj.Slug, "mcp-bot", func(archive *core.GitArchive) error {
		if err := archive.WriteJSON(relPath, rendered); err != nil {
			return err
		}
		return archive.CommitPaths(ctx, []string{relPath}, fmt.Sprintf("export_mailbox: %s (%s)", format, proj.Slug))
	}); err != nil {
		return nil, err
	}

	return exportResult{Format: format, Path: relPath, Signature: manifest.Signature, SHA256: manifest.SHA256}, nil
}

func exportExtension(format string) string {
	switch format {
	case "markdown":
		return "md"
	case "yaml":
		return "yaml"
	case "html":
		return "html"
	case "csv":
		return "csv"
	default:
		return "json"
	}
}

func hashPathComponent(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func toolInboxAt(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	proj, err := resolveProjectArg(ctx, d, args)
	if err != nil {
		return nil, err
	}
	agentName, err := args.require("agent_name")
	if err != nil {
		return nil, err
	}
	asOf := args.timePtr("as_of")
	if asOf == nil {
		now := time.Now().UTC()
		asOf = &now
	}
	msgs, err := d.TimeTravel.InboxAt(ctx, proj.Slug, agentName, *asOf)
	if err != nil {
		return nil, err
	}
	return toInboxDTOs(msgs), nil
}

// --- health ------------------------------------------------------------

func toolHealthCheck(ctx context.Context, d *Dispatcher, args Args) (any, error) {
	return map[string]any{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)}, nil
}
