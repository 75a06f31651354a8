package core

import (
	"context"
	"testing"
	"time"
)

func TestMessageBMC_SendAndFetchInbox(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-message-project")
	agents := NewAgentBMC(mm)
	messages := NewMessageBMC(mm)

	sender, err := agents.Register(ctx, proj.ID, "OakRidge", "", "", "")
	if err != nil {
		t.Fatalf("Register sender: %v", err)
	}
	recipient, err := agents.Register(ctx, proj.ID, "MossHaven", "", "", "")
	if err != nil {
		t.Fatalf("Register recipient: %v", err)
	}

	msg, err := messages.Send(ctx, SendOptions{
		ProjectID: proj.ID, ProjectSlug: proj.Slug,
		SenderID: sender.ID, SenderName: sender.Name,
		To: []string{recipient.Name}, Subject: "hello", BodyMD: "hi there",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.ID == 0 {
		t.Fatal("expected a non-zero message id")
	}

	inbox, err := messages.FetchInbox(ctx, FetchInboxOptions{AgentID: recipient.ID, IncludeBodies: true})
	if err != nil {
		t.Fatalf("FetchInbox: %v", err)
	}
	if len(inbox) != 1 {
		t.Fatalf("inbox length = %d, want 1", len(inbox))
	}
	if inbox[0].Subject != "hello" || inbox[0].BodyMD != "hi there" {
		t.Fatalf("unexpected inbox entry: %+v", inbox[0])
	}

	if err := messages.MarkRead(ctx, msg.ID, recipient.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	afterRead, err := messages.FetchInbox(ctx, FetchInboxOptions{AgentID: recipient.ID})
	if err != nil {
		t.Fatalf("FetchInbox after read: %v", err)
	}
	if len(afterRead) != 1 || afterRead[0].ReadTS == nil {
		t.Fatalf("expected the message to be marked read: %+v", afterRead)
	}
}

func TestMessageBMC_Send_RejectsUnknownRecipient(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-message-unknown")
	agents := NewAgentBMC(mm)
	messages := NewMessageBMC(mm)

	sender, err := agents.Register(ctx, proj.ID, "OakRidge", "", "", "")
	if err != nil {
		t.Fatalf("Register sender: %v", err)
	}

	_, err = messages.Send(ctx, SendOptions{
		ProjectID: proj.ID, ProjectSlug: proj.Slug,
		SenderID: sender.ID, SenderName: sender.Name,
		To: []string{"Nobody"}, Subject: "hi", BodyMD: "x",
	})
	if err == nil {
		t.Fatal("expected send to an unknown recipient to fail")
	}
	if AsError(err).Kind != KindNotFound {
		t.Fatalf("kind = %v, want KindNotFound", AsError(err).Kind)
	}
}

func TestMessageBMC_Send_EnforcesInboxQuota(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-message-quota")
	agents := NewAgentBMC(mm)
	messages := NewMessageBMC(mm)
	caps := NewCapabilityBMC(mm)

	sender, err := agents.Register(ctx, proj.ID, "OakRidge", "", "", "")
	if err != nil {
		t.Fatalf("Register sender: %v", err)
	}
	recipient, err := agents.Register(ctx, proj.ID, "MossHaven", "", "", "")
	if err != nil {
		t.Fatalf("Register recipient: %v", err)
	}
	if err := caps.Set(ctx, AgentCapability{AgentID: recipient.ID, MaxInboxMessages: 1, MaxAttachmentBytes: DefaultAttachmentQuota}); err != nil {
		t.Fatalf("Set capability: %v", err)
	}

	send := func() error {
		_, err := messages.Send(ctx, SendOptions{
			ProjectID: proj.ID, ProjectSlug: proj.Slug,
			SenderID: sender.ID, SenderName: sender.Name,
			To: []string{recipient.Name}, Subject: "hi", BodyMD: "x",
		})
		return err
	}

	if err := send(); err != nil {
		t.Fatalf("first send within quota should succeed, got %v", err)
	}
	err = send()
	if err == nil {
		t.Fatal("expected the second send to exceed the 1-message quota")
	}
	if AsError(err).Kind != KindQuotaExceeded {
		t.Fatalf("kind = %v, want KindQuotaExceeded", AsError(err).Kind)
	}
}

func TestMessageBMC_Send_RejectsEmptyRecipients(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-message-norecipients")
	agents := NewAgentBMC(mm)
	messages := NewMessageBMC(mm)

	sender, err := agents.Register(ctx, proj.ID, "OakRidge", "", "", "")
	if err != nil {
		t.Fatalf("Register sender: %v", err)
	}

	_, err = messages.Send(ctx, SendOptions{
		ProjectID: proj.ID, ProjectSlug: proj.Slug,
		SenderID: sender.ID, SenderName: sender.Name,
		Subject: "no one home", BodyMD: "x",
	})
	if err == nil {
		t.Fatal("expected send with no to/cc/bcc to fail")
	}
	if AsError(err).Kind != KindValidation {
		t.Fatalf("kind = %v, want KindValidation", AsError(err).Kind)
	}
}

func TestMessageBMC_Acknowledge_RejectsNonDirectRecipient(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-message-ack-guard")
	agents := NewAgentBMC(mm)
	messages := NewMessageBMC(mm)

	sender, err := agents.Register(ctx, proj.ID, "OakRidge", "", "", "")
	if err != nil {
		t.Fatalf("Register sender: %v", err)
	}
	recipient, err := agents.Register(ctx, proj.ID, "MossHaven", "", "", "")
	if err != nil {
		t.Fatalf("Register recipient: %v", err)
	}
	cced, err := agents.Register(ctx, proj.ID, "SilverSummit", "", "", "")
	if err != nil {
		t.Fatalf("Register cced: %v", err)
	}

	noAck, err := messages.Send(ctx, SendOptions{
		ProjectID: proj.ID, ProjectSlug: proj.Slug,
		SenderID: sender.ID, SenderName: sender.Name,
		To: []string{recipient.Name}, Subject: "fyi", BodyMD: "x",
	})
	if err != nil {
		t.Fatalf("Send noAck: %v", err)
	}
	if err := messages.Acknowledge(ctx, noAck.ID, recipient.ID); err == nil {
		t.Fatal("expected acknowledging a non-ack_required message to fail")
	} else if AsError(err).Kind != KindAuthError {
		t.Fatalf("kind = %v, want KindAuthError", AsError(err).Kind)
	}

	needsAck, err := messages.Send(ctx, SendOptions{
		ProjectID: proj.ID, ProjectSlug: proj.Slug,
		SenderID: sender.ID, SenderName: sender.Name,
		To: []string{recipient.Name}, CC: []string{cced.Name},
		Subject: "please ack", BodyMD: "x", AckRequired: true,
	})
	if err != nil {
		t.Fatalf("Send needsAck: %v", err)
	}
	if err := messages.Acknowledge(ctx, needsAck.ID, cced.ID); err == nil {
		t.Fatal("expected a CC'd agent to be rejected as not a direct recipient")
	} else if AsError(err).Kind != KindAuthError {
		t.Fatalf("kind = %v, want KindAuthError", AsError(err).Kind)
	}
	if err := messages.Acknowledge(ctx, needsAck.ID, recipient.ID); err != nil {
		t.Fatalf("expected the direct recipient to ack successfully: %v", err)
	}
}

func TestMessageBMC_FindAbandonedTasks(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-message-abandoned")
	agents := NewAgentBMC(mm)
	messages := NewMessageBMC(mm)

	worker, err := agents.Register(ctx, proj.ID, "OakRidge", "", "", "")
	if err != nil {
		t.Fatalf("Register worker: %v", err)
	}
	reviewer, err := agents.Register(ctx, proj.ID, "MossHaven", "", "", "")
	if err != nil {
		t.Fatalf("Register reviewer: %v", err)
	}

	if _, err := messages.Send(ctx, SendOptions{
		ProjectID: proj.ID, ProjectSlug: proj.Slug, SenderID: worker.ID, SenderName: worker.Name,
		To: []string{reviewer.Name}, Subject: "[TASK_STARTED] build the thing", BodyMD: "x", ThreadID: "T-started",
	}); err != nil {
		t.Fatalf("Send started: %v", err)
	}
	if _, err := messages.Send(ctx, SendOptions{
		ProjectID: proj.ID, ProjectSlug: proj.Slug, SenderID: worker.ID, SenderName: worker.Name,
		To: []string{reviewer.Name}, Subject: "[COMPLETION] build the thing", BodyMD: "x", ThreadID: "T-completed",
	}); err != nil {
		t.Fatalf("Send completed: %v", err)
	}
	if _, err := messages.Send(ctx, SendOptions{
		ProjectID: proj.ID, ProjectSlug: proj.Slug, SenderID: worker.ID, SenderName: worker.Name,
		To: []string{reviewer.Name}, Subject: "[TASK_STARTED] review this", BodyMD: "x", ThreadID: "T-reviewing",
	}); err != nil {
		t.Fatalf("Send reviewing start: %v", err)
	}
	if _, err := messages.Send(ctx, SendOptions{
		ProjectID: proj.ID, ProjectSlug: proj.Slug, SenderID: reviewer.ID, SenderName: reviewer.Name,
		To: []string{worker.Name}, Subject: "[REVIEWING] review this", BodyMD: "x", ThreadID: "T-reviewing",
	}); err != nil {
		t.Fatalf("Send reviewing: %v", err)
	}

	abandoned, err := messages.FindAbandonedTasks(ctx, proj.ID, 0, time.Now().UTC())
	if err != nil {
		t.Fatalf("FindAbandonedTasks: %v", err)
	}
	if len(abandoned) != 2 {
		t.Fatalf("abandoned = %+v, want 2 (started + completed, not reviewing)", abandoned)
	}
	byThread := map[string]AbandonedThread{}
	for _, a := range abandoned {
		byThread[a.ThreadID] = a
	}
	if _, ok := byThread["T-started"]; !ok {
		t.Errorf("expected T-started to be flagged abandoned: %+v", abandoned)
	}
	if _, ok := byThread["T-completed"]; !ok {
		t.Errorf("expected T-completed to be flagged abandoned: %+v", abandoned)
	}
	if _, ok := byThread["T-reviewing"]; ok {
		t.Errorf("T-reviewing has moved to Reviewing and should not be flagged: %+v", abandoned)
	}
}

func TestMessageBMC_Reply_DefaultsThreadSubjectAndRecipient(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-message-reply")
	agents := NewAgentBMC(mm)
	messages := NewMessageBMC(mm)

	a, err := agents.Register(ctx, proj.ID, "OakRidge", "", "", "")
	if err != nil {
		t.Fatalf("Register a: %v", err)
	}
	b, err := agents.Register(ctx, proj.ID, "MossHaven", "", "", "")
	if err != nil {
		t.Fatalf("Register b: %v", err)
	}

	original, err := messages.Send(ctx, SendOptions{
		ProjectID: proj.ID, ProjectSlug: proj.Slug,
		SenderID: a.ID, SenderName: a.Name,
		To: []string{b.Name}, Subject: "status update", BodyMD: "x",
	})
	if err != nil {
		t.Fatalf("Send original: %v", err)
	}

	reply, err := messages.Reply(ctx, original, SendOptions{
		ProjectID: proj.ID, ProjectSlug: proj.Slug,
		SenderID: b.ID, SenderName: b.Name, BodyMD: "ack",
	})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply.Subject != "Re: status update" {
		t.Errorf("subject = %q, want %q", reply.Subject, "Re: status update")
	}
	if len(reply.To) != 1 || reply.To[0] != a.Name {
		t.Errorf("reply.To = %#v, want [%s]", reply.To, a.Name)
	}
	if reply.ThreadID == "" {
		t.Error("expected a non-empty thread id")
	}
}
