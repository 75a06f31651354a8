package core

import (
	"context"
	"testing"
)

func TestAttachmentBMC_AttachAndReadBack(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-attachment-roundtrip")
	agents := NewAgentBMC(mm)
	messages := NewMessageBMC(mm)
	attachments := NewAttachmentBMC(mm)

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
		To: []string{recipient.Name}, Subject: "build log", BodyMD: "see attached",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	content := []byte("build succeeded in 42s")
	att, err := attachments.Attach(ctx, proj.Slug, sender.Name, msg.ID, "build.log", "text/plain", content, DefaultAttachmentQuota)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if att.SizeBytes != int64(len(content)) || att.Filename != "build.log" {
		t.Fatalf("unexpected attachment row: %+v", att)
	}

	list, err := attachments.ListForMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("ListForMessage: %v", err)
	}
	if len(list) != 1 || list[0].SHA256 != att.SHA256 {
		t.Fatalf("unexpected list result: %+v", list)
	}

	got, err := attachments.Get(ctx, att.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SHA256 != att.SHA256 {
		t.Fatalf("Get returned %+v, want sha256 %q", got, att.SHA256)
	}

	readBack, err := attachments.Content(ctx, proj.Slug, att)
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	if string(readBack) != string(content) {
		t.Fatalf("Content() = %q, want %q", readBack, content)
	}
}

func TestAttachmentBMC_Attach_RejectsOverQuota(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-attachment-quota")
	agents := NewAgentBMC(mm)
	messages := NewMessageBMC(mm)
	attachments := NewAttachmentBMC(mm)

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
		To: []string{recipient.Name}, Subject: "x", BodyMD: "x",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	_, err = attachments.Attach(ctx, proj.Slug, sender.Name, msg.ID, "big.bin", "application/octet-stream", []byte("01234567890123456789"), 10)
	if err == nil {
		t.Fatal("expected an over-quota attachment to be rejected")
	}
	if AsError(err).Kind != KindQuotaExceeded {
		t.Fatalf("kind = %v, want KindQuotaExceeded", AsError(err).Kind)
	}
}

func TestAttachmentBMC_Get_NotFound(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	attachments := NewAttachmentBMC(mm)

	_, err := attachments.Get(ctx, 999)
	if err == nil {
		t.Fatal("expected not-found for a missing attachment id")
	}
	if AsError(err).Kind != KindNotFound {
		t.Fatalf("kind = %v, want KindNotFound", AsError(err).Kind)
	}
}
