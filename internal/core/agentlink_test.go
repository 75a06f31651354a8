package core

import (
	"context"
	"testing"
)

func TestAgentLinkBMC_RequestContact_PendingByDefault(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-link-pending")
	agents := NewAgentBMC(mm)
	links := NewAgentLinkBMC(mm)

	from, err := agents.Register(ctx, proj.ID, "OakRidge", "", "", "")
	if err != nil {
		t.Fatalf("Register from: %v", err)
	}
	to, err := agents.Register(ctx, proj.ID, "MossHaven", "", "", "")
	if err != nil {
		t.Fatalf("Register to: %v", err)
	}

	link, err := links.RequestContact(ctx, from.ID, to.ID, 0)
	if err != nil {
		t.Fatalf("RequestContact: %v", err)
	}
	if link.Approved {
		t.Fatal("expected a pending link by default")
	}

	approved, err := links.IsApproved(ctx, from.ID, to.ID)
	if err != nil {
		t.Fatalf("IsApproved: %v", err)
	}
	if approved {
		t.Fatal("a pending link should not be reported as approved")
	}
}

func TestAgentLinkBMC_RequestContact_AutoAcceptsImmediately(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-link-autoaccept")
	agents := NewAgentBMC(mm)
	links := NewAgentLinkBMC(mm)

	from, err := agents.Register(ctx, proj.ID, "OakRidge", "", "", "")
	if err != nil {
		t.Fatalf("Register from: %v", err)
	}
	to, err := agents.Register(ctx, proj.ID, "MossHaven", "", "", "")
	if err != nil {
		t.Fatalf("Register to: %v", err)
	}
	if err := agents.SetContactPolicy(ctx, to.ID, "auto_accept"); err != nil {
		t.Fatalf("SetContactPolicy: %v", err)
	}

	link, err := links.RequestContact(ctx, from.ID, to.ID, 0)
	if err != nil {
		t.Fatalf("RequestContact: %v", err)
	}
	if !link.Approved {
		t.Fatal("expected auto_accept policy to approve the link immediately")
	}

	approved, err := links.IsApproved(ctx, from.ID, to.ID)
	if err != nil {
		t.Fatalf("IsApproved: %v", err)
	}
	if !approved {
		t.Fatal("expected the link to be approved")
	}
}

func TestAgentLinkBMC_RespondContact_DenyDeletesLink(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-link-deny")
	agents := NewAgentBMC(mm)
	links := NewAgentLinkBMC(mm)

	from, err := agents.Register(ctx, proj.ID, "OakRidge", "", "", "")
	if err != nil {
		t.Fatalf("Register from: %v", err)
	}
	to, err := agents.Register(ctx, proj.ID, "MossHaven", "", "", "")
	if err != nil {
		t.Fatalf("Register to: %v", err)
	}

	if _, err := links.RequestContact(ctx, from.ID, to.ID, 0); err != nil {
		t.Fatalf("RequestContact: %v", err)
	}
	if err := links.RespondContact(ctx, from.ID, to.ID, false, 0); err != nil {
		t.Fatalf("RespondContact(deny): %v", err)
	}

	list, err := links.ListForAgent(ctx, from.ID)
	if err != nil {
		t.Fatalf("ListForAgent: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected the denied link to be deleted, got %+v", list)
	}
}

func TestAgentLinkBMC_ContactHandshake_AutoAcceptSendsWelcome(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-link-handshake")
	agents := NewAgentBMC(mm)
	links := NewAgentLinkBMC(mm)

	from, err := agents.Register(ctx, proj.ID, "OakRidge", "", "", "")
	if err != nil {
		t.Fatalf("Register from: %v", err)
	}
	to, err := agents.Register(ctx, proj.ID, "MossHaven", "", "", "")
	if err != nil {
		t.Fatalf("Register to: %v", err)
	}

	result, err := links.ContactHandshake(ctx, ContactHandshakeOptions{
		ProjectID: proj.ID, ProjectSlug: proj.Slug,
		FromID: from.ID, FromName: from.Name,
		ToID: to.ID, ToName: to.Name,
		AutoAccept:  true,
		WelcomeBody: "glad to be working with you",
	})
	if err != nil {
		t.Fatalf("ContactHandshake: %v", err)
	}
	if result.Status != "approved" {
		t.Fatalf("status = %q, want approved", result.Status)
	}
	if result.Welcome == nil || result.Welcome.Subject != "Welcome" {
		t.Fatalf("expected a default-subject welcome message, got %+v", result.Welcome)
	}

	inbox, err := NewMessageBMC(mm).FetchInbox(ctx, FetchInboxOptions{AgentID: to.ID, IncludeBodies: true})
	if err != nil {
		t.Fatalf("FetchInbox: %v", err)
	}
	if len(inbox) != 1 || inbox[0].BodyMD != "glad to be working with you" {
		t.Fatalf("unexpected inbox contents: %+v", inbox)
	}
}

func TestAgentLinkBMC_ContactHandshake_PendingWithoutAutoAccept(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-link-handshake-pending")
	agents := NewAgentBMC(mm)
	links := NewAgentLinkBMC(mm)

	from, err := agents.Register(ctx, proj.ID, "OakRidge", "", "", "")
	if err != nil {
		t.Fatalf("Register from: %v", err)
	}
	to, err := agents.Register(ctx, proj.ID, "MossHaven", "", "", "")
	if err != nil {
		t.Fatalf("Register to: %v", err)
	}

	result, err := links.ContactHandshake(ctx, ContactHandshakeOptions{
		ProjectID: proj.ID, ProjectSlug: proj.Slug,
		FromID: from.ID, FromName: from.Name,
		ToID: to.ID, ToName: to.Name,
		WelcomeBody: "hello",
	})
	if err != nil {
		t.Fatalf("ContactHandshake: %v", err)
	}
	if result.Status != "pending" {
		t.Fatalf("status = %q, want pending", result.Status)
	}
	if result.Welcome != nil {
		t.Fatalf("expected no welcome message while pending, got %+v", result.Welcome)
	}
}
