package core

import (
	"context"
	"testing"
)

func TestCapabilityBMC_Get_FallsBackToDefaultsWhenNoRow(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-capability-default")
	agents := NewAgentBMC(mm)
	caps := NewCapabilityBMC(mm)

	a, err := agents.Register(ctx, proj.ID, "OakRidge", "", "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := caps.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.MaxInboxMessages != DefaultInboxQuota || got.MaxAttachmentBytes != DefaultAttachmentQuota || got.CanBroadcast {
		t.Fatalf("got = %#v, want package defaults", got)
	}
}

func TestCapabilityBMC_Set_UpsertsOnRepeatCalls(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-capability-upsert")
	agents := NewAgentBMC(mm)
	caps := NewCapabilityBMC(mm)

	a, err := agents.Register(ctx, proj.ID, "OakRidge", "", "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := caps.Set(ctx, AgentCapability{AgentID: a.ID, MaxInboxMessages: 10, MaxAttachmentBytes: 1000, CanBroadcast: false}); err != nil {
		t.Fatalf("Set (first): %v", err)
	}
	if err := caps.Set(ctx, AgentCapability{AgentID: a.ID, MaxInboxMessages: 20, MaxAttachmentBytes: 2000, CanBroadcast: true}); err != nil {
		t.Fatalf("Set (second): %v", err)
	}

	got, err := caps.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := AgentCapability{AgentID: a.ID, MaxInboxMessages: 20, MaxAttachmentBytes: 2000, CanBroadcast: true}
	if got != want {
		t.Fatalf("got = %#v, want %#v", got, want)
	}
}
