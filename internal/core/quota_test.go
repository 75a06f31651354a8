package core

import "testing"

func TestCheckInboxQuota(t *testing.T) {
	if err := CheckInboxQuota(4, 5); err != nil {
		t.Fatalf("under limit should pass, got %v", err)
	}
	err := CheckInboxQuota(5, 5)
	if err == nil {
		t.Fatal("at limit should fail")
	}
	if err.Kind != KindQuotaExceeded {
		t.Fatalf("kind = %v, want KindQuotaExceeded", err.Kind)
	}

	// A non-positive limit falls back to DefaultInboxQuota rather than
	// rejecting (or admitting) everything.
	if err := CheckInboxQuota(DefaultInboxQuota-1, 0); err != nil {
		t.Fatalf("fallback-limit check under default should pass, got %v", err)
	}
	if err := CheckInboxQuota(DefaultInboxQuota, 0); err == nil {
		t.Fatal("fallback-limit check at default should fail")
	}
}

func TestCheckAttachmentQuota(t *testing.T) {
	if err := CheckAttachmentQuota(1024, 2048); err != nil {
		t.Fatalf("under limit should pass, got %v", err)
	}
	err := CheckAttachmentQuota(4096, 2048)
	if err == nil {
		t.Fatal("over limit should fail")
	}
	if err.Current != 4096 || err.Limit != 2048 {
		t.Fatalf("context = current=%d limit=%d", err.Current, err.Limit)
	}
}

func TestCapabilityFor_DefaultsWhenNil(t *testing.T) {
	got := CapabilityFor(nil)
	if got.MaxInboxMessages != DefaultInboxQuota || got.MaxAttachmentBytes != DefaultAttachmentQuota || got.CanBroadcast {
		t.Fatalf("defaults = %#v", got)
	}

	explicit := AgentCapability{AgentID: 7, MaxInboxMessages: 10, MaxAttachmentBytes: 100, CanBroadcast: true}
	if got := CapabilityFor(&explicit); got != explicit {
		t.Fatalf("CapabilityFor(explicit) = %#v, want %#v", got, explicit)
	}
}
