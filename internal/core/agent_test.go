package core

import (
	"context"
	"testing"
)

func mustProject(t *testing.T, mm *ModelManager, key string) *Project {
	t.Helper()
	p, err := NewProjectBMC(mm).EnsureProject(context.Background(), key, ModeDirectoryOnly)
	if err != nil {
		t.Fatalf("EnsureProject(%q): %v", key, err)
	}
	return p
}

func TestAgentBMC_Register_IsIdempotentOnNameCollision(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-agent-project")
	b := NewAgentBMC(mm)

	first, err := b.Register(ctx, proj.ID, "SilverHollow", "claude-code", "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	second, err := b.Register(ctx, proj.ID, "SilverHollow", "codex", "", "")
	if err != nil {
		t.Fatalf("Register (collision): %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected idempotent registration, got distinct ids %d != %d", first.ID, second.ID)
	}
	if second.Program != "claude-code" {
		t.Fatalf("collision should return the existing row untouched, got program %q", second.Program)
	}
}

func TestAgentBMC_Register_RejectsInvalidName(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-agent-badname")
	b := NewAgentBMC(mm)

	_, err := b.Register(ctx, proj.ID, "not a valid name!", "", "", "")
	if err == nil {
		t.Fatal("expected invalid agent name to be rejected")
	}
	ce := AsError(err)
	if ce.Kind != KindValidation {
		t.Fatalf("kind = %v, want KindValidation", ce.Kind)
	}
}

func TestAgentBMC_Register_GeneratesNameWhenEmpty(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-agent-generated")
	b := NewAgentBMC(mm)

	a, err := b.Register(ctx, proj.ID, "", "claude-code", "", "")
	if err != nil {
		t.Fatalf("Register with no name: %v", err)
	}
	if a.Name == "" {
		t.Fatal("expected a generated name")
	}
	if err := ValidateAgentName(a.Name); err != nil {
		t.Fatalf("generated name %q fails validation: %v", a.Name, err)
	}
}

func TestAgentBMC_GetByName_NotFoundSuggestsSimilarNames(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-agent-suggest")
	b := NewAgentBMC(mm)

	if _, err := b.Register(ctx, proj.ID, "SilverHollow", "", "", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err := b.GetByName(ctx, proj.ID, "SilverHolow")
	if err == nil {
		t.Fatal("expected not-found for a near-miss name")
	}
	ce := AsError(err)
	if ce.Kind != KindNotFound {
		t.Fatalf("kind = %v, want KindNotFound", ce.Kind)
	}
	if len(ce.Similar) == 0 || ce.Similar[0] != "SilverHollow" {
		t.Fatalf("similar = %#v, want SilverHollow first", ce.Similar)
	}
}

func TestAgentBMC_SetContactPolicyAndTouch(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-agent-policy")
	b := NewAgentBMC(mm)

	a, err := b.Register(ctx, proj.ID, "OakRidge", "", "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := b.SetContactPolicy(ctx, a.ID, "auto_accept"); err != nil {
		t.Fatalf("SetContactPolicy: %v", err)
	}
	if err := b.Touch(ctx, a.ID); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	got, err := b.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ContactPolicy != "auto_accept" {
		t.Fatalf("contact_policy = %q, want auto_accept", got.ContactPolicy)
	}
}
