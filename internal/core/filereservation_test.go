package core

import (
	"context"
	"testing"
)

func TestFileReservationBMC_ReservePaths_GrantsNonConflicting(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-reservation-project")
	agents := NewAgentBMC(mm)
	reservations := NewFileReservationBMC(mm)

	a, err := agents.Register(ctx, proj.ID, "OakRidge", "", "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	result, err := reservations.ReservePaths(ctx, ReservePathsOptions{
		ProjectID: proj.ID, ProjectSlug: proj.Slug,
		AgentID: a.ID, AgentName: a.Name,
		Paths: []string{"internal/core/message.go"}, TTLSeconds: 300, Exclusive: true,
	})
	if err != nil {
		t.Fatalf("ReservePaths: %v", err)
	}
	if len(result.Granted) != 1 || len(result.Conflicts) != 0 {
		t.Fatalf("result = %+v, want one grant and no conflicts", result)
	}
}

func TestFileReservationBMC_ReservePaths_ReportsExclusiveConflict(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-reservation-conflict")
	agents := NewAgentBMC(mm)
	reservations := NewFileReservationBMC(mm)

	first, err := agents.Register(ctx, proj.ID, "OakRidge", "", "", "")
	if err != nil {
		t.Fatalf("Register first: %v", err)
	}
	second, err := agents.Register(ctx, proj.ID, "MossHaven", "", "", "")
	if err != nil {
		t.Fatalf("Register second: %v", err)
	}

	if _, err := reservations.ReservePaths(ctx, ReservePathsOptions{
		ProjectID: proj.ID, ProjectSlug: proj.Slug,
		AgentID: first.ID, AgentName: first.Name,
		Paths: []string{"internal/core/message.go"}, TTLSeconds: 300, Exclusive: true,
	}); err != nil {
		t.Fatalf("first ReservePaths: %v", err)
	}

	result, err := reservations.ReservePaths(ctx, ReservePathsOptions{
		ProjectID: proj.ID, ProjectSlug: proj.Slug,
		AgentID: second.ID, AgentName: second.Name,
		Paths: []string{"internal/core/message.go"}, TTLSeconds: 300, Exclusive: true,
	})
	if err != nil {
		t.Fatalf("second ReservePaths: %v", err)
	}
	if len(result.Granted) != 1 || len(result.Conflicts) != 1 {
		t.Fatalf("result = %+v, want one grant (advisory model still records it) and one conflict", result)
	}
	if result.Conflicts[0].Holders[0] != first.Name {
		t.Errorf("conflict holder = %q, want %q", result.Conflicts[0].Holders[0], first.Name)
	}
	if result.Conflicts[0].Others[0].OtherAgent != first.Name || result.Conflicts[0].Others[0].OtherPattern != "internal/core/message.go" {
		t.Errorf("conflict detail = %+v", result.Conflicts[0].Others[0])
	}

	active, err := reservations.ListActive(ctx, proj.ID)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("advisory model grants both reservations; want 2 active, got %d", len(active))
	}
}

func TestFileReservationBMC_SharedReservationsDoNotConflict(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-reservation-shared")
	agents := NewAgentBMC(mm)
	reservations := NewFileReservationBMC(mm)

	first, err := agents.Register(ctx, proj.ID, "OakRidge", "", "", "")
	if err != nil {
		t.Fatalf("Register first: %v", err)
	}
	second, err := agents.Register(ctx, proj.ID, "MossHaven", "", "", "")
	if err != nil {
		t.Fatalf("Register second: %v", err)
	}

	if _, err := reservations.ReservePaths(ctx, ReservePathsOptions{
		ProjectID: proj.ID, ProjectSlug: proj.Slug,
		AgentID: first.ID, AgentName: first.Name,
		Paths: []string{"README.md"}, TTLSeconds: 300, Exclusive: false,
	}); err != nil {
		t.Fatalf("first ReservePaths: %v", err)
	}

	result, err := reservations.ReservePaths(ctx, ReservePathsOptions{
		ProjectID: proj.ID, ProjectSlug: proj.Slug,
		AgentID: second.ID, AgentName: second.Name,
		Paths: []string{"README.md"}, TTLSeconds: 300, Exclusive: false,
	})
	if err != nil {
		t.Fatalf("second ReservePaths: %v", err)
	}
	if len(result.Granted) != 1 || len(result.Conflicts) != 0 {
		t.Fatalf("two shared reservations on the same path should both grant, got %+v", result)
	}
}

func TestFileReservationBMC_ReleaseAndRenew(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-reservation-release")
	agents := NewAgentBMC(mm)
	reservations := NewFileReservationBMC(mm)

	a, err := agents.Register(ctx, proj.ID, "OakRidge", "", "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	result, err := reservations.ReservePaths(ctx, ReservePathsOptions{
		ProjectID: proj.ID, ProjectSlug: proj.Slug,
		AgentID: a.ID, AgentName: a.Name,
		Paths: []string{"internal/core/message.go"}, TTLSeconds: 300, Exclusive: true,
	})
	if err != nil {
		t.Fatalf("ReservePaths: %v", err)
	}
	id := result.Granted[0].ID

	renewed, missing, err := reservations.Renew(ctx, a.ID, []int{id}, nil, 600)
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if len(renewed) != 1 || len(missing) != 0 {
		t.Fatalf("renew result = renewed=%+v missing=%+v", renewed, missing)
	}

	if err := reservations.Release(ctx, proj.ID, a.ID, []int{id}, nil); err != nil {
		t.Fatalf("Release: %v", err)
	}

	active, err := reservations.ListActive(ctx, proj.ID)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active reservations after release, got %+v", active)
	}
}
