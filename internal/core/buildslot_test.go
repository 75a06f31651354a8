package core

import (
	"context"
	"testing"
)

func TestBuildSlotBMC_AcquireConflictsWithRunningSlot(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-buildslot-conflict")
	agents := NewAgentBMC(mm)
	slots := NewBuildSlotBMC(mm)

	first, err := agents.Register(ctx, proj.ID, "OakRidge", "", "", "")
	if err != nil {
		t.Fatalf("Register first: %v", err)
	}
	second, err := agents.Register(ctx, proj.ID, "MossHaven", "", "", "")
	if err != nil {
		t.Fatalf("Register second: %v", err)
	}

	slot, err := slots.Acquire(ctx, proj.ID, first.ID, "ci")
	if err != nil {
		t.Fatalf("Acquire (first): %v", err)
	}
	if slot.Status != "running" {
		t.Fatalf("status = %q, want running", slot.Status)
	}

	_, err = slots.Acquire(ctx, proj.ID, second.ID, "ci")
	if err == nil {
		t.Fatal("expected a conflict while the slot is running")
	}
	if AsError(err).Kind != KindConflict {
		t.Fatalf("kind = %v, want KindConflict", AsError(err).Kind)
	}
}

func TestBuildSlotBMC_FinishFreesTheLabel(t *testing.T) {
	ctx := context.Background()
	mm := newTestModelManager(t)
	proj := mustProject(t, mm, "/tmp/fixture-buildslot-finish")
	agents := NewAgentBMC(mm)
	slots := NewBuildSlotBMC(mm)

	a, err := agents.Register(ctx, proj.ID, "OakRidge", "", "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	slot, err := slots.Acquire(ctx, proj.ID, a.ID, "ci")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := slots.Finish(ctx, slot.ID, "passed"); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	reacquired, err := slots.Acquire(ctx, proj.ID, a.ID, "ci")
	if err != nil {
		t.Fatalf("Acquire after Finish should succeed, got %v", err)
	}

	list, err := slots.ListForProject(ctx, proj.ID)
	if err != nil {
		t.Fatalf("ListForProject: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected two slots recorded, got %d", len(list))
	}
	var foundFinished bool
	for _, s := range list {
		if s.ID == slot.ID {
			if s.Status != "passed" || s.FinishedTS == nil {
				t.Fatalf("finished slot = %+v, want status=passed and a finished timestamp", s)
			}
			foundFinished = true
		}
	}
	if !foundFinished {
		t.Fatal("did not find the finished slot in ListForProject")
	}
	_ = reacquired
}
