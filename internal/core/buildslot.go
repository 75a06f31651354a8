package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BuildSlotBMC tracks exclusive build/test run claims so two agents don't
// race the same build output. A project-scoped advisory resource, distinct
// from file reservations (a build slot isn't tied to specific paths).
type BuildSlotBMC struct {
	mm *ModelManager
}

func NewBuildSlotBMC(mm *ModelManager) *BuildSlotBMC { return &BuildSlotBMC{mm: mm} }

// Acquire fails with KindConflict if any agent, the caller included, already
// holds a running slot with the same label in this project.
func (b *BuildSlotBMC) Acquire(ctx context.Context, projectID, agentID int, label string) (*BuildSlot, error) {
	var existing int
	err := b.mm.DB.Conn().QueryRowContext(ctx, `
		SELECT id FROM build_slots WHERE project_id = ? AND label = ? AND status = 'running'`, projectID, label).Scan(&existing)
	if err == nil {
		return nil, Conflict(fmt.Sprintf("build slot %q already held", label))
	}
	if err != sql.ErrNoRows {
		return nil, Internal(err)
	}

	startedTS := time.Now().UTC()
	res, err := b.mm.DB.Conn().ExecContext(ctx, `
		INSERT INTO build_slots (project_id, agent_id, label, started_ts, status) VALUES (?, ?, ?, ?, 'running')`,
		projectID, agentID, label, startedTS)
	if err != nil {
		return nil, Internal(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, Internal(err)
	}
	return &BuildSlot{ID: int(id), ProjectID: projectID, AgentID: agentID, Label: label, StartedTS: startedTS, Status: "running"}, nil
}

func (b *BuildSlotBMC) Finish(ctx context.Context, id int, status string) error {
	now := time.Now().UTC()
	_, err := b.mm.DB.Conn().ExecContext(ctx, `
		UPDATE build_slots SET finished_ts = ?, status = ? WHERE id = ?`, now, status, id)
	if err != nil {
		return Internal(err)
	}
	return nil
}

func (b *BuildSlotBMC) ListForProject(ctx context.Context, projectID int) ([]BuildSlot, error) {
	rows, err := b.mm.DB.Conn().QueryContext(ctx, `
		SELECT id, project_id, agent_id, label, started_ts, finished_ts, status
		FROM build_slots WHERE project_id = ? ORDER BY started_ts DESC`, projectID)
	if err != nil {
		return nil, Internal(err)
	}
	defer rows.Close()

	var out []BuildSlot
	for rows.Next() {
		var s BuildSlot
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.AgentID, &s.Label, &s.StartedTS, &s.FinishedTS, &s.Status); err != nil {
			return nil, Internal(err)
		}
		out = append(out, s)
	}
	return out, nil
}
