package core

import (
	"context"
	"database/sql"
	"encoding/json"
)

// MacroDefBMC owns named, replayable tool-call sequences. A handful of
// built-in macros (start_session, prepare_thread, contact_handshake) ship
// with every project; agents may additionally define their own.
type MacroDefBMC struct {
	mm *ModelManager
}

func NewMacroDefBMC(mm *ModelManager) *MacroDefBMC { return &MacroDefBMC{mm: mm} }

var builtinMacros = []struct {
	name        string
	description string
	steps       []string
}{
	{"start_session", "Ensure project, register/identify agent, reserve paths, fetch inbox.",
		[]string{"ensure_project", "create_agent_identity", "file_reservation_paths", "fetch_inbox"}},
	{"prepare_thread", "Register agent, summarize thread, fetch inbox context for a task.",
		[]string{"create_agent_identity", "summarize_thread", "fetch_inbox"}},
	{"contact_handshake", "Request and optionally auto-accept a contact link, then send a welcome message.",
		[]string{"request_contact", "respond_contact", "send_message"}},
}

// EnsureBuiltinMacros inserts the built-in macro rows for a project if they
// don't already exist. Called once from ProjectBMC.ensureArchive.
func (b *MacroDefBMC) EnsureBuiltinMacros(ctx context.Context, slug string) error {
	p, err := NewProjectBMC(b.mm).GetBySlug(ctx, slug)
	if err != nil {
		return err
	}
	for _, m := range builtinMacros {
		steps, _ := json.Marshal(m.steps)
		_, err := b.mm.DB.Conn().ExecContext(ctx, `
			INSERT OR IGNORE INTO macro_defs (project_id, name, description, steps_json, builtin)
			VALUES (?, ?, ?, ?, 1)`, p.ID, m.name, m.description, string(steps))
		if err != nil {
			return Internal(err)
		}
	}
	return nil
}

func (b *MacroDefBMC) ListForProject(ctx context.Context, projectID int) ([]MacroDef, error) {
	rows, err := b.mm.DB.Conn().QueryContext(ctx, `
		SELECT id, project_id, name, description, steps_json, builtin FROM macro_defs
		WHERE project_id = ? ORDER BY builtin DESC, name`, projectID)
	if err != nil {
		return nil, Internal(err)
	}
	defer rows.Close()

	var out []MacroDef
	for rows.Next() {
		var m MacroDef
		var stepsJSON string
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Name, &m.Description, &stepsJSON, &m.Builtin); err != nil {
			return nil, Internal(err)
		}
		json.Unmarshal([]byte(stepsJSON), &m.Steps)
		out = append(out, m)
	}
	return out, nil
}

func (b *MacroDefBMC) Get(ctx context.Context, projectID int, name string) (*MacroDef, error) {
	row := b.mm.DB.Conn().QueryRowContext(ctx, `
		SELECT id, project_id, name, description, steps_json, builtin FROM macro_defs
		WHERE project_id = ? AND name = ?`, projectID, name)
	var m MacroDef
	var stepsJSON string
	if err := row.Scan(&m.ID, &m.ProjectID, &m.Name, &m.Description, &stepsJSON, &m.Builtin); err != nil {
		if err == sql.ErrNoRows {
			return nil, NotFound("macro_def", name)
		}
		return nil, Internal(err)
	}
	json.Unmarshal([]byte(stepsJSON), &m.Steps)
	return &m, nil
}

// Define registers a custom (non-builtin) macro.
func (b *MacroDefBMC) Define(ctx context.Context, projectID int, name, description string, steps []string) (*MacroDef, error) {
	stepsJSON, _ := json.Marshal(steps)
	res, err := b.mm.DB.Conn().ExecContext(ctx, `
		INSERT INTO macro_defs (project_id, name, description, steps_json, builtin) VALUES (?, ?, ?, ?, 0)`,
		projectID, name, description, string(stepsJSON))
	if err != nil {
		return nil, Internal(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, Internal(err)
	}
	return &MacroDef{ID: int(id), ProjectID: projectID, Name: name, Description: description, Steps: steps}, nil
}
