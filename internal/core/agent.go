package core

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// AgentBMC owns Agent persistence plus the name-generation and
// name-suggestion helpers the macro tools rely on (create_agent_identity,
// whois's "did you mean" hints).
type AgentBMC struct {
	mm *ModelManager
}

func NewAgentBMC(mm *ModelManager) *AgentBMC { return &AgentBMC{mm: mm} }

// Register validates and inserts a new agent, or returns the existing one
// if name is already taken within the project (register_agent is
// idempotent on name collision the way the teacher's tool expects).
func (b *AgentBMC) Register(ctx context.Context, projectID int, name, program, model, taskDescription string) (*Agent, error) {
	if name != "" {
		if verr := ValidateAgentName(name); verr != nil {
			return nil, verr
		}
		if existing, err := b.GetByName(ctx, projectID, name); err == nil {
			return existing, nil
		}
	} else {
		var err error
		name, err = b.generateUniqueName(ctx, projectID)
		if err != nil {
			return nil, err
		}
	}

	res, err := b.mm.DB.Conn().ExecContext(ctx, `
		INSERT INTO agents (project_id, name, program, model, task_description)
		VALUES (?, ?, ?, ?, ?)`, projectID, name, program, model, taskDescription)
	if err != nil {
		return nil, Internal(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, Internal(err)
	}
	return b.Get(ctx, int(id))
}

// adjectives/nouns generate readable two-word agent names such as
// "GreenCastle", matching the style visible in the teacher's example data.
var nameAdjectives = []string{"Green", "Blue", "Amber", "Silver", "Crimson", "Violet", "Golden", "Coral", "Slate", "Ivory"}
var nameNouns = []string{"Castle", "River", "Harbor", "Summit", "Meadow", "Canyon", "Forge", "Lantern", "Orchard", "Beacon"}

func (b *AgentBMC) generateUniqueName(ctx context.Context, projectID int) (string, error) {
	for attempt := 0; attempt < 50; attempt++ {
		adj := nameAdjectives[randIndex(len(nameAdjectives))]
		noun := nameNouns[randIndex(len(nameNouns))]
		candidate := adj + noun
		if attempt > 0 {
			candidate = fmt.Sprintf("%s%d", candidate, attempt)
		}
		if _, err := b.GetByName(ctx, projectID, candidate); err != nil {
			return candidate, nil
		}
	}
	return "", Internal(fmt.Errorf("could not generate a unique agent name"))
}

func randIndex(n int) int {
	var b [1]byte
	rand.Read(b[:])
	return int(b[0]) % n
}

func (b *AgentBMC) Get(ctx context.Context, id int) (*Agent, error) {
	row := b.mm.DB.Conn().QueryRowContext(ctx, `
		SELECT id, project_id, name, program, model, task_description, contact_policy, inception_ts, last_active_ts
		FROM agents WHERE id = ?`, id)
	return scanAgent(row)
}

func (b *AgentBMC) GetByName(ctx context.Context, projectID int, name string) (*Agent, error) {
	row := b.mm.DB.Conn().QueryRowContext(ctx, `
		SELECT id, project_id, name, program, model, task_description, contact_policy, inception_ts, last_active_ts
		FROM agents WHERE project_id = ? AND name = ?`, projectID, name)
	agent, err := scanAgent(row)
	if err != nil {
		if ce, ok := err.(*Error); ok && ce.Kind == KindNotFound {
			ce.EntityType = "agent"
			ce.Identifier = name
			ce.Similar = b.suggestSimilarNames(ctx, projectID, name)
		}
		return nil, err
	}
	return agent, nil
}

// Whois is GetByName plus a touch of last_active_ts, matching the
// whois tool's semantics (it's a lookup, not a mutation, but the teacher's
// client treats it as implicitly refreshing presence).
func (b *AgentBMC) Whois(ctx context.Context, projectID int, name string) (*Agent, error) {
	agent, err := b.GetByName(ctx, projectID, name)
	if err != nil {
		return nil, err
	}
	if err := b.Touch(ctx, agent.ID); err != nil {
		return nil, err
	}
	return agent, nil
}

func (b *AgentBMC) Touch(ctx context.Context, agentID int) error {
	_, err := b.mm.DB.Conn().ExecContext(ctx, `UPDATE agents SET last_active_ts = ? WHERE id = ?`, time.Now().UTC(), agentID)
	if err != nil {
		return Internal(err)
	}
	return nil
}

func (b *AgentBMC) SetContactPolicy(ctx context.Context, agentID int, policy string) error {
	_, err := b.mm.DB.Conn().ExecContext(ctx, `UPDATE agents SET contact_policy = ? WHERE id = ?`, policy, agentID)
	if err != nil {
		return Internal(err)
	}
	return nil
}

func (b *AgentBMC) ListForProject(ctx context.Context, projectID int) ([]Agent, error) {
	rows, err := b.mm.DB.Conn().QueryContext(ctx, `
		SELECT id, project_id, name, program, model, task_description, contact_policy, inception_ts, last_active_ts
		FROM agents WHERE project_id = ? ORDER BY name`, projectID)
	if err != nil {
		return nil, Internal(err)
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Name, &a.Program, &a.Model, &a.TaskDescription,
			&a.ContactPolicy, &a.InceptionTS, &a.LastActiveTS); err != nil {
			return nil, Internal(err)
		}
		out = append(out, a)
	}
	return out, nil
}

// suggestSimilarNames ranks existing agent names by Levenshtein distance to
// name and returns the closest few, for AgentNotFound's "did you mean"
// payload (original_source/agent_tests.rs expects this on lookup misses).
func (b *AgentBMC) suggestSimilarNames(ctx context.Context, projectID int, name string) []string {
	agents, err := b.ListForProject(ctx, projectID)
	if err != nil || len(agents) == 0 {
		return nil
	}
	type scored struct {
		name string
		dist int
	}
	scoredNames := make([]scored, 0, len(agents))
	for _, a := range agents {
		scoredNames = append(scoredNames, scored{a.Name, levenshtein(name, a.Name)})
	}
	sort.Slice(scoredNames, func(i, j int) bool { return scoredNames[i].dist < scoredNames[j].dist })

	var out []string
	for i := 0; i < len(scoredNames) && i < 3; i++ {
		out = append(out, scoredNames[i].name)
	}
	return out
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	m, n := len(ra), len(rb)
	prev := make([]int, n+1)
	cur := make([]int, n+1)
	for j := 0; j <= n; j++ {
		prev[j] = j
	}
	for i := 1; i <= m; i++ {
		cur[0] = i
		for j := 1; j <= n; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := cur[j-1] + 1
			sub := prev[j-1] + cost
			cur[j] = min3(del, ins, sub)
		}
		prev, cur = cur, prev
	}
	return prev[n]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func scanAgent(row *sql.Row) (*Agent, error) {
	var a Agent
	if err := row.Scan(&a.ID, &a.ProjectID, &a.Name, &a.Program, &a.Model, &a.TaskDescription,
		&a.ContactPolicy, &a.InceptionTS, &a.LastActiveTS); err != nil {
		if err == sql.ErrNoRows {
			return nil, NotFound("agent", "")
		}
		return nil, Internal(err)
	}
	return &a, nil
}
