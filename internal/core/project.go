package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProjectBMC owns every SQL statement and archive JSON shape for Project
// and Product, the way project.rs's ProjectBmc does. There is one BMC type
// per entity, and BMCs never subclass one another — composition (a
// ModelManager reference) stands in for the shared-base-class pattern the
// original explicitly avoids (spec.md §9 Design Notes).
type ProjectBMC struct {
	mm *ModelManager
}

func NewProjectBMC(mm *ModelManager) *ProjectBMC { return &ProjectBMC{mm: mm} }

var slugifyRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and collapses runs of non-alphanumerics into single
// hyphens, trimming leading/trailing hyphens.
func Slugify(s string) string {
	lower := strings.ToLower(s)
	slug := slugifyRe.ReplaceAllString(lower, "-")
	return strings.Trim(slug, "-")
}

// Create inserts a project row and ensures its archive exists.
func (b *ProjectBMC) Create(ctx context.Context, slug, humanKey string) (*Project, error) {
	var id int64
	err := b.mm.DB.Transaction(func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO projects (slug, human_key) VALUES (?, ?)`, slug, humanKey)
		if err != nil {
			return Internal(err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := b.ensureArchive(ctx, slug); err != nil {
		return nil, err
	}

	return &Project{ID: int(id), Slug: slug, HumanKey: humanKey, CreatedAt: time.Now().UTC()}, nil
}

// EnsureProject resolves identifier to an existing project or creates one,
// deriving a stable identity via ResolveIdentity when the identifier looks
// like a filesystem path (starts with "/").
func (b *ProjectBMC) EnsureProject(ctx context.Context, identifier string, mode IdentityMode) (*Project, error) {
	var slug, humanKey string
	if strings.HasPrefix(identifier, "/") {
		resolved, err := ResolveIdentity(ctx, identifier, mode)
		if err != nil {
			return nil, Internal(err)
		}
		slug = resolved.Slug
		humanKey = identifier
	} else {
		slug = Slugify(identifier)
		humanKey = identifier
	}

	if p, err := b.GetBySlug(ctx, slug); err == nil {
		if p.HumanKey == humanKey {
			return p, nil
		}
		slug = b.disambiguateSlug(ctx, slug)
	}
	return b.Create(ctx, slug, humanKey)
}

// disambiguateSlug appends a short random suffix when slug is already taken
// by a different project's human_key, rather than erroring or silently
// colliding two unrelated projects onto one archive directory.
func (b *ProjectBMC) disambiguateSlug(ctx context.Context, slug string) string {
	for {
		candidate := slug + "-" + uuid.NewString()[:8]
		if _, err := b.GetBySlug(ctx, candidate); err != nil {
			return candidate
		}
	}
}

func (b *ProjectBMC) GetBySlug(ctx context.Context, slug string) (*Project, error) {
	row := b.mm.DB.Conn().QueryRowContext(ctx, `SELECT id, slug, human_key, created_at FROM projects WHERE slug = ?`, slug)
	return scanProject(row)
}

func (b *ProjectBMC) GetByHumanKey(ctx context.Context, humanKey string) (*Project, error) {
	row := b.mm.DB.Conn().QueryRowContext(ctx, `SELECT id, slug, human_key, created_at FROM projects WHERE human_key = ?`, humanKey)
	return scanProject(row)
}

// GetByIdentifier tries slug, then human_key, then slugify(identifier) as a
// last resort, matching project.rs's get_by_identifier precedence.
func (b *ProjectBMC) GetByIdentifier(ctx context.Context, identifier string) (*Project, error) {
	if p, err := b.GetBySlug(ctx, identifier); err == nil {
		return p, nil
	}
	if p, err := b.GetByHumanKey(ctx, identifier); err == nil {
		return p, nil
	}
	if p, err := b.GetBySlug(ctx, Slugify(identifier)); err == nil {
		return p, nil
	}
	return nil, NotFound("project", identifier)
}

func (b *ProjectBMC) Get(ctx context.Context, id int) (*Project, error) {
	row := b.mm.DB.Conn().QueryRowContext(ctx, `SELECT id, slug, human_key, created_at FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

func (b *ProjectBMC) ListAll(ctx context.Context) ([]Project, error) {
	rows, err := b.mm.DB.Conn().QueryContext(ctx, `SELECT id, slug, human_key, created_at FROM projects ORDER BY created_at`)
	if err != nil {
		return nil, Internal(err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Slug, &p.HumanKey, &p.CreatedAt); err != nil {
			return nil, Internal(err)
		}
		out = append(out, p)
	}
	return out, nil
}

// ListSiblings returns every project sharing a Product with projectID.
// Supplemented from original_source's project.rs::list_siblings.
func (b *ProjectBMC) ListSiblings(ctx context.Context, projectID int) ([]Project, error) {
	rows, err := b.mm.DB.Conn().QueryContext(ctx, `
		SELECT p.id, p.slug, p.human_key, p.created_at
		FROM projects p
		JOIN product_projects pp ON pp.project_id = p.id
		WHERE pp.product_id IN (
			SELECT product_id FROM product_projects WHERE project_id = ?
		) AND p.id != ?
		ORDER BY p.created_at`, projectID, projectID)
	if err != nil {
		return nil, Internal(err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Slug, &p.HumanKey, &p.CreatedAt); err != nil {
			return nil, Internal(err)
		}
		out = append(out, p)
	}
	return out, nil
}

// CountMessages returns the total message count for a project (used by
// quota and health reporting).
func (b *ProjectBMC) CountMessages(ctx context.Context, projectID int) (int, error) {
	var n int
	err := b.mm.DB.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE project_id = ?`, projectID).Scan(&n)
	if err != nil {
		return 0, Internal(err)
	}
	return n, nil
}

// ensureArchive creates the project's archive directory (if missing),
// writes its .gitattributes, and registers the project's built-in macros.
func (b *ProjectBMC) ensureArchive(ctx context.Context, slug string) error {
	err := b.mm.WithArchive(ctx, slug, "mcp-bot", func(archive *GitArchive) error {
		return archive.EnsureGitAttributes(ctx)
	})
	if err != nil {
		return err
	}
	return NewMacroDefBMC(b.mm).EnsureBuiltinMacros(ctx, slug)
}

// SyncToArchive dumps the project's recent messages and agent roster to
// mailbox.json / agents.json under the archive and commits both in one
// commit, mirroring project.rs's sync_to_archive.
func (b *ProjectBMC) SyncToArchive(ctx context.Context, projectID int, commitMessage string) (string, error) {
	p, err := b.Get(ctx, projectID)
	if err != nil {
		return "", err
	}

	messages, err := b.recentMessagesForArchive(ctx, projectID, 1000)
	if err != nil {
		return "", err
	}
	agents, err := NewAgentBMC(b.mm).ListForProject(ctx, projectID)
	if err != nil {
		return "", err
	}

	mailboxJSON, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return "", Internal(err)
	}
	agentsJSON, err := json.MarshalIndent(agents, "", "  ")
	if err != nil {
		return "", Internal(err)
	}

	var oid string
	err = b.mm.WithArchive(ctx, p.Slug, "mcp-bot", func(archive *GitArchive) error {
		if err := archive.WriteJSON("mailbox.json", mailboxJSON); err != nil {
			return err
		}
		if err := archive.WriteJSON("agents.json", agentsJSON); err != nil {
			return err
		}
		if err := archive.CommitPaths(ctx, []string{"mailbox.json", "agents.json"}, commitMessage); err != nil {
			return err
		}
		head, err := archive.HeadOID(ctx)
		if err != nil {
			return err
		}
		oid = head
		return nil
	})
	return oid, err
}

func (b *ProjectBMC) recentMessagesForArchive(ctx context.Context, projectID, limit int) ([]Message, error) {
	rows, err := b.mm.DB.Conn().QueryContext(ctx, `
		SELECT m.id, m.project_id, m.sender_id, a.name, COALESCE(m.thread_id,''), m.subject, m.body_md,
		       m.importance, m.ack_required, m.created_ts
		FROM messages m JOIN agents a ON a.id = m.sender_id
		WHERE m.project_id = ? ORDER BY m.created_ts DESC LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, Internal(err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.SenderID, &m.From, &m.ThreadID, &m.Subject, &m.BodyMD,
			&m.Importance, &m.AckRequired, &m.CreatedTS); err != nil {
			return nil, Internal(err)
		}
		out = append(out, m)
	}
	return out, nil
}

func scanProject(row *sql.Row) (*Project, error) {
	var p Project
	if err := row.Scan(&p.ID, &p.Slug, &p.HumanKey, &p.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, NotFound("project", "")
		}
		return nil, Internal(err)
	}
	return &p, nil
}
