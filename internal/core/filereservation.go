package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"
)

// FileReservationBMC owns advisory path/glob locks, ported from
// crates/libs/lib-core/src/model/file_reservation.rs. Each grant writes a
// small JSON file under
// projects/<slug>/file_reservations/<sha1(pattern)>.json so the archive
// carries a human-auditable trail of who held what; release and
// force-release update only the relational row and write no archive file.
type FileReservationBMC struct {
	mm *ModelManager
}

func NewFileReservationBMC(mm *ModelManager) *FileReservationBMC { return &FileReservationBMC{mm: mm} }

// ReservePathsOptions bundles a file_reservation_paths request.
type ReservePathsOptions struct {
	ProjectID   int
	ProjectSlug string
	AgentID     int
	AgentName   string
	Paths       []string
	TTLSeconds  int
	Exclusive   bool
	Reason      string
}

// ReservePathsResult separates grants from conflicts the way
// file_reservation_paths' tool response does.
type ReservePathsResult struct {
	Granted   []FileReservation
	Conflicts []ReservationConflict
}

// ReservePaths is advisory, not a lock: every requested path is granted
// regardless of what else holds it, and any overlap with another active
// exclusive (or mutually exclusive) reservation is additionally reported in
// Conflicts so the caller knows to coordinate. Two shared (non-exclusive)
// reservations never conflict.
func (b *FileReservationBMC) ReservePaths(ctx context.Context, opts ReservePathsOptions) (*ReservePathsResult, error) {
	ttl := opts.TTLSeconds
	if verr := ValidateTTL(ttl); verr != nil {
		ttl = minTTLSeconds
		if opts.TTLSeconds > maxTTLSeconds {
			ttl = maxTTLSeconds
		}
	}

	active, err := b.ListActive(ctx, opts.ProjectID)
	if err != nil {
		return nil, err
	}

	result := &ReservePathsResult{}
	expires := time.Now().UTC().Add(time.Duration(ttl) * time.Second)

	for _, path := range opts.Paths {
		if verr := ValidateReservationPath(path); verr != nil {
			return nil, verr
		}

		var holders []string
		var others []ConflictingHold
		for _, r := range active {
			if r.AgentID == opts.AgentID {
				continue
			}
			if !(r.Exclusive || opts.Exclusive) {
				continue
			}
			if pathsOverlap(r.PathPattern, path) {
				holders = append(holders, r.AgentName)
				others = append(others, ConflictingHold{OtherAgent: r.AgentName, OtherPattern: r.PathPattern, Expires: r.ExpiresTS})
			}
		}

		res, err := b.create(ctx, opts.ProjectID, opts.ProjectSlug, opts.AgentID, opts.AgentName, path, opts.Exclusive, opts.Reason, expires)
		if err != nil {
			return nil, err
		}
		result.Granted = append(result.Granted, *res)
		active = append(active, *res)

		if len(holders) > 0 {
			result.Conflicts = append(result.Conflicts, ReservationConflict{Path: path, Holders: holders, Others: others})
		}
	}

	return result, nil
}

// pathsOverlap reports whether two path patterns (each possibly a glob)
// could both match the same file. We conservatively treat equal patterns,
// or either pattern matching the other, as overlapping.
func pathsOverlap(a, b string) bool {
	if a == b {
		return true
	}
	if ok, _ := filepath.Match(a, b); ok {
		return true
	}
	if ok, _ := filepath.Match(b, a); ok {
		return true
	}
	return false
}

func (b *FileReservationBMC) create(ctx context.Context, projectID int, slug string, agentID int, agentName, pathPattern string, exclusive bool, reason string, expires time.Time) (*FileReservation, error) {
	var id int64
	createdTS := time.Now().UTC()
	err := b.mm.DB.Transaction(func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO file_reservations (project_id, agent_id, path_pattern, exclusive, reason, created_ts, expires_ts)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, projectID, agentID, pathPattern, exclusive, reason, createdTS, expires)
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

	reservation := &FileReservation{
		ID: int(id), ProjectID: projectID, AgentID: agentID, AgentName: agentName,
		PathPattern: pathPattern, Exclusive: exclusive, Reason: reason,
		CreatedTS: createdTS, ExpiresTS: expires,
	}

	payload, _ := json.MarshalIndent(map[string]any{
		"id": reservation.ID, "agent": agentName, "path_pattern": pathPattern,
		"exclusive": exclusive, "reason": reason,
		"created_ts": createdTS.Format(time.RFC3339), "expires_ts": expires.Format(time.RFC3339),
	}, "", "  ")
	relPath := fmt.Sprintf("file_reservations/%s.json", HashPath(pathPattern))
	err = b.mm.WithArchive(ctx, slug, agentName, func(archive *GitArchive) error {
		if err := archive.WriteJSON(relPath, payload); err != nil {
			return err
		}
		return archive.CommitPaths(ctx, []string{relPath}, fmt.Sprintf("file_reservation: %s %s", agentName, pathPattern))
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

func (b *FileReservationBMC) ListActive(ctx context.Context, projectID int) ([]FileReservation, error) {
	rows, err := b.mm.DB.Conn().QueryContext(ctx, `
		SELECT fr.id, fr.project_id, fr.agent_id, a.name, fr.path_pattern, fr.exclusive, fr.reason,
		       fr.created_ts, fr.expires_ts, fr.released_ts
		FROM file_reservations fr JOIN agents a ON a.id = fr.agent_id
		WHERE fr.project_id = ? AND fr.released_ts IS NULL AND fr.expires_ts > ?
		ORDER BY fr.created_ts DESC`, projectID, time.Now().UTC())
	if err != nil {
		return nil, Internal(err)
	}
	defer rows.Close()

	var out []FileReservation
	for rows.Next() {
		var r FileReservation
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.AgentID, &r.AgentName, &r.PathPattern, &r.Exclusive,
			&r.Reason, &r.CreatedTS, &r.ExpiresTS, &r.ReleasedTS); err != nil {
			return nil, Internal(err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (b *FileReservationBMC) Get(ctx context.Context, id int) (*FileReservation, error) {
	row := b.mm.DB.Conn().QueryRowContext(ctx, `
		SELECT fr.id, fr.project_id, fr.agent_id, a.name, fr.path_pattern, fr.exclusive, fr.reason,
		       fr.created_ts, fr.expires_ts, fr.released_ts
		FROM file_reservations fr JOIN agents a ON a.id = fr.agent_id WHERE fr.id = ?`, id)
	var r FileReservation
	if err := row.Scan(&r.ID, &r.ProjectID, &r.AgentID, &r.AgentName, &r.PathPattern, &r.Exclusive,
		&r.Reason, &r.CreatedTS, &r.ExpiresTS, &r.ReleasedTS); err != nil {
		if err == sql.ErrNoRows {
			return nil, NotFound("file_reservation", fmt.Sprintf("%d", id))
		}
		return nil, Internal(err)
	}
	return &r, nil
}

// Release marks the given reservations (by id or path, for the requesting
// agent) as released.
func (b *FileReservationBMC) Release(ctx context.Context, projectID, agentID int, ids []int, paths []string) error {
	now := time.Now().UTC()
	if len(ids) > 0 {
		for _, id := range ids {
			if _, err := b.mm.DB.Conn().ExecContext(ctx, `
				UPDATE file_reservations SET released_ts = ? WHERE id = ? AND agent_id = ? AND released_ts IS NULL`,
				now, id, agentID); err != nil {
				return Internal(err)
			}
		}
	}
	if len(paths) > 0 {
		for _, p := range paths {
			if _, err := b.mm.DB.Conn().ExecContext(ctx, `
				UPDATE file_reservations SET released_ts = ? WHERE project_id = ? AND agent_id = ? AND path_pattern = ? AND released_ts IS NULL`,
				now, projectID, agentID, p); err != nil {
				return Internal(err)
			}
		}
	}
	return nil
}

// Renew extends expires_ts for the given reservations by extendSeconds.
func (b *FileReservationBMC) Renew(ctx context.Context, agentID int, ids []int, paths []string, extendSeconds int) ([]FileReservation, []int, error) {
	var renewed []FileReservation
	var missing []int

	renewOne := func(id int) error {
		res, err := b.mm.DB.Conn().ExecContext(ctx, `
			UPDATE file_reservations SET expires_ts = datetime(expires_ts, '+' || ? || ' seconds')
			WHERE id = ? AND agent_id = ? AND released_ts IS NULL`, extendSeconds, id, agentID)
		if err != nil {
			return Internal(err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			missing = append(missing, id)
			return nil
		}
		r, err := b.Get(ctx, id)
		if err != nil {
			return err
		}
		renewed = append(renewed, *r)
		return nil
	}

	for _, id := range ids {
		if err := renewOne(id); err != nil {
			return nil, nil, err
		}
	}
	if len(paths) > 0 {
		active, err := b.activeForAgent(ctx, agentID, paths)
		if err != nil {
			return nil, nil, err
		}
		for _, r := range active {
			if err := renewOne(r.ID); err != nil {
				return nil, nil, err
			}
		}
	}
	return renewed, missing, nil
}

func (b *FileReservationBMC) activeForAgent(ctx context.Context, agentID int, paths []string) ([]FileReservation, error) {
	var out []FileReservation
	for _, p := range paths {
		row := b.mm.DB.Conn().QueryRowContext(ctx, `
			SELECT fr.id, fr.project_id, fr.agent_id, a.name, fr.path_pattern, fr.exclusive, fr.reason,
			       fr.created_ts, fr.expires_ts, fr.released_ts
			FROM file_reservations fr JOIN agents a ON a.id = fr.agent_id
			WHERE fr.agent_id = ? AND fr.path_pattern = ? AND fr.released_ts IS NULL`, agentID, p)
		var r FileReservation
		if err := row.Scan(&r.ID, &r.ProjectID, &r.AgentID, &r.AgentName, &r.PathPattern, &r.Exclusive,
			&r.Reason, &r.CreatedTS, &r.ExpiresTS, &r.ReleasedTS); err == nil {
			out = append(out, r)
		}
	}
	return out, nil
}

// ForceRelease releases a reservation on behalf of another agent, used when
// a holder's TTL has elapsed but it wasn't auto-expired yet, or an operator
// intervenes. Returns the previous holder's name for notification.
func (b *FileReservationBMC) ForceRelease(ctx context.Context, reservationID int, note string) (*FileReservation, error) {
	r, err := b.Get(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if r.ReleasedTS != nil {
		return r, nil
	}
	now := time.Now().UTC()
	if _, err := b.mm.DB.Conn().ExecContext(ctx, `
		UPDATE file_reservations SET released_ts = ? WHERE id = ?`, now, reservationID); err != nil {
		return nil, Internal(err)
	}
	r.ReleasedTS = &now
	return r, nil
}

// FindConflicts reports, without granting anything, which of the given
// paths currently collide with an active exclusive reservation.
func (b *FileReservationBMC) FindConflicts(ctx context.Context, projectID int, paths []string) ([]ReservationConflict, error) {
	active, err := b.ListActive(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var out []ReservationConflict
	for _, path := range paths {
		var holders []string
		var others []ConflictingHold
		for _, r := range active {
			if r.Exclusive && pathsOverlap(r.PathPattern, path) {
				holders = append(holders, r.AgentName)
				others = append(others, ConflictingHold{OtherAgent: r.AgentName, OtherPattern: r.PathPattern, Expires: r.ExpiresTS})
			}
		}
		if len(holders) > 0 {
			out = append(out, ReservationConflict{Path: path, Holders: holders, Others: others})
		}
	}
	return out, nil
}
