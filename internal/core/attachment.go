package core

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// AttachmentBMC owns attachment metadata rows. Attachment bytes live in the
// Git archive under projects/<slug>/attachments/<sha256>; the relational
// row tracks size/type so quota checks never need to touch the archive.
type AttachmentBMC struct {
	mm *ModelManager
}

func NewAttachmentBMC(mm *ModelManager) *AttachmentBMC { return &AttachmentBMC{mm: mm} }

// Attach validates the attachment against the sender's quota, writes the
// content to the archive, and records the metadata row.
func (b *AttachmentBMC) Attach(ctx context.Context, slug, agentName string, messageID int, filename, contentType string, content []byte, limitBytes int) (*Attachment, error) {
	if verr := CheckAttachmentQuota(int64(len(content)), limitBytes); verr != nil {
		return nil, verr
	}

	sum := sha256.Sum256(content)
	digest := hex.EncodeToString(sum[:])
	relPath := fmt.Sprintf("attachments/%s", digest)

	err := b.mm.WithArchive(ctx, slug, agentName, func(archive *GitArchive) error {
		if err := archive.WriteJSON(relPath, content); err != nil {
			return err
		}
		return archive.CommitPaths(ctx, []string{relPath}, fmt.Sprintf("attachment: %s (%s)", filename, digest[:12]))
	})
	if err != nil {
		return nil, err
	}

	createdTS := time.Now().UTC()
	res, err := b.mm.DB.Conn().ExecContext(ctx, `
		INSERT INTO attachments (message_id, filename, content_type, size_bytes, sha256, created_ts)
		VALUES (?, ?, ?, ?, ?, ?)`, messageID, filename, contentType, len(content), digest, createdTS)
	if err != nil {
		return nil, Internal(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, Internal(err)
	}

	return &Attachment{ID: int(id), MessageID: messageID, Filename: filename, ContentType: contentType,
		SizeBytes: int64(len(content)), SHA256: digest, CreatedTS: createdTS}, nil
}

func (b *AttachmentBMC) ListForMessage(ctx context.Context, messageID int) ([]Attachment, error) {
	rows, err := b.mm.DB.Conn().QueryContext(ctx, `
		SELECT id, message_id, filename, content_type, size_bytes, sha256, created_ts
		FROM attachments WHERE message_id = ? ORDER BY created_ts`, messageID)
	if err != nil {
		return nil, Internal(err)
	}
	defer rows.Close()

	var out []Attachment
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ID, &a.MessageID, &a.Filename, &a.ContentType, &a.SizeBytes, &a.SHA256, &a.CreatedTS); err != nil {
			return nil, Internal(err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (b *AttachmentBMC) Get(ctx context.Context, id int) (*Attachment, error) {
	row := b.mm.DB.Conn().QueryRowContext(ctx, `
		SELECT id, message_id, filename, content_type, size_bytes, sha256, created_ts FROM attachments WHERE id = ?`, id)
	var a Attachment
	if err := row.Scan(&a.ID, &a.MessageID, &a.Filename, &a.ContentType, &a.SizeBytes, &a.SHA256, &a.CreatedTS); err != nil {
		if err == sql.ErrNoRows {
			return nil, NotFound("attachment", fmt.Sprintf("%d", id))
		}
		return nil, Internal(err)
	}
	return &a, nil
}

// Content reads an attachment's bytes back from the archive at HEAD.
func (b *AttachmentBMC) Content(ctx context.Context, slug string, a *Attachment) ([]byte, error) {
	archive, err := OpenGitArchive(ctx, b.mm.ProjectArchiveDir(slug))
	if err != nil {
		return nil, err
	}
	head, err := archive.HeadOID(ctx)
	if err != nil {
		return nil, err
	}
	return archive.ShowFileAt(ctx, head, fmt.Sprintf("attachments/%s", a.SHA256))
}
