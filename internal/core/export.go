package core

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"filippo.io/age"
	"gopkg.in/yaml.v3"
)

// ExportManifest describes one export_mailbox run, grounded on the
// teacher's bundle.Manifest (internal/bundle/manifest.go) shape, adapted
// from a support-bundle description to a mailbox-export description.
type ExportManifest struct {
	SchemaVersion int       `json:"schema_version"`
	GeneratedAt   string    `json:"generated_at"`
	ProjectSlug   string    `json:"project_slug"`
	Format        string    `json:"format"`
	MessageCount  int       `json:"message_count"`
	SHA256        string    `json:"sha256"`
	Signature     string    `json:"signature,omitempty"`
	Encrypted     bool      `json:"encrypted"`
}

const exportSchemaVersion = 1

// Exporter renders a project's messages in one of the supported formats
// and optionally signs/encrypts the result.
type Exporter struct {
	mm *ModelManager
}

func NewExporter(mm *ModelManager) *Exporter { return &Exporter{mm: mm} }

// Export renders messages in the given format ("json", "html", "markdown",
// "csv", or the additive "yaml"), returning the rendered bytes and a
// manifest. If signingKey is non-nil, the manifest's Signature field carries
// an ed25519 signature over the rendered bytes.
func (e *Exporter) Export(ctx context.Context, slug, format string, messages []Message, signingKey ed25519.PrivateKey) ([]byte, *ExportManifest, error) {
	var rendered []byte
	var err error
	switch format {
	case "json":
		rendered, err = json.MarshalIndent(messages, "", "  ")
	case "yaml":
		rendered, err = yaml.Marshal(messages)
	case "markdown":
		rendered = renderMarkdown(messages)
	case "html":
		rendered = renderHTML(messages)
	case "csv":
		rendered, err = renderCSV(messages)
	default:
		return nil, nil, Validation("format", format, "must be one of json, html, markdown, csv, yaml", "json")
	}
	if err != nil {
		return nil, nil, Internal(err)
	}

	sum := sha256.Sum256(rendered)
	manifest := &ExportManifest{
		SchemaVersion: exportSchemaVersion,
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		ProjectSlug:   slug,
		Format:        format,
		MessageCount:  len(messages),
		SHA256:        hex.EncodeToString(sum[:]),
	}

	if signingKey != nil {
		sig := ed25519.Sign(signingKey, rendered)
		manifest.Signature = hex.EncodeToString(sig)
	}

	return rendered, manifest, nil
}

// VerifySignature checks an ed25519 signature over data against pub.
func VerifySignature(pub ed25519.PublicKey, data []byte, signatureHex string) (bool, error) {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false, Validation("signature", signatureHex, "not valid hex", "")
	}
	return ed25519.Verify(pub, data, sig), nil
}

// EncryptForRecipient wraps rendered export bytes with age, either to a
// recipient's public key (age1...) or, if recipient is empty, leaves data
// untouched (encryption is opt-in per spec.md §4.14).
func EncryptForRecipient(data []byte, recipient string) ([]byte, error) {
	if recipient == "" {
		return data, nil
	}
	r, err := age.ParseX25519Recipient(recipient)
	if err != nil {
		return nil, Validation("encrypt_to", recipient, "not a valid age recipient", "")
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, r)
	if err != nil {
		return nil, Internal(err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, Internal(err)
	}
	if err := w.Close(); err != nil {
		return nil, Internal(err)
	}
	return buf.Bytes(), nil
}

// DecryptWithIdentity reverses EncryptForRecipient given the matching
// age identity (age-secret-key-1...).
func DecryptWithIdentity(data []byte, identity string) ([]byte, error) {
	id, err := age.ParseX25519Identity(identity)
	if err != nil {
		return nil, Validation("identity", identity, "not a valid age identity", "")
	}
	r, err := age.Decrypt(bytes.NewReader(data), id)
	if err != nil {
		return nil, Internal(err)
	}
	return io.ReadAll(r)
}

func renderMarkdown(messages []Message) []byte {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "## %s\n\n", m.Subject)
		fmt.Fprintf(&b, "- From: %s\n- To: %s\n- Date: %s\n- Importance: %s\n\n",
			m.From, strings.Join(m.To, ", "), m.CreatedTS.Format(time.RFC3339), m.Importance)
		b.WriteString(m.BodyMD)
		b.WriteString("\n\n---\n\n")
	}
	return []byte(b.String())
}

func renderHTML(messages []Message) []byte {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>Mailbox Export</title></head><body>\n")
	for _, m := range messages {
		fmt.Fprintf(&b, "<article><h2>%s</h2>\n", html.EscapeString(m.Subject))
		fmt.Fprintf(&b, "<p><strong>From:</strong> %s &mdash; <strong>To:</strong> %s &mdash; %s</p>\n",
			html.EscapeString(m.From), html.EscapeString(strings.Join(m.To, ", ")), m.CreatedTS.Format(time.RFC3339))
		fmt.Fprintf(&b, "<pre>%s</pre></article>\n", html.EscapeString(m.BodyMD))
	}
	b.WriteString("</body></html>\n")
	return []byte(b.String())
}

func renderCSV(messages []Message) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"id", "from", "to", "subject", "importance", "ack_required", "created_ts"}); err != nil {
		return nil, err
	}
	for _, m := range messages {
		if err := w.Write([]string{
			fmt.Sprintf("%d", m.ID), m.From, strings.Join(m.To, ";"), m.Subject, m.Importance,
			fmt.Sprintf("%t", m.AckRequired), m.CreatedTS.Format(time.RFC3339),
		}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
