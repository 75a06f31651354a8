package core

// DefaultInboxQuota and DefaultAttachmentQuota are the fallback limits used
// when an agent has no AgentCapability row (e.g. default tier).
const (
	DefaultInboxQuota      = 500
	DefaultAttachmentQuota = 10 * 1024 * 1024
)

// CheckInboxQuota enforces the per-agent inbox message cap. It is
// intentionally racy: two concurrent sends can both observe count < limit
// and both succeed, per spec.md §9's explicit acceptance of that race
// (the alternative, serializing all sends through one lock, was rejected as
// disproportionate to the actual risk: a handful of inboxes briefly over
// quota is harmless, and only unread messages count, so marking mail read
// frees quota).
func CheckInboxQuota(currentCount, limit int) *Error {
	if limit <= 0 {
		limit = DefaultInboxQuota
	}
	if currentCount >= limit {
		return QuotaExceeded(currentCount, limit)
	}
	return nil
}

// CheckAttachmentQuota enforces the per-attachment byte cap.
func CheckAttachmentQuota(sizeBytes int64, limit int) *Error {
	if limit <= 0 {
		limit = DefaultAttachmentQuota
	}
	if sizeBytes > int64(limit) {
		return QuotaExceeded(int(sizeBytes), limit)
	}
	return nil
}

// CapabilityFor resolves the effective quota for an agent, falling back to
// defaults when cap is nil (no explicit AgentCapability row).
func CapabilityFor(cap *AgentCapability) AgentCapability {
	if cap != nil {
		return *cap
	}
	return AgentCapability{
		MaxInboxMessages:   DefaultInboxQuota,
		MaxAttachmentBytes: DefaultAttachmentQuota,
		CanBroadcast:       false,
	}
}
