package audit

// Event types recorded in the audit log.
const (
	EventDecision   = "decision"
	EventResolution = "resolution"
	EventForward    = "forward"
	EventGrant      = "grant"
	EventRevoke     = "revoke"
	EventSettings   = "settings"
	EventDenylist   = "denylist"
	EventQueue      = "queue"
)

// AuditEntry is one line in the hash-chained JSONL audit log.
// All fields are plain values (no map[string]any) so json.Marshal field
// order is fixed and hashing is reproducible.
type AuditEntry struct {
	Timestamp string `json:"ts"`
	RequestID string `json:"request_id,omitempty"`
	Type      string `json:"type"`
	Caller    string `json:"caller"`
	Target    string `json:"target,omitempty"`
	Method    string `json:"method,omitempty"`
	Decision  string `json:"decision,omitempty"`
	Rule      string `json:"rule,omitempty"`
	Reason    string `json:"reason,omitempty"`
	QueueHash string `json:"queue_hash,omitempty"`
	PrevHash  string `json:"prev_hash"`
}
