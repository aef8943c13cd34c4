package alert

// AlertConfig defines a webhook alert destination.
type AlertConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack"
	Events  []string          `yaml:"events"  json:"events"` // ["deny", "require_approval", "approved", "rejected"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Event kinds a webhook can subscribe to.
const (
	EventAllow           = "allow"
	EventDeny            = "deny"
	EventRequireApproval = "require_approval"
	EventApproved        = "approved"
	EventRejected        = "rejected"
)

// AlertEvent is the payload sent to webhook endpoints.
type AlertEvent struct {
	Timestamp string `json:"timestamp"`
	RequestID string `json:"request_id,omitempty"`
	Caller    string `json:"caller"`
	Target    string `json:"target"`
	Method    string `json:"method"`
	Decision  string `json:"decision"`
	Reason    string `json:"reason,omitempty"`
	QueueHash string `json:"queue_hash,omitempty"`
}
