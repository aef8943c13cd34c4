package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Filter selects audit entries. Zero fields match everything.
type Filter struct {
	Caller    string
	Target    string
	QueueHash string
	Type      string
	From      time.Time
	To        time.Time
	Limit     int // keep only the last Limit matches; 0 = all
}

// Summary counts decisions and resolutions among selected entries.
type Summary struct {
	Total          int    `json:"total"`
	AllowCount     int    `json:"allow_count"`
	DenyCount      int    `json:"deny_count"`
	ApprovalCount  int    `json:"approval_count"`
	ApprovedCount  int    `json:"approved_count"`
	RejectedCount  int    `json:"rejected_count"`
	FirstTimestamp string `json:"first_timestamp"`
	LastTimestamp  string `json:"last_timestamp"`
}

// Result holds selected entries and their summary.
type Result struct {
	Entries []AuditEntry `json:"entries"`
	Summary Summary      `json:"summary"`
}

// Query reads the log at path and returns entries matching filter.
// Malformed lines are skipped.
func Query(path string, filter Filter) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var entries []AuditEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if filter.matches(entry) {
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[len(entries)-filter.Limit:]
	}

	result := &Result{Entries: entries}
	for _, e := range entries {
		result.Summary.add(e)
	}
	return result, nil
}

func (f Filter) matches(e AuditEntry) bool {
	if f.Caller != "" && e.Caller != f.Caller {
		return false
	}
	if f.Target != "" && e.Target != f.Target {
		return false
	}
	if f.QueueHash != "" && e.QueueHash != f.QueueHash {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		ts, err := time.Parse(TimestampFormat, e.Timestamp)
		if err != nil {
			return false
		}
		if !f.From.IsZero() && ts.Before(f.From) {
			return false
		}
		if !f.To.IsZero() && ts.After(f.To) {
			return false
		}
	}
	return true
}

func (s *Summary) add(e AuditEntry) {
	s.Total++
	switch e.Decision {
	case "allow":
		s.AllowCount++
	case "deny":
		s.DenyCount++
	case "require_approval":
		s.ApprovalCount++
	case "approved":
		s.ApprovedCount++
	case "rejected":
		s.RejectedCount++
	}
	if s.FirstTimestamp == "" {
		s.FirstTimestamp = e.Timestamp
	}
	s.LastTimestamp = e.Timestamp
}
