package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a Result as a human-readable text timeline.
func FormatTimeline(result *Result) string {
	if len(result.Entries) == 0 {
		return "No entries found.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s – %s UTC\n",
		formatDateTime(result.Summary.FirstTimestamp),
		formatDateTime(result.Summary.LastTimestamp))
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		what := e.Decision
		if what == "" {
			what = e.Type
		}
		fmt.Fprintf(&b, "%-10s %-17s %-20s %-20s %-16s %s\n",
			formatTimeOnly(e.Timestamp),
			strings.ToUpper(what),
			truncate(e.Caller, 20),
			truncate(e.Target, 20),
			truncate(e.Method, 16),
			shortHash(e.QueueHash))
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))
	return b.String()
}

// FormatJSON renders a Result as indented JSON.
func FormatJSON(result *Result) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal audit result: %w", err)
	}
	return string(data), nil
}

func formatDateTime(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s Summary) string {
	counts := []struct {
		n     int
		label string
	}{
		{s.AllowCount, "allow"},
		{s.DenyCount, "deny"},
		{s.ApprovalCount, "queued"},
		{s.ApprovedCount, "approved"},
		{s.RejectedCount, "rejected"},
	}
	var parts []string
	for _, c := range counts {
		if c.n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", c.n, c.label))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "no decisions")
	}
	return fmt.Sprintf("Summary: %d entries | %s\n", s.Total, strings.Join(parts, ", "))
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12]
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
