package sim

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DiffEntry represents one call whose decision changed.
type DiffEntry struct {
	Timestamp   string `json:"ts"`
	Caller      string `json:"caller"`
	Target      string `json:"target"`
	Method      string `json:"method"`
	OldDecision string `json:"old_decision"`
	NewDecision string `json:"new_decision"`
	OldRule     string `json:"old_rule"`
	NewRule     string `json:"new_rule"`
	NewReason   string `json:"new_reason,omitempty"`
}

// SimResult holds the complete simulation output.
type SimResult struct {
	ConfigPath       string      `json:"config_path"`
	TotalDecisions   int         `json:"total_decisions"`
	ChangedDecisions int         `json:"changed_decisions"`
	NewlyBlocked     int         `json:"newly_blocked"`
	NewlyAllowed     int         `json:"newly_allowed"`
	Skipped          int         `json:"skipped"`
	Changes          []DiffEntry `json:"changes"`
}

// isPermissive returns true for decisions that execute the call at once.
func isPermissive(decision string) bool {
	return decision == "allow"
}

// isRestrictive returns true for decisions that stop or hold the call.
func isRestrictive(decision string) bool {
	switch decision {
	case "deny", "require_approval":
		return true
	default:
		return false
	}
}

// FormatText renders the simulation result as human-readable text.
func FormatText(r *SimResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Simulating %s against %d recorded decisions...\n", r.ConfigPath, r.TotalDecisions)

	if len(r.Changes) == 0 {
		b.WriteString("\nNo changes detected.\n")
		return b.String()
	}

	b.WriteString("\n")
	for _, d := range r.Changes {
		ts := d.Timestamp
		if len(ts) >= 19 {
			ts = ts[11:19]
		}
		caller := d.Caller
		if len(caller) > 20 {
			caller = caller[:17] + "..."
		}
		fmt.Fprintf(&b, "  CHANGED  %s  %-20s %-24s %s → %s\n",
			ts, caller, d.Method, d.OldDecision, d.NewDecision)
	}

	fmt.Fprintf(&b, "\n%d of %d decisions changed.", r.ChangedDecisions, r.TotalDecisions)
	if r.NewlyBlocked > 0 || r.NewlyAllowed > 0 {
		fmt.Fprintf(&b, " %d newly blocked, %d newly allowed.", r.NewlyBlocked, r.NewlyAllowed)
	}
	if r.Skipped > 0 {
		fmt.Fprintf(&b, " %d skipped.", r.Skipped)
	}
	b.WriteString("\n")

	return b.String()
}

// FormatJSON renders the simulation result as JSON.
func FormatJSON(r *SimResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal sim result: %w", err)
	}
	return string(data), nil
}
