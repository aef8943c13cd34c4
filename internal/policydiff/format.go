package policydiff

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders the diff result as human-readable text.
func FormatText(r *DiffResult) string {
	if !r.HasChanges {
		return fmt.Sprintf("%s: %s → %s\n\nNo changes detected.\n", r.Title, r.OldPath, r.NewPath)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s → %s\n", r.Title, r.OldPath, r.NewPath)

	scalars := filterScalar(r.Changes)
	mapChanges := filterSections(r.Changes, "denylist", "targets", "rate_limit.delegates")

	if len(scalars) > 0 {
		b.WriteString("\n")
		for _, c := range scalars {
			fmt.Fprintf(&b, "  %-24s %s → %s", c.Field+":", c.Old, c.New)
			if c.Comment != "" {
				fmt.Fprintf(&b, "  (%s)", c.Comment)
			}
			b.WriteString("\n")
		}
	}

	if len(r.RuleChanges) > 0 {
		b.WriteString("\n  Methods:\n")
		for _, rc := range r.RuleChanges {
			switch rc.Type {
			case "added":
				fmt.Fprintf(&b, "    + %s\n", rc.Rule)
			case "removed":
				fmt.Fprintf(&b, "    - %s\n", rc.Rule)
			case "changed":
				fmt.Fprintf(&b, "    ~ %s\n", rc.Rule)
			}
		}
	}

	if len(mapChanges) > 0 {
		b.WriteString("\n")
		for _, c := range mapChanges {
			switch c.Comment {
			case "added":
				fmt.Fprintf(&b, "  %s: + %s\n", c.Field, c.New)
			case "removed":
				fmt.Fprintf(&b, "  %s: - %s\n", c.Field, c.Old)
			}
		}
	}

	return b.String()
}

// FormatJSON renders the diff result as JSON.
func FormatJSON(r *DiffResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal diff result: %w", err)
	}
	return string(data), nil
}

func filterSections(changes []Change, sections ...string) []Change {
	var out []Change
	for _, c := range changes {
		for _, s := range sections {
			if c.Field == s {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func filterScalar(changes []Change) []Change {
	var out []Change
	for _, c := range changes {
		switch c.Field {
		case "denylist", "targets", "rate_limit.delegates":
		default:
			out = append(out, c)
		}
	}
	return out
}
