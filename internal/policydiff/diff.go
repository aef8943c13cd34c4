// Package policydiff compares proxy configurations and delegation
// scopes, labelling each change as stricter or looser where it can.
package policydiff

import (
	"fmt"
	"sort"
	"time"

	"github.com/ppiankov/callproxy/internal/model"
	"github.com/ppiankov/callproxy/internal/principal"
	"github.com/ppiankov/callproxy/internal/ratelimit"
	"github.com/ppiankov/callproxy/internal/settings"
)

// Change represents a scalar field change.
type Change struct {
	Field   string `json:"field"`
	Old     string `json:"old"`
	New     string `json:"new"`
	Comment string `json:"comment,omitempty"`
}

// RuleChange represents a scope entry addition, removal, or modification.
type RuleChange struct {
	Type string `json:"type"` // "added", "removed", "changed"
	Rule string `json:"rule"`
}

// DiffResult holds the comparison of two configs or two scopes.
type DiffResult struct {
	Title       string       `json:"title"`
	OldPath     string       `json:"old_path"`
	NewPath     string       `json:"new_path"`
	Changes     []Change     `json:"changes"`
	RuleChanges []RuleChange `json:"rule_changes"`
	HasChanges  bool         `json:"has_changes"`
}

// Diff compares two proxy configs.
func Diff(old, new *settings.Config) *DiffResult {
	r := &DiffResult{Title: "Config diff"}

	if old.ValidationMode != new.ValidationMode {
		r.Changes = append(r.Changes, Change{
			Field:   "validation_mode",
			Old:     string(old.ValidationMode),
			New:     string(new.ValidationMode),
			Comment: modeComment(old.ValidationMode, new.ValidationMode),
		})
	}

	diffDuration(r, "default_lifetime", old.DefaultLifetime, new.DefaultLifetime)

	diffLimit(r, "rate_limit.default", old.RateLimit.Default, new.RateLimit.Default)

	// Map-based sections: a new denylist entry is stricter, a new target
	// or limit override says nothing on its own.
	diffMapKeys(r, "denylist", principalKeys(old.Denylist), principalKeys(new.Denylist))
	diffMapKeys(r, "targets", principalKeys(old.Targets), principalKeys(new.Targets))
	diffMapKeys(r, "rate_limit.delegates", limitKeys(old.RateLimit), limitKeys(new.RateLimit))

	r.HasChanges = len(r.Changes) > 0 || len(r.RuleChanges) > 0
	return r
}

// DiffScope compares a delegate's current scope with a proposed one.
func DiffScope(old, new []model.TargetScope) *DiffResult {
	r := &DiffResult{Title: "Scope diff"}

	oldMap := scopeMap(old)
	newMap := scopeMap(new)

	for _, key := range sortedKeys(newMap) {
		spec := newMap[key]
		if prev, exists := oldMap[key]; exists {
			if prev.Type != spec.Type || prev.KeyOperation != spec.KeyOperation {
				r.RuleChanges = append(r.RuleChanges, RuleChange{
					Type: "changed",
					Rule: fmt.Sprintf("%s → %s (was: %s)", key, specLabel(spec), specLabel(prev)),
				})
			}
			continue
		}
		r.RuleChanges = append(r.RuleChanges, RuleChange{
			Type: "added",
			Rule: fmt.Sprintf("%s → %s", key, specLabel(spec)),
		})
	}

	for _, key := range sortedKeys(oldMap) {
		if _, exists := newMap[key]; !exists {
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type: "removed",
				Rule: fmt.Sprintf("%s → %s", key, specLabel(oldMap[key])),
			})
		}
	}

	r.HasChanges = len(r.RuleChanges) > 0
	return r
}

// modeRank orders validation modes by how many delegated calls they
// queue. KEY and UPDATE are not comparable.
var modeRank = map[model.ValidationMode]int{
	model.ValidateKey:    1,
	model.ValidateUpdate: 1,
	model.ValidateAll:    2,
}

func modeComment(old, new model.ValidationMode) string {
	switch {
	case modeRank[new] > modeRank[old]:
		return "stricter"
	case modeRank[new] < modeRank[old]:
		return "looser"
	default:
		return ""
	}
}

func diffDuration(r *DiffResult, field string, old, new time.Duration) {
	if old == new {
		return
	}
	comment := "looser"
	if new < old {
		comment = "stricter"
	}
	r.Changes = append(r.Changes, Change{Field: field, Old: old.String(), New: new.String(), Comment: comment})
}

func diffLimit(r *DiffResult, field string, old, new ratelimit.Limit) {
	if old == new {
		return
	}
	r.Changes = append(r.Changes, Change{
		Field:   field,
		Old:     limitLabel(old),
		New:     limitLabel(new),
		Comment: limitComment(old, new),
	})
}

func limitLabel(l ratelimit.Limit) string {
	if !l.Enabled() {
		return "unlimited"
	}
	return fmt.Sprintf("%d/%s", l.MaxRequests, l.Window)
}

// limitComment compares allowed call rates; disabled is the loosest.
func limitComment(old, new ratelimit.Limit) string {
	switch {
	case !old.Enabled() && !new.Enabled():
		return ""
	case !old.Enabled():
		return "stricter"
	case !new.Enabled():
		return "looser"
	}
	oldRate := float64(old.MaxRequests) / old.Window.Seconds()
	newRate := float64(new.MaxRequests) / new.Window.Seconds()
	switch {
	case newRate < oldRate:
		return "stricter"
	case newRate > oldRate:
		return "looser"
	default:
		return ""
	}
}

func diffMapKeys(r *DiffResult, section string, oldKeys, newKeys []string) {
	oldSet := make(map[string]bool)
	for _, k := range oldKeys {
		oldSet[k] = true
	}
	newSet := make(map[string]bool)
	for _, k := range newKeys {
		newSet[k] = true
	}

	for _, k := range newKeys {
		if !oldSet[k] {
			r.Changes = append(r.Changes, Change{
				Field:   section,
				New:     k,
				Comment: "added",
			})
		}
	}
	for _, k := range oldKeys {
		if !newSet[k] {
			r.Changes = append(r.Changes, Change{
				Field:   section,
				Old:     k,
				Comment: "removed",
			})
		}
	}
}

func principalKeys[V any](m map[principal.ID]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k.Text())
	}
	sort.Strings(keys)
	return keys
}

func limitKeys(c ratelimit.Config) []string {
	return principalKeys(c.Delegates)
}

func scopeMap(scope []model.TargetScope) map[string]model.MethodSpec {
	out := make(map[string]model.MethodSpec)
	for _, s := range scope {
		for name, spec := range s.Methods {
			out[s.Target.Text()+"."+name] = spec
		}
	}
	return out
}

func sortedKeys(m map[string]model.MethodSpec) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func specLabel(spec model.MethodSpec) string {
	if spec.KeyOperation {
		return string(spec.Type) + " key"
	}
	return string(spec.Type)
}
