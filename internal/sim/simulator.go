// Package sim replays recorded call decisions against a proposed
// config to show which calls would be decided differently.
package sim

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ppiankov/callproxy/internal/audit"
	"github.com/ppiankov/callproxy/internal/denylist"
	"github.com/ppiankov/callproxy/internal/model"
	"github.com/ppiankov/callproxy/internal/policy"
	"github.com/ppiankov/callproxy/internal/principal"
	"github.com/ppiankov/callproxy/internal/ratelimit"
	"github.com/ppiankov/callproxy/internal/settings"
)

// Input is what a simulation replays against.
type Input struct {
	LogPath    string
	ConfigPath string
	// Config supplies the proposed validation mode and denylist.
	Config *settings.Config
	// Delegations supplies scopes. Expiry is ignored: only scope and
	// mode changes are simulated.
	Delegations []model.Delegation
	// IsOwner reports ownership. Nil means nobody is an owner.
	IsOwner func(principal.ID) bool
}

// Simulate replays the decision entries of the audit log and returns
// the ones whose outcome changes. Rate-limit denials are skipped since
// they depend on call timing.
func Simulate(in Input) (*SimResult, error) {
	entries, err := readDecisions(in.LogPath)
	if err != nil {
		return nil, err
	}

	dl := denylist.New(in.Config.Denylist)
	scopes := newStaticScopes(in.Delegations)
	result := &SimResult{ConfigPath: in.ConfigPath}

	for _, entry := range entries {
		if entry.Rule == ratelimit.RuleID {
			result.Skipped++
			continue
		}
		caller, err := principal.Parse(entry.Caller)
		if err != nil {
			result.Skipped++
			continue
		}
		target, err := principal.Parse(entry.Target)
		if err != nil {
			result.Skipped++
			continue
		}
		result.TotalDecisions++

		isOwner := in.IsOwner != nil && in.IsOwner(caller)
		decision := policy.Authorize(policy.Request{
			Caller:  caller,
			IsOwner: isOwner,
			Target:  target,
			Method:  entry.Method,
			Mode:    in.Config.ValidationMode,
		}, dl, scopes)

		newDecision := decision.Kind()
		if newDecision == entry.Decision {
			continue
		}

		diff := DiffEntry{
			Timestamp:   entry.Timestamp,
			Caller:      entry.Caller,
			Target:      entry.Target,
			Method:      entry.Method,
			OldDecision: entry.Decision,
			NewDecision: newDecision,
			OldRule:     entry.Rule,
			NewRule:     decision.Rule(),
		}
		if d, ok := decision.(policy.Deny); ok {
			diff.NewReason = d.Reason
		}
		result.Changes = append(result.Changes, diff)
		result.ChangedDecisions++

		if isPermissive(entry.Decision) && isRestrictive(newDecision) {
			result.NewlyBlocked++
		}
		if isRestrictive(entry.Decision) && isPermissive(newDecision) {
			result.NewlyAllowed++
		}
	}

	return result, nil
}

// readDecisions reads the decision entries of the audit log in order.
// Malformed lines are skipped.
func readDecisions(logPath string) ([]audit.AuditEntry, error) {
	f, err := os.Open(logPath)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var out []audit.AuditEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry audit.AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if entry.Type == audit.EventDecision {
			out = append(out, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return out, nil
}

// staticScopes answers scope questions from a fixed delegation list.
type staticScopes map[principal.ID]model.Delegation

func newStaticScopes(ds []model.Delegation) staticScopes {
	s := make(staticScopes, len(ds))
	for _, d := range ds {
		s[d.Delegate] = d
	}
	return s
}

func (s staticScopes) CoversTarget(delegate, target principal.ID) bool {
	_, ok := s[delegate].Target(target)
	return ok
}

func (s staticScopes) MethodSpec(delegate, target principal.ID, method string) (model.MethodSpec, bool) {
	scope, ok := s[delegate].Target(target)
	if !ok {
		return model.MethodSpec{}, false
	}
	return scope.Method(method)
}
