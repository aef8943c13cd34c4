// Package scenario checks authorization decisions against YAML files of
// expected outcomes.
package scenario

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/callproxy/internal/clock"
	"github.com/ppiankov/callproxy/internal/delegation"
	"github.com/ppiankov/callproxy/internal/denylist"
	"github.com/ppiankov/callproxy/internal/identity"
	"github.com/ppiankov/callproxy/internal/policy"
	"github.com/ppiankov/callproxy/internal/settings"
)

// Run evaluates all cases in a scenario against cfg. The scenario's
// delegations are granted with the config's default lifetime.
func Run(s *Scenario, cfg *settings.Config) (*RunResult, error) {
	store, err := settings.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	mode := cfg.ValidationMode
	if s.Mode != "" {
		mode = s.Mode
	}

	dl := denylist.New(cfg.Denylist)
	for target, label := range s.Denylist {
		dl.Add(target, label)
	}

	registry := delegation.New(clock.Real(), store)
	for _, g := range s.Delegations {
		if err := delegation.NormalizeScope(g.Scope); err != nil {
			return nil, fmt.Errorf("delegation %s: %w", g.Delegate, err)
		}
		registry.Grant(g.Delegate, g.Scope, nil)
	}
	owners := identity.NewOwners(s.Owners...)

	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
	}

	for i, c := range s.Cases {
		decision := policy.Authorize(policy.Request{
			Caller:  c.Caller,
			IsOwner: owners.IsOwner(c.Caller),
			Target:  c.Target,
			Method:  c.Method,
			Mode:    mode,
		}, dl, registry)

		actual := decision.Kind()
		expected := strings.ToLower(c.Expect)

		cr := CaseResult{
			Index:    i + 1,
			Caller:   c.Caller.Text(),
			Method:   c.Method,
			Expected: expected,
			Actual:   actual,
			Rule:     decision.Rule(),
		}
		if d, ok := decision.(policy.Deny); ok {
			cr.Reason = d.Reason
		}

		if actual == expected {
			cr.Passed = true
			result.Passed++
		} else {
			result.Failed++
		}

		result.Cases = append(result.Cases, cr)
	}

	return result, nil
}

// LoadAndRun loads a scenario YAML file and runs it against cfg.
func LoadAndRun(path string, cfg *settings.Config) (*RunResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	result, err := Run(&s, cfg)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	result.File = path
	return result, nil
}
