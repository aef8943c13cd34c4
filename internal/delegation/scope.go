package delegation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/callproxy/internal/model"
)

// ScopeFile is the YAML form of a grant's scope.
//
//	scope:
//	  - target: rrkah-fqaaa-aaaaa-aaaaq-cai
//	    methods:
//	      withdraw: {type: update, key_operation: true}
//	      balance: {type: query}
type ScopeFile struct {
	Scope []model.TargetScope `yaml:"scope"`
}

// ParseScope decodes a scope document. Method names default to their map
// key and a missing type means update.
func ParseScope(data []byte) ([]model.TargetScope, error) {
	var f ScopeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse scope: %w", err)
	}
	if len(f.Scope) == 0 {
		return nil, fmt.Errorf("scope names no targets")
	}
	if err := NormalizeScope(f.Scope); err != nil {
		return nil, err
	}
	return f.Scope, nil
}

// NormalizeScope fills in method names and types in place and rejects
// duplicate targets and mismatched method names.
func NormalizeScope(scope []model.TargetScope) error {
	seen := make(map[string]bool, len(scope))
	for i := range scope {
		s := &scope[i]
		key := s.Target.Text()
		if seen[key] {
			return fmt.Errorf("scope: target %s listed twice", key)
		}
		seen[key] = true

		for name, spec := range s.Methods {
			if spec.Name == "" {
				spec.Name = name
			}
			if spec.Name != name {
				return fmt.Errorf("scope: method %q on %s has mismatched name %q", name, key, spec.Name)
			}
			if spec.Type == "" {
				spec.Type = model.Update
			}
			s.Methods[name] = spec
		}
	}
	return nil
}

// LoadScope reads a scope document from path.
func LoadScope(path string) ([]model.TargetScope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scope: %w", err)
	}
	return ParseScope(data)
}
