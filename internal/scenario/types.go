package scenario

import (
	"github.com/ppiankov/callproxy/internal/model"
	"github.com/ppiankov/callproxy/internal/principal"
)

// Grant is a delegation the scenario starts with.
type Grant struct {
	Delegate principal.ID        `yaml:"delegate"`
	Scope    []model.TargetScope `yaml:"scope"`
}

// Case is one test case within a scenario.
type Case struct {
	Caller principal.ID `yaml:"caller"`
	Target principal.ID `yaml:"target"`
	Method string       `yaml:"method"`
	Expect string       `yaml:"expect"`
}

// Scenario is a named collection of authorization test cases. Mode and
// Denylist are applied on top of the config the scenario runs against.
type Scenario struct {
	Name        string                  `yaml:"name"`
	Mode        model.ValidationMode    `yaml:"mode,omitempty"`
	Owners      []principal.ID          `yaml:"owners"`
	Denylist    map[principal.ID]string `yaml:"denylist,omitempty"`
	Delegations []Grant                 `yaml:"delegations"`
	Cases       []Case                  `yaml:"cases"`
}

// CaseResult is the outcome of evaluating one test case.
type CaseResult struct {
	Index    int    `json:"index"`
	Passed   bool   `json:"passed"`
	Caller   string `json:"caller"`
	Method   string `json:"method"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Rule     string `json:"rule"`
	Reason   string `json:"reason,omitempty"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
