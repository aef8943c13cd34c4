package scenario

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/callproxy/internal/model"
	"github.com/ppiankov/callproxy/internal/principal"
	"github.com/ppiankov/callproxy/internal/settings"
)

var (
	ledger = principal.MustFromBytes([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02, 0x01, 0x01})
	vault  = principal.MustFromBytes([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03, 0x01, 0x01})
	owner  = principal.MustFromBytes([]byte{0x0c})
	user   = principal.MustFromBytes([]byte{0x0a})
)

func ledgerScenario() *Scenario {
	return &Scenario{
		Name:   "ledger delegate",
		Owners: []principal.ID{owner},
		Delegations: []Grant{{
			Delegate: user,
			Scope: []model.TargetScope{{
				Target: ledger,
				Methods: map[string]model.MethodSpec{
					"balance":  {Type: model.Query},
					"transfer": {Type: model.Update},
					"withdraw": {Type: model.Update, KeyOperation: true},
				},
			}},
		}},
	}
}

func TestRunAllPass(t *testing.T) {
	s := ledgerScenario()
	s.Cases = []Case{
		{Caller: owner, Target: vault, Method: "anything", Expect: "allow"},
		{Caller: user, Target: ledger, Method: "transfer", Expect: "allow"},
		{Caller: user, Target: ledger, Method: "withdraw", Expect: "require_approval"},
		{Caller: user, Target: ledger, Method: "mint", Expect: "deny"},
		{Caller: user, Target: vault, Method: "transfer", Expect: "deny"},
	}

	result, err := Run(s, settings.DefaultConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Total != 5 || result.Passed != 5 || result.Failed != 0 {
		t.Fatalf("expected 5/5 passed, got %d/%d (failed %d)", result.Passed, result.Total, result.Failed)
	}
	if result.Cases[3].Rule != "scope.method" {
		t.Errorf("expected scope.method, got %s", result.Cases[3].Rule)
	}
	if result.Cases[4].Rule != "scope.target" {
		t.Errorf("expected scope.target, got %s", result.Cases[4].Rule)
	}
}

func TestRunReportsFailure(t *testing.T) {
	s := ledgerScenario()
	s.Cases = []Case{
		{Caller: user, Target: ledger, Method: "withdraw", Expect: "allow"},
	}

	result, err := Run(s, settings.DefaultConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("expected 1 failure, got %d", result.Failed)
	}
	c := result.Cases[0]
	if c.Passed || c.Actual != "require_approval" || c.Rule != "mode.key" {
		t.Errorf("unexpected case result: %+v", c)
	}
}

func TestRunModeOverride(t *testing.T) {
	s := ledgerScenario()
	s.Mode = model.ValidateUpdate
	s.Cases = []Case{
		{Caller: user, Target: ledger, Method: "transfer", Expect: "require_approval"},
		{Caller: user, Target: ledger, Method: "balance", Expect: "allow"},
	}

	result, err := Run(s, settings.DefaultConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Failed != 0 {
		t.Errorf("expected all pass under UPDATE mode, got %+v", result.Cases)
	}
}

func TestRunDenylistBlocksOwner(t *testing.T) {
	s := ledgerScenario()
	s.Denylist = map[principal.ID]string{ledger: "frozen"}
	s.Cases = []Case{
		{Caller: owner, Target: ledger, Method: "transfer", Expect: "DENY"},
		{Caller: user, Target: ledger, Method: "balance", Expect: "deny"},
	}

	result, err := Run(s, settings.DefaultConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Failed != 0 {
		t.Fatalf("expected denylist to block both, got %+v", result.Cases)
	}
	if result.Cases[0].Rule != "denylist.block" || result.Cases[0].Reason == "" {
		t.Errorf("expected denylist.block with reason, got %+v", result.Cases[0])
	}
}

func TestRunRejectsMismatchedMethodName(t *testing.T) {
	s := ledgerScenario()
	s.Delegations[0].Scope[0].Methods["transfer"] = model.MethodSpec{Name: "send", Type: model.Update}

	if _, err := Run(s, settings.DefaultConfig()); err == nil {
		t.Error("expected error for mismatched method name")
	}
}

func TestLoadAndRun(t *testing.T) {
	doc := `name: yaml scenario
mode: ALL
owners:
  - ` + owner.Text() + `
delegations:
  - delegate: ` + user.Text() + `
    scope:
      - target: ` + ledger.Text() + `
        methods:
          balance:
            type: query
cases:
  - caller: ` + user.Text() + `
    target: ` + ledger.Text() + `
    method: balance
    expect: require_approval
  - caller: ` + owner.Text() + `
    target: ` + ledger.Text() + `
    method: balance
    expect: allow
`
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	result, err := LoadAndRun(path, settings.DefaultConfig())
	if err != nil {
		t.Fatalf("LoadAndRun: %v", err)
	}
	if result.File != path || result.Name != "yaml scenario" {
		t.Errorf("unexpected header: file=%s name=%s", result.File, result.Name)
	}
	if result.Passed != 2 {
		t.Errorf("expected 2 passed, got %+v", result.Cases)
	}
}

func TestLoadAndRunMissingFile(t *testing.T) {
	if _, err := LoadAndRun(filepath.Join(t.TempDir(), "missing.yaml"), settings.DefaultConfig()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFormatText(t *testing.T) {
	results := []*RunResult{
		{Name: "good", Total: 1, Passed: 1, Cases: []CaseResult{{Index: 1, Passed: true}}},
		{Name: "bad", Total: 1, Failed: 1, Cases: []CaseResult{{
			Index: 1, Caller: user.Text(), Method: "withdraw",
			Expected: "allow", Actual: "require_approval", Rule: "mode.key",
		}}},
	}

	out := FormatText(results)
	for _, want := range []string{"Checking 2 scenario files", "PASS  good", "FAIL  bad", "expected allow, got require_approval", "1 of 2 cases passed.", "1 of 2 scenarios failed."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatJSON(t *testing.T) {
	out, err := FormatJSON([]*RunResult{{Name: "x", Total: 0}})
	if err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}
	var back []RunResult
	if err := json.Unmarshal([]byte(out), &back); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(back) != 1 || back[0].Name != "x" {
		t.Errorf("unexpected round trip: %s", out)
	}
}
