package policydiff

import (
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/callproxy/internal/model"
	"github.com/ppiankov/callproxy/internal/principal"
	"github.com/ppiankov/callproxy/internal/ratelimit"
	"github.com/ppiankov/callproxy/internal/settings"
)

var (
	ledger = principal.MustFromBytes([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02, 0x01, 0x01})
	vault  = principal.MustFromBytes([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03, 0x01, 0x01})
	alice  = principal.MustFromBytes([]byte{0x0a})
)

func findChange(r *DiffResult, field string) *Change {
	for i := range r.Changes {
		if r.Changes[i].Field == field {
			return &r.Changes[i]
		}
	}
	return nil
}

func TestDiffIdentical(t *testing.T) {
	r := Diff(settings.DefaultConfig(), settings.DefaultConfig())
	if r.HasChanges {
		t.Errorf("expected no changes, got %+v", r.Changes)
	}
	if !strings.Contains(FormatText(r), "No changes detected") {
		t.Error("expected no-change text")
	}
}

func TestDiffValidationMode(t *testing.T) {
	old := settings.DefaultConfig()
	new := settings.DefaultConfig()
	new.ValidationMode = model.ValidateAll

	c := findChange(Diff(old, new), "validation_mode")
	if c == nil {
		t.Fatal("expected validation_mode change")
	}
	if c.Old != "KEY" || c.New != "ALL" || c.Comment != "stricter" {
		t.Errorf("unexpected change: %+v", c)
	}

	old.ValidationMode = model.ValidateUpdate
	new.ValidationMode = model.ValidateKey
	if c := findChange(Diff(old, new), "validation_mode"); c == nil || c.Comment != "" {
		t.Errorf("KEY and UPDATE are not comparable, got %+v", c)
	}
}

func TestDiffDefaultLifetime(t *testing.T) {
	old := settings.DefaultConfig()
	new := settings.DefaultConfig()
	new.DefaultLifetime = time.Hour

	c := findChange(Diff(old, new), "default_lifetime")
	if c == nil || c.Comment != "stricter" {
		t.Errorf("shorter lifetime should be stricter, got %+v", c)
	}
}

func TestDiffRateLimit(t *testing.T) {
	old := settings.DefaultConfig()
	new := settings.DefaultConfig()
	new.RateLimit = ratelimit.Config{
		Default:   ratelimit.Limit{MaxRequests: 10, Window: time.Minute},
		Delegates: map[principal.ID]ratelimit.Limit{alice: {MaxRequests: 1, Window: time.Minute}},
	}

	r := Diff(old, new)
	c := findChange(r, "rate_limit.default")
	if c == nil || c.Old != "unlimited" || c.New != "10/1m0s" || c.Comment != "stricter" {
		t.Errorf("unexpected default limit change: %+v", c)
	}
	if c := findChange(r, "rate_limit.delegates"); c == nil || c.New != alice.Text() {
		t.Errorf("expected delegate override added, got %+v", c)
	}

	looser := settings.DefaultConfig()
	looser.RateLimit.Default = ratelimit.Limit{MaxRequests: 20, Window: time.Minute}
	if c := findChange(Diff(new, looser), "rate_limit.default"); c == nil || c.Comment != "looser" {
		t.Errorf("higher rate should be looser, got %+v", c)
	}
}

func TestDiffDenylistAndTargets(t *testing.T) {
	old := settings.DefaultConfig()
	old.Targets[vault] = "127.0.0.1:1"
	new := settings.DefaultConfig()
	new.Denylist[ledger] = "ledger"

	r := Diff(old, new)
	if c := findChange(r, "denylist"); c == nil || c.Comment != "added" || c.New != ledger.Text() {
		t.Errorf("expected denylist addition, got %+v", c)
	}
	if c := findChange(r, "targets"); c == nil || c.Comment != "removed" || c.Old != vault.Text() {
		t.Errorf("expected target removal, got %+v", c)
	}

	text := FormatText(r)
	if !strings.Contains(text, "denylist: + "+ledger.Text()) || !strings.Contains(text, "targets: - "+vault.Text()) {
		t.Errorf("unexpected text:\n%s", text)
	}
}

func TestDiffScope(t *testing.T) {
	old := []model.TargetScope{{
		Target: ledger,
		Methods: map[string]model.MethodSpec{
			"withdraw": {Name: "withdraw", Type: model.Update},
			"balance":  {Name: "balance", Type: model.Query},
		},
	}}
	new := []model.TargetScope{
		{
			Target: ledger,
			Methods: map[string]model.MethodSpec{
				"withdraw": {Name: "withdraw", Type: model.Update, KeyOperation: true},
			},
		},
		{
			Target:  vault,
			Methods: map[string]model.MethodSpec{"open": {Name: "open", Type: model.Update}},
		},
	}

	r := DiffScope(old, new)
	if !r.HasChanges {
		t.Fatal("expected changes")
	}
	types := map[string]int{}
	for _, rc := range r.RuleChanges {
		types[rc.Type]++
	}
	if types["added"] != 1 || types["removed"] != 1 || types["changed"] != 1 {
		t.Errorf("expected one of each change type, got %v", r.RuleChanges)
	}

	text := FormatText(r)
	if !strings.Contains(text, "~ "+ledger.Text()+".withdraw → update key (was: update)") {
		t.Errorf("missing changed method in:\n%s", text)
	}
	if !strings.Contains(text, "- "+ledger.Text()+".balance") {
		t.Errorf("missing removed method in:\n%s", text)
	}
}

func TestDiffScopeIdentical(t *testing.T) {
	scope := []model.TargetScope{{
		Target:  ledger,
		Methods: map[string]model.MethodSpec{"withdraw": {Name: "withdraw", Type: model.Update}},
	}}
	if DiffScope(scope, scope).HasChanges {
		t.Error("expected no changes")
	}
}

func TestFormatJSON(t *testing.T) {
	old := settings.DefaultConfig()
	new := settings.DefaultConfig()
	new.ValidationMode = model.ValidateAll
	out, err := FormatJSON(Diff(old, new))
	if err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}
	if !strings.Contains(out, `"validation_mode"`) {
		t.Errorf("expected field in JSON: %s", out)
	}
}
