package delegation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ppiankov/callproxy/internal/model"
	"github.com/ppiankov/callproxy/internal/principal"
)

func TestParseScope(t *testing.T) {
	ledger := principal.MustFromBytes([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02, 0x01, 0x01})
	doc := `
scope:
  - target: ` + ledger.Text() + `
    methods:
      withdraw:
        type: update
        key_operation: true
      balance:
        type: QUERY
      transfer: {}
`
	scope, err := ParseScope([]byte(doc))
	if err != nil {
		t.Fatalf("ParseScope: %v", err)
	}
	if len(scope) != 1 || scope[0].Target != ledger {
		t.Fatalf("unexpected scope: %+v", scope)
	}

	withdraw, ok := scope[0].Method("withdraw")
	if !ok || withdraw.Name != "withdraw" || withdraw.Type != model.Update || !withdraw.KeyOperation {
		t.Errorf("unexpected withdraw spec: %+v", withdraw)
	}
	balance, _ := scope[0].Method("balance")
	if balance.Type != model.Query || balance.KeyOperation {
		t.Errorf("unexpected balance spec: %+v", balance)
	}
	transfer, _ := scope[0].Method("transfer")
	if transfer.Type != model.Update || transfer.Name != "transfer" {
		t.Errorf("expected missing type to default to update, got %+v", transfer)
	}
}

func TestParseScopeErrors(t *testing.T) {
	ledger := principal.MustFromBytes([]byte{0x02})
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", "scope: []"},
		{"bad principal", "scope:\n  - target: nope\n"},
		{"bad type", "scope:\n  - target: " + ledger.Text() + "\n    methods:\n      m: {type: sideways}\n"},
		{"duplicate target", "scope:\n  - target: " + ledger.Text() + "\n  - target: " + ledger.Text() + "\n"},
		{"name mismatch", "scope:\n  - target: " + ledger.Text() + "\n    methods:\n      m: {name: other}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseScope([]byte(tt.doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadScopeMissingFile(t *testing.T) {
	if _, err := LoadScope(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "scope.yaml")
	if err := os.WriteFile(path, []byte("scope:\n  - target: "+principal.Anonymous.Text()+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadScope(path); err != nil {
		t.Errorf("LoadScope: %v", err)
	}
}
