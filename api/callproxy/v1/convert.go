package callproxyv1

import (
	"fmt"

	"github.com/ppiankov/callproxy/internal/model"
	"github.com/ppiankov/callproxy/internal/principal"
)

// ScopeToWire converts a scope to its wire form.
func ScopeToWire(scope []model.TargetScope) []TargetScope {
	out := make([]TargetScope, len(scope))
	for i, ts := range scope {
		methods := make(map[string]MethodSpec, len(ts.Methods))
		for name, spec := range ts.Methods {
			methods[name] = MethodSpec{
				Name:         spec.Name,
				Type:         string(spec.Type),
				KeyOperation: spec.KeyOperation,
			}
		}
		out[i] = TargetScope{Target: ts.Target.Text(), Methods: methods}
	}
	return out
}

// ScopeFromWire parses a wire scope. Names and duplicate targets are not
// checked here; see delegation.NormalizeScope.
func ScopeFromWire(scope []TargetScope) ([]model.TargetScope, error) {
	out := make([]model.TargetScope, len(scope))
	for i, ts := range scope {
		target, err := principal.Parse(ts.Target)
		if err != nil {
			return nil, fmt.Errorf("scope[%d]: %w", i, err)
		}
		methods := make(map[string]model.MethodSpec, len(ts.Methods))
		for name, spec := range ts.Methods {
			typ, err := model.ParseMethodType(spec.Type)
			if err != nil {
				return nil, fmt.Errorf("scope[%d] method %q: %w", i, name, err)
			}
			methods[name] = model.MethodSpec{
				Name:         spec.Name,
				Type:         typ,
				KeyOperation: spec.KeyOperation,
			}
		}
		out[i] = model.TargetScope{Target: target, Methods: methods}
	}
	return out, nil
}

// CallRequest parses the message into the proxy's request type.
func (r *ProxyCallRequest) CallRequest() (model.CallRequest, error) {
	target, err := principal.Parse(r.Target)
	if err != nil {
		return model.CallRequest{}, fmt.Errorf("target: %w", err)
	}
	amount, err := model.ParseAmount(r.Amount)
	if err != nil {
		return model.CallRequest{}, fmt.Errorf("amount: %w", err)
	}
	return model.CallRequest{Target: target, Method: r.Method, Args: r.Args, Amount: amount}, nil
}
