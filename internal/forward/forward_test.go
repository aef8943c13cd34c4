package forward

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ppiankov/callproxy/internal/model"
	"github.com/ppiankov/callproxy/internal/principal"
)

var (
	self   = principal.MustFromBytes([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x01, 0x01})
	ledger = principal.MustFromBytes([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02, 0x01, 0x01})
)

type recordingTransport struct {
	calls  int
	target principal.ID
	method string
	args   []byte
	amount model.Amount
	ret    []byte
	err    error
}

func (r *recordingTransport) RawCall(_ context.Context, target principal.ID, method string, args []byte, amount model.Amount) ([]byte, error) {
	r.calls++
	r.target, r.method, r.args, r.amount = target, method, args, amount
	return r.ret, r.err
}

func TestForwardPassThrough(t *testing.T) {
	tr := &recordingTransport{ret: []byte{0x01, 0x02}}
	e := NewExecutor(self, tr)

	req := model.CallRequest{Target: ledger, Method: "withdraw", Args: []byte{0xaa}, Amount: model.AmountFromUint64(7)}
	ret, err := e.Forward(context.Background(), req)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if !bytes.Equal(ret, []byte{0x01, 0x02}) {
		t.Errorf("expected reply bytes unchanged, got %x", ret)
	}
	if tr.target != ledger || tr.method != "withdraw" || !bytes.Equal(tr.args, []byte{0xaa}) || tr.amount != model.AmountFromUint64(7) {
		t.Errorf("expected request passed verbatim, got %+v", tr)
	}
}

func TestForwardSelfCall(t *testing.T) {
	tr := &recordingTransport{}
	e := NewExecutor(self, tr)

	_, err := e.Forward(context.Background(), model.CallRequest{Target: self, Method: "withdraw"})
	if !errors.Is(err, ErrSelfCall) {
		t.Fatalf("expected ErrSelfCall, got %v", err)
	}
	if !strings.Contains(err.Error(), "self-call") {
		t.Errorf("expected message to mention self-call, got %q", err.Error())
	}
	if tr.calls != 0 {
		t.Error("self-call must not reach the transport")
	}
}

func TestForwardRejectFormatted(t *testing.T) {
	tr := &recordingTransport{err: &RejectError{Code: TargetReject, Message: "insufficient funds"}}
	e := NewExecutor(self, tr)

	_, err := e.Forward(context.Background(), model.CallRequest{Target: ledger, Method: "withdraw"})
	if err == nil {
		t.Fatal("expected error")
	}
	if want := "An error happened during the call: 4: insufficient funds"; err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
	var rej *RejectError
	if !errors.As(err, &rej) || rej.Code != TargetReject {
		t.Errorf("expected RejectError to be reachable, got %v", err)
	}
}

func TestForwardClassifiesPlainErrors(t *testing.T) {
	tests := []struct {
		err  error
		code RejectCode
	}{
		{context.DeadlineExceeded, SysTransient},
		{errors.New("boom"), SysFatal},
	}
	for _, tt := range tests {
		e := NewExecutor(self, &recordingTransport{err: tt.err})
		_, err := e.Forward(context.Background(), model.CallRequest{Target: ledger})
		var ce *CallError
		if !errors.As(err, &ce) {
			t.Fatalf("expected CallError, got %v", err)
		}
		if ce.Reject.Code != tt.code {
			t.Errorf("%v: expected code %d, got %d", tt.err, tt.code, ce.Reject.Code)
		}
	}
}
