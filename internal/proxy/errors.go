package proxy

import (
	"errors"
	"fmt"

	"github.com/ppiankov/callproxy/internal/principal"
)

// ErrCallerUnauthorized is returned when the caller fails an operation's
// owner or delegate guard.
var ErrCallerUnauthorized = errors.New("caller unauthorized")

// DeniedError reports a forwarding request refused by policy. It is
// fatal: nothing was queued or forwarded and retrying will not help
// until the owner changes scope or the denylist.
type DeniedError struct {
	Caller principal.ID
	Target principal.ID
	Method string
	Reason string
	Rule   string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("authorization denied for %s on %s.%s: %s", e.Caller, e.Target, e.Method, e.Reason)
}

func unauthorized(caller principal.ID, need string) error {
	return fmt.Errorf("%w: %s is not %s", ErrCallerUnauthorized, caller, need)
}
