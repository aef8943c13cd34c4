package snapshot

import (
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Principals and amounts serialize through MarshalText.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("snapshot: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("snapshot: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes s with deterministic CBOR. Same state, same bytes.
func Marshal(s *State) ([]byte, error) {
	return encMode.Marshal(s)
}

// Unmarshal decodes a State and checks its version.
func Unmarshal(data []byte) (*State, error) {
	var s State
	if err := decMode.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Version != Version {
		return nil, fmt.Errorf("unsupported snapshot version %d (want %d)", s.Version, Version)
	}
	return &s, nil
}

func sortDeny(entries []DenyEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Target.Compare(entries[j].Target) < 0
	})
}
