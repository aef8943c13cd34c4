// Package principal implements the opaque identity used for owners,
// delegates and call targets.
//
// An ID is a short byte string (at most 29 bytes). Its textual form is
// the Internet Computer principal encoding: a big-endian CRC32 of the
// raw bytes is prepended, the result is base32 encoded (lowercase, no
// padding) and split into dash-separated groups of five characters.
package principal

import (
	"bytes"
	"encoding/base32"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"strings"
)

// MaxLength is the maximum length of a raw principal in bytes.
const MaxLength = 29

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// ID is a principal identifier. The zero value is the management
// principal ("aaaaa-aa"). IDs are comparable and usable as map keys.
type ID struct {
	raw string
}

var (
	// Management is the empty principal.
	Management = ID{}
	// Anonymous is the principal of unauthenticated callers.
	Anonymous = ID{raw: "\x04"}
)

// FromBytes builds an ID from its raw bytes.
func FromBytes(b []byte) (ID, error) {
	if len(b) > MaxLength {
		return ID{}, fmt.Errorf("principal too long: %d bytes (max %d)", len(b), MaxLength)
	}
	return ID{raw: string(b)}, nil
}

// MustFromBytes is FromBytes that panics on error. For constants and tests.
func MustFromBytes(b []byte) ID {
	id, err := FromBytes(b)
	if err != nil {
		panic(err)
	}
	return id
}

// FromHex builds an ID from hex-encoded raw bytes.
func FromHex(s string) (ID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, fmt.Errorf("invalid principal hex: %w", err)
	}
	return FromBytes(b)
}

// Parse decodes the textual form and verifies its checksum.
func Parse(text string) (ID, error) {
	compact := strings.ToUpper(strings.ReplaceAll(text, "-", ""))
	decoded, err := encoding.DecodeString(compact)
	if err != nil {
		return ID{}, fmt.Errorf("invalid principal %q: %w", text, err)
	}
	if len(decoded) < 4 {
		return ID{}, fmt.Errorf("invalid principal %q: too short", text)
	}
	id, err := FromBytes(decoded[4:])
	if err != nil {
		return ID{}, fmt.Errorf("invalid principal %q: %w", text, err)
	}
	if binary.BigEndian.Uint32(decoded[:4]) != crc32.ChecksumIEEE(decoded[4:]) {
		return ID{}, fmt.Errorf("invalid principal %q: checksum mismatch", text)
	}
	if id.Text() != strings.ToLower(text) {
		return ID{}, fmt.Errorf("invalid principal %q: not in canonical form (expected %s)", text, id.Text())
	}
	return id, nil
}

// MustParse is Parse that panics on error. For constants and tests.
func MustParse(text string) ID {
	id, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return id
}

// Bytes returns a copy of the raw bytes.
func (id ID) Bytes() []byte {
	return []byte(id.raw)
}

// Len returns the raw length in bytes.
func (id ID) Len() int {
	return len(id.raw)
}

// IsAnonymous reports whether id is the anonymous principal.
func (id ID) IsAnonymous() bool {
	return id == Anonymous
}

// Compare orders IDs by their raw bytes.
func (id ID) Compare(other ID) int {
	return bytes.Compare([]byte(id.raw), []byte(other.raw))
}

// Text returns the canonical textual form.
func (id ID) Text() string {
	buf := make([]byte, 4+len(id.raw))
	binary.BigEndian.PutUint32(buf, crc32.ChecksumIEEE([]byte(id.raw)))
	copy(buf[4:], id.raw)
	enc := strings.ToLower(encoding.EncodeToString(buf))

	var b strings.Builder
	for i := 0; i < len(enc); i += 5 {
		if i > 0 {
			b.WriteByte('-')
		}
		end := i + 5
		if end > len(enc) {
			end = len(enc)
		}
		b.WriteString(enc[i:end])
	}
	return b.String()
}

// String implements fmt.Stringer.
func (id ID) String() string {
	return id.Text()
}

// Hex returns the raw bytes hex-encoded.
func (id ID) Hex() string {
	return hex.EncodeToString([]byte(id.raw))
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.Text()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
