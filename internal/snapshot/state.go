// Package snapshot serializes the complete proxy state (settings,
// delegations and the approval queue) as one unit, and stores it.
package snapshot

import (
	"fmt"
	"time"

	"github.com/ppiankov/callproxy/internal/approval"
	"github.com/ppiankov/callproxy/internal/model"
	"github.com/ppiankov/callproxy/internal/principal"
	"github.com/ppiankov/callproxy/internal/settings"
)

// Version is the current State layout version.
const Version = 1

// State is everything a proxy needs to resume after a restart.
type State struct {
	Version     int                `cbor:"version"`
	SavedAt     time.Time          `cbor:"saved_at"`
	Settings    Settings           `cbor:"settings"`
	Delegations []model.Delegation `cbor:"delegations"`
	Queue       []QueueEntry       `cbor:"queue"`
}

// Settings is the serialized form of settings.Values.
type Settings struct {
	DefaultLifetime time.Duration        `cbor:"default_lifetime"`
	Mode            model.ValidationMode `cbor:"validation_mode"`
	Denylist        []DenyEntry          `cbor:"denylist"`
}

// DenyEntry is one denylisted target.
type DenyEntry struct {
	Target principal.ID `cbor:"target"`
	Label  string       `cbor:"label"`
}

// QueueEntry is the serialized form of approval.Entry.
type QueueEntry struct {
	Hash        string                     `cbor:"hash"`
	Requester   principal.ID               `cbor:"requester"`
	CreatedAt   time.Time                  `cbor:"created_at"`
	Payload     model.CallRequest          `cbor:"payload"`
	Disposition approval.DispositionRecord `cbor:"disposition"`
	ResolvedAt  *time.Time                 `cbor:"resolved_at,omitempty"`
}

// FromSettings converts live settings values.
func FromSettings(v settings.Values) Settings {
	s := Settings{DefaultLifetime: v.DefaultLifetime, Mode: v.Mode}
	for target, label := range v.Denylist {
		s.Denylist = append(s.Denylist, DenyEntry{Target: target, Label: label})
	}
	sortDeny(s.Denylist)
	return s
}

// Values converts back to settings values.
func (s Settings) Values() settings.Values {
	v := settings.Values{
		DefaultLifetime: s.DefaultLifetime,
		Mode:            s.Mode,
		Denylist:        make(map[principal.ID]string, len(s.Denylist)),
	}
	for _, e := range s.Denylist {
		v.Denylist[e.Target] = e.Label
	}
	return v
}

// FromQueue converts live queue entries.
func FromQueue(entries []approval.Entry) []QueueEntry {
	out := make([]QueueEntry, len(entries))
	for i, e := range entries {
		out[i] = QueueEntry{
			Hash:        e.Hash,
			Requester:   e.Requester,
			CreatedAt:   e.CreatedAt,
			Payload:     e.Payload,
			Disposition: approval.ToRecord(e.Disposition),
			ResolvedAt:  e.ResolvedAt,
		}
	}
	return out
}

// QueueEntries converts back to live queue entries.
func (s *State) QueueEntries() ([]approval.Entry, error) {
	out := make([]approval.Entry, len(s.Queue))
	for i, e := range s.Queue {
		d, err := approval.FromRecord(e.Disposition)
		if err != nil {
			return nil, fmt.Errorf("queue entry %s: %w", e.Hash, err)
		}
		out[i] = approval.Entry{
			Hash:        e.Hash,
			Requester:   e.Requester,
			CreatedAt:   e.CreatedAt,
			Payload:     e.Payload,
			Disposition: d,
			ResolvedAt:  e.ResolvedAt,
		}
	}
	return out, nil
}
