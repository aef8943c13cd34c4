package denylist

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/callproxy/internal/principal"
)

// File is the on-disk YAML layout of a denylist seed.
type File struct {
	Targets map[principal.ID]string `yaml:"targets"`
}

// Entry is one denylisted target with its display label.
type Entry struct {
	Target principal.ID `json:"target"`
	Label  string       `json:"label"`
}

// Denylist holds targets the proxy must never forward to, keyed by
// principal with a human-readable label. Safe for concurrent use.
type Denylist struct {
	mu      sync.RWMutex
	entries map[principal.ID]string
}

// New creates a Denylist seeded with entries. Empty labels default to
// the principal's text form.
func New(entries map[principal.ID]string) *Denylist {
	d := &Denylist{entries: make(map[principal.ID]string, len(entries))}
	for target, label := range entries {
		d.Add(target, label)
	}
	return d
}

// Load reads a denylist seed from a YAML file. Empty path falls back to
// ~/.callproxy/denylist.yaml; a missing file yields an empty denylist.
func Load(path string) (*Denylist, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return New(nil), nil
		}
		path = filepath.Join(home, ".callproxy", "denylist.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(nil), nil
		}
		return nil, fmt.Errorf("failed to read denylist: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse denylist: %w", err)
	}

	return New(f.Targets), nil
}

// Add denylists target unless it already is, and returns the label now
// stored for it. An existing label is never overwritten.
func (d *Denylist) Add(target principal.ID, label string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.entries[target]; ok {
		return existing
	}
	if label == "" {
		label = target.Text()
	}
	d.entries[target] = label
	return label
}

// Remove un-denylists target and returns its former label.
func (d *Denylist) Remove(target principal.ID) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	label, ok := d.entries[target]
	if ok {
		delete(d.entries, target)
	}
	return label, ok
}

// Contains reports whether target is denylisted.
func (d *Denylist) Contains(target principal.ID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.entries[target]
	return ok
}

// IsBlocked checks target against the denylist.
// Returns (blocked, reason).
func (d *Denylist) IsBlocked(target principal.ID) (bool, string) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	label, ok := d.entries[target]
	if !ok {
		return false, ""
	}
	return true, fmt.Sprintf("target %s (%s) is denylisted", target, label)
}

// Len returns the number of denylisted targets.
func (d *Denylist) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Entries returns a sorted copy of the denylist.
func (d *Denylist) Entries() []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Entry, 0, len(d.entries))
	for target, label := range d.entries {
		out = append(out, Entry{Target: target, Label: label})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Target.Compare(out[j].Target) < 0
	})
	return out
}

// ToMap returns a copy of the entries keyed by principal.
func (d *Denylist) ToMap() map[principal.ID]string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[principal.ID]string, len(d.entries))
	for k, v := range d.entries {
		out[k] = v
	}
	return out
}

// Replace swaps the full contents. Used when restoring a snapshot.
func (d *Denylist) Replace(entries map[principal.ID]string) {
	fresh := make(map[principal.ID]string, len(entries))
	for k, v := range entries {
		fresh[k] = v
	}
	d.mu.Lock()
	d.entries = fresh
	d.mu.Unlock()
}
