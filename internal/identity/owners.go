// Package identity answers who owns the proxy.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/callproxy/internal/principal"
)

// OwnersFile is the on-disk YAML layout of the owners list.
type OwnersFile struct {
	Owners []principal.ID `yaml:"owners"`
}

// Owners is the set of principals with unconditional authority over the
// proxy, backed by a YAML file. Safe for concurrent use.
type Owners struct {
	mu    sync.RWMutex
	path  string
	owner map[principal.ID]struct{}
}

// NewOwners creates an in-memory owner set that is not backed by a file.
func NewOwners(ids ...principal.ID) *Owners {
	o := &Owners{owner: make(map[principal.ID]struct{}, len(ids))}
	for _, id := range ids {
		o.owner[id] = struct{}{}
	}
	return o
}

// NewOwnersAt creates an owner set holding ids that Save writes to path,
// without reading path.
func NewOwnersAt(path string, ids ...principal.ID) *Owners {
	o := NewOwners(ids...)
	o.path = path
	return o
}

// LoadOwners reads the owners file. A missing file yields an empty set
// that Save will create.
func LoadOwners(path string) (*Owners, error) {
	o := &Owners{path: path, owner: make(map[principal.ID]struct{})}
	if err := o.Reload(); err != nil {
		return nil, err
	}
	return o, nil
}

// Path returns the backing file, or "" for an in-memory set.
func (o *Owners) Path() string {
	return o.path
}

// Reload re-reads the backing file, replacing the set.
func (o *Owners) Reload() error {
	if o.path == "" {
		return nil
	}
	data, err := os.ReadFile(o.path)
	if err != nil {
		if os.IsNotExist(err) {
			o.replace(nil)
			return nil
		}
		return fmt.Errorf("failed to read owners file: %w", err)
	}

	var f OwnersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse owners file: %w", err)
	}
	o.replace(f.Owners)
	return nil
}

func (o *Owners) replace(ids []principal.ID) {
	next := make(map[principal.ID]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}
	o.mu.Lock()
	o.owner = next
	o.mu.Unlock()
}

// IsOwner reports whether id is an owner.
func (o *Owners) IsOwner(id principal.ID) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.owner[id]
	return ok
}

// Add makes id an owner and reports whether it was new.
func (o *Owners) Add(id principal.ID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.owner[id]; ok {
		return false
	}
	o.owner[id] = struct{}{}
	return true
}

// Remove revokes ownership and reports whether id was an owner.
func (o *Owners) Remove(id principal.ID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.owner[id]; !ok {
		return false
	}
	delete(o.owner, id)
	return true
}

// Len returns the number of owners.
func (o *Owners) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.owner)
}

// List returns all owners ordered by principal.
func (o *Owners) List() []principal.ID {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]principal.ID, 0, len(o.owner))
	for id := range o.owner {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}

// Save writes the set to its backing file atomically.
func (o *Owners) Save() error {
	if o.path == "" {
		return fmt.Errorf("owners set has no backing file")
	}
	data, err := yaml.Marshal(OwnersFile{Owners: o.List()})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(o.path), 0o700); err != nil {
		return fmt.Errorf("cannot create owners directory: %w", err)
	}
	tmp := o.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, o.path)
}
