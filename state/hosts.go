package state

import (
	"errors"
	"fmt"

	"github.com/wagnerflo/thincf/inireader"
	"github.com/wagnerflo/thincf/pattern"
)

var ErrAttributeNotFound = errors.New("attribute not found")

// Match is one attribute found by a key pattern.
type Match struct {
	Key      string
	Wildcard string
	Value    string
}

// Host is one section of hosts.ini. Its methods are callable from templates.
type Host struct {
	name  string
	items []inireader.Item
}

func (h *Host) Name() string { return h.name }

// Keys returns the configured attribute names in order.
func (h *Host) Keys() []string {
	sec := inireader.Section{Name: h.name, Items: h.items}
	return sec.Keys()
}

// Find returns every attribute value whose key matches the pattern, in
// configuration order.
func (h *Host) Find(keyPattern string) []Match {
	m, err := pattern.CompileKey(keyPattern)
	if err != nil {
		return nil
	}
	var res []Match
	for _, it := range h.items {
		wildcard, ok := m.Match(it.Key)
		if !ok {
			continue
		}
		res = append(res, Match{Key: it.Key, Wildcard: wildcard, Value: it.Value})
	}
	return res
}

// Get returns the first value matching the key pattern.
func (h *Host) Get(keyPattern string) (string, error) {
	found := h.Find(keyPattern)
	if len(found) == 0 {
		return "", fmt.Errorf("%w: host %s has no %s", ErrAttributeNotFound, h.name, keyPattern)
	}
	return found[0].Value, nil
}

// GetAll returns all values matching the key pattern.
func (h *Host) GetAll(keyPattern string) []string {
	var vals []string
	for _, m := range h.Find(keyPattern) {
		vals = append(vals, m.Value)
	}
	return vals
}

func (h *Host) Has(keyPattern string) bool {
	return len(h.Find(keyPattern)) > 0
}

// Hosts is the host registry of a bundle.
type Hosts struct {
	ordered []*Host
	byName  map[string]*Host
}

func NewHosts(f *inireader.File) *Hosts {
	hs := &Hosts{byName: make(map[string]*Host, len(f.Sections))}
	for _, sec := range f.Sections {
		h := &Host{name: sec.Name, items: sec.Items}
		hs.ordered = append(hs.ordered, h)
		hs.byName[sec.Name] = h
	}
	return hs
}

// Lookup finds a host by exact name.
func (hs *Hosts) Lookup(name string) (*Host, bool) {
	h, ok := hs.byName[name]
	return h, ok
}

// All returns the hosts in configuration order.
func (hs *Hosts) All() []*Host {
	return hs.ordered
}

func (hs *Hosts) Len() int { return len(hs.ordered) }
