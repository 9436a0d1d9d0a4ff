package state

import (
	"fmt"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/flosch/pongo2/v6"

	"github.com/wagnerflo/thincf/templating"
)

// Result is the compiled state of one client.
type Result struct {
	Bundle      string
	Fingerprint string

	// Entries sorted by path.
	Entries []Entry

	// Actions sorted by name, Index i+1 at position i.
	Actions []*Action
}

// Evaluate compiles the bundle for host. A nil result without error means
// the client already applied an identical state (its fingerprint is among
// known).
func (b *Bundle) Evaluate(host *Host, known []string, env Env) (*Result, error) {
	if env == nil {
		env = Env{}
	}
	vars := pongo2.Context{
		"host":  host,
		"hosts": b.hosts.All(),
		"env":   env,
	}

	entries := map[string]Entry{}
	actions := map[string]*Action{}

	for _, name := range b.names {
		out, rc, err := b.templates[name].Render(vars)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", name, err)
		}

		md := rc.Metadata()
		switch md.Kind {
		case templating.KindNone:
			continue

		case templating.KindAction:
			if prev, ok := actions[md.Name]; ok {
				b.log.Warn("Action redefined, later definition wins",
					"action", md.Name, "template", name, "previous", prev.definedIn)
			}
			actions[md.Name] = &Action{Name: md.Name, Body: out, definedIn: name}

		case templating.KindFile, templating.KindSymlink, templating.KindDirectory:
			e, err := b.newEntry(name, md, out)
			if err != nil {
				return nil, fmt.Errorf("template %s: %w", name, err)
			}
			entries[name] = e

		default:
			return nil, fmt.Errorf("template %s: unhandled output kind %s", name, md.Kind)
		}
	}

	// explicitly listed directories
	for _, r := range b.rules.Literals() {
		p := r.Path()
		if _, ok := entries[p]; ok {
			continue
		}
		if cfg := b.rules.Resolve(p); cfg.CreateIf != nil {
			ok, err := cfg.CreateIf.Holds(host, env)
			if err != nil {
				return nil, fmt.Errorf("%s: [%s]: %w", DirsFile, p, err)
			}
			if !ok {
				continue
			}
		}
		e, err := b.dirEntry(p, nil)
		if err != nil {
			return nil, err
		}
		entries[p] = e
	}

	// parents
	for _, p := range sortedKeys(entries) {
		for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
			if _, ok := entries[dir]; ok {
				continue
			}
			e, err := b.dirEntry(dir, nil)
			if err != nil {
				return nil, err
			}
			entries[dir] = e
		}
	}

	res := &Result{Bundle: b.id}
	for _, p := range sortedKeys(entries) {
		res.Entries = append(res.Entries, entries[p])
	}

	if err := indexActions(res, actions); err != nil {
		return nil, err
	}

	// only the compiled result counts, bundles rendering alike share it
	fp := newFingerprinter()
	for _, e := range res.Entries {
		fp.addEntry(e)
	}
	for _, a := range res.Actions {
		fp.addAction(a)
	}
	res.Fingerprint = fp.sum()

	if slices.Contains(known, res.Fingerprint) {
		return nil, nil
	}
	return res, nil
}

// newEntry builds a file, symlink or directory entry from a rendered
// template. Ownership and mode start from the directory rules for the path
// and are overridden by deploy keywords.
func (b *Bundle) newEntry(p string, md *templating.Metadata, content string) (Entry, error) {
	var invs []Invocation
	for _, inv := range md.Invocations {
		invs = append(invs, Invocation{Name: inv.Name, Args: inv.Args})
	}

	switch md.Kind {
	case templating.KindDirectory:
		e, err := b.dirEntry(p, md.Options)
		if err != nil {
			return nil, err
		}
		e.Invocations = normalizeInvocations(append(e.Invocations, invs...))
		return e, nil

	case templating.KindFile:
		attrs, err := b.attributes(p, DefaultFileMode, md.Options, invs)
		if err != nil {
			return nil, err
		}
		return &FileEntry{Attributes: attrs, Content: content}, nil

	case templating.KindSymlink:
		attrs, err := b.attributes(p, DefaultSymlinkMode, md.Options, invs)
		if err != nil {
			return nil, err
		}
		target, _ := md.Option("target")
		return &SymlinkEntry{Attributes: attrs, Target: strings.TrimSpace(target)}, nil
	}
	return nil, fmt.Errorf("not an entry kind: %s", md.Kind)
}

func (b *Bundle) dirEntry(p string, options map[string]string) (*DirEntry, error) {
	attrs, err := b.attributes(p, DefaultDirMode, options, nil)
	if err != nil {
		return nil, err
	}
	return &DirEntry{Attributes: attrs}, nil
}

func (b *Bundle) attributes(p string, defaultMode uint32, options map[string]string, invs []Invocation) (Attributes, error) {
	cfg := b.rules.Resolve(p)
	attrs := Attributes{
		Path:  p,
		User:  DefaultOwner,
		Group: DefaultOwner,
		Mode:  defaultMode,
	}
	if cfg.User != nil {
		attrs.User = *cfg.User
	}
	if cfg.Group != nil {
		attrs.Group = *cfg.Group
	}
	if cfg.Mode != nil {
		attrs.Mode = *cfg.Mode
	}

	if v, ok := options["user"]; ok {
		attrs.User = v
	}
	if v, ok := options["group"]; ok {
		attrs.Group = v
	}
	if v, ok := options["mode"]; ok {
		mode, err := parseMode(v)
		if err != nil {
			return attrs, err
		}
		attrs.Mode = mode
	}

	attrs.Invocations = normalizeInvocations(append(append([]Invocation(nil), cfg.Actions...), invs...))
	return attrs, nil
}

// indexActions keeps the actions referenced by entries, numbers them and
// their argument tuples in ascending order and records the triggers.
func indexActions(res *Result, defined map[string]*Action) error {
	args := map[string][][]string{}
	for _, e := range res.Entries {
		for _, inv := range e.Attrs().Invocations {
			if _, ok := defined[inv.Name]; !ok {
				return fmt.Errorf("%s: action %s is not defined", e.Attrs().Path, inv.Name)
			}
			args[inv.Name] = append(args[inv.Name], inv.Args)
		}
	}

	index := map[string]*Action{}
	for n, name := range sortedKeys(args) {
		tuples := args[name]
		sort.SliceStable(tuples, func(i, j int) bool {
			return compareArgs(tuples[i], tuples[j]) < 0
		})
		tuples = slices.CompactFunc(tuples, func(a, b []string) bool {
			return compareArgs(a, b) == 0
		})

		a := defined[name]
		action := &Action{Name: a.Name, Body: a.Body, Index: n + 1, Arguments: tuples}
		res.Actions = append(res.Actions, action)
		index[name] = action
	}

	for _, e := range res.Entries {
		attrs := e.Attrs()
		attrs.Triggers = nil
		for _, inv := range attrs.Invocations {
			a := index[inv.Name]
			pos, _ := slices.BinarySearchFunc(a.Arguments, inv.Args, compareArgs)
			attrs.Triggers = append(attrs.Triggers, Trigger{Action: a.Index, Argument: pos + 1})
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
