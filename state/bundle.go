// Package state compiles an uploaded configuration bundle into the entries
// and actions one client has to apply.
package state

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/wagnerflo/thincf/inireader"
	"github.com/wagnerflo/thincf/templating"
)

// Reserved bundle files.
const (
	HostsFile = "hosts.ini"
	DirsFile  = "dirs.ini"
)

// IdentifierLayout formats bundle identifiers. Lexical order of identifiers
// is chronological order.
const IdentifierLayout = "2006-01-02T15:04:05.000000Z07:00"

var ErrHostsMissing = errors.New(HostsFile + " missing")

// NewIdentifier derives a bundle identifier from the ingestion time.
func NewIdentifier(t time.Time) string {
	return t.UTC().Format(IdentifierLayout)
}

// Bundle is an immutable, compiled configuration source tree.
type Bundle struct {
	id        string
	hosts     *Hosts
	rules     *DirRules
	files     map[string]string
	names     []string
	templates map[string]*templating.Template
	log       *slog.Logger
}

// NewBundle parses the reserved files and compiles every other file as a
// template, so syntax errors surface before the bundle is accepted.
func NewBundle(id string, files map[string]string, log *slog.Logger) (*Bundle, error) {
	hostsSrc, ok := files[HostsFile]
	if !ok {
		return nil, ErrHostsMissing
	}
	hostsIni, err := inireader.Read(HostsFile, []byte(hostsSrc))
	if err != nil {
		return nil, err
	}

	engine := templating.NewEngine(id, templating.StateSyntax, templating.MapSource(files))

	var dirsIni *inireader.File
	if dirsSrc, ok := files[DirsFile]; ok {
		if dirsIni, err = inireader.Read(DirsFile, []byte(dirsSrc)); err != nil {
			return nil, err
		}
	}
	rules, err := NewDirRules(dirsIni, engine)
	if err != nil {
		return nil, err
	}

	b := &Bundle{
		id:        id,
		hosts:     NewHosts(hostsIni),
		rules:     rules,
		files:     files,
		templates: map[string]*templating.Template{},
		log:       log,
	}

	for name := range files {
		if name == HostsFile || name == DirsFile {
			continue
		}
		b.names = append(b.names, name)
	}
	sort.Strings(b.names)

	for _, name := range b.names {
		tpl, err := engine.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", name, err)
		}
		b.templates[name] = tpl
	}

	return b, nil
}

func (b *Bundle) Identifier() string { return b.id }

func (b *Bundle) Hosts() *Hosts { return b.hosts }

func (b *Bundle) Rules() *DirRules { return b.rules }

// Host finds a client by name.
func (b *Bundle) Host(name string) (*Host, bool) {
	return b.hosts.Lookup(name)
}

// Files returns the raw bundle content.
func (b *Bundle) Files() map[string]string { return b.files }

// Templates returns the sorted template paths.
func (b *Bundle) Templates() []string { return b.names }
