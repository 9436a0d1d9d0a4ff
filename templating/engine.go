// Package templating wires the template engine used for bundle files and
// the client script: line statements, the shell helpers (declare, require,
// heredoc, shquote, octescape) and the directives a bundle template uses to
// describe its output (deploy, define action, action, paragraph).
package templating

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/flosch/pongo2/v6"
)

var ErrTemplateNotFound = errors.New("template not found")

// Source provides template text by slash-separated name.
type Source interface {
	Lookup(name string) (string, bool)
}

// MapSource serves templates from memory.
type MapSource map[string]string

func (m MapSource) Lookup(name string) (string, bool) {
	s, ok := m[name]
	return s, ok
}

// FSSource serves templates from a file system.
type FSSource struct {
	FS fs.FS
}

func (s FSSource) Lookup(name string) (string, bool) {
	data, err := fs.ReadFile(s.FS, name)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// loader resolves template names against the sources in order and hands
// the engine the rewritten text.
type loader struct {
	syntax  Syntax
	sources []Source
}

func (l *loader) Abs(_, name string) string {
	return path.Clean(strings.TrimPrefix(name, "/"))
}

func (l *loader) Get(name string) (io.Reader, error) {
	for _, src := range l.sources {
		if text, ok := src.Lookup(name); ok {
			return bytes.NewReader([]byte(l.syntax.Rewrite(text))), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
}

// Engine compiles templates of one syntax from a stack of sources. Earlier
// sources shadow later ones.
type Engine struct {
	syntax Syntax
	set    *pongo2.TemplateSet
}

func NewEngine(name string, syntax Syntax, sources ...Source) *Engine {
	return &Engine{
		syntax: syntax,
		set:    pongo2.NewSet(name, &loader{syntax: syntax, sources: sources}),
	}
}

// Compile parses the named template.
func (e *Engine) Compile(name string) (*Template, error) {
	tpl, err := e.set.FromFile(name)
	if err != nil {
		return nil, err
	}
	return &Template{name: name, tpl: tpl}, nil
}

// CompileString parses an anonymous template. name is only used in errors.
func (e *Engine) CompileString(name, src string) (*Template, error) {
	tpl, err := e.set.FromString(e.syntax.Rewrite(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &Template{name: name, tpl: tpl}, nil
}

// Template is a compiled template. It holds no per-render state and may be
// rendered concurrently.
type Template struct {
	name string
	tpl  *pongo2.Template
}

func (t *Template) Name() string { return t.name }

// Render executes the template with a fresh RenderContext and returns it
// together with the output.
func (t *Template) Render(vars pongo2.Context) (string, *RenderContext, error) {
	rc := NewRenderContext()
	ctx := pongo2.Context{}
	ctx.Update(vars)
	ctx[ContextKey] = rc

	out, err := t.tpl.Execute(ctx)
	if err != nil {
		return "", nil, err
	}
	return out, rc, nil
}
