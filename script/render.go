// Package script renders the shell script a client runs. The main template
// defines the client's command line through the argparser variable, parses
// it and turns the compiled state into shell.
package script

import (
	"embed"
	"fmt"
	"io/fs"
	"os"

	"github.com/flosch/pongo2/v6"

	"github.com/wagnerflo/thincf/state"
	"github.com/wagnerflo/thincf/templating"
)

// MainTemplate is the name of the entry template.
const MainTemplate = "main"

//go:embed templates
var builtin embed.FS

// Renderer holds the compiled main template.
type Renderer struct {
	tpl *templating.Template
}

// NewRenderer compiles the main template. Templates in templateDir, if set,
// shadow the built-in ones.
func NewRenderer(templateDir string) (*Renderer, error) {
	sub, err := fs.Sub(builtin, "templates")
	if err != nil {
		return nil, err
	}

	var sources []templating.Source
	if templateDir != "" {
		sources = append(sources, templating.FSSource{FS: os.DirFS(templateDir)})
	}
	sources = append(sources, templating.FSSource{FS: sub})

	engine := templating.NewEngine("script", templating.ScriptSyntax, sources...)
	tpl, err := engine.Compile(MainTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s template: %w", MainTemplate, err)
	}
	return &Renderer{tpl: tpl}, nil
}

// Request is everything a script is rendered from. Args is the client's
// argument vector, program name first. A nil Result means the client is up
// to date.
type Request struct {
	Client string
	Args   []string
	Env    state.Env
	Result *state.Result
}

func (r *Renderer) Render(req Request) (string, error) {
	out, _, err := r.tpl.Render(pongo2.Context{
		"state":     NewView(req.Result),
		"changed":   req.Result != nil,
		"argparser": NewParser(req.Args),
		"env":       req.Env,
		"client":    req.Client,
	})
	if err != nil {
		return "", err
	}
	return out, nil
}
