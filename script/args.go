package script

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/urfave/cli/v2"
)

// Modes reported besides the ones a template adds.
const (
	ModeHelp  = "help"
	ModeError = "error"
)

var (
	errUnknownMode   = errors.New("unknown mode")
	errAlreadyParsed = errors.New("command line already parsed")
)

// Args is the parsed command line of the client. Usage is set for help and
// error, Message for error only. Flag, option and argument values are read
// by name.
type Args struct {
	Program string
	Mode    string
	Usage   string
	Message string

	values map[string]any
}

// Bool returns the value of a flag.
func (a *Args) Bool(name string) bool {
	v, _ := a.values[name].(bool)
	return v
}

// String returns the value of an option or a single argument.
func (a *Args) String(name string) string {
	v, _ := a.values[name].(string)
	return v
}

// Strings returns the values of a repeated argument.
func (a *Args) Strings(name string) []string {
	v, _ := a.values[name].([]string)
	return v
}

// Has reports whether the selected mode knows name.
func (a *Args) Has(name string) bool {
	_, ok := a.values[name]
	return ok
}

// Parser builds the client command line from template calls and parses
// the argument vector against it. Every builder method returns an empty
// string so it can be called from a `do` directive or an expression.
type Parser struct {
	app    *cli.App
	out    bytes.Buffer
	argv   []string
	modes  []*Mode
	parsed *Args
}

// NewParser prepares parsing argv, program name first.
func NewParser(argv []string) *Parser {
	if len(argv) == 0 {
		argv = []string{"thincf"}
	}
	p := &Parser{argv: argv}

	p.app = &cli.App{
		Name:            argv[0],
		HelpName:        argv[0],
		Usage:           "apply the configuration served by thincf",
		Writer:          &p.out,
		ErrWriter:       &p.out,
		HideHelpCommand: true,
		HideVersion:     true,
		ExitErrHandler:  func(*cli.Context, error) {},
		OnUsageError:    usageError,
		Action: func(cCtx *cli.Context) error {
			if cCtx.NArg() == 0 || cCtx.Args().First() == "help" {
				return cli.ShowAppHelp(cCtx)
			}
			return fmt.Errorf("%w %q", errUnknownMode, cCtx.Args().First())
		},
	}
	return p
}

func usageError(_ *cli.Context, err error, _ bool) error {
	return err
}

// Describe sets the one-line description in the top level usage.
func (p *Parser) Describe(text string) (string, error) {
	if p.parsed != nil {
		return "", errAlreadyParsed
	}
	p.app.Usage = strings.TrimSpace(text)
	return "", nil
}

// AddMode adds a subcommand and returns it for adding flags, options and
// arguments.
func (p *Parser) AddMode(name, help string) (*Mode, error) {
	switch {
	case p.parsed != nil:
		return nil, errAlreadyParsed
	case name == "" || strings.HasPrefix(name, "-"):
		return nil, fmt.Errorf("invalid mode name %q", name)
	case name == ModeHelp || name == ModeError:
		return nil, fmt.Errorf("mode name %q is reserved", name)
	case p.mode(name) != nil:
		return nil, fmt.Errorf("mode %q defined twice", name)
	}

	m := &Mode{parser: p, names: map[string]bool{}}
	m.cmd = &cli.Command{
		Name:         name,
		Usage:        help,
		OnUsageError: usageError,
		Action:       m.run,
	}
	p.modes = append(p.modes, m)
	p.app.Commands = append(p.app.Commands, m.cmd)
	return m, nil
}

func (p *Parser) mode(name string) *Mode {
	for _, m := range p.modes {
		if m.cmd.Name == name {
			return m
		}
	}
	return nil
}

// Parse runs the parser once; later calls return the same result. Parse
// failures are reported through ModeError, never as an error.
func (p *Parser) Parse() *Args {
	if p.parsed != nil {
		return p.parsed
	}
	p.parsed = &Args{Program: p.argv[0], values: map[string]any{}}

	err := p.app.Run(p.argv)
	switch {
	case err != nil:
		p.parsed.Mode = ModeError
		p.parsed.Message = err.Error()
		p.parsed.Usage = p.usage()
		p.parsed.values = map[string]any{}
	case p.parsed.Mode == "":
		// -h anywhere or no mode at all
		p.parsed.Mode = ModeHelp
		p.parsed.Usage = p.out.String()
		if p.parsed.Usage == "" {
			p.parsed.Usage = p.usage()
		}
	}
	return p.parsed
}

// usage renders the top level help.
func (p *Parser) usage() string {
	var buf bytes.Buffer
	p.app.Writer = &buf
	p.app.ErrWriter = &buf
	_ = p.app.Run([]string{p.app.Name})
	return buf.String()
}

// Mode is one subcommand of the client command line.
type Mode struct {
	parser     *Parser
	cmd        *cli.Command
	names      map[string]bool
	positional []positional
}

type positional struct {
	name     string
	required bool
	repeated bool
}

// Describe sets the text shown in the mode's help below its usage line.
func (m *Mode) Describe(text string) (string, error) {
	if m.parser.parsed != nil {
		return "", errAlreadyParsed
	}
	m.cmd.Description = strings.TrimSpace(text)
	return "", nil
}

// AddFlag adds a boolean flag. names is a comma-separated list, the first
// one names the value, the others are aliases like "dry-run,n".
func (m *Mode) AddFlag(names, help string) (string, error) {
	name, aliases, err := m.claim(names)
	if err != nil {
		return "", err
	}
	m.cmd.Flags = append(m.cmd.Flags, &cli.BoolFlag{Name: name, Aliases: aliases, Usage: help})
	return "", nil
}

// AddOption adds an option taking a value with a default.
func (m *Mode) AddOption(names, help, value string) (string, error) {
	name, aliases, err := m.claim(names)
	if err != nil {
		return "", err
	}
	m.cmd.Flags = append(m.cmd.Flags, &cli.StringFlag{Name: name, Aliases: aliases, Usage: help, Value: value})
	return "", nil
}

// AddRequiredOption adds an option that must be given.
func (m *Mode) AddRequiredOption(names, help string) (string, error) {
	name, aliases, err := m.claim(names)
	if err != nil {
		return "", err
	}
	m.cmd.Flags = append(m.cmd.Flags, &cli.StringFlag{Name: name, Aliases: aliases, Usage: help, Required: true})
	return "", nil
}

// AddArgument adds a positional argument. Optional arguments default to
// the empty string.
func (m *Mode) AddArgument(name string, required bool) (string, error) {
	return m.addPositional(positional{name: name, required: required})
}

// AddArguments adds a positional argument taking all remaining words. It
// has to come last.
func (m *Mode) AddArguments(name string) (string, error) {
	return m.addPositional(positional{name: name, repeated: true})
}

func (m *Mode) addPositional(arg positional) (string, error) {
	if _, _, err := m.claim(arg.name); err != nil {
		return "", err
	}
	if n := len(m.positional); n > 0 && m.positional[n-1].repeated {
		return "", fmt.Errorf("mode %s: argument %s follows repeated argument %s", m.cmd.Name, arg.name, m.positional[n-1].name)
	}
	m.positional = append(m.positional, arg)

	usage := make([]string, 0, len(m.positional))
	for _, a := range m.positional {
		u := strings.ToUpper(a.name)
		if a.repeated {
			u += "..."
		}
		if !a.required {
			u = "[" + u + "]"
		}
		usage = append(usage, u)
	}
	m.cmd.ArgsUsage = strings.Join(usage, " ")
	return "", nil
}

// claim reserves the names of a new flag, option or argument.
func (m *Mode) claim(names string) (string, []string, error) {
	if m.parser.parsed != nil {
		return "", nil, errAlreadyParsed
	}
	var parts []string
	for _, n := range strings.Split(names, ",") {
		n = strings.TrimLeft(strings.TrimSpace(n), "-")
		if n == "" {
			return "", nil, fmt.Errorf("mode %s: invalid name list %q", m.cmd.Name, names)
		}
		if m.names[n] || slices.Contains(parts, n) {
			return "", nil, fmt.Errorf("mode %s: %s defined twice", m.cmd.Name, n)
		}
		parts = append(parts, n)
	}
	for _, n := range parts {
		m.names[n] = true
	}
	return parts[0], parts[1:], nil
}

func (m *Mode) run(cCtx *cli.Context) error {
	args := m.parser.parsed
	args.Mode = m.cmd.Name

	for _, f := range m.cmd.Flags {
		switch f := f.(type) {
		case *cli.BoolFlag:
			args.values[f.Name] = cCtx.Bool(f.Name)
		case *cli.StringFlag:
			args.values[f.Name] = cCtx.String(f.Name)
		}
	}

	rest := cCtx.Args().Slice()
	for _, p := range m.positional {
		switch {
		case p.repeated:
			args.values[p.name] = slices.Clone(rest)
			rest = nil
		case len(rest) > 0:
			args.values[p.name] = rest[0]
			rest = rest[1:]
		case p.required:
			return fmt.Errorf("missing argument %s", strings.ToUpper(p.name))
		default:
			args.values[p.name] = ""
		}
	}
	if len(rest) > 0 {
		return fmt.Errorf("unexpected argument %q", rest[0])
	}
	return nil
}
