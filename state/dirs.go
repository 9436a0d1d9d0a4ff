package state

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/flosch/pongo2/v6"
	"github.com/kballard/go-shellquote"

	"github.com/wagnerflo/thincf/inireader"
	"github.com/wagnerflo/thincf/pattern"
	"github.com/wagnerflo/thincf/templating"
)

// Keys understood in dirs.ini sections.
const (
	dirKeyUser     = "user"
	dirKeyGroup    = "group"
	dirKeyMode     = "mode"
	dirKeyAction   = "action"
	dirKeyCreateIf = "create_if"
)

// DirConfig is the merged configuration for a path. Unset fields are nil.
type DirConfig struct {
	User     *string
	Group    *string
	Mode     *uint32
	Actions  []Invocation
	CreateIf *CreateCondition

	hasActions bool
}

// merge overlays the fields set in o.
func (c *DirConfig) merge(o DirConfig) {
	if o.User != nil {
		c.User = o.User
	}
	if o.Group != nil {
		c.Group = o.Group
	}
	if o.Mode != nil {
		c.Mode = o.Mode
	}
	if o.hasActions {
		c.Actions = o.Actions
		c.hasActions = true
	}
	if o.CreateIf != nil {
		c.CreateIf = o.CreateIf
	}
}

// CreateCondition is a compiled create_if expression.
type CreateCondition struct {
	expr string
	tpl  *templating.Template
}

// Holds reports whether the expression is true for host and env.
func (c *CreateCondition) Holds(host *Host, env Env) (bool, error) {
	out, _, err := c.tpl.Render(pongo2.Context{"host": host, "env": env})
	if err != nil {
		return false, fmt.Errorf("create_if %q: %w", c.expr, err)
	}
	return out == "True", nil
}

// DirRule is one section of dirs.ini.
type DirRule struct {
	matcher *pattern.DirMatcher
	config  DirConfig
}

func (r *DirRule) Path() string { return r.matcher.Path() }

func (r *DirRule) Literal() bool { return r.matcher.Literal() }

// DirRules holds the rules ordered from least to most specific.
type DirRules struct {
	rules []*DirRule
}

// NewDirRules builds the rule set. create_if expressions are compiled with
// engine.
func NewDirRules(f *inireader.File, engine *templating.Engine) (*DirRules, error) {
	dr := &DirRules{}
	if f == nil {
		return dr, nil
	}

	for _, sec := range f.Sections {
		m, err := pattern.CompileDir(sec.Name)
		if err != nil {
			return nil, fmt.Errorf("%s: [%s]: %w", f.Name, sec.Name, err)
		}
		cfg, err := parseDirConfig(sec, engine)
		if err != nil {
			return nil, fmt.Errorf("%s: [%s]: %w", f.Name, sec.Name, err)
		}
		dr.rules = append(dr.rules, &DirRule{matcher: m, config: cfg})
	}

	sort.SliceStable(dr.rules, func(i, j int) bool {
		return dr.rules[i].matcher.Specificity().Less(dr.rules[j].matcher.Specificity())
	})
	return dr, nil
}

// parseDirConfig reads a section. For single-valued keys the first value
// counts.
func parseDirConfig(sec *inireader.Section, engine *templating.Engine) (DirConfig, error) {
	var cfg DirConfig
	for _, key := range sec.Keys() {
		vals := sec.Values(key)
		first := vals[0]

		switch key {
		case dirKeyUser:
			cfg.User = &first
		case dirKeyGroup:
			cfg.Group = &first
		case dirKeyMode:
			mode, err := parseMode(first)
			if err != nil {
				return cfg, err
			}
			cfg.Mode = &mode
		case dirKeyAction:
			cfg.hasActions = true
			for _, v := range vals {
				inv, err := splitAction(v)
				if err != nil {
					return cfg, err
				}
				cfg.Actions = append(cfg.Actions, inv)
			}
		case dirKeyCreateIf:
			expr := strings.TrimSpace(first)
			// only the boolean true counts, not any truthy value
			tpl, err := engine.CompileString(dirKeyCreateIf, "{% if ("+expr+") == true %}True{% endif %}")
			if err != nil {
				return cfg, fmt.Errorf("invalid create_if %q: %w", expr, err)
			}
			cfg.CreateIf = &CreateCondition{expr: expr, tpl: tpl}
		default:
			return cfg, fmt.Errorf("unknown key %q", key)
		}
	}
	return cfg, nil
}

func parseMode(s string) (uint32, error) {
	mode, err := strconv.ParseUint(strings.TrimSpace(s), 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mode %q: not an octal number", s)
	}
	return uint32(mode), nil
}

func splitAction(s string) (Invocation, error) {
	words, err := shellquote.Split(s)
	if err != nil {
		return Invocation{}, fmt.Errorf("invalid action %q: %w", s, err)
	}
	if len(words) == 0 {
		return Invocation{}, fmt.Errorf("empty action")
	}
	return Invocation{Name: words[0], Args: words[1:]}, nil
}

// Resolve merges the configuration of every rule matching path, narrower
// rules overriding broader ones.
func (dr *DirRules) Resolve(path string) DirConfig {
	var cfg DirConfig
	for _, r := range dr.rules {
		if r.matcher.Match(path) {
			cfg.merge(r.config)
		}
	}
	return cfg
}

// Literals returns the rules naming exactly one directory.
func (dr *DirRules) Literals() []*DirRule {
	var res []*DirRule
	for _, r := range dr.rules {
		if r.Literal() {
			res = append(res, r)
		}
	}
	return res
}

func (dr *DirRules) Len() int { return len(dr.rules) }
