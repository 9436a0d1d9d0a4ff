package templating

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/flosch/pongo2/v6"
)

// deploySchemas lists the keywords accepted per entry type and whether the
// keyword is required.
var deploySchemas = map[string]map[string]bool{
	"file": {
		"user":  false,
		"group": false,
		"mode":  false,
	},
	"symlink": {
		"user":   false,
		"group":  false,
		"mode":   false,
		"target": true,
	},
	"directory": {
		"user":  false,
		"group": false,
		"mode":  false,
	},
}

var deployKinds = map[string]Kind{
	"file":      KindFile,
	"symlink":   KindSymlink,
	"directory": KindDirectory,
}

func declareKind(ctx *pongo2.ExecutionContext, start *pongo2.Token, md *Metadata, kind Kind) *pongo2.Error {
	if md.Kind != KindNone {
		return ctx.Error(fmt.Sprintf("output already declared as %s", md.Kind), start)
	}
	md.Kind = kind
	return nil
}

type deployDirective struct{}

func (deployDirective) Name() string { return "deploy" }

type deployOption struct {
	key  string
	expr pongo2.IEvaluator
}

type deployNode struct {
	start   *pongo2.Token
	kind    Kind
	options []deployOption
}

func (deployDirective) Parse(_ *pongo2.Parser, start *pongo2.Token, args *pongo2.Parser) (pongo2.INodeTag, *pongo2.Error) {
	typ := "file"

	var pending *pongo2.Token
	if args.Remaining() > 0 {
		first := args.MatchType(pongo2.TokenIdentifier)
		if first == nil {
			return nil, args.Error("'deploy' expects an entry type or keyword", start)
		}
		if args.Peek(pongo2.TokenSymbol, "=") == nil {
			typ = first.Val
		} else {
			pending = first
		}
	}

	schema, ok := deploySchemas[typ]
	if !ok {
		return nil, args.Error(fmt.Sprintf("invalid entry type '%s'", typ), start)
	}

	node := &deployNode{start: start, kind: deployKinds[typ]}
	seen := map[string]bool{}

	for pending != nil || args.Remaining() > 0 {
		key := pending
		pending = nil
		if key == nil {
			if key = args.MatchType(pongo2.TokenIdentifier); key == nil {
				return nil, args.Error("expected keyword", start)
			}
		}
		if _, ok := schema[key.Val]; !ok {
			return nil, args.Error(fmt.Sprintf("invalid keyword '%s' for entry type '%s'", key.Val, typ), start)
		}
		if args.Match(pongo2.TokenSymbol, "=") == nil {
			return nil, args.Error(fmt.Sprintf("expected '=' after '%s'", key.Val), start)
		}
		expr, err := args.ParseExpression()
		if err != nil {
			return nil, err
		}
		seen[key.Val] = true
		node.options = append(node.options, deployOption{key: key.Val, expr: expr})
	}

	var missing []string
	for key, required := range schema {
		if required && !seen[key] {
			missing = append(missing, "'"+key+"'")
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, args.Error(fmt.Sprintf("missing required keyword(s) %s for entry type '%s'",
			strings.Join(missing, ","), typ), start)
	}

	return node, nil
}

func (n *deployNode) Execute(ctx *pongo2.ExecutionContext, _ pongo2.TemplateWriter) *pongo2.Error {
	rc, err := renderContext(ctx, n.start)
	if err != nil {
		return err
	}
	md := rc.Metadata()
	if err := declareKind(ctx, n.start, md, n.kind); err != nil {
		return err
	}

	md.Options = make(map[string]string, len(n.options))
	for _, opt := range n.options {
		val, err := opt.expr.Evaluate(ctx)
		if err != nil {
			return err
		}
		s := val.String()
		if opt.key == "mode" {
			if _, perr := strconv.ParseUint(strings.TrimSpace(s), 8, 32); perr != nil {
				return ctx.Error(fmt.Sprintf("mode '%s' is not an octal number", s), n.start)
			}
		}
		md.Options[opt.key] = s
	}
	return nil
}

type defineDirective struct{}

func (defineDirective) Name() string { return "define" }

type defineNode struct {
	start *pongo2.Token
	name  string
}

func (defineDirective) Parse(_ *pongo2.Parser, start *pongo2.Token, args *pongo2.Parser) (pongo2.INodeTag, *pongo2.Error) {
	if args.Match(pongo2.TokenIdentifier, "action") == nil {
		return nil, args.Error("'define' expects 'action'", start)
	}
	name, err := dottedName(args, start)
	if err != nil {
		return nil, err
	}
	if err := noArguments("define action", start, args); err != nil {
		return nil, err
	}
	return &defineNode{start: start, name: name}, nil
}

func (n *defineNode) Execute(ctx *pongo2.ExecutionContext, _ pongo2.TemplateWriter) *pongo2.Error {
	rc, err := renderContext(ctx, n.start)
	if err != nil {
		return err
	}
	md := rc.Metadata()
	if err := declareKind(ctx, n.start, md, KindAction); err != nil {
		return err
	}
	md.Name = n.name
	return nil
}

type actionDirective struct{}

func (actionDirective) Name() string { return "action" }

type actionNode struct {
	start *pongo2.Token
	name  string
	args  []pongo2.IEvaluator
}

func (actionDirective) Parse(_ *pongo2.Parser, start *pongo2.Token, args *pongo2.Parser) (pongo2.INodeTag, *pongo2.Error) {
	name, err := dottedName(args, start)
	if err != nil {
		return nil, err
	}
	node := &actionNode{start: start, name: name}

	if args.Match(pongo2.TokenSymbol, "(") != nil {
		for args.Match(pongo2.TokenSymbol, ")") == nil {
			if len(node.args) > 0 {
				if args.Match(pongo2.TokenSymbol, ",") == nil {
					return nil, args.Error("expected ',' or ')'", start)
				}
				if args.Match(pongo2.TokenSymbol, ")") != nil {
					break
				}
			}
			if args.Remaining() == 0 {
				return nil, args.Error("unterminated argument list", start)
			}
			expr, err := args.ParseExpression()
			if err != nil {
				return nil, err
			}
			node.args = append(node.args, expr)
		}
	}

	if err := noArguments("action", start, args); err != nil {
		return nil, err
	}
	return node, nil
}

func (n *actionNode) Execute(ctx *pongo2.ExecutionContext, _ pongo2.TemplateWriter) *pongo2.Error {
	rc, err := renderContext(ctx, n.start)
	if err != nil {
		return err
	}
	inv := Invocation{Name: n.name, Args: make([]string, 0, len(n.args))}
	for _, expr := range n.args {
		val, err := expr.Evaluate(ctx)
		if err != nil {
			return err
		}
		inv.Args = append(inv.Args, val.String())
	}
	md := rc.Metadata()
	md.Invocations = append(md.Invocations, inv)
	return nil
}

type paragraphDirective struct{}

func (paragraphDirective) Name() string { return "paragraph" }

type paragraphNode struct {
	start *pongo2.Token
}

func (paragraphDirective) Parse(_ *pongo2.Parser, start *pongo2.Token, args *pongo2.Parser) (pongo2.INodeTag, *pongo2.Error) {
	if err := noArguments("paragraph", start, args); err != nil {
		return nil, err
	}
	return &paragraphNode{start: start}, nil
}

func (n *paragraphNode) Execute(ctx *pongo2.ExecutionContext, w pongo2.TemplateWriter) *pongo2.Error {
	if _, err := w.WriteString("\n"); err != nil {
		return ctx.OrigError(err, n.start)
	}
	return nil
}
