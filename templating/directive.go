package templating

import (
	"bytes"
	"fmt"

	"github.com/flosch/pongo2/v6"
)

// Directive is a template tag: Parse runs once when a template is compiled
// and returns the node whose Execute runs on every render.
type Directive interface {
	Name() string
	Parse(doc *pongo2.Parser, start *pongo2.Token, args *pongo2.Parser) (pongo2.INodeTag, *pongo2.Error)
}

var directives = []Directive{
	declareDirective{},
	requireDirective{},
	heredocDirective{},
	deployDirective{},
	defineDirective{},
	actionDirective{},
	paragraphDirective{},
	doDirective{},
}

func init() {
	pongo2.SetAutoescape(false)

	for _, d := range directives {
		if err := pongo2.RegisterTag(d.Name(), d.Parse); err != nil {
			panic(fmt.Sprintf("register directive %s: %v", d.Name(), err))
		}
	}
	for name, fn := range filters {
		if err := pongo2.RegisterFilter(name, fn); err != nil {
			panic(fmt.Sprintf("register filter %s: %v", name, err))
		}
	}
}

// renderContext finds the state of the running render.
func renderContext(ctx *pongo2.ExecutionContext, start *pongo2.Token) (*RenderContext, *pongo2.Error) {
	if rc, ok := ctx.Public[ContextKey].(*RenderContext); ok {
		return rc, nil
	}
	return nil, ctx.Error("template rendered without a render context", start)
}

// capture renders a wrapped body into a string.
func capture(ctx *pongo2.ExecutionContext, body *pongo2.NodeWrapper) (string, *pongo2.Error) {
	var buf bytes.Buffer
	if err := body.Execute(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// wrapBody parses up to the end tag, which takes no arguments.
func wrapBody(doc *pongo2.Parser, start *pongo2.Token, end string) (*pongo2.NodeWrapper, *pongo2.Error) {
	body, endArgs, err := doc.WrapUntilTag(end)
	if err != nil {
		return nil, err
	}
	if endArgs.Count() > 0 {
		return nil, endArgs.Error(fmt.Sprintf("'%s' takes no arguments", end), nil)
	}
	return body, nil
}

func noArguments(name string, start *pongo2.Token, args *pongo2.Parser) *pongo2.Error {
	if args.Remaining() > 0 {
		return args.Error(fmt.Sprintf("'%s' takes no arguments", name), start)
	}
	return nil
}

// dottedName parses identifier('.'identifier)*.
func dottedName(args *pongo2.Parser, start *pongo2.Token) (string, *pongo2.Error) {
	tok := args.MatchType(pongo2.TokenIdentifier)
	if tok == nil {
		return "", args.Error("expected a name", start)
	}
	name := tok.Val
	for args.Match(pongo2.TokenSymbol, ".") != nil {
		tok = args.MatchType(pongo2.TokenIdentifier)
		if tok == nil {
			return "", args.Error("expected a name after '.'", start)
		}
		name += "." + tok.Val
	}
	return name, nil
}

// doDirective evaluates an expression for its side effects and drops the
// result, e.g. `% do parser.AddFlag("verbose,v", "talk more")`.
type doDirective struct{}

func (doDirective) Name() string { return "do" }

type doNode struct {
	expr pongo2.IEvaluator
}

func (doDirective) Parse(_ *pongo2.Parser, start *pongo2.Token, args *pongo2.Parser) (pongo2.INodeTag, *pongo2.Error) {
	if args.Remaining() == 0 {
		return nil, args.Error("'do' expects an expression", start)
	}
	expr, err := args.ParseExpression()
	if err != nil {
		return nil, err
	}
	if args.Remaining() > 0 {
		return nil, args.Error("'do' takes a single expression", start)
	}
	return &doNode{expr: expr}, nil
}

func (n *doNode) Execute(ctx *pongo2.ExecutionContext, _ pongo2.TemplateWriter) *pongo2.Error {
	_, err := n.expr.Evaluate(ctx)
	return err
}
