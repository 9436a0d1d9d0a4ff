package templating

import (
	"fmt"
	"strings"

	"github.com/flosch/pongo2/v6"
	"github.com/kballard/go-shellquote"
)

// heredocAlphabet lists the characters tried for heredoc delimiters, in
// the order candidates are generated.
const heredocAlphabet = `^!%*+,.:<>?~@0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz$"#&()-/=;[]_|{}`

var filters = map[string]pongo2.FilterFunction{
	"shquote":   filterShquote,
	"octescape": filterOctescape,
}

func filterShquote(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	return pongo2.AsSafeValue(Shquote(in.String())), nil
}

func filterOctescape(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	return pongo2.AsSafeValue(Octescape(in.String())), nil
}

// Shquote quotes s as a single POSIX shell word.
func Shquote(s string) string {
	q := shellquote.Join(s)
	if strings.HasPrefix(q, "#") {
		// shellquote leaves a leading comment sign alone
		q = `\` + q
	}
	return q
}

// ShquoteAll quotes each word and joins them with blanks.
func ShquoteAll(words ...string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = Shquote(w)
	}
	return strings.Join(quoted, " ")
}

// Octescape encodes every byte of s as a \ooo escape understood by printf(1).
func Octescape(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) * 4)
	for i := 0; i < len(s); i++ {
		fmt.Fprintf(&sb, "\\%03o", s[i])
	}
	return sb.String()
}

// HeredocDelimiter returns the shortest word over heredocAlphabet that does
// not occur in body. Words of equal length are tried in alphabet order.
func HeredocDelimiter(body string) string {
	alphabet := []byte(heredocAlphabet)
	for length := 1; ; length++ {
		seen := make(map[string]struct{}, len(body))
		for i := 0; i+length <= len(body); i++ {
			seen[body[i:i+length]] = struct{}{}
		}

		idx := make([]int, length)
		word := make([]byte, length)
		for {
			for i, j := range idx {
				word[i] = alphabet[j]
			}
			if _, ok := seen[string(word)]; !ok {
				return string(word)
			}

			// advance the odometer, last position fastest
			pos := length - 1
			for pos >= 0 {
				idx[pos]++
				if idx[pos] < len(alphabet) {
					break
				}
				idx[pos] = 0
				pos--
			}
			if pos < 0 {
				break
			}
		}
	}
}

// Heredoc wraps body for use after "<<": the quoted delimiter, the body
// with a trailing newline and the closing delimiter line.
func Heredoc(body string) string {
	if !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	delim := HeredocDelimiter(body)
	return "'" + delim + "'\n" + body + delim + "\n"
}

type declareDirective struct{}

func (declareDirective) Name() string { return "declare" }

type declareNode struct {
	start *pongo2.Token
	name  string
	body  *pongo2.NodeWrapper
}

func (declareDirective) Parse(doc *pongo2.Parser, start *pongo2.Token, args *pongo2.Parser) (pongo2.INodeTag, *pongo2.Error) {
	tok := args.MatchType(pongo2.TokenIdentifier)
	if tok == nil {
		return nil, args.Error("'declare' expects a snippet name", start)
	}
	if err := noArguments("declare", start, args); err != nil {
		return nil, err
	}
	body, err := wrapBody(doc, start, "enddeclare")
	if err != nil {
		return nil, err
	}
	return &declareNode{start: start, name: tok.Val, body: body}, nil
}

func (n *declareNode) Execute(ctx *pongo2.ExecutionContext, _ pongo2.TemplateWriter) *pongo2.Error {
	rc, err := renderContext(ctx, n.start)
	if err != nil {
		return err
	}
	text, err := capture(ctx, n.body)
	if err != nil {
		return err
	}
	rc.snippets().declared[n.name] = text
	return nil
}

type requireDirective struct{}

func (requireDirective) Name() string { return "require" }

type requireNode struct {
	start *pongo2.Token
	name  string
}

func (requireDirective) Parse(_ *pongo2.Parser, start *pongo2.Token, args *pongo2.Parser) (pongo2.INodeTag, *pongo2.Error) {
	tok := args.MatchType(pongo2.TokenIdentifier)
	if tok == nil {
		return nil, args.Error("'require' expects a snippet name", start)
	}
	if err := noArguments("require", start, args); err != nil {
		return nil, err
	}
	return &requireNode{start: start, name: tok.Val}, nil
}

func (n *requireNode) Execute(ctx *pongo2.ExecutionContext, w pongo2.TemplateWriter) *pongo2.Error {
	rc, err := renderContext(ctx, n.start)
	if err != nil {
		return err
	}
	s := rc.snippets()
	text, ok := s.declared[n.name]
	if !ok {
		return ctx.Error(fmt.Sprintf("snippet '%s' is not declared", n.name), n.start)
	}
	if s.emitted[n.name] {
		return nil
	}
	s.emitted[n.name] = true
	if _, werr := w.WriteString(text); werr != nil {
		return ctx.OrigError(werr, n.start)
	}
	return nil
}

type heredocDirective struct{}

func (heredocDirective) Name() string { return "heredoc" }

type heredocNode struct {
	start *pongo2.Token
	body  *pongo2.NodeWrapper
}

func (heredocDirective) Parse(doc *pongo2.Parser, start *pongo2.Token, args *pongo2.Parser) (pongo2.INodeTag, *pongo2.Error) {
	if err := noArguments("heredoc", start, args); err != nil {
		return nil, err
	}
	body, err := wrapBody(doc, start, "endheredoc")
	if err != nil {
		return nil, err
	}
	return &heredocNode{start: start, body: body}, nil
}

func (n *heredocNode) Execute(ctx *pongo2.ExecutionContext, w pongo2.TemplateWriter) *pongo2.Error {
	text, err := capture(ctx, n.body)
	if err != nil {
		return err
	}
	if _, werr := w.WriteString(Heredoc(text)); werr != nil {
		return ctx.OrigError(werr, n.start)
	}
	return nil
}
