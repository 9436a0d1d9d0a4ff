package templating

import "strings"

// Syntax configures the line-oriented shorthand on top of the template
// engine's block syntax.
type Syntax struct {
	// StatementPrefix turns a line starting with it (after blanks) into a
	// block tag, e.g. "%% deploy" into "{% deploy %}".
	StatementPrefix string

	// CommentPrefix drops a line starting with it (after blanks). Empty
	// disables line comments.
	CommentPrefix string
}

var (
	// StateSyntax is used by bundle templates.
	StateSyntax = Syntax{StatementPrefix: "%%"}

	// ScriptSyntax is used by the main script template.
	ScriptSyntax = Syntax{StatementPrefix: "%", CommentPrefix: "##"}
)

// lineKeeper renders nothing but keeps the newline of a consumed line in
// the source, so engine error positions still match the original lines.
const lineKeeper = "{% comment %}\n{% endcomment %}"

// Rewrite expands line statements and line comments into block syntax.
// Both consume their trailing newline in the output.
func (s Syntax) Rewrite(src string) string {
	if s.StatementPrefix == "" && s.CommentPrefix == "" {
		return src
	}

	var sb strings.Builder
	sb.Grow(len(src))

	for len(src) > 0 {
		line, rest, hasNL := strings.Cut(src, "\n")
		src = rest

		trimmed := strings.TrimLeft(line, " \t")
		switch {
		case s.CommentPrefix != "" && strings.HasPrefix(trimmed, s.CommentPrefix):
			if hasNL {
				sb.WriteString(lineKeeper)
			}
			continue

		case s.StatementPrefix != "" && strings.HasPrefix(trimmed, s.StatementPrefix):
			stmt := strings.TrimPrefix(trimmed, s.StatementPrefix)
			if s.CommentPrefix != "" {
				if idx := strings.Index(stmt, s.CommentPrefix); idx >= 0 {
					stmt = stmt[:idx]
				}
			}
			sb.WriteString("{% ")
			sb.WriteString(strings.TrimSpace(strings.TrimSuffix(stmt, "\r")))
			sb.WriteString(" %}")
			if hasNL {
				sb.WriteString(lineKeeper)
			}
			continue
		}

		sb.WriteString(line)
		if hasNL {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
