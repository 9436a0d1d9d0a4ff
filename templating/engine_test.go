package templating

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/flosch/pongo2/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, src string, vars pongo2.Context) (string, *RenderContext) {
	t.Helper()
	engine := NewEngine("test", StateSyntax, MapSource{"tpl": src})
	tpl, err := engine.Compile("tpl")
	require.NoError(t, err)
	out, rc, err := tpl.Render(vars)
	require.NoError(t, err)
	return out, rc
}

func compileErr(t *testing.T, src string) *pongo2.Error {
	t.Helper()
	engine := NewEngine("test", StateSyntax, MapSource{"tpl": src})
	_, err := engine.Compile("tpl")
	require.Error(t, err)
	var perr *pongo2.Error
	require.True(t, errors.As(err, &perr), "unexpected error type %T", err)
	return perr
}

func TestSyntax_Rewrite(t *testing.T) {
	src := "a\n  %% if x\nb\n%% endif\n"
	out := StateSyntax.Rewrite(src)
	assert.Equal(t, "a\n{% if x %}"+lineKeeper+"b\n{% endif %}"+lineKeeper, out)
	assert.Equal(t, strings.Count(src, "\n"), strings.Count(out, "\n"))

	script := ScriptSyntax.Rewrite("## comment\n% set y = 1 ## why\necho\n")
	assert.Equal(t, lineKeeper+"{% set y = 1 %}"+lineKeeper+"echo\n", script)
}

func TestDeclareRequire(t *testing.T) {
	src := strings.Join([]string{
		"%% declare hello",
		"say_hello() { echo hello; }",
		"%% enddeclare",
		"%% require hello",
		"%% require hello",
		"main",
		"",
	}, "\n")

	out, _ := render(t, src, nil)
	assert.Equal(t, "say_hello() { echo hello; }\nmain\n", out)
}

func TestRequireUndeclared(t *testing.T) {
	engine := NewEngine("test", StateSyntax, MapSource{"tpl": "%% require missing\n"})
	tpl, err := engine.Compile("tpl")
	require.NoError(t, err)

	_, _, err = tpl.Render(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestRequirePerRender(t *testing.T) {
	src := "%% declare f\nF\n%% enddeclare\n%% require f\n"
	engine := NewEngine("test", StateSyntax, MapSource{"tpl": src})
	tpl, err := engine.Compile("tpl")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		out, _, err := tpl.Render(nil)
		require.NoError(t, err)
		assert.Equal(t, "F\n", out)
	}
}

func TestHeredoc(t *testing.T) {
	out, _ := render(t, "cat <<{% heredoc %}^!{% endheredoc %}", nil)
	assert.Equal(t, "cat <<'%'\n^!\n%\n", out)
}

func TestHeredocDelimiter(t *testing.T) {
	bodies := []string{
		"",
		"plain text\n",
		heredocAlphabet,
		heredocAlphabet + "\n^^^!^%",
	}
	for _, body := range bodies {
		delim := HeredocDelimiter(body)
		assert.NotEmpty(t, delim)
		assert.NotContains(t, body, delim)
	}

	assert.Equal(t, "^", HeredocDelimiter("abc"))
	assert.Len(t, HeredocDelimiter(heredocAlphabet), 2)
}

func TestFilters(t *testing.T) {
	out, _ := render(t, `{{ a|shquote }}|{{ b|shquote }}|{{ c|shquote }}|{{ d|octescape }}`, pongo2.Context{
		"a": "plain",
		"b": "a b",
		"c": "",
		"d": "aé",
	})
	assert.Equal(t, `plain|'a b'|''|\141\303\251`, out)

	assert.Equal(t, `\#x`, Shquote("#x"))
	assert.Equal(t, `'#x y'`, Shquote("#x y"))
	assert.Equal(t, `a\$b '' 'c d'`, ShquoteAll("a$b", "", "c d"))
}

func TestDeploy(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		kind    Kind
		options map[string]string
	}{
		{
			name:    "default file",
			src:     "%% deploy\ncontent\n",
			kind:    KindFile,
			options: map[string]string{},
		},
		{
			name:    "file with keywords",
			src:     "%% deploy mode=\"0600\" user=\"www\"\n",
			kind:    KindFile,
			options: map[string]string{"mode": "0600", "user": "www"},
		},
		{
			name:    "symlink",
			src:     "%% deploy symlink target=path\n",
			kind:    KindSymlink,
			options: map[string]string{"target": "/usr/bin/tool"},
		},
		{
			name:    "directory",
			src:     "%% deploy directory group=\"wheel\"\n",
			kind:    KindDirectory,
			options: map[string]string{"group": "wheel"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rc := render(t, tt.src, pongo2.Context{"path": "/usr/bin/tool"})
			md := rc.Metadata()
			assert.Equal(t, tt.kind, md.Kind)
			assert.Equal(t, tt.options, md.Options)
		})
	}
}

func TestDeploy_ParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		line    int
		message string
	}{
		{
			name:    "unknown type",
			src:     "line one\n%% deploy socket\n",
			line:    2,
			message: "invalid entry type 'socket'",
		},
		{
			name:    "unknown keyword",
			src:     "\n\n%% deploy file target=\"x\"\n",
			line:    3,
			message: "invalid keyword 'target'",
		},
		{
			name:    "missing target",
			src:     "%% deploy symlink user=\"root\"\n",
			line:    1,
			message: "missing required keyword(s) 'target'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perr := compileErr(t, tt.src)
			assert.Equal(t, tt.line, perr.Line)
			assert.Contains(t, perr.Error(), tt.message)
		})
	}
}

func TestDeploy_BadMode(t *testing.T) {
	engine := NewEngine("test", StateSyntax, MapSource{"tpl": "%% deploy mode=\"rw-r--r--\"\n"})
	tpl, err := engine.Compile("tpl")
	require.NoError(t, err)

	_, _, err = tpl.Render(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "octal")
}

func TestDefineAndAction(t *testing.T) {
	_, rc := render(t, "%% define action service.restart\nsystemctl restart \"$1\"\n", nil)
	md := rc.Metadata()
	assert.Equal(t, KindAction, md.Kind)
	assert.Equal(t, "service.restart", md.Name)

	_, rc = render(t, strings.Join([]string{
		"%% deploy",
		"%% action service.restart(\"nginx\", unit)",
		"%% action service.restart(\"nginx\",)",
		"%% action daemon.reload",
		"%% action daemon.reload()",
		"",
	}, "\n"), pongo2.Context{"unit": "nginx.service"})
	md = rc.Metadata()
	assert.Equal(t, KindFile, md.Kind)
	assert.Equal(t, []Invocation{
		{Name: "service.restart", Args: []string{"nginx", "nginx.service"}},
		{Name: "service.restart", Args: []string{"nginx"}},
		{Name: "daemon.reload", Args: []string{}},
		{Name: "daemon.reload", Args: []string{}},
	}, md.Invocations)
}

func TestRedeclareKind(t *testing.T) {
	engine := NewEngine("test", StateSyntax, MapSource{"tpl": "%% deploy\n%% define action x\n"})
	tpl, err := engine.Compile("tpl")
	require.NoError(t, err)

	_, _, err = tpl.Render(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already declared")
}

func TestParagraph(t *testing.T) {
	out, rc := render(t, "a{% paragraph %}b", nil)
	assert.Equal(t, "a\nb", out)
	assert.Equal(t, KindNone, rc.Metadata().Kind)
}

type tally struct {
	N int
}

func (c *tally) Add(n int) (string, error) {
	if n < 0 {
		return "", errors.New("negative")
	}
	c.N += n
	return "ignored", nil
}

func TestDo(t *testing.T) {
	c := &tally{}
	out, _ := render(t, "%% do c.Add(2)\n%% do c.Add(3)\n{{ c.N }}\n", pongo2.Context{"c": c})
	assert.Equal(t, "5\n", out)
	assert.Equal(t, 5, c.N)

	engine := NewEngine("test", StateSyntax, MapSource{"tpl": "%% do c.Add(-1)\n"})
	tpl, err := engine.Compile("tpl")
	require.NoError(t, err)
	_, _, err = tpl.Render(pongo2.Context{"c": &tally{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative")
}

func TestDo_ParseErrors(t *testing.T) {
	assert.Contains(t, compileErr(t, "%% do\n").Error(), "expects an expression")
	assert.Contains(t, compileErr(t, "%% do c.Add(1) c\n").Error(), "single expression")
}

func TestEngine_SourceOrder(t *testing.T) {
	engine := NewEngine("test", ScriptSyntax,
		FSSource{FS: fstest.MapFS{"main": {Data: []byte("override\n")}}},
		MapSource{"main": "builtin\n", "other": "% if true\nyes\n% endif\n"},
	)

	tpl, err := engine.Compile("main")
	require.NoError(t, err)
	out, _, err := tpl.Render(nil)
	require.NoError(t, err)
	assert.Equal(t, "override\n", out)

	tpl, err = engine.Compile("other")
	require.NoError(t, err)
	out, _, err = tpl.Render(nil)
	require.NoError(t, err)
	assert.Equal(t, "yes\n", out)

	_, err = engine.Compile("absent")
	assert.Error(t, err)
}

func TestCompileString(t *testing.T) {
	engine := NewEngine("test", StateSyntax)
	tpl, err := engine.CompileString("create_if", `{% if (x == "y") %}True{% endif %}`)
	require.NoError(t, err)

	out, _, err := tpl.Render(pongo2.Context{"x": "y"})
	require.NoError(t, err)
	assert.Equal(t, "True", out)

	out, _, err = tpl.Render(pongo2.Context{"x": "z"})
	require.NoError(t, err)
	assert.Equal(t, "", out)
}
