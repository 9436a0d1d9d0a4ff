package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagnerflo/thincf/inireader"
	"github.com/wagnerflo/thincf/templating"
)

func testRules(t *testing.T, src string) (*DirRules, error) {
	f, err := inireader.Read(DirsFile, []byte(src))
	require.NoError(t, err)
	return NewDirRules(f, templating.NewEngine("test", templating.StateSyntax))
}

func TestDirRules_Resolve(t *testing.T) {
	rules, err := testRules(t, `
[/etc/app]
user = app

[/***]
user = root
group = root
mode = 0755

[/etc/app/***]
mode = 0750
action = service restart 'app server'
action = logger updated

[/etc/*]
group = wheel
`)
	require.NoError(t, err)
	assert.Equal(t, 4, rules.Len())

	cfg := rules.Resolve("etc/app")
	require.NotNil(t, cfg.User)
	assert.Equal(t, "app", *cfg.User)
	assert.Equal(t, "wheel", *cfg.Group)
	assert.Equal(t, uint32(0o750), *cfg.Mode)
	assert.Equal(t, []Invocation{
		{Name: "service", Args: []string{"restart", "app server"}},
		{Name: "logger", Args: []string{"updated"}},
	}, cfg.Actions)

	cfg = rules.Resolve("etc/app/config")
	assert.Equal(t, "root", *cfg.User)
	assert.Equal(t, "root", *cfg.Group)
	assert.Equal(t, uint32(0o750), *cfg.Mode)

	cfg = rules.Resolve("usr")
	assert.Equal(t, uint32(0o755), *cfg.Mode)
	assert.Empty(t, cfg.Actions)

	var literals []string
	for _, r := range rules.Literals() {
		literals = append(literals, r.Path())
	}
	assert.Equal(t, []string{"etc/app"}, literals)
}

func TestDirRules_NarrowerActionsReplace(t *testing.T) {
	rules, err := testRules(t, `
[/srv/***]
action = a
[/srv/www]
action = b
`)
	require.NoError(t, err)
	assert.Equal(t, []Invocation{{Name: "b", Args: []string{}}}, rules.Resolve("srv/www").Actions)
	assert.Equal(t, []Invocation{{Name: "a", Args: []string{}}}, rules.Resolve("srv/data").Actions)
}

func TestDirRules_Errors(t *testing.T) {
	tests := map[string]string{
		"unknown key":   "[/etc]\nowner = root\n",
		"bad mode":      "[/etc]\nmode = rwx\n",
		"empty action":  "[/etc]\naction =\n",
		"bad create_if": "[/etc]\ncreate_if = (\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := testRules(t, src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "[/etc]")
		})
	}
}
