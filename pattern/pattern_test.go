package pattern

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileDir_Match(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		match   bool
	}{
		{"/etc/app/***", "etc/app", true},
		{"/etc/app/***", "etc/app/config", true},
		{"/etc/app/***", "etc/app/conf.d/a.conf", true},
		{"/etc/app/***", "etc/application", false},
		{"/etc/*", "etc/app", true},
		{"/etc/*", "etc/app/config", false},
		{"/etc/*", "etc", false},
		{"/etc/**", "etc/app/config", true},
		{"etc/**.conf", "etc/a/b.conf", true},
		{"etc/**.conf", "etc/a/b.cfg", false},
		{"/etc/app", "etc/app", true},
		{"/etc/app/", "etc/app", true},
		{"/etc/app", "etc/app/config", false},
		{"/etc/a.b", "etc/aXb", false},
		{"/***", "etc", true},
		{"/***", "etc/app/config", true},
		{"/etc/***/x", "etc/a/x", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.path, func(t *testing.T) {
			m, err := CompileDir(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.match, m.Match(tt.path))
		})
	}
}

func TestCompileDir_Specificity(t *testing.T) {
	compile := func(p string) *DirMatcher {
		m, err := CompileDir(p)
		require.NoError(t, err)
		return m
	}

	literal := compile("/etc/app")
	single := compile("/etc/*")
	double := compile("/etc/**")
	tree := compile("/etc/***")

	assert.True(t, literal.Literal())
	assert.False(t, single.Literal())
	assert.Equal(t, Specificity{0, -1, 0, 0}, tree.Specificity())
	assert.Equal(t, Specificity{0, 0, -1, 0}, double.Specificity())
	assert.Equal(t, Specificity{0, 0, 0, -1}, single.Specificity())
	assert.Equal(t, Specificity{0, 0, 0, -2}, compile("/*/*").Specificity())

	matchers := []*DirMatcher{literal, tree, single, double}
	sort.SliceStable(matchers, func(i, j int) bool {
		return matchers[i].Specificity().Less(matchers[j].Specificity())
	})

	var order []string
	for _, m := range matchers {
		order = append(order, m.Path())
	}
	assert.Equal(t, []string{"etc/***", "etc/**", "etc/*", "etc/app"}, order)
}

func TestCompileDir_Empty(t *testing.T) {
	_, err := CompileDir("/")
	assert.ErrorIs(t, err, ErrEmptyPattern)
}

func TestCompileKey(t *testing.T) {
	m, err := CompileKey("iface.*.addr")
	require.NoError(t, err)

	captured, ok := m.Match("iface.eth0.addr")
	assert.True(t, ok)
	assert.Equal(t, "eth0", captured)

	_, ok = m.Match("iface..addr")
	assert.False(t, ok, "wildcard must match a non-empty run")

	_, ok = m.Match("iface.eth0.addr6")
	assert.False(t, ok)

	exact, err := CompileKey("role")
	require.NoError(t, err)
	captured, ok = exact.Match("role")
	assert.True(t, ok)
	assert.Empty(t, captured)

	_, ok = exact.Match("roles")
	assert.False(t, ok)
}
