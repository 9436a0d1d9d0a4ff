package state

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestBundle(t *testing.T, files map[string]string) *Bundle {
	t.Helper()
	b, err := NewBundle("2024-05-01T10:00:00.000000Z", files, testLog)
	require.NoError(t, err)
	return b
}

func evaluate(t *testing.T, b *Bundle, hostName string, env Env) *Result {
	t.Helper()
	host, ok := b.Host(hostName)
	require.True(t, ok)
	res, err := b.Evaluate(host, nil, env)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func paths(res *Result) []string {
	var ps []string
	for _, e := range res.Entries {
		ps = append(ps, e.Attrs().Path)
	}
	return ps
}

func TestEvaluate_EndToEnd(t *testing.T) {
	b := newTestBundle(t, map[string]string{
		"hosts.ini":      "[web1]\nrole=frontend\n",
		"dirs.ini":       "[/etc/app/***]\nmode=0640\n",
		"etc/app/config": "%% deploy\nrole={{ host.Get(\"role\") }}\n",
	})

	res := evaluate(t, b, "web1", nil)
	require.Equal(t, []string{"etc", "etc/app", "etc/app/config"}, paths(res))

	etc, ok := res.Entries[0].(*DirEntry)
	require.True(t, ok)
	assert.Equal(t, DefaultDirMode, etc.Mode)
	assert.Equal(t, DefaultOwner, etc.User)

	app, ok := res.Entries[1].(*DirEntry)
	require.True(t, ok)
	// "/***" matches the directory itself
	assert.Equal(t, uint32(0o640), app.Mode)

	file, ok := res.Entries[2].(*FileEntry)
	require.True(t, ok)
	assert.Equal(t, uint32(0o640), file.Mode)
	assert.Equal(t, "role=frontend\n", file.Content)
	assert.Equal(t, "0", file.User)
	assert.Equal(t, "0", file.Group)

	assert.Empty(t, res.Actions)
	assert.Len(t, res.Fingerprint, 40)
	assert.Equal(t, b.Identifier(), res.Bundle)
}

func TestEvaluate_Fingerprint(t *testing.T) {
	files := map[string]string{
		"hosts.ini":   "[web1]\nrole=frontend\n[web2]\nrole=frontend\n",
		"etc/motd":    "%% deploy\nWelcome to {{ env.Get(\"site\") }}\n",
		"etc/ignored": "not deployed\n",
	}
	b := newTestBundle(t, files)
	host, _ := b.Host("web1")

	first, err := b.Evaluate(host, nil, Env{"site": {"lab"}})
	require.NoError(t, err)
	second, err := b.Evaluate(host, []string{"unrelated"}, Env{"site": {"lab"}})
	require.NoError(t, err)
	assert.Equal(t, first, second, "evaluation is idempotent")
	assert.Equal(t, []string{"etc", "etc/motd"}, paths(first))

	// other host, same rendering
	other, _ := b.Host("web2")
	third, err := b.Evaluate(other, nil, Env{"site": {"lab"}})
	require.NoError(t, err)
	assert.Equal(t, first.Fingerprint, third.Fingerprint)

	unchanged, err := b.Evaluate(host, []string{first.Fingerprint}, Env{"site": {"lab"}})
	require.NoError(t, err)
	assert.Nil(t, unchanged)

	changed, err := b.Evaluate(host, []string{first.Fingerprint}, Env{"site": {"prod"}})
	require.NoError(t, err)
	require.NotNil(t, changed)
	assert.NotEqual(t, first.Fingerprint, changed.Fingerprint)

	rebuilt, err := NewBundle(NewIdentifier(time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)), files, testLog)
	require.NoError(t, err)
	fromRebuilt, err := rebuilt.Evaluate(host, nil, Env{"site": {"lab"}})
	require.NoError(t, err)
	assert.NotEqual(t, first.Bundle, fromRebuilt.Bundle)
	assert.Equal(t, first.Fingerprint, fromRebuilt.Fingerprint, "re-uploaded content keeps its fingerprint")

	// a known fingerprint from the old bundle means no change
	unchanged, err = rebuilt.Evaluate(host, []string{first.Fingerprint}, Env{"site": {"lab"}})
	require.NoError(t, err)
	assert.Nil(t, unchanged)
}

func TestEvaluate_ActionIndices(t *testing.T) {
	b := newTestBundle(t, map[string]string{
		"hosts.ini":       "[web1]\n",
		"actions/restart": "%% define action svc.restart\nsystemctl restart \"$1\"\n",
		"actions/reload":  "%% define action svc.reload\nsystemctl daemon-reload\n",
		"actions/unused":  "%% define action unused\ntrue\n",
		"etc/a":           "%% deploy\n%% action svc.restart(\"b\")\n",
		"etc/b":           "%% deploy\n%% action svc.restart(\"a\")\n%% action svc.reload\n%% action svc.reload()\n",
	})

	res := evaluate(t, b, "web1", nil)
	require.Len(t, res.Actions, 2)

	reload, restart := res.Actions[0], res.Actions[1]
	assert.Equal(t, "svc.reload", reload.Name)
	assert.Equal(t, 1, reload.Index)
	assert.Equal(t, [][]string{{}}, reload.Arguments)
	assert.Equal(t, "systemctl daemon-reload\n", reload.Body)

	assert.Equal(t, "svc.restart", restart.Name)
	assert.Equal(t, 2, restart.Index)
	assert.Equal(t, [][]string{{"a"}, {"b"}}, restart.Arguments)
	assert.Equal(t, "systemctl restart \"$1\"\n", restart.Body)

	require.Equal(t, []string{"etc", "etc/a", "etc/b"}, paths(res))
	assert.Empty(t, res.Entries[0].Attrs().Triggers)
	assert.Equal(t, []Trigger{{Action: 2, Argument: 2}}, res.Entries[1].Attrs().Triggers)
	assert.Equal(t, []Trigger{{Action: 1, Argument: 1}, {Action: 2, Argument: 1}}, res.Entries[2].Attrs().Triggers)
}

func TestEvaluate_DirectoryRuleActions(t *testing.T) {
	b := newTestBundle(t, map[string]string{
		"hosts.ini":      "[web1]\n",
		"dirs.ini":       "[/etc/app/***]\naction = app.reload\n",
		"actions/reload": "%% define action app.reload\nkill -HUP app\n",
		"etc/app/config": "%% deploy\n",
	})

	res := evaluate(t, b, "web1", nil)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "app.reload", res.Actions[0].Name)
	assert.Equal(t, []Trigger{{Action: 1, Argument: 1}}, res.Entries[1].Attrs().Triggers)
	assert.Equal(t, []Trigger{{Action: 1, Argument: 1}}, res.Entries[2].Attrs().Triggers)
}

func TestEvaluate_ActionRedefinition(t *testing.T) {
	b := newTestBundle(t, map[string]string{
		"hosts.ini": "[web1]\n",
		"a1":        "%% define action x\nfirst\n",
		"a2":        "%% define action x\nsecond\n",
		"etc/f":     "%% deploy\n%% action x\n",
	})

	res := evaluate(t, b, "web1", nil)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "second\n", res.Actions[0].Body)
}

func TestEvaluate_UndefinedAction(t *testing.T) {
	b := newTestBundle(t, map[string]string{
		"hosts.ini": "[web1]\n",
		"etc/f":     "%% deploy\n%% action nope\n",
	})
	host, _ := b.Host("web1")
	_, err := b.Evaluate(host, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestEvaluate_EntryKinds(t *testing.T) {
	b := newTestBundle(t, map[string]string{
		"hosts.ini":    "[web1]\n",
		"dirs.ini":     "[/usr/***]\nuser = bin\n",
		"usr/bin/tool": "%% deploy symlink target=\" /opt/tool/bin/tool \" group=\"staff\"\n",
		"srv/data":     "%% deploy directory user=\"app\" mode=\"0700\"\nignored content\n",
	})

	res := evaluate(t, b, "web1", nil)
	require.Equal(t, []string{"srv", "srv/data", "usr", "usr/bin", "usr/bin/tool"}, paths(res))

	data, ok := res.Entries[1].(*DirEntry)
	require.True(t, ok)
	assert.Equal(t, "app", data.User)
	assert.Equal(t, uint32(0o700), data.Mode)

	link, ok := res.Entries[4].(*SymlinkEntry)
	require.True(t, ok)
	assert.Equal(t, "/opt/tool/bin/tool", link.Target)
	assert.Equal(t, "bin", link.User)
	assert.Equal(t, "staff", link.Group)
	assert.Equal(t, DefaultSymlinkMode, link.Mode)

	assert.Equal(t, "bin", res.Entries[2].Attrs().User)
	assert.Equal(t, "directory", KindOf(res.Entries[2]))
	assert.Equal(t, "symlink", KindOf(link))
}

func TestEvaluate_CreateIf(t *testing.T) {
	b := newTestBundle(t, map[string]string{
		"hosts.ini": "[web1]\ncache\n[web2]\n",
		"dirs.ini":  "[/var/cache/app]\nmode = 0700\ncreate_if = host.Has(\"cache\")\n[/var/empty]\nmode = 0555\n",
	})

	res := evaluate(t, b, "web1", nil)
	assert.Equal(t, []string{"var", "var/cache", "var/cache/app", "var/empty"}, paths(res))
	assert.Equal(t, uint32(0o700), res.Entries[2].Attrs().Mode)
	assert.Equal(t, uint32(0o555), res.Entries[3].Attrs().Mode)

	// without create_if a literal directory is always created
	res = evaluate(t, b, "web2", nil)
	assert.Equal(t, []string{"var", "var/empty"}, paths(res))
}

func TestEvaluate_CreateIfNeedsBooleanTrue(t *testing.T) {
	b := newTestBundle(t, map[string]string{
		"hosts.ini": "[web1]\n",
		"dirs.ini":  "[/srv/data]\ncreate_if = env.Get(\"want\")\n[/srv/www]\ncreate_if = env.Get(\"want\") == \"yes\"\n",
	})

	tests := []struct {
		want     string
		expected []string
	}{
		{"no", nil},
		{"True", nil},
		{"yes", []string{"srv", "srv/www"}},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			res := evaluate(t, b, "web1", Env{"want": {tt.want}})
			assert.Equal(t, tt.expected, paths(res))
		})
	}
}

func TestEvaluate_RenderError(t *testing.T) {
	b := newTestBundle(t, map[string]string{
		"hosts.ini": "[web1]\n",
		"etc/f":     "%% deploy\n{{ host.Get(\"missing\") }}\n",
	})
	host, _ := b.Host("web1")
	_, err := b.Evaluate(host, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "etc/f")
}

func TestNewBundle_Errors(t *testing.T) {
	_, err := NewBundle("id", map[string]string{"etc/f": "x"}, testLog)
	assert.ErrorIs(t, err, ErrHostsMissing)

	_, err = NewBundle("id", map[string]string{
		"hosts.ini": "[web1]\n",
		"etc/f":     "line\n%% deploy socket\n",
	}, testLog)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "etc/f")

	_, err = NewBundle("id", map[string]string{
		"hosts.ini": "[web1]\nx = ${nope}\n",
	}, testLog)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestNewIdentifier(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.FixedZone("CEST", 2*3600))
	assert.Equal(t, "2024-05-01T08:00:00.123456Z", NewIdentifier(ts))
}
