package inireader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead_MultiValued(t *testing.T) {
	data := []byte(`
# hosts of the lab
[web1]
role = frontend
alias = www
alias = web
monitored

[db1]
role = database # primary

[web1]
alias = static
`)

	f, err := Read("hosts.ini", data)
	require.NoError(t, err)
	require.Len(t, f.Sections, 2)

	web := f.Section("web1")
	require.NotNil(t, web)
	assert.Equal(t, []string{"role", "alias", "monitored"}, web.Keys())
	assert.Equal(t, []string{"www", "web", "static"}, web.Values("alias"))
	assert.Equal(t, []string{"true"}, web.Values("monitored"))

	db := f.Section("db1")
	require.NotNil(t, db)
	assert.Equal(t, []string{"database"}, db.Values("role"))
}

func TestRead_Comments(t *testing.T) {
	data := []byte("# lab\n" +
		"; ignored as well\n" +
		"[/etc/app/***] # config tree\n" +
		"action = svc.reload ; svc.restart\n" +
		"url = http://example.org/#top\n" +
		"user = www\t# the web user\r\n" +
		"note = ;semicolon first\n")

	f, err := Read("dirs.ini", data)
	require.NoError(t, err)
	require.Len(t, f.Sections, 1)

	sec := f.Section("/etc/app/***")
	require.NotNil(t, sec)
	assert.Equal(t, []string{"svc.reload ; svc.restart"}, sec.Values("action"))
	assert.Equal(t, []string{"http://example.org/#top"}, sec.Values("url"))
	assert.Equal(t, []string{"www"}, sec.Values("user"))
	assert.Equal(t, []string{";semicolon first"}, sec.Values("note"))
}

func TestRead_Interpolation(t *testing.T) {
	data := []byte(`
[META]
domain = example.org
ntp = ntp1.example.org
ntp = ntp2.example.org

[web1]
fqdn = web1.${domain}
ntp = @{ntp}
ntp = ntp3.example.org

[web2]
ntp = @{ntp}
ntp = !{clear}
ntp = local
`)

	f, err := Read("hosts.ini", data)
	require.NoError(t, err)
	assert.Nil(t, f.Section(MetaSection), "META is never returned")

	web1 := f.Section("web1")
	require.NotNil(t, web1)
	assert.Equal(t, []string{"web1.example.org"}, web1.Values("fqdn"))
	assert.Equal(t, []string{"ntp1.example.org", "ntp2.example.org", "ntp3.example.org"}, web1.Values("ntp"))

	web2 := f.Section("web2")
	require.NotNil(t, web2)
	assert.Equal(t, []string{"local"}, web2.Values("ntp"))
}

func TestRead_InterpolationErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		ref  string
	}{
		{
			name: "missing scalar",
			data: "[web1]\nfqdn = ${domain}\n",
			ref:  "domain",
		},
		{
			name: "missing list",
			data: "[web1]\nntp = @{ntp}\n",
			ref:  "ntp",
		},
		{
			name: "multi-valued scalar",
			data: "[META]\nntp = a\nntp = b\n[web1]\nntp = server ${ntp}\n",
			ref:  "ntp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read("hosts.ini", []byte(tt.data))
			require.Error(t, err)

			var ie *InterpolationError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, "hosts.ini", ie.File)
			assert.Equal(t, "web1", ie.Section)
			assert.Equal(t, tt.ref, ie.Ref)
		})
	}
}
