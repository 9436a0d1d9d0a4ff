package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagnerflo/thincf/inireader"
)

func testHosts(t *testing.T) *Hosts {
	f, err := inireader.Read(HostsFile, []byte(`
[web1]
role = frontend
iface.eth0 = 10.0.0.1
iface.eth1 = 10.0.1.1
alias = www
alias = static

[db1]
role = database
`))
	require.NoError(t, err)
	return NewHosts(f)
}

func TestHosts_Lookup(t *testing.T) {
	hosts := testHosts(t)
	assert.Equal(t, 2, hosts.Len())

	web, ok := hosts.Lookup("web1")
	require.True(t, ok)
	assert.Equal(t, "web1", web.Name())

	_, ok = hosts.Lookup("web2")
	assert.False(t, ok)

	var names []string
	for _, h := range hosts.All() {
		names = append(names, h.Name())
	}
	assert.Equal(t, []string{"web1", "db1"}, names)
}

func TestHost_Attributes(t *testing.T) {
	web, _ := testHosts(t).Lookup("web1")

	role, err := web.Get("role")
	require.NoError(t, err)
	assert.Equal(t, "frontend", role)

	_, err = web.Get("location")
	assert.ErrorIs(t, err, ErrAttributeNotFound)

	assert.Equal(t, []string{"www", "static"}, web.GetAll("alias"))
	assert.True(t, web.Has("iface.*"))
	assert.False(t, web.Has("iface"))
	assert.Equal(t, []string{"role", "iface.eth0", "iface.eth1", "alias"}, web.Keys())

	assert.Equal(t, []Match{
		{Key: "iface.eth0", Wildcard: "eth0", Value: "10.0.0.1"},
		{Key: "iface.eth1", Wildcard: "eth1", Value: "10.0.1.1"},
	}, web.Find("iface.*"))
}
