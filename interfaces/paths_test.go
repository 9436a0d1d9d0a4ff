package interfaces

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanBundlePath(t *testing.T) {
	valid := map[string]string{
		"hosts.ini":              "hosts.ini",
		"etc/app/config":         "etc/app/config",
		"./etc/app/config":       "etc/app/config",
		"etc/../etc/app//config": "etc/app/config",
	}
	for in, want := range valid {
		got, err := CleanBundlePath(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"", ".", "..", "../../etc/passwd", "/etc/passwd", "etc/../../x", "a\x00b"} {
		_, err := CleanBundlePath(in)
		assert.ErrorIs(t, err, ErrInvalidPath, in)
	}
}

func TestNewStorageBackendLocation(t *testing.T) {
	loc, err := NewStorageBackendLocation("s3://key:secret@bucket/prefix?region=eu-central-1")
	require.NoError(t, err)
	assert.True(t, loc.IsS3())
	assert.Equal(t, "bucket", loc.Host)
	assert.Equal(t, "/prefix", loc.Path)
	assert.Equal(t, "eu-central-1", loc.GetParam("region"))
	assert.Equal(t, "key", loc.Auth.Username())

	loc, err = NewStorageBackendLocation("file:///var/lib/thincf")
	require.NoError(t, err)
	assert.True(t, loc.IsFile())
	assert.Equal(t, "/var/lib/thincf", loc.Path)

	_, err = NewStorageBackendLocation("ipfs://localhost")
	assert.ErrorIs(t, err, ErrInvalidLocationURI)
}
