package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wagnerflo/thincf/api"
	"github.com/wagnerflo/thincf/api/provisioner"
)

func TestUploadBundle(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	archive := filepath.Join(dir, "bundle.tar")
	require.NoError(t, os.WriteFile(archive, []byte("tar"), 0o644))

	t.Run("directory", func(t *testing.T) {
		m := &provisioner.MockProvider{}
		m.On("UploadDir", ctx, dir).Return(nil)
		require.NoError(t, uploadBundle(ctx, m, dir, nil))
		m.AssertExpectations(t)
	})

	t.Run("archive file", func(t *testing.T) {
		m := &provisioner.MockProvider{}
		m.On("Upload", ctx, mock.AnythingOfType("*os.File")).Return(nil)
		require.NoError(t, uploadBundle(ctx, m, archive, nil))
		m.AssertExpectations(t)
	})

	t.Run("stdin", func(t *testing.T) {
		stdin := strings.NewReader("tar")
		m := &provisioner.MockProvider{}
		m.On("Upload", ctx, stdin).Return(errors.New("upload endpoint returned error 400"))
		err := uploadBundle(ctx, m, "-", stdin)
		assert.ErrorContains(t, err, "400")
		m.AssertExpectations(t)
	})

	t.Run("missing", func(t *testing.T) {
		m := &provisioner.MockProvider{}
		require.Error(t, uploadBundle(ctx, m, filepath.Join(dir, "missing"), nil))
		m.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
		m.AssertNotCalled(t, "UploadDir", mock.Anything, mock.Anything)
	})
}

func TestPrintScript(t *testing.T) {
	ctx := context.Background()
	req := api.ScriptRequest{Args: []string{Program, "status"}, States: []string{"fp"}}

	m := &provisioner.MockProvider{}
	m.On("Script", ctx, req).Return("#!/bin/sh\necho 'up to date'\n", nil).Once()
	m.On("Script", ctx, req).Return("", errors.New("script endpoint returned error 503")).Once()

	var out bytes.Buffer
	require.NoError(t, printScript(ctx, m, req, &out))
	assert.Equal(t, "#!/bin/sh\necho 'up to date'\n", out.String())

	out.Reset()
	assert.Error(t, printScript(ctx, m, req, &out))
	assert.Empty(t, out.String())
	m.AssertExpectations(t)
}

func TestParseEnv(t *testing.T) {
	env, err := parseEnv([]string{"OS=freebsd", "tag=a", "tag=b=c", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"os":    {"freebsd"},
		"tag":   {"a", "b=c"},
		"empty": {""},
	}, env)

	env, err = parseEnv(nil)
	require.NoError(t, err)
	assert.Nil(t, env)

	_, err = parseEnv([]string{"novalue"})
	assert.ErrorContains(t, err, "KEY=VALUE")
	_, err = parseEnv([]string{"=x"})
	assert.Error(t, err)
}

func TestNewHTTPClient(t *testing.T) {
	c, err := newHTTPClient("", "", "", true)
	require.NoError(t, err)
	require.NotNil(t, c.Transport)

	_, err = newHTTPClient("", "cert.pem", "", false)
	assert.ErrorContains(t, err, "together")

	empty := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(empty, []byte("not pem"), 0o644))
	_, err = newHTTPClient(empty, "", "", false)
	assert.ErrorContains(t, err, "no certificates")
}
