package method_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cperrin88/acquire/pkg/acqconfig"
	"github.com/cperrin88/acquire/pkg/method"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
}

func TestResolveDefaultDir(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, filepath.Join(dir, "http"), "exit 0\n")

	cfg := acqconfig.New()
	cfg.Set("Dir::Bin::Methods", dir)

	res, err := method.Resolve(cfg, "http")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "http"), res.ExecPath)
	assert.Equal(t, res.ExecPath, res.CallingPath)
}

func TestResolveOverrideRedirects(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real-http")
	writeScript(t, real, "exit 0\n")

	cfg := acqconfig.New()
	cfg.Set("Dir::Bin::Methods", dir)
	cfg.Set("Dir::Bin::Methods::http", real)

	res, err := method.Resolve(cfg, "http")
	require.NoError(t, err)
	assert.Equal(t, real, res.ExecPath)
	assert.Equal(t, filepath.Join(dir, "http"), res.CallingPath)
}

func TestResolveDisabledByPolicy(t *testing.T) {
	cfg := acqconfig.New()
	cfg.Set("Dir::Bin::Methods::https", "false")

	_, err := method.Resolve(cfg, "https")
	require.ErrorIs(t, err, method.ErrDisabled)
	assert.Contains(t, err.Error(), "tor+https")
}

func TestResolveLegacySchemeRefused(t *testing.T) {
	cfg := acqconfig.New()
	cfg.Set("Dir::Bin::Methods", t.TempDir())

	for _, access := range []string{"ftp", "rsh", "ssh"} {
		_, err := method.Resolve(cfg, access)
		require.ErrorIs(t, err, method.ErrUnsupported, access)
		assert.Contains(t, err.Error(), "Dir::Bin::Methods::"+access)
	}
}

func TestResolveLegacySchemeWithOverrideRuns(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, filepath.Join(dir, "ftp"), "exit 0\n")

	cfg := acqconfig.New()
	cfg.Set("Dir::Bin::Methods", dir)
	cfg.Set("Dir::Bin::Methods::ftp", filepath.Join(dir, "ftp"))

	_, err := method.Resolve(cfg, "ftp")
	require.NoError(t, err)
}

func TestResolveMissingDriverHint(t *testing.T) {
	cfg := acqconfig.New()
	cfg.Set("Dir::Bin::Methods", filepath.Join(t.TempDir(), "nowhere"))

	_, err := method.Resolve(cfg, "tor+https")
	require.ErrorIs(t, err, method.ErrDriverNotFound)
	assert.Contains(t, err.Error(), "apt-transport-tor")
}
