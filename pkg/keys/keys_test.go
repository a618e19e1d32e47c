package keys

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKeygen writes a shell script that stands in for ssh-keygen: it writes
// a private key file at argv's -f path and a ".pub" sibling, mirroring the
// two files EnsureLocalKey expects to find.
func fakeKeygen(t *testing.T, pubContents string) string {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-ssh-keygen.sh")
	body := fmt.Sprintf(`#!/bin/sh
for i in $(seq 1 $#); do
  eval "arg=\${$i}"
  if [ "$arg" = "-f" ]; then
    next=$((i + 1))
    eval "path=\${$next}"
  fi
done
echo "private" > "$path"
echo "%s" > "$path.pub"
`, pubContents)
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))
	return script
}

func TestEnsureLocalKeyGeneratesOnFirstUse(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	c := &Cache{keygen: fakeKeygen(t, "ssh-ed25519 AAAAC3Nza fake@host")}

	pub, err := c.EnsureLocalKey()
	require.NoError(t, err)
	assert.Equal(t, "ssh-ed25519 AAAAC3Nza fake@host", pub)

	dir, err := Dir()
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestEnsureLocalKeyReusesExistingPair(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".cache", "sshpod")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, privateKeyName), []byte("existing"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, publicKeyName), []byte("existing-pub\n"), 0o600))

	c := &Cache{keygen: fakeKeygen(t, "should-not-be-called")}

	pub, err := c.EnsureLocalKey()
	require.NoError(t, err)
	assert.Equal(t, "existing-pub", pub)
}

func TestEnsureLocalKeyFailsWithoutHome(t *testing.T) {
	t.Setenv("HOME", "")

	c := NewCache()
	_, err := c.EnsureLocalKey()
	require.Error(t, err)
}
