package bundle

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

type fakeCluster struct {
	execCapture   func(argv []string) (string, error)
	optional      map[string]string // path -> contents; absent means miss
	installCalled bool
}

func (f *fakeCluster) ExecCapture(_, _, _, _ string, argv []string) (string, error) {
	if f.execCapture != nil {
		return f.execCapture(argv)
	}
	return "", nil
}

func (f *fakeCluster) ExecCaptureOptional(_, _, _, _ string, argv []string) (string, bool, error) {
	path := argv[len(argv)-1]
	v, ok := f.optional[path]
	return v, ok, nil
}

func (f *fakeCluster) ExecWithInput(_, _, _, _ string, _ []string, _ []byte) (string, error) {
	f.installCalled = true
	return "", nil
}

func TestDetectRemoteArchMapsKnownNames(t *testing.T) {
	c := &fakeCluster{execCapture: func([]string) (string, error) { return "x86_64", nil }}
	arch, err := DetectRemoteArch(c, "", "ns", "pod", "main")
	require.NoError(t, err)
	assert.Equal(t, "linux/amd64", arch)
}

func TestDetectRemoteArchRejectsUnknown(t *testing.T) {
	c := &fakeCluster{execCapture: func([]string) (string, error) { return "mips", nil }}
	_, err := DetectRemoteArch(c, "", "ns", "pod", "main")
	require.Error(t, err)
}

func TestXZRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write([]byte("hello bundle"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	plain, err := decodeXZ(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "hello bundle", string(plain))

	gzipped, err := reencodeXZtoGzip(buf.Bytes())
	require.NoError(t, err)
	assert.NotEmpty(t, gzipped)
}

func TestInflateScriptContainsMarkers(t *testing.T) {
	script := inflateScript("/tmp/sshpod/uid/main", "linux/amd64", `tar xJf - -C "%s/bundle"`)
	assert.Contains(t, script, "mkdir -p")
	assert.Contains(t, script, Version)
	assert.Contains(t, script, "linux/amd64")
	assert.Contains(t, script, "chmod 0600")
}

func TestEnsureBundleSkipsInstallWhenMarkersMatch(t *testing.T) {
	base := "/tmp/sshpod/uid/main"
	c := &fakeCluster{optional: map[string]string{
		base + "/bundle/VERSION": Version,
		base + "/bundle/ARCH":    "linux/amd64",
	}}
	inst := &Installer{Embedded: fakeEmbedded{}, Locate: func(string) (string, error) { return "", assert.AnError }}

	err := inst.EnsureBundle(c, "", "ns", "pod", "main", base, "linux/amd64")
	require.NoError(t, err)
	assert.False(t, c.installCalled)
}

func TestEnsureBundleInstallsWhenMarkersMismatch(t *testing.T) {
	base := "/tmp/sshpod/uid/main"
	c := &fakeCluster{optional: map[string]string{
		base + "/bundle/VERSION": "stale-version",
		base + "/bundle/ARCH":    "linux/amd64",
	}}
	inst := &Installer{Embedded: fakeEmbedded{}, Locate: func(string) (string, error) { return "", assert.AnError }}

	err := inst.EnsureBundle(c, "", "ns", "pod", "main", base, "linux/amd64")
	require.NoError(t, err)
	assert.True(t, c.installCalled)
}

type fakeEmbedded struct{}

func (fakeEmbedded) Get(arch string) ([]byte, bool) {
	var buf bytes.Buffer
	w, _ := xz.NewWriter(&buf)
	_, _ = w.Write([]byte("fake-sshd-binary"))
	_ = w.Close()
	return buf.Bytes(), true
}
