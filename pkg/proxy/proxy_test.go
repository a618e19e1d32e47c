package proxy

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imos/sshpod/pkg/bridge"
	"github.com/imos/sshpod/pkg/bundle"
	"github.com/imos/sshpod/pkg/kubectl"
)

// fakeCluster implements proxy.Cluster end to end for a single pod-target
// scenario, mirroring the six stages the pipeline drives in order.
type fakeCluster struct {
	portForwardCalled bool
}

func (f *fakeCluster) EnsureContextExists(string) error                { return nil }
func (f *fakeCluster) GetContextNamespace(string) (string, bool, error) { return "", false, nil }
func (f *fakeCluster) GetPod(_, _, pod string) (kubectl.PodInfo, error) {
	return kubectl.PodInfo{UID: "uid-1", Containers: []string{"main"}}, nil
}
func (f *fakeCluster) GetDeployment(_, _, _ string) (kubectl.DeploymentSelector, error) {
	return kubectl.DeploymentSelector{}, nil
}
func (f *fakeCluster) GetJob(_, _, _ string) (kubectl.JobSelector, error) {
	return kubectl.JobSelector{}, nil
}
func (f *fakeCluster) ListPods(_, _, _ string) ([]kubectl.PodListItem, error) { return nil, nil }

func (f *fakeCluster) ExecCapture(_, _, _, _ string, argv []string) (string, error) {
	if len(argv) > 0 && argv[0] == "uname" {
		return "x86_64", nil
	}
	if len(argv) > 0 && argv[0] == "id" {
		return "0", nil
	}
	return "", nil
}

func (f *fakeCluster) ExecCaptureOptional(_, _, _, _ string, _ []string) (string, bool, error) {
	return "", false, nil
}

func (f *fakeCluster) ExecWithInput(_, _, _, _ string, _ []string, _ []byte) (string, error) {
	return "40001", nil
}

func (f *fakeCluster) PortForward(_, _, _ string, remotePort int) (*kubectl.Forward, int, error) {
	f.portForwardCalled = true
	return nil, 50001, nil
}

type fakeKeys struct{}

func (fakeKeys) EnsureLocalKey() (string, error) { return "ssh-ed25519 AAAA test", nil }

type fakeInstaller struct{ called bool }

func (f *fakeInstaller) EnsureBundle(_ bundle.Cluster, clusterContext, namespace, pod, container, base, arch string) error {
	f.called = true
	return nil
}

type fakeBridge struct {
	localPort int
}

func (f *fakeBridge) Run(_ context.Context, _ io.Reader, _ io.Writer, localPort int, _ bridge.Forward) error {
	f.localPort = localPort
	return nil
}

func TestPipelineRunEndToEnd(t *testing.T) {
	cluster := &fakeCluster{}
	installer := &fakeInstaller{}
	br := &fakeBridge{}

	p := &Pipeline{
		Cluster: cluster,
		Keys:    fakeKeys{},
		Bundle:  installer,
		Bridge:  br,
		Whoami:  func() (string, error) { return "tester", nil },
	}

	err := p.Run(context.Background(), "pod--app.namespace--ns.sshpod", "", bytes.NewReader(nil), &bytes.Buffer{})
	require.NoError(t, err)

	assert.True(t, installer.called)
	assert.True(t, cluster.portForwardCalled)
	assert.Equal(t, 50001, br.localPort)
}

func TestPipelineRunInvalidHostFailsFast(t *testing.T) {
	p := &Pipeline{
		Cluster: &fakeCluster{},
		Keys:    fakeKeys{},
		Bundle:  &fakeInstaller{},
		Bridge:  &fakeBridge{},
		Whoami:  func() (string, error) { return "tester", nil },
	}

	err := p.Run(context.Background(), "not-a-valid-host", "", bytes.NewReader(nil), &bytes.Buffer{})
	require.Error(t, err)
}
