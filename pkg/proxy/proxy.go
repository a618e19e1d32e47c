// Package proxy wires C1 through C7 together into the single pipeline the
// `proxy` subcommand runs: parse the hostname, resolve it to a pod and
// container, provision that container's sshd, and bridge stdio to it.
package proxy

import (
	"context"
	"fmt"
	"io"

	"github.com/imos/sshpod/pkg/bootstrap"
	"github.com/imos/sshpod/pkg/bridge"
	"github.com/imos/sshpod/pkg/bundle"
	"github.com/imos/sshpod/pkg/hostspec"
	"github.com/imos/sshpod/pkg/kubectl"
	"github.com/imos/sshpod/pkg/resolver"
)

// Cluster is the full surface proxy needs from a cluster client: the union
// of what C3, C5, C6 and C7 each require.
type Cluster interface {
	resolver.Cluster
	bundle.Cluster
	bootstrap.Cluster
	PortForward(clusterContext, namespace, pod string, remotePort int) (*kubectl.Forward, int, error)
}

// KeyCache is the subset of *keys.Cache proxy needs.
type KeyCache interface {
	EnsureLocalKey() (string, error)
}

// BundleInstaller is the subset of *bundle.Installer proxy needs.
type BundleInstaller interface {
	EnsureBundle(c bundle.Cluster, clusterContext, namespace, pod, container, base, arch string) error
}

// Bridger is the subset of *bridge.Bridge proxy needs.
type Bridger interface {
	Run(ctx context.Context, stdin io.Reader, stdout io.Writer, localPort int, forward bridge.Forward) error
}

// Pipeline holds every collaborator the proxy subcommand needs, injected so
// the end-to-end flow can be driven against fakes in tests.
type Pipeline struct {
	Cluster  Cluster
	Keys     KeyCache
	Bundle   BundleInstaller
	Bridge   Bridger
	Whoami   func() (string, error)
}

// Run executes the full bootstrap-and-bridge pipeline for one `ssh` /
// ProxyCommand invocation: host is the virtual hostname OpenSSH passed in
// via %h, requestedUser is --user (possibly empty).
func (p *Pipeline) Run(ctx context.Context, host, requestedUser string, stdin io.Reader, stdout io.Writer) error {
	spec, err := hostspec.Parse(host)
	if err != nil {
		return err
	}

	loginUser := requestedUser
	if loginUser == "" {
		loginUser, err = p.Whoami()
		if err != nil {
			return err
		}
	}

	resolved, err := resolver.Resolve(p.Cluster, spec)
	if err != nil {
		return err
	}

	base := fmt.Sprintf("/tmp/sshpod/%s/%s", resolved.Info.UID, resolved.Container)

	publicKey, err := p.Keys.EnsureLocalKey()
	if err != nil {
		return err
	}

	bootstrap.TryAcquireLock(p.Cluster, resolved.Context, resolved.Namespace, resolved.Pod, resolved.Container, base)

	if err := bootstrap.AssertLoginUserAllowed(p.Cluster, resolved.Context, resolved.Namespace, resolved.Pod, resolved.Container, loginUser); err != nil {
		return err
	}

	arch, err := bundle.DetectRemoteArch(p.Cluster, resolved.Context, resolved.Namespace, resolved.Pod, resolved.Container)
	if err != nil {
		return err
	}

	if err := p.Bundle.EnsureBundle(p.Cluster, resolved.Context, resolved.Namespace, resolved.Pod, resolved.Container, base, arch); err != nil {
		return err
	}

	remotePort, err := bootstrap.EnsureSSHDRunning(p.Cluster, resolved.Context, resolved.Namespace, resolved.Pod, resolved.Container, base, loginUser, publicKey)
	if err != nil {
		return err
	}

	forward, localPort, err := p.Cluster.PortForward(resolved.Context, resolved.Namespace, resolved.Pod, remotePort)
	if err != nil {
		return err
	}

	return p.Bridge.Run(ctx, stdin, stdout, localPort, forward)
}
