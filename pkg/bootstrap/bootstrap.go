// Package bootstrap performs the remote-side setup a bridge needs before it
// can dial a container's sshd: a best-effort lock against concurrent
// bootstraps, a login-user sanity check, and idempotent daemon launch via a
// pinned shell script executed over kubectl exec.
package bootstrap

import (
	"strconv"
	"strings"

	"github.com/imos/sshpod/pkg/sshpoderr"
)

// Cluster is the subset of *kubectl.Client bootstrap needs.
type Cluster interface {
	ExecCapture(clusterContext, namespace, pod, container string, argv []string) (string, error)
	ExecCaptureOptional(clusterContext, namespace, pod, container string, argv []string) (string, bool, error)
	ExecWithInput(clusterContext, namespace, pod, container string, argv []string, input []byte) (string, error)
}

// TryAcquireLock attempts `mkdir BASE/lock`. The outcome is deliberately
// ignored: a stale lock from a crashed previous invocation must never block
// bootstrap, since every write the script performs is already safe under
// concurrency.
func TryAcquireLock(c Cluster, clusterContext, namespace, pod, container, base string) {
	script := "umask 077; mkdir \"" + base + "/lock\""
	_, _, _ = c.ExecCaptureOptional(clusterContext, namespace, pod, container, []string{"sh", "-c", script})
}

// AssertLoginUserAllowed permits any login user when the container runs as
// root (uid 0); otherwise the requested login user must match the
// container's actual user name.
func AssertLoginUserAllowed(c Cluster, clusterContext, namespace, pod, container, loginUser string) error {
	uid, err := c.ExecCapture(clusterContext, namespace, pod, container, []string{"id", "-u"})
	if err != nil {
		return sshpoderr.Wrap(sshpoderr.SshdStartFailed, err, "failed to read remote uid")
	}
	if strings.TrimSpace(uid) == "0" {
		return nil
	}

	remoteUser, err := c.ExecCapture(clusterContext, namespace, pod, container, []string{"id", "-un"})
	if err != nil {
		return sshpoderr.Wrap(sshpoderr.SshdStartFailed, err, "failed to read remote user")
	}
	remoteUser = strings.TrimSpace(remoteUser)
	if remoteUser != loginUser {
		return sshpoderr.New(sshpoderr.UserMismatch,
			"this pod runs as non-root; use the container user for login (requested: "+loginUser+", required: "+remoteUser+")")
	}
	return nil
}

// EnsureSSHDRunning runs startSSHDScript over stdin and parses its sole
// stdout line as the chosen loopback port.
func EnsureSSHDRunning(c Cluster, clusterContext, namespace, pod, container, base, loginUser, pubkeyLine string) (int, error) {
	out, err := c.ExecWithInput(
		clusterContext, namespace, pod, container,
		[]string{"sh", "-s", "--", base, loginUser, pubkeyLine},
		[]byte(startSSHDScript),
	)
	if err != nil {
		return 0, sshpoderr.Wrap(sshpoderr.SshdStartFailed, err, "failed to start sshd under "+base)
	}

	port, err := strconv.ParseUint(strings.TrimSpace(out), 10, 16)
	if err != nil {
		return 0, sshpoderr.Wrap(sshpoderr.SshdStartFailed, err, "unexpected sshd port output: "+out)
	}
	return int(port), nil
}
