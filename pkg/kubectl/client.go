// Package kubectl is a typed wrapper over an external cluster CLI binary
// (kubectl-compatible). It never talks to the cluster API directly: every
// operation shells out, exactly the way the original implementation did,
// so that the caller's kubeconfig, exec-plugins and context handling all
// keep working unmodified.
package kubectl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/jesseduffield/kill"
	"github.com/sirupsen/logrus"
	"github.com/spkg/bom"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/imos/sshpod/pkg/sshpoderr"
)

// Client wraps the cluster CLI binary (named by Bin, defaulting to
// "kubectl"). The command func is injectable so tests can substitute a
// fake process without touching the real cluster.
type Client struct {
	Bin string
	Log *logrus.Entry

	command func(name string, args ...string) *exec.Cmd
}

// NewClient returns a Client that shells out to the real "kubectl" binary.
func NewClient(log *logrus.Entry) *Client {
	return &Client{
		Bin:     "kubectl",
		Log:     log,
		command: exec.Command,
	}
}

// SetCommand overrides the command constructor. For testing only.
func (c *Client) SetCommand(cmd func(name string, args ...string) *exec.Cmd) {
	c.command = cmd
}

func (c *Client) bin() string {
	if c.Bin == "" {
		return "kubectl"
	}
	return c.Bin
}

// baseArgs returns the leading --context flag (if set) ahead of any
// subcommand, per spec: "the context, if set, is passed as --context <ctx>
// before any subcommand."
func baseArgs(clusterContext string) []string {
	if clusterContext == "" {
		return nil
	}
	return []string{"--context", clusterContext}
}

func (c *Client) newCmd(args ...string) *exec.Cmd {
	cmd := c.command(c.bin(), args...)
	kill.PrepareForChildren(cmd)
	return cmd
}

// run executes argv, piping stdout/stderr, and returns trimmed stdout. On a
// non-zero exit it returns a ClusterQueryFailed error whose message includes
// stderr.
func (c *Client) run(args []string) (string, error) {
	cmd := c.newCmd(args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", sshpoderr.Wrap(sshpoderr.ClusterQueryFailed, err,
			fmt.Sprintf("%s %s failed: %s", c.bin(), strings.Join(args, " "), strings.TrimSpace(stderr.String())))
	}
	// Some kubeconfig exec-plugins (notably on Windows-authored kubeconfigs)
	// emit a leading UTF-8 BOM; strip it before any caller tries to
	// json.Unmarshal the result.
	return strings.TrimSpace(string(bom.Clean(stdout.Bytes()))), nil
}

// ListContexts parses `config get-contexts -o name`, one context per line.
func (c *Client) ListContexts() ([]string, error) {
	out, err := c.run([]string{"config", "get-contexts", "-o", "name"})
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

type kubeconfigView struct {
	Contexts []struct {
		Name    string `json:"name"`
		Context struct {
			Namespace string `json:"namespace"`
		} `json:"context"`
	} `json:"contexts"`
}

// GetContextNamespace returns the default namespace configured for ctx, or
// ("", false) if the context has none configured.
func (c *Client) GetContextNamespace(clusterContext string) (string, bool, error) {
	out, err := c.run([]string{"config", "view", "-o", "json"})
	if err != nil {
		return "", false, err
	}
	var view kubeconfigView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		return "", false, sshpoderr.Wrap(sshpoderr.ClusterQueryFailed, err, "failed to parse kubectl config view output")
	}
	for _, entry := range view.Contexts {
		if entry.Name == clusterContext {
			if entry.Context.Namespace == "" {
				return "", false, nil
			}
			return entry.Context.Namespace, true, nil
		}
	}
	return "", false, nil
}

// EnsureContextExists verifies ctx is one of the configured contexts.
func (c *Client) EnsureContextExists(clusterContext string) error {
	contexts, err := c.ListContexts()
	if err != nil {
		return err
	}
	for _, name := range contexts {
		if name == clusterContext {
			return nil
		}
	}
	return sshpoderr.New(sshpoderr.UnknownContext,
		fmt.Sprintf("unknown context %q; available contexts: %s", clusterContext, strings.Join(contexts, ", ")))
}

// GetPod fetches a single pod by name and projects it into a PodInfo.
func (c *Client) GetPod(clusterContext, namespace, pod string) (PodInfo, error) {
	args := append(baseArgs(clusterContext), "get", "pod", pod, "-n", namespace, "-o", "json")
	out, err := c.run(args)
	if err != nil {
		return PodInfo{}, c.wrapGetFailure(clusterContext, namespace, err)
	}
	var p corev1.Pod
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		return PodInfo{}, sshpoderr.Wrap(sshpoderr.ClusterQueryFailed, err, "failed to parse kubectl get pod output")
	}
	return podInfoFromPod(&p), nil
}

// GetDeployment fetches a deployment and projects its pod-template selector.
func (c *Client) GetDeployment(clusterContext, namespace, name string) (DeploymentSelector, error) {
	args := append(baseArgs(clusterContext), "get", "deployment", name, "-n", namespace, "-o", "json")
	out, err := c.run(args)
	if err != nil {
		return DeploymentSelector{}, c.wrapGetFailure(clusterContext, namespace, err)
	}
	var d appsv1.Deployment
	if err := json.Unmarshal([]byte(out), &d); err != nil {
		return DeploymentSelector{}, sshpoderr.Wrap(sshpoderr.ClusterQueryFailed, err, "failed to parse kubectl get deployment output")
	}
	return DeploymentSelector{
		MatchLabels:      d.Spec.Selector.MatchLabels,
		MatchExpressions: projectExpressions(d.Spec.Selector.MatchExpressions),
	}, nil
}

// GetJob fetches a job and projects its selector plus pod-template labels.
func (c *Client) GetJob(clusterContext, namespace, name string) (JobSelector, error) {
	args := append(baseArgs(clusterContext), "get", "job", name, "-n", namespace, "-o", "json")
	out, err := c.run(args)
	if err != nil {
		return JobSelector{}, c.wrapGetFailure(clusterContext, namespace, err)
	}
	var j batchv1.Job
	if err := json.Unmarshal([]byte(out), &j); err != nil {
		return JobSelector{}, sshpoderr.Wrap(sshpoderr.ClusterQueryFailed, err, "failed to parse kubectl get job output")
	}
	sel := JobSelector{TemplateLabels: j.Spec.Template.Labels}
	if j.Spec.Selector != nil {
		sel.MatchLabels = j.Spec.Selector.MatchLabels
		sel.MatchExpressions = projectExpressions(j.Spec.Selector.MatchExpressions)
	}
	return sel, nil
}

// wrapGetFailure enriches a failed "get pod/deployment/job" error (spec §7
// kind 2) with the currently-Ready pod names in namespace, to aid typo
// recovery. The candidate lookup is itself best-effort: if it fails too, the
// original error is returned unenriched rather than masked.
func (c *Client) wrapGetFailure(clusterContext, namespace string, err error) error {
	se, ok := err.(*sshpoderr.Error)
	if !ok {
		return err
	}
	names := c.readyPodNames(clusterContext, namespace)
	if len(names) == 0 {
		return err
	}
	return sshpoderr.Wrap(se.Kind, se.Cause,
		se.Message+"; currently-Ready pods in namespace "+namespace+": "+strings.Join(names, ", "),
		se.Context...)
}

// readyPodNames lists every pod in namespace and returns the names of those
// that are Ready, ignoring any listing error (this is a best-effort
// enrichment, not the primary failure being reported).
func (c *Client) readyPodNames(clusterContext, namespace string) []string {
	pods, err := c.ListPods(clusterContext, namespace, "")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(pods))
	for _, p := range pods {
		if p.Ready() {
			names = append(names, p.Name)
		}
	}
	return names
}

func projectExpressions(exprs []metav1.LabelSelectorRequirement) []SelectorRequirement {
	out := make([]SelectorRequirement, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, SelectorRequirement{
			Key:      e.Key,
			Operator: string(e.Operator),
			Values:   e.Values,
		})
	}
	return out
}

// ListPods lists pods in namespace matching the rendered selector string.
func (c *Client) ListPods(clusterContext, namespace, selector string) ([]PodListItem, error) {
	args := append(baseArgs(clusterContext), "get", "pods", "-l", selector, "-n", namespace, "-o", "json")
	out, err := c.run(args)
	if err != nil {
		return nil, err
	}
	var list corev1.PodList
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		return nil, sshpoderr.Wrap(sshpoderr.ClusterQueryFailed, err, "failed to parse kubectl get pods output")
	}
	items := make([]PodListItem, 0, len(list.Items))
	for i := range list.Items {
		items = append(items, podListItemFromPod(&list.Items[i]))
	}
	return items, nil
}

// ExecCapture runs argv inside container and returns stdout, failing on a
// non-zero exit.
func (c *Client) ExecCapture(clusterContext, namespace, pod, container string, argv []string) (string, error) {
	out, _, err := c.exec(clusterContext, namespace, pod, container, argv, nil, false)
	return out, err
}

// ExecCaptureOptional runs argv inside container; a non-zero exit yields
// ("", false, nil) instead of an error, for speculative reads.
func (c *Client) ExecCaptureOptional(clusterContext, namespace, pod, container string, argv []string) (string, bool, error) {
	out, ok, err := c.exec(clusterContext, namespace, pod, container, argv, nil, true)
	return out, ok, err
}

// ExecWithInput runs argv inside container, piping input to stdin then
// closing it; a non-zero exit is an error whose message includes stderr and
// any stdin-write error.
func (c *Client) ExecWithInput(clusterContext, namespace, pod, container string, argv []string, input []byte) (string, error) {
	out, _, err := c.exec(clusterContext, namespace, pod, container, argv, input, false)
	return out, err
}

func (c *Client) exec(clusterContext, namespace, pod, container string, argv []string, input []byte, optional bool) (string, bool, error) {
	args := append(baseArgs(clusterContext), "exec")
	if input != nil {
		args = append(args, "-i")
	}
	args = append(args, "-n", namespace, pod, "-c", container, "--")
	args = append(args, argv...)

	cmd := c.newCmd(args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	var stdinErr error
	if input != nil {
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return "", false, sshpoderr.Wrap(sshpoderr.ClusterQueryFailed, err, "failed to open kubectl exec stdin")
		}
		if err := cmd.Start(); err != nil {
			return "", false, sshpoderr.Wrap(sshpoderr.ClusterQueryFailed, err, "failed to spawn kubectl exec")
		}
		if _, err := stdin.Write(input); err != nil {
			stdinErr = err
		}
		stdin.Close()
		err = cmd.Wait()
		return c.finishExec(args, stdout.String(), stderr.String(), stdinErr, err, optional)
	}

	err := cmd.Run()
	return c.finishExec(args, stdout.String(), stderr.String(), nil, err, optional)
}

func (c *Client) finishExec(args []string, stdout, stderr string, stdinErr, runErr error, optional bool) (string, bool, error) {
	if runErr != nil {
		if optional {
			return "", false, nil
		}
		msg := fmt.Sprintf("%s %s failed: %s", c.bin(), strings.Join(args, " "), strings.TrimSpace(stderr))
		if stdinErr != nil {
			msg = fmt.Sprintf("%s %s failed (stdin error: %s): %s", c.bin(), strings.Join(args, " "), stdinErr, strings.TrimSpace(stderr))
		}
		return "", false, sshpoderr.Wrap(sshpoderr.ClusterQueryFailed, runErr, msg)
	}
	if stdinErr != nil {
		return "", false, sshpoderr.Wrap(sshpoderr.ClusterQueryFailed, stdinErr, "kubectl exec stdin error")
	}
	return strings.TrimSpace(string(bom.Clean([]byte(stdout)))), true, nil
}

// Forward is a handle on a running `kubectl port-forward` subprocess.
type Forward struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// Stop terminates the port-forward process and waits for it to exit. It is
// safe to call Stop on every exit path from the bridge; the underlying
// kill.Kill call targets the whole process group so kubectl's own children
// (if any) are reaped too.
func (f *Forward) Stop() error {
	if f == nil || f.cmd == nil || f.cmd.Process == nil {
		return nil
	}
	err := kill.Kill(f.cmd)
	<-f.done
	return err
}

var forwardingPattern = "Forwarding from 127.0.0.1:"

// PortForward launches `kubectl port-forward -n <ns> <pod> :<remotePort>`
// and waits for the child to report its chosen local port on stdout, per
// the "Forwarding from 127.0.0.1:<N>" banner kubectl prints.
func (c *Client) PortForward(clusterContext, namespace, pod string, remotePort int) (*Forward, int, error) {
	args := append(baseArgs(clusterContext), "port-forward", "-n", namespace, pod, fmt.Sprintf(":%d", remotePort))
	cmd := c.newCmd(args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, 0, sshpoderr.Wrap(sshpoderr.PortForwardFailed, err, "failed to open port-forward stdout")
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, 0, sshpoderr.Wrap(sshpoderr.PortForwardFailed, err, "failed to spawn kubectl port-forward")
	}

	forward := &Forward{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(forward.done)
	}()

	localPort, err := waitForForwardingLine(stdout)
	if err != nil {
		_ = forward.Stop()
		return nil, 0, sshpoderr.Wrap(sshpoderr.PortForwardFailed, err,
			fmt.Sprintf("port-forward did not become ready: %s", strings.TrimSpace(stderr.String())))
	}

	// Drain any remaining stdout in the background so the child never
	// blocks writing to a full pipe once we stop reading the banner line.
	go func() { _, _ = io.Copy(io.Discard, stdout) }()

	return forward, localPort, nil
}

func waitForForwardingLine(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.Index(line, forwardingPattern); idx >= 0 {
			fields := strings.Fields(line[idx+len(forwardingPattern):])
			if len(fields) == 0 {
				return 0, fmt.Errorf("unexpected port-forward banner %q", line)
			}
			port, err := strconv.Atoi(fields[0])
			if err != nil {
				return 0, fmt.Errorf("unexpected port-forward banner %q", line)
			}
			return port, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("port-forward process exited before reporting a local port")
}
