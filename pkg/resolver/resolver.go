// Package resolver turns a parsed hostspec.HostSpec into a concrete
// (context, namespace, pod, container) tuple by querying the cluster, per
// the target-resolution rules: deployments and jobs resolve to one of their
// live pods, picked by a Ready-then-Running-then-first ranking.
package resolver

import (
	"github.com/samber/lo"

	"github.com/imos/sshpod/pkg/hostspec"
	"github.com/imos/sshpod/pkg/kubectl"
	"github.com/imos/sshpod/pkg/sshpoderr"
)

// Cluster is the subset of *kubectl.Client the resolver depends on,
// declared as an interface so tests can drive it with a fake.
type Cluster interface {
	EnsureContextExists(clusterContext string) error
	GetContextNamespace(clusterContext string) (string, bool, error)
	GetPod(clusterContext, namespace, pod string) (kubectl.PodInfo, error)
	GetDeployment(clusterContext, namespace, name string) (kubectl.DeploymentSelector, error)
	GetJob(clusterContext, namespace, name string) (kubectl.JobSelector, error)
	ListPods(clusterContext, namespace, selector string) ([]kubectl.PodListItem, error)
}

// Resolved is the fully-resolved destination a Bridge will connect to.
type Resolved struct {
	Context   string
	Namespace string
	Pod       string
	Container string
	Info      kubectl.PodInfo
}

// Resolve implements C3: context/namespace resolution, pod-name resolution
// by Target kind, PodInfo lookup, and container disambiguation.
func Resolve(c Cluster, spec hostspec.HostSpec) (Resolved, error) {
	if spec.Context != "" {
		if err := c.EnsureContextExists(spec.Context); err != nil {
			return Resolved{}, err
		}
	}

	namespace := spec.Namespace
	if namespace == "" && spec.Context != "" {
		if ns, ok, err := c.GetContextNamespace(spec.Context); err != nil {
			return Resolved{}, err
		} else if ok {
			namespace = ns
		}
	}

	podName, err := resolvePodName(c, spec.Context, namespace, spec.Target)
	if err != nil {
		return Resolved{}, err
	}

	info, err := c.GetPod(spec.Context, namespace, podName)
	if err != nil {
		return Resolved{}, err
	}

	container, err := pickContainer(info, spec.Container)
	if err != nil {
		return Resolved{}, err
	}

	return Resolved{
		Context:   spec.Context,
		Namespace: namespace,
		Pod:       podName,
		Container: container,
		Info:      info,
	}, nil
}

func resolvePodName(c Cluster, clusterContext, namespace string, target hostspec.Target) (string, error) {
	switch target.Kind {
	case hostspec.TargetPod:
		return target.Name, nil

	case hostspec.TargetDeployment:
		sel, err := c.GetDeployment(clusterContext, namespace, target.Name)
		if err != nil {
			return "", err
		}
		selector, err := renderSelector(sel.MatchLabels, sel.MatchExpressions)
		if err != nil {
			return "", err
		}
		return choosePod(c, clusterContext, namespace, selector, target.Name, "deployment")

	case hostspec.TargetJob:
		job, err := c.GetJob(clusterContext, namespace, target.Name)
		if err != nil {
			return "", err
		}
		selector, err := jobSelector(job, target.Name)
		if err != nil {
			return "", err
		}
		return choosePod(c, clusterContext, namespace, selector, target.Name, "job")

	default:
		return "", sshpoderr.New(sshpoderr.BadHostname, "unknown target kind")
	}
}

// jobSelector implements the job selector fallback ladder: the job's own
// selector, else its pod template's labels, else the literal job-name
// selector kubectl's Job controller itself stamps onto pods it creates.
func jobSelector(job kubectl.JobSelector, name string) (string, error) {
	if len(job.MatchLabels) > 0 || len(job.MatchExpressions) > 0 {
		return renderSelector(job.MatchLabels, job.MatchExpressions)
	}
	if len(job.TemplateLabels) > 0 {
		return renderSelector(job.TemplateLabels, nil)
	}
	return renderSelector(map[string]string{"job-name": name}, nil)
}

// choosePod lists pods matching selector and ranks them: first Ready, else
// first Running, else the first of the list; fails if none exist.
func choosePod(c Cluster, clusterContext, namespace, selector, name, kind string) (string, error) {
	pods, err := c.ListPods(clusterContext, namespace, selector)
	if err != nil {
		return "", err
	}
	if len(pods) == 0 {
		return "", sshpoderr.New(sshpoderr.NoPodFound,
			"no pods matched "+kind+" "+name+" (selector: "+selector+")")
	}

	if ready, ok := lo.Find(pods, isReady); ok {
		return ready.Name, nil
	}
	if running, ok := lo.Find(pods, isRunning); ok {
		return running.Name, nil
	}
	return pods[0].Name, nil
}

func isReady(pod kubectl.PodListItem) bool {
	return pod.Ready()
}

func isRunning(pod kubectl.PodListItem) bool {
	return pod.Phase == "Running"
}

// pickContainer implements the container-disambiguation rule: an explicit
// container name must be a member of the pod; otherwise the pod must have
// exactly one container.
func pickContainer(info kubectl.PodInfo, requested string) (string, error) {
	if requested != "" {
		if lo.Contains(info.Containers, requested) {
			return requested, nil
		}
		return "", sshpoderr.New(sshpoderr.AmbiguousContainer,
			"container \""+requested+"\" is not present in pod (containers: "+joinNames(info.Containers)+")")
	}
	if len(info.Containers) == 1 {
		return info.Containers[0], nil
	}
	return "", sshpoderr.New(sshpoderr.AmbiguousContainer,
		"pod has multiple containers and none was specified via container--<name> (containers: "+joinNames(info.Containers)+")")
}

func joinNames(names []string) string {
	return lo.Reduce(names, func(acc string, name string, i int) string {
		if i == 0 {
			return name
		}
		return acc + ", " + name
	}, "")
}
