package kubectl

import (
	corev1 "k8s.io/api/core/v1"
)

// PodInfo is the minimal projection of a corev1.Pod that the rest of sshpod
// needs: the pod's stable cluster identity (used to key BasePath) and its
// ordered container names.
type PodInfo struct {
	UID        string
	Containers []string
}

func podInfoFromPod(pod *corev1.Pod) PodInfo {
	names := make([]string, 0, len(pod.Spec.Containers))
	for _, c := range pod.Spec.Containers {
		names = append(names, c.Name)
	}
	return PodInfo{UID: string(pod.UID), Containers: names}
}

// PodListItem is the projection of a corev1.Pod used for ranking candidates
// returned by a label-selector list (deployment/job resolution).
type PodListItem struct {
	Name       string
	Phase      string
	Conditions []PodCondition
}

// PodCondition mirrors the (type, status) pair of a corev1.PodCondition;
// only these two fields matter for the Ready/Running ranking in pkg/resolver.
type PodCondition struct {
	Type   string
	Status string
}

// Ready reports whether the pod is Running with a True Ready condition, the
// same test pkg/resolver ranks candidates by and the one used to build the
// typo-recovery candidate list on a failed get.
func (p PodListItem) Ready() bool {
	if p.Phase != "Running" {
		return false
	}
	for _, c := range p.Conditions {
		if c.Type == "Ready" && c.Status == "True" {
			return true
		}
	}
	return false
}

func podListItemFromPod(pod *corev1.Pod) PodListItem {
	item := PodListItem{
		Name:  pod.Name,
		Phase: string(pod.Status.Phase),
	}
	for _, c := range pod.Status.Conditions {
		item.Conditions = append(item.Conditions, PodCondition{
			Type:   string(c.Type),
			Status: string(c.Status),
		})
	}
	return item
}

// DeploymentSelector is the projection of an appsv1.Deployment needed to
// list its pods: the pod template's label selector.
type DeploymentSelector struct {
	MatchLabels      map[string]string
	MatchExpressions []SelectorRequirement
}

// JobSelector is the projection of a batchv1.Job needed to list its pods:
// its own selector, if any, and its pod template labels as a fallback.
type JobSelector struct {
	MatchLabels      map[string]string
	MatchExpressions []SelectorRequirement
	TemplateLabels   map[string]string
}

// SelectorRequirement mirrors a metav1.LabelSelectorRequirement.
type SelectorRequirement struct {
	Key      string
	Operator string // In, NotIn, Exists, DoesNotExist
	Values   []string
}
