// Package hostspec decodes the structured virtual hostname OpenSSH passes to
// the ProxyCommand into a HostSpec describing which cluster, namespace, pod
// (or controller) and container to bridge to.
package hostspec

import (
	"strings"

	"github.com/imos/sshpod/pkg/sshpoderr"
)

// TargetKind identifies which kind of workload a HostSpec's target names.
type TargetKind int

const (
	TargetPod TargetKind = iota
	TargetDeployment
	TargetJob
)

func (k TargetKind) String() string {
	switch k {
	case TargetPod:
		return "pod"
	case TargetDeployment:
		return "deployment"
	case TargetJob:
		return "job"
	default:
		return "unknown"
	}
}

// Target names the workload a HostSpec resolves to.
type Target struct {
	Kind TargetKind
	Name string
}

// HostSpec is the immutable decoded form of a virtual sshpod hostname.
type HostSpec struct {
	Context   string // empty means unset (cluster CLI default)
	Namespace string // empty means unset (resolved later from context or cluster default)
	Target    Target
	Container string // empty means unset (resolved later; error if pod is multi-container)
}

const suffix = ".sshpod"

// Parse decodes a single hostname string into a HostSpec. It is total: every
// input yields either a HostSpec or a *sshpoderr.Error, never a panic.
func Parse(host string) (HostSpec, error) {
	trimmed := strings.TrimRight(host, ".")
	without, ok := strings.CutSuffix(trimmed, suffix)
	if !ok {
		return HostSpec{}, sshpoderr.New(sshpoderr.BadHostname, "hostname must end with .sshpod")
	}

	if without == "" {
		return HostSpec{}, invalidFormat("hostname has no tokens before .sshpod")
	}

	tokens := strings.Split(without, ".")

	var spec HostSpec
	var haveContext, haveNamespace, haveContainer, haveTarget bool

	for _, tok := range tokens {
		if tok == "" {
			return HostSpec{}, invalidFormat("empty token")
		}

		switch {
		case strings.HasPrefix(tok, "container--"):
			if haveContainer {
				return HostSpec{}, invalidFormat("duplicate container-- token")
			}
			value := strings.TrimPrefix(tok, "container--")
			if err := validName(value); err != nil {
				return HostSpec{}, err
			}
			spec.Container = value
			haveContainer = true

		case strings.HasPrefix(tok, "namespace--"):
			if haveNamespace {
				return HostSpec{}, invalidFormat("duplicate namespace-- token")
			}
			value := strings.TrimPrefix(tok, "namespace--")
			if err := validName(value); err != nil {
				return HostSpec{}, err
			}
			spec.Namespace = value
			haveNamespace = true

		case strings.HasPrefix(tok, "context--"):
			if haveContext {
				return HostSpec{}, invalidFormat("duplicate context-- token")
			}
			value := strings.TrimPrefix(tok, "context--")
			if value == "" {
				return HostSpec{}, invalidFormat("empty context-- value")
			}
			spec.Context = value
			haveContext = true

		default:
			if haveTarget {
				return HostSpec{}, invalidFormat("multiple target tokens")
			}
			target, err := parseTarget(tok)
			if err != nil {
				return HostSpec{}, err
			}
			spec.Target = target
			haveTarget = true
		}
	}

	if !haveTarget {
		return HostSpec{}, invalidFormat("missing target token (pod--/deployment--/job--/bare name)")
	}

	return spec, nil
}

func parseTarget(token string) (Target, error) {
	switch {
	case strings.HasPrefix(token, "pod--"):
		name := strings.TrimPrefix(token, "pod--")
		if err := validName(name); err != nil {
			return Target{}, err
		}
		return Target{Kind: TargetPod, Name: name}, nil
	case strings.HasPrefix(token, "deployment--"):
		name := strings.TrimPrefix(token, "deployment--")
		if err := validName(name); err != nil {
			return Target{}, err
		}
		return Target{Kind: TargetDeployment, Name: name}, nil
	case strings.HasPrefix(token, "job--"):
		name := strings.TrimPrefix(token, "job--")
		if err := validName(name); err != nil {
			return Target{}, err
		}
		return Target{Kind: TargetJob, Name: name}, nil
	default:
		if err := validName(token); err != nil {
			return Target{}, err
		}
		return Target{Kind: TargetPod, Name: token}, nil
	}
}

// validName rejects empty values and values that cannot possibly be a
// Kubernetes object name. It deliberately does not fully re-validate
// Kubernetes naming rules with validation.IsDNS1123Subdomain — tokens are
// already dot-delimited by the hostname grammar, and the cluster CLI itself
// is the authority on whether a name actually exists — it only catches
// whitespace and path separators, which can never be valid here.
func validName(value string) error {
	if value == "" {
		return invalidFormat("empty name")
	}
	if strings.ContainsAny(value, "/\\ \t") {
		return invalidFormat("name contains invalid characters: " + value)
	}
	return nil
}

func invalidFormat(reason string) *sshpoderr.Error {
	return sshpoderr.New(sshpoderr.BadHostname,
		"hostname must be pod--<pod>[.namespace--<ns>][.context--<ctx>][.container--<c>].sshpod "+
			"(deployment--/job-- variants accepted as target; tokens may appear in any order): "+reason)
}
