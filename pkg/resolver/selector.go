package resolver

import (
	"sort"
	"strings"

	"github.com/imos/sshpod/pkg/kubectl"
	"github.com/imos/sshpod/pkg/sshpoderr"
)

// renderSelector turns matchLabels + matchExpressions into the comma-joined
// label-selector string kubectl's -l flag expects: `k=v` for each label,
// `k in (v1,v2)` / `k notin (v1,v2)` for In/NotIn, `k` / `!k` for
// Exists/DoesNotExist. Keys are sorted so the rendered string (and therefore
// any logging or test fixture built on it) is deterministic.
func renderSelector(matchLabels map[string]string, matchExpressions []kubectl.SelectorRequirement) (string, error) {
	var terms []string

	keys := make([]string, 0, len(matchLabels))
	for k := range matchLabels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		terms = append(terms, k+"="+matchLabels[k])
	}

	for _, expr := range matchExpressions {
		switch expr.Operator {
		case "In":
			if len(expr.Values) == 0 {
				return "", sshpoderr.New(sshpoderr.ClusterQueryFailed,
					"label selector requirement \"In\" for key "+expr.Key+" has no values")
			}
			terms = append(terms, expr.Key+" in ("+strings.Join(expr.Values, ",")+")")
		case "NotIn":
			if len(expr.Values) == 0 {
				return "", sshpoderr.New(sshpoderr.ClusterQueryFailed,
					"label selector requirement \"NotIn\" for key "+expr.Key+" has no values")
			}
			terms = append(terms, expr.Key+" notin ("+strings.Join(expr.Values, ",")+")")
		case "Exists":
			terms = append(terms, expr.Key)
		case "DoesNotExist":
			terms = append(terms, "!"+expr.Key)
		default:
			return "", sshpoderr.New(sshpoderr.ClusterQueryFailed, "unsupported label selector operator "+expr.Operator)
		}
	}

	if len(terms) == 0 {
		return "", sshpoderr.New(sshpoderr.ClusterQueryFailed, "label selector is empty")
	}
	return strings.Join(terms, ","), nil
}
