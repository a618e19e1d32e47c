package hostspec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imos/sshpod/pkg/sshpoderr"
)

func TestParseHappyPaths(t *testing.T) {
	cases := []struct {
		name string
		host string
		want HostSpec
	}{
		{
			name: "full qualification",
			host: "pod--app.namespace--ns.context--ctx.sshpod",
			want: HostSpec{Context: "ctx", Namespace: "ns", Target: Target{Kind: TargetPod, Name: "app"}},
		},
		{
			name: "namespace defaulted from context",
			host: "pod--app.context--ctx.sshpod",
			want: HostSpec{Context: "ctx", Target: Target{Kind: TargetPod, Name: "app"}},
		},
		{
			name: "container qualifier on deployment",
			host: "container--web.deployment--api.namespace--ns.context--ctx.sshpod",
			want: HostSpec{Context: "ctx", Namespace: "ns", Container: "web", Target: Target{Kind: TargetDeployment, Name: "api"}},
		},
		{
			name: "bare name is a pod",
			host: "db.sshpod",
			want: HostSpec{Target: Target{Kind: TargetPod, Name: "db"}},
		},
		{
			name: "job target",
			host: "job--migrate.namespace--batch.sshpod",
			want: HostSpec{Namespace: "batch", Target: Target{Kind: TargetJob, Name: "migrate"}},
		},
		{
			name: "trailing dot normalised",
			host: "pod--app.namespace--ns.sshpod.",
			want: HostSpec{Namespace: "ns", Target: Target{Kind: TargetPod, Name: "app"}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.host)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseMissingSuffix(t *testing.T) {
	_, err := Parse("pod--app.namespace--ns")
	require.Error(t, err)
	assert.True(t, sshpoderr.HasKind(err, sshpoderr.BadHostname))
}

func TestParseInvalidFormat(t *testing.T) {
	cases := []string{
		"sshpod",              // empty before suffix
		".sshpod",              // empty before suffix after dot
		"pod--.namespace--ns.sshpod",       // empty target value
		"namespace--ns.sshpod",             // no target token at all
		"pod--a.pod--b.sshpod",             // two target tokens
		"pod--a.namespace--ns.namespace--ns2.sshpod", // duplicate namespace
		"pod--a.context--.sshpod",          // empty context value
		"pod--a..namespace--ns.sshpod",     // empty token from double dot
		"deployment--.sshpod",              // empty deployment name
		"job--.sshpod",                     // empty job name
		"container--.pod--a.sshpod",        // empty container value
	}
	for _, host := range cases {
		t.Run(host, func(t *testing.T) {
			_, err := Parse(host)
			require.Error(t, err, "expected error for %q", host)
			assert.True(t, sshpoderr.HasKind(err, sshpoderr.BadHostname))
		})
	}
}

func TestParseNeverPanics(t *testing.T) {
	inputs := []string{"", ".", "...", "sshpod.sshpod.sshpod", strings.Repeat("a.", 50) + "sshpod"}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			_, _ = Parse(in)
		})
	}
}

func TestParseIsIdempotentUnderTrailingDot(t *testing.T) {
	host := "pod--app.namespace--ns.context--ctx.sshpod"
	a, errA := Parse(host)
	b, errB := Parse(host + ".")
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)
}

func TestParseTokenOrderIrrelevant(t *testing.T) {
	permutations := []string{
		"pod--app.namespace--ns.context--ctx.container--main.sshpod",
		"container--main.pod--app.namespace--ns.context--ctx.sshpod",
		"context--ctx.container--main.namespace--ns.pod--app.sshpod",
		"namespace--ns.context--ctx.pod--app.container--main.sshpod",
	}

	want, err := Parse(permutations[0])
	require.NoError(t, err)

	for _, host := range permutations[1:] {
		got, err := Parse(host)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
