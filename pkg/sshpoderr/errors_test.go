package sshpoderr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorRendersMessageAndCause(t *testing.T) {
	cause := errors.New("exit status 1: permission denied")
	err := Wrap(ClusterQueryFailed, cause, "kubectl get pod failed")

	assert.Equal(t, "kubectl get pod failed: exit status 1: permission denied", err.Error())
}

func TestErrorRendersContextTrail(t *testing.T) {
	err := New(BadHostname, "hostname must end with .sshpod").
		WithContext("parsing host \"app\"").
		WithContext("proxy")

	assert.Equal(t, "proxy: parsing host \"app\": hostname must end with .sshpod", err.Error())
}

func TestHasKindWalksCauseChain(t *testing.T) {
	inner := New(UnsupportedArch, "unsupported remote architecture: mips")
	outer := Wrap(BundleInstallFailed, inner, "failed to install bundle")

	assert.True(t, HasKind(outer, BundleInstallFailed))
	assert.True(t, HasKind(outer, UnsupportedArch))
	assert.False(t, HasKind(outer, NoPodFound))
}

func TestHasKindFalseForPlainError(t *testing.T) {
	require.False(t, HasKind(errors.New("boom"), BadHostname))
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(SshdStartFailed, cause, "sshd did not start")
	assert.Equal(t, cause, errors.Unwrap(err))
}
