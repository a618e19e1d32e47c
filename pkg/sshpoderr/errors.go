// Package sshpoderr defines the typed error kinds that every other package
// in sshpod surfaces to the caller, replacing ad-hoc wrapping with a single
// concrete error carrying a kind, an underlying cause and a trail of context.
package sshpoderr

import (
	"strings"

	"golang.org/x/xerrors"
)

// Kind classifies a failure so that callers (and main's exit-code logic) can
// react to it without string-matching the message.
type Kind int

const (
	BadHostname Kind = iota
	UnknownContext
	ClusterQueryFailed
	NoPodFound
	AmbiguousContainer
	UnsupportedArch
	BundleMissing
	BundleInstallFailed
	UserMismatch
	SshdStartFailed
	BridgeIoError
	PortForwardFailed
)

func (k Kind) String() string {
	switch k {
	case BadHostname:
		return "BadHostname"
	case UnknownContext:
		return "UnknownContext"
	case ClusterQueryFailed:
		return "ClusterQueryFailed"
	case NoPodFound:
		return "NoPodFound"
	case AmbiguousContainer:
		return "AmbiguousContainer"
	case UnsupportedArch:
		return "UnsupportedArch"
	case BundleMissing:
		return "BundleMissing"
	case BundleInstallFailed:
		return "BundleInstallFailed"
	case UserMismatch:
		return "UserMismatch"
	case SshdStartFailed:
		return "SshdStartFailed"
	case BridgeIoError:
		return "BridgeIoError"
	case PortForwardFailed:
		return "PortForwardFailed"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type carried through every sshpod package.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context []string
}

func (e *Error) Error() string {
	var b strings.Builder
	for _, c := range e.Context {
		b.WriteString(c)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error of the given kind with the given message and no
// cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind around an existing cause, with an
// optional trail of context strings (outermost first).
func Wrap(kind Kind, cause error, message string, context ...string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause, Context: context}
}

// WithContext returns a copy of e with an additional context string appended
// to the front of the trail (so the newest caller's context reads first).
func (e *Error) WithContext(context string) *Error {
	next := &Error{
		Kind:    e.Kind,
		Message: e.Message,
		Cause:   e.Cause,
		Context: append([]string{context}, e.Context...),
	}
	return next
}

// HasKind reports whether err is (or wraps) an *Error of the given kind.
// It walks the chain with xerrors.As rather than a hand-rolled loop so that
// an *Error embedded behind a third-party wrapper (go-errors/errors included)
// is still found as long as that wrapper exposes Unwrap.
func HasKind(err error, kind Kind) bool {
	var se *Error
	for {
		if !xerrors.As(err, &se) {
			return false
		}
		if se.Kind == kind {
			return true
		}
		err = se.Cause
		se = nil
	}
}
