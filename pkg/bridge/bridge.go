// Package bridge pumps bytes between the local SSH client's stdio and a TCP
// connection opened against a kubectl port-forward's local loopback port,
// the ProxyCommand's actual job once C1-C6 have produced a reachable
// address.
package bridge

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/imos/sshpod/pkg/sshpoderr"
)

// Forward is the subset of *kubectl.Forward the bridge needs: a way to stop
// the underlying port-forward subprocess once the bridge is done with it.
type Forward interface {
	Stop() error
}

// Dialer opens the TCP connection to the forwarded local port. Overridable
// for tests; defaults to net.Dialer.DialContext.
type Dialer func(ctx context.Context, network, address string) (net.Conn, error)

// halfCloser is implemented by *net.TCPConn; bridging asserts for it so the
// stdin-EOF → write-shutdown propagation reaches the remote sshd cleanly
// instead of closing the whole connection out from under the reader half.
type halfCloser interface {
	CloseWrite() error
}

// Bridge owns the dialer used to reach a forwarded port.
type Bridge struct {
	Dial Dialer
}

// New returns a Bridge that dials with the standard net.Dialer.
func New() *Bridge {
	return &Bridge{Dial: (&net.Dialer{}).DialContext}
}

// Run implements C7: dial the forwarded local port, pump stdin→socket and
// socket→stdout concurrently, wait for both directions to finish, and
// unconditionally stop forward before returning. The returned error is the
// first of the two directions' errors, if any.
func (b *Bridge) Run(ctx context.Context, stdin io.Reader, stdout io.Writer, localPort int, forward Forward) error {
	defer forward.Stop()

	conn, err := b.Dial(ctx, "tcp", fmt.Sprintf("127.0.0.1:%d", localPort))
	if err != nil {
		return sshpoderr.Wrap(sshpoderr.BridgeIoError, err, "failed to connect to forwarded port")
	}
	defer conn.Close()

	errCh := make(chan error, 2)

	go func() {
		_, copyErr := io.Copy(conn, stdin)
		if hc, ok := conn.(halfCloser); ok {
			_ = hc.CloseWrite()
		}
		errCh <- copyErr
	}()

	go func() {
		_, copyErr := io.Copy(stdout, conn)
		if f, ok := stdout.(interface{ Flush() error }); ok {
			_ = f.Flush()
		}
		errCh <- copyErr
	}()

	var first error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && first == nil {
			first = sshpoderr.Wrap(sshpoderr.BridgeIoError, err, "bridge copy failed")
		}
	}
	return first
}
