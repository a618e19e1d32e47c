package bridge

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeForward struct {
	stopped bool
}

func (f *fakeForward) Stop() error {
	f.stopped = true
	return nil
}

// loopbackEcho spins up a real TCP listener on an ephemeral port that
// echoes whatever it receives, and returns a Dialer bound to it regardless
// of the address Run asks for, so tests exercise the actual net.Conn
// CloseWrite half-close path instead of a pipe.
func loopbackEcho(t *testing.T) (net.Listener, Dialer) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = io.Copy(conn, conn)
	}()

	dial := func(ctx context.Context, network, address string) (net.Conn, error) {
		return net.Dial("tcp", ln.Addr().String())
	}
	return ln, dial
}

func TestRunEchoesStdinToStdout(t *testing.T) {
	ln, dial := loopbackEcho(t)
	defer ln.Close()

	b := &Bridge{Dial: dial}
	forward := &fakeForward{}

	stdin := bytes.NewBufferString("ping")
	var stdout bytes.Buffer

	done := make(chan error, 1)
	go func() {
		done <- b.Run(context.Background(), stdin, &stdout, 0, forward)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("bridge Run did not complete")
	}

	assert.Equal(t, "ping", stdout.String())
	assert.True(t, forward.stopped)
}

func TestRunStopsForwardOnDialFailure(t *testing.T) {
	dial := func(ctx context.Context, network, address string) (net.Conn, error) {
		return nil, assertError("boom")
	}
	b := &Bridge{Dial: dial}
	forward := &fakeForward{}

	err := b.Run(context.Background(), bytes.NewReader(nil), &bytes.Buffer{}, 0, forward)
	require.Error(t, err)
	assert.True(t, forward.stopped)
}

type assertError string

func (e assertError) Error() string { return string(e) }
