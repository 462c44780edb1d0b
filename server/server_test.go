package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger { return log.New(os.Stderr) }

func startTestServer(t *testing.T, agent Agent) (*Server, context.CancelFunc, chan error) {
	t.Helper()
	srv := New(agent, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()
	require.Eventually(t, func() bool { return srv.Addr() != nil },
		2*time.Second, 10*time.Millisecond, "listener did not come up")
	return srv, cancel, done
}

func TestServeCommandOverTCP(t *testing.T) {
	agent := &fakeAgent{}
	srv, cancel, done := startTestServer(t, agent)
	defer cancel()

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = fmt.Fprint(conn, "!save"+sentinel)
	require.NoError(t, err)

	reply, err := ReadMessage(bufio.NewReader(conn))
	require.NoError(t, err)
	assert.Equal(t, "SYSTEM:::Memory state saved.", reply)
	assert.True(t, agent.saved)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop after cancellation")
	}
}

func TestShutdownUnblocksIdleConnections(t *testing.T) {
	srv, cancel, done := startTestServer(t, &fakeAgent{})

	// An idle client sends nothing; its handler sits in a blocking read.
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown hung on an idle connection")
	}
}
