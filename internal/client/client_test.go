package client_test

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kstor/internal/client"
	"kstor/internal/controller/auth"
	"kstor/internal/dispatch"
	"kstor/internal/server"
	"kstor/internal/session"
	"kstor/internal/store/memstore"
	"kstor/internal/wire"
)

func startServer(t *testing.T) string {
	t.Helper()
	repo := memstore.New()
	sessions := session.New(15*time.Minute, 4*time.Hour)
	d := dispatch.New(repo, sessions, auth.New(repo, sessions))

	sockPath := filepath.Join(t.TempDir(), "kstor.sock")
	pool := server.NewPool(d, 3, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx, sockPath) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	for i := 0; i < 50; i++ {
		conn, err := net.Dial("unix", sockPath)
		if err == nil {
			conn.Close()
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	return sockPath
}

func TestCallPingPong(t *testing.T) {
	sockPath := startServer(t)
	c := client.New(sockPath, "alice", "hunter22")

	var pong wire.PongArgs
	require.NoError(t, c.Call(context.Background(), wire.TypePing, wire.PingArgs{Payload: "hi"}, &pong))
	require.Equal(t, "hi", pong.Payload)
	require.NotEmpty(t, c.SessionID)
	// first call bootstraps the admin user via credentials; the session
	// established by the response is used for every later call.
	require.Empty(t, c.Login)
	require.Empty(t, c.Password)
}

func TestCallSurfacesServerError(t *testing.T) {
	sockPath := startServer(t)
	c := client.New(sockPath, "alice", "hunter22")

	var pong wire.PongArgs
	require.NoError(t, c.Call(context.Background(), wire.TypePing, wire.PingArgs{}, &pong))

	var info wire.GroupInfoArgs
	err := c.Call(context.Background(), wire.TypeGroupGet, wire.GroupGetArgs{GroupID: "nonexistent"}, &info)
	require.Error(t, err)

	var callErr *client.CallError
	require.ErrorAs(t, err, &callErr)
	require.NotEmpty(t, callErr.Code)
}
