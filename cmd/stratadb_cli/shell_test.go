package main

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/sushant-115/stratadb/api/remote"
	"github.com/sushant-115/stratadb/core/dberror"
	"github.com/sushant-115/stratadb/core/environment"
	"github.com/sushant-115/stratadb/pkg/telemetry"
)

func newTestShell(t *testing.T) (*shell, *bytes.Buffer) {
	t.Helper()
	env, err := environment.Create(filepath.Join(t.TempDir(), "cli.db"),
		environment.Config{Flags: environment.EnableTransactions, Logger: zap.NewNop()})
	require.NoError(t, err)
	tel, _, err := telemetry.New(telemetry.Config{Enabled: false})
	require.NoError(t, err)
	srv, err := remote.NewServer(tel, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, srv.AddEnvironment("default", env))

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(srv.UnaryInterceptor()))
	srv.Register(gs)
	go gs.Serve(lis)

	client, err := remote.Dial("passthrough:///bufnet", zap.NewNop(),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }))
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Close()
		gs.Stop()
		srv.Close()
		env.Close()
	})
	out := new(bytes.Buffer)
	return newShell(client, out), out
}

func runLine(t *testing.T, sh *shell, line string) error {
	t.Helper()
	return sh.processCommand(context.Background(), strings.Fields(line))
}

func TestShellSession(t *testing.T) {
	sh, out := newTestShell(t)

	require.ErrorContains(t, runLine(t, sh, "get a"), "not connected")
	require.NoError(t, runLine(t, sh, "connect default"))
	require.ErrorContains(t, runLine(t, sh, "get a"), "no database selected")

	require.NoError(t, runLine(t, sh, "create 1 dup"))
	require.Equal(t, "stratadb:1> ", sh.prompt())
	require.NoError(t, runLine(t, sh, "put a hello world"))
	require.ErrorIs(t, runLine(t, sh, "put a again"), dberror.ErrDuplicateKey)
	require.NoError(t, runLine(t, sh, "dup a second"))

	out.Reset()
	require.NoError(t, runLine(t, sh, "get a"))
	require.Equal(t, "hello world\n", out.String())

	require.NoError(t, runLine(t, sh, "begin"))
	require.Equal(t, "stratadb:1*> ", sh.prompt())
	require.NoError(t, runLine(t, sh, "set b pending"))
	require.NoError(t, runLine(t, sh, "abort"))
	require.ErrorIs(t, runLine(t, sh, "get b"), dberror.ErrKeyNotFound)
	require.Error(t, runLine(t, sh, "commit"))

	require.NoError(t, runLine(t, sh, "create 2 recno"))
	out.Reset()
	require.NoError(t, runLine(t, sh, "append first"))
	require.Equal(t, "Key: 1\n", out.String())
	out.Reset()
	require.NoError(t, runLine(t, sh, "get 1"))
	require.Equal(t, "first\n", out.String())
	require.Error(t, runLine(t, sh, "get one"))

	require.NoError(t, runLine(t, sh, "rename 2 3"))
	out.Reset()
	require.NoError(t, runLine(t, sh, "names"))
	require.Equal(t, "1\n3\n", out.String())

	require.NoError(t, runLine(t, sh, "drop 3"))
	require.ErrorIs(t, runLine(t, sh, "use 3"), dberror.ErrDatabaseNotFound)

	out.Reset()
	require.NoError(t, runLine(t, sh, "params database_count"))
	require.Equal(t, "database_count = 1\n", out.String())
	require.ErrorIs(t, runLine(t, sh, "params nope"), dberror.ErrInvalidParameter)

	require.NoError(t, runLine(t, sh, "flush"))
	require.ErrorIs(t, runLine(t, sh, "exit"), errExit)
	require.Error(t, runLine(t, sh, "bogus"))
}
