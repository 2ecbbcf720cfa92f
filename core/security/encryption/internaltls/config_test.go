package internaltls

import (
	"crypto/tls"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// handshake runs a TLS handshake over loopback TCP and returns the first
// error of either side.
func handshake(t *testing.T, serverCfg, clientCfg *tls.Config) error {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	serverErr := make(chan error, 1)
	go func() {
		conn, err := lis.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		defer conn.Close()
		srv := tls.Server(conn, serverCfg)
		_ = srv.SetDeadline(time.Now().Add(5 * time.Second))
		serverErr <- srv.Handshake()
	}()

	conn, err := net.Dial("tcp", lis.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	cli := tls.Client(conn, clientCfg)
	require.NoError(t, cli.SetDeadline(time.Now().Add(5*time.Second)))
	if err := cli.Handshake(); err != nil {
		return err
	}
	return <-serverErr
}

func TestGenerateAndLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, GenerateCerts(dir, []string{"localhost", "127.0.0.1"}, time.Hour))

	serverFiles, clientFiles := Generated(dir)
	require.True(t, serverFiles.Enabled())
	require.False(t, Files{}.Enabled())

	info, err := os.Stat(serverFiles.Key)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	serverCfg, err := LoadServerConfig(serverFiles)
	require.NoError(t, err)
	require.Equal(t, tls.RequireAndVerifyClientCert, serverCfg.ClientAuth)
	clientCfg, err := LoadClientConfig(clientFiles, "localhost")
	require.NoError(t, err)

	require.NoError(t, handshake(t, serverCfg, clientCfg))
}

func TestForeignCARejected(t *testing.T) {
	dir, other := t.TempDir(), t.TempDir()
	require.NoError(t, GenerateCerts(dir, nil, time.Hour))
	require.NoError(t, GenerateCerts(other, nil, time.Hour))

	serverFiles, _ := Generated(dir)
	_, foreignClient := Generated(other)
	serverCfg, err := LoadServerConfig(serverFiles)
	require.NoError(t, err)
	clientCfg, err := LoadClientConfig(foreignClient, "localhost")
	require.NoError(t, err)

	require.Error(t, handshake(t, serverCfg, clientCfg))
}

func TestLoadMissingFiles(t *testing.T) {
	_, err := LoadServerConfig(Files{CA: "missing.crt", Cert: "missing.crt", Key: "missing.key"})
	require.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, GenerateCerts(dir, nil, time.Hour))
	_, clientFiles := Generated(dir)
	clientFiles.CA = clientFiles.Key
	_, err = LoadClientConfig(clientFiles, "")
	require.Error(t, err)
}
