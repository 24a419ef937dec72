package connectivity

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testutil "github.com/imamik/ec2keeper/internal/testing"
)

// listen returns a listener on a free localhost port that accepts and
// optionally greets each connection.
func listen(t *testing.T, greeting string) (string, int) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			if greeting != "" {
				_, _ = conn.Write([]byte(greeting))
			}
			_ = conn.Close()
		}
	}()

	addr := l.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

// closedPort returns a localhost port with nothing listening.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestIsPortOpen_Listening(t *testing.T) {
	t.Parallel()
	host, port := listen(t, "")
	p := NewProber(logr.Discard())

	ok, err := p.IsPortOpen(context.Background(), host, port, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsPortOpen_ClosedIsNegativeNotError(t *testing.T) {
	t.Parallel()
	p := NewProber(logr.Discard())

	ok, err := p.IsPortOpen(context.Background(), "127.0.0.1", closedPort(t), 500*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsPortOpen_InvalidInput(t *testing.T) {
	t.Parallel()
	p := NewProber(logr.Discard())
	ctx := context.Background()

	_, err := p.IsPortOpen(ctx, "", 22, time.Second)
	assert.Error(t, err)
	_, err = p.IsPortOpen(ctx, "127.0.0.1", 0, time.Second)
	assert.Error(t, err)
	_, err = p.IsPortOpen(ctx, "127.0.0.1", 70000, time.Second)
	assert.Error(t, err)
	_, err = p.IsPortOpen(ctx, "127.0.0.1", 22, 0)
	assert.Error(t, err)
}

func TestIsPortOpen_FallsBackToSecondStrategy(t *testing.T) {
	t.Parallel()
	host, port := listen(t, "SSH-2.0-OpenSSH_9.6\r\n")
	p := NewProber(logr.Discard())

	var order []string
	p.strategies = []strategy{
		{name: "broken", probe: func(context.Context, string, time.Duration) error {
			order = append(order, "broken")
			return errors.New("tool unavailable")
		}},
		{name: "ssh-banner", probe: func(ctx context.Context, addr string, timeout time.Duration) error {
			order = append(order, "ssh-banner")
			return sshBanner(ctx, addr, timeout)
		}},
	}

	ok, err := p.IsPortOpen(context.Background(), host, port, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"broken", "ssh-banner"}, order)
}

func TestSSHBanner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	host, port := listen(t, "SSH-2.0-OpenSSH_9.6\r\n")
	assert.NoError(t, sshBanner(ctx, net.JoinHostPort(host, strconv.Itoa(port)), time.Second))

	host, port = listen(t, "HTTP/1.1 400 Bad Request\r\n")
	err := sshBanner(ctx, net.JoinHostPort(host, strconv.Itoa(port)), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected banner")
}

func TestSSHBanner_RealServer(t *testing.T) {
	t.Parallel()
	kp := testutil.GenerateKey(t)
	srv := testutil.NewSSHServer(t, kp.PublicKey, testutil.EchoHandler)

	assert.NoError(t, sshBanner(context.Background(), srv.Addr(), time.Second))
}

func TestRunRemoteCommand(t *testing.T) {
	t.Parallel()
	kp := testutil.GenerateKey(t)
	srv := testutil.NewSSHServer(t, kp.PublicKey, testutil.EchoHandler)
	keyPath := testutil.WriteFile(t, t.TempDir(), "deploy.pem", kp.PrivateKey)

	p := NewProber(logr.Discard(), WithSSHPort(srv.Port))
	out, err := p.RunRemoteCommand(testutil.TestContext(t), srv.Host, "ubuntu", keyPath, "echo ok", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ok", strings.TrimSpace(out))
}

func TestRunRemoteCommand_MissingKeyFile(t *testing.T) {
	t.Parallel()
	p := NewProber(logr.Discard())

	_, err := p.RunRemoteCommand(context.Background(), "127.0.0.1", "ubuntu", "/nonexistent/key.pem", "echo ok", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read key")
}

func TestPing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	reachable := NewProber(logr.Discard(), WithPinger(func(context.Context, string, time.Duration) error { return nil }))
	assert.Equal(t, PingReachable, reachable.Ping(ctx, "198.51.100.1"))

	filtered := NewProber(logr.Discard(), WithPinger(func(context.Context, string, time.Duration) error {
		return errors.New("operation not permitted")
	}))
	assert.Equal(t, PingUnknown, filtered.Ping(ctx, "198.51.100.1"))
	assert.Equal(t, PingUnknown, filtered.Ping(ctx, ""))
}

func TestWithPingTimeout(t *testing.T) {
	t.Parallel()
	var got time.Duration
	p := NewProber(logr.Discard(), WithPingTimeout(750*time.Millisecond), WithPinger(func(_ context.Context, _ string, timeout time.Duration) error {
		got = timeout
		return nil
	}))

	p.Ping(context.Background(), "198.51.100.1")
	assert.Equal(t, 750*time.Millisecond, got)
}
