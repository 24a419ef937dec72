package connectivity

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/crypto/ssh"

	sshclient "github.com/imamik/ec2keeper/internal/platform/ssh"
)

const (
	defaultSSHPort     = 22
	defaultPingTimeout = 3 * time.Second
)

// PingResult is the outcome of an ICMP probe.
type PingResult string

// Ping outcomes.
const (
	PingReachable PingResult = "reachable"
	PingUnknown   PingResult = "unknown"
)

// PingFunc sends one echo request and waits for the reply.
type PingFunc func(ctx context.Context, host string, timeout time.Duration) error

// strategy is one way of deciding whether a TCP port accepts connections.
type strategy struct {
	name  string
	probe func(ctx context.Context, addr string, timeout time.Duration) error
}

// Prober runs port probes, remote commands, and pings.
type Prober struct {
	logger          logr.Logger
	strategies      []strategy
	ping            PingFunc
	pingTimeout     time.Duration
	sshPort         int
	hostKeyCallback ssh.HostKeyCallback
}

// Option configures a Prober.
type Option func(*Prober)

// WithPingTimeout bounds how long Ping waits for a reply.
func WithPingTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.pingTimeout = d
		}
	}
}

// WithPinger replaces the ICMP implementation.
func WithPinger(fn PingFunc) Option {
	return func(p *Prober) {
		p.ping = fn
	}
}

// WithSSHPort sets the port RunRemoteCommand connects to.
func WithSSHPort(port int) Option {
	return func(p *Prober) {
		if port > 0 {
			p.sshPort = port
		}
	}
}

// WithHostKeyCallback enables host key verification for remote commands.
// The default accepts any host key.
func WithHostKeyCallback(cb ssh.HostKeyCallback) Option {
	return func(p *Prober) {
		p.hostKeyCallback = cb
	}
}

// NewProber creates a Prober.
func NewProber(logger logr.Logger, opts ...Option) *Prober {
	p := &Prober{
		logger: logger.WithName("connectivity"),
		strategies: []strategy{
			{name: "tcp-connect", probe: tcpConnect},
			{name: "ssh-banner", probe: sshBanner},
		},
		ping:        icmpEcho,
		pingTimeout: defaultPingTimeout,
		sshPort:     defaultSSHPort,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IsPortOpen reports whether host:port accepts connections. All strategies
// failing is a negative result, not an error.
//
// Both built-in strategies dial TCP from this host, so they share one
// network path. The second is a fresh connection attempt that also
// confirms an SSH server answers; it covers a transient refusal or a lost
// SYN while sshd starts, not a blocked route.
func (p *Prober) IsPortOpen(ctx context.Context, host string, port int, timeout time.Duration) (bool, error) {
	if host == "" {
		return false, errors.New("host is empty")
	}
	if port < 1 || port > 65535 {
		return false, fmt.Errorf("invalid port %d", port)
	}
	if timeout <= 0 {
		return false, fmt.Errorf("invalid timeout %s", timeout)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	for _, s := range p.strategies {
		err := s.probe(ctx, addr, timeout)
		if err == nil {
			p.logger.V(1).Info("port open", "addr", addr, "strategy", s.name)
			return true, nil
		}
		p.logger.V(1).Info("port probe failed", "addr", addr, "strategy", s.name, "error", err.Error())
	}
	return false, nil
}

// RunRemoteCommand executes command on host as user with the private key
// at keyPath. It makes exactly one attempt; timeout bounds connection
// setup.
func (p *Prober) RunRemoteCommand(ctx context.Context, host, user, keyPath, command string, timeout time.Duration) (string, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return "", fmt.Errorf("failed to read key %s: %w", keyPath, err)
	}

	client, err := sshclient.NewClient(&sshclient.Config{
		Host:            host,
		Port:            p.sshPort,
		User:            user,
		PrivateKey:      key,
		DialTimeout:     timeout,
		HostKeyCallback: p.hostKeyCallback,
	})
	if err != nil {
		return "", err
	}

	return client.Execute(ctx, command)
}

// Ping sends one ICMP echo. Failures are logged as inconclusive.
func (p *Prober) Ping(ctx context.Context, host string) PingResult {
	if host == "" {
		return PingUnknown
	}
	if err := p.ping(ctx, host, p.pingTimeout); err != nil {
		p.logger.Info("ping inconclusive, ICMP may be filtered", "host", host, "error", err.Error())
		return PingUnknown
	}
	return PingReachable
}

// tcpConnect opens and immediately closes a TCP connection.
func tcpConnect(ctx context.Context, addr string, timeout time.Duration) error {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

// sshBanner connects and reads the server's identification line, which an
// SSH server sends before the client speaks. It uses its own dial, so a
// failure of tcpConnect's dial is retried once.
func sshBanner(ctx context.Context, addr string, timeout time.Duration) error {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read banner: %w", err)
	}
	if !strings.HasPrefix(line, "SSH-") {
		return fmt.Errorf("unexpected banner %q", strings.TrimSpace(line))
	}
	return nil
}
