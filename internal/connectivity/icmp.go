package connectivity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// icmpEcho sends one echo request over an unprivileged ICMP socket
// (udp4), which needs net.ipv4.ping_group_range to include our group on
// Linux. Any failure, including permission errors, is returned as-is.
func icmpEcho(ctx context.Context, host string, timeout time.Duration) error {
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	if len(ips) == 0 {
		return fmt.Errorf("no IPv4 address for %s", host)
	}
	dst := &net.UDPAddr{IP: ips[0]}

	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err != nil {
		return fmt.Errorf("failed to open ICMP socket: %w", err)
	}
	defer func() { _ = conn.Close() }()

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   os.Getpid() & 0xffff,
			Seq:  1,
			Data: []byte("ec2keeper"),
		},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return fmt.Errorf("failed to marshal echo: %w", err)
	}
	if _, err := conn.WriteTo(wb, dst); err != nil {
		return fmt.Errorf("failed to send echo: %w", err)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	rb := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(rb)
		if err != nil {
			return fmt.Errorf("no echo reply: %w", err)
		}
		if udp, ok := peer.(*net.UDPAddr); ok && !udp.IP.Equal(dst.IP) {
			continue
		}
		reply, err := icmp.ParseMessage(ipv4.ICMPTypeEchoReply.Protocol(), rb[:n])
		if err != nil {
			return fmt.Errorf("failed to parse reply: %w", err)
		}
		if reply.Type == ipv4.ICMPTypeEchoReply {
			return nil
		}
		if reply.Type == ipv4.ICMPTypeDestinationUnreachable {
			return errors.New("destination unreachable")
		}
	}
}
