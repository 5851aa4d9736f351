package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultProbe is the payload the reference client broadcasts.
const DefaultProbe = "DISCOVER_EMERGENCY_SERVER"

// ReplyPrefix starts every discovery reply; the TCP port follows it.
const ReplyPrefix = "EMERGENCY_SERVER:"

// ExitCommand ends a session.
const ExitCommand = "exit"

const (
	DefaultAttempts = 5
	DefaultWait     = 2 * time.Second
)

// ErrNotFound means no server answered any probe.
var ErrNotFound = errors.New("no emergency server found")

// Discoverer locates a server by sending probes to Target, which may be a
// broadcast address such as 255.255.255.255:10841.
type Discoverer struct {
	Target   string
	Probe    string
	Attempts int
	Wait     time.Duration
}

// Discover returns the server's TCP endpoint as host:port, where host is the
// address the reply came from.
func (d *Discoverer) Discover(ctx context.Context) (string, error) {
	probe, attempts, wait := d.Probe, d.Attempts, d.Wait
	if probe == "" {
		probe = DefaultProbe
	}
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if wait <= 0 {
		wait = DefaultWait
	}

	target, err := net.ResolveUDPAddr("udp4", d.Target)
	if err != nil {
		return "", fmt.Errorf("failed to resolve discovery target %s: %w", d.Target, err)
	}

	lc := net.ListenConfig{Control: enableBroadcast}
	pc, err := lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		return "", fmt.Errorf("failed to open discovery socket: %w", err)
	}
	defer pc.Close()

	buf := make([]byte, 1024)
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if _, err := pc.WriteTo([]byte(probe), target); err != nil {
			return "", fmt.Errorf("failed to send discovery probe: %w", err)
		}

		deadline := time.Now().Add(wait)
		if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
			deadline = dl
		}
		pc.SetReadDeadline(deadline)

		for {
			n, from, err := pc.ReadFrom(buf)
			if err != nil {
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					break
				}
				return "", fmt.Errorf("failed to read discovery reply: %w", err)
			}
			port, ok := ParseReply(string(buf[:n]))
			if !ok {
				continue
			}
			host := from.(*net.UDPAddr).IP.String()
			return net.JoinHostPort(host, strconv.Itoa(port)), nil
		}
	}
	return "", ErrNotFound
}

// ParseReply extracts the port from an EMERGENCY_SERVER:<port> reply.
func ParseReply(s string) (int, bool) {
	rest, ok := strings.CutPrefix(s, ReplyPrefix)
	if !ok {
		return 0, false
	}
	port, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || port <= 0 || port > 65535 {
		return 0, false
	}
	return port, true
}

func enableBroadcast(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return serr
}

// Session is a TCP connection to the server. Each Request is one write and
// one read, matching the server's unframed protocol.
type Session struct {
	conn net.Conn
	buf  []byte
}

// Dial connects to addr.
func Dial(ctx context.Context, addr string) (*Session, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &Session{conn: conn, buf: make([]byte, 1024)}, nil
}

// Request sends a service name and returns the server's reply.
func (s *Session) Request(ctx context.Context, service string) (string, error) {
	if dl, ok := ctx.Deadline(); ok {
		s.conn.SetDeadline(dl)
		defer s.conn.SetDeadline(time.Time{})
	}
	if _, err := s.conn.Write([]byte(service)); err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	n, err := s.conn.Read(s.buf)
	if err != nil {
		return "", fmt.Errorf("failed to read reply: %w", err)
	}
	return string(s.buf[:n]), nil
}

// Exit tells the server to drop the session and closes the socket.
func (s *Session) Exit() error {
	_, werr := s.conn.Write([]byte(ExitCommand))
	cerr := s.conn.Close()
	if werr != nil {
		return fmt.Errorf("failed to send exit: %w", werr)
	}
	return cerr
}

// Conn exposes the underlying connection.
func (s *Session) Conn() net.Conn { return s.conn }

func (s *Session) Close() error { return s.conn.Close() }
