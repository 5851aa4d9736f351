package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/logger"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/metrics"
	"github.com/hasirciogluhq/emergency-directory/pkg/client"
)

// ReplyPrefix starts every discovery reply; the TCP port follows it.
const ReplyPrefix = client.ReplyPrefix

// Reply formats the discovery answer for a TCP port.
func Reply(port int) string {
	return fmt.Sprintf("%s%d", ReplyPrefix, port)
}

// Responder answers discovery probes with the TCP service port. By default any
// datagram triggers a reply; setting Token restricts replies to probes whose
// trimmed payload equals it.
type Responder struct {
	Token   string
	Metrics *metrics.Metrics

	conn  net.PacketConn
	reply []byte
}

// Listen binds the UDP discovery socket. Failures are fatal startup errors.
func Listen(addr string, advertisedPort int, token string, m *metrics.Metrics) (*Responder, error) {
	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for discovery on %s: %w", addr, err)
	}
	return &Responder{
		Token:   token,
		Metrics: m,
		conn:    conn,
		reply:   []byte(Reply(advertisedPort)),
	}, nil
}

// Addr is the bound UDP address.
func (r *Responder) Addr() net.Addr {
	return r.conn.LocalAddr()
}

// Run answers probes until ctx is cancelled. Closing the socket on
// cancellation unblocks the pending receive.
func (r *Responder) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { r.conn.Close() })
	defer stop()
	defer r.conn.Close()

	logger.Info("Listening for discovery requests", "addr", r.conn.LocalAddr().String())

	buf := make([]byte, 1024)
	for {
		n, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Info("Discovery responder stopped")
				return nil
			}
			logger.Warn("Discovery receive failed", "error", err)
			continue
		}

		if r.Token != "" && strings.TrimSpace(string(buf[:n])) != r.Token {
			r.Metrics.Probe(metrics.ProbeDropped)
			logger.Debug("Discovery probe ignored", "remote_addr", from.String())
			continue
		}

		if _, err := r.conn.WriteTo(r.reply, from); err != nil {
			r.Metrics.Probe(metrics.ProbeSendError)
			logger.Warn("Discovery reply failed", "remote_addr", from.String(), "error", err)
			continue
		}
		r.Metrics.Probe(metrics.ProbeReplied)
		logger.Debug("Discovery probe answered", "remote_addr", from.String())
	}
}
